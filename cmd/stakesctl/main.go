// Command stakesctl signs transactions and queries a stakesd daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"karmastakes.app/stakes/internal/client"
	"karmastakes.app/stakes/internal/identity"
	"karmastakes.app/stakes/internal/types"
)

type globalFlags struct {
	API     string
	KeyFile string
	Timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "stakesctl",
		Short:         "Client for the karma stakes ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.API, "api", client.DefaultAddr, "daemon API address")
	root.PersistentFlags().StringVar(&flags.KeyFile, "key", "stakes_user.pem", "signing key file")
	root.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		keygenCmd(flags),
		addressCmd(flags),
		txCmd(flags),
		relayCmd(flags),
		balanceCmd(flags),
		connectCmd(flags),
		eventsCmd(flags),
		auditCmd(flags),
	)
	return root
}

func (f *globalFlags) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.Timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keygenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new signing key",
		Long: `Generate a new ed25519 key at --key and print its address.

An existing key file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Generate(flags.KeyFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), types.AddressFromPublicKey(id.PublicKey()))
			return nil
		},
	}
}

func addressCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address of the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Load(flags.KeyFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), types.AddressFromPublicKey(id.PublicKey()))
			return nil
		},
	}
}

// parseTx checks the type name and that payload is a JSON object.
func parseTx(name, payload string) (types.TransactionType, json.RawMessage, error) {
	txType := types.TransactionType(name)
	if !slices.Contains(types.TransactionTypes, txType) {
		return "", nil, fmt.Errorf("unknown transaction type %q", name)
	}
	if payload == "" {
		payload = "{}"
	}
	raw := json.RawMessage(payload)
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return txType, raw, nil
}

func payloadArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

func txCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tx <type> [payload]",
		Short: "Sign and submit a transaction",
		Long: `Sign a transaction with --key and submit it to the daemon.

Example:
  stakesctl tx buy_karma '{"value":"1000"}'
  stakesctl tx stake '{"target":"<address>"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txType, payload, err := parseTx(args[0], payloadArg(args))
			if err != nil {
				return err
			}
			id, err := identity.Load(flags.KeyFile)
			if err != nil {
				return err
			}
			ctx, cancel := flags.context()
			defer cancel()
			resp, err := client.New(flags.API).SubmitTx(ctx, id, txType, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func relayCmd(flags *globalFlags) *cobra.Command {
	var forwarderKey string
	cmd := &cobra.Command{
		Use:   "relay <type> [payload]",
		Short: "Submit a transaction sponsored by the paymaster",
		Long: `Sign an intent with --key, countersign it with --forwarder and submit
it for sponsored execution. The relay fee is deducted from the sender's
approved Karma.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txType, payload, err := parseTx(args[0], payloadArg(args))
			if err != nil {
				return err
			}
			signer, err := identity.Load(flags.KeyFile)
			if err != nil {
				return err
			}
			forwarder, err := identity.Load(forwarderKey)
			if err != nil {
				return err
			}
			ctx, cancel := flags.context()
			defer cancel()
			resp, err := client.New(flags.API).SubmitRelay(ctx, signer, forwarder, txType, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&forwarderKey, "forwarder", "stakes_forwarder.pem", "forwarder key file")
	return cmd
}

// targetAddress is the argument when given, else the address of --key.
func targetAddress(flags *globalFlags, args []string) (types.Address, error) {
	if len(args) > 0 {
		addr, ok := types.ParseAddress(args[0])
		if !ok {
			return "", fmt.Errorf("invalid address %q", args[0])
		}
		return addr, nil
	}
	id, err := identity.Load(flags.KeyFile)
	if err != nil {
		return "", err
	}
	return types.AddressFromPublicKey(id.PublicKey()), nil
}

func balanceCmd(flags *globalFlags) *cobra.Command {
	var scale uint
	var raw bool
	cmd := &cobra.Command{
		Use:   "balance [address]",
		Short: "Print a Karma balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := targetAddress(flags, args)
			if err != nil {
				return err
			}
			ctx, cancel := flags.context()
			defer cancel()
			bal, err := client.New(flags.API).Balance(ctx, addr)
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), bal.Dec())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), types.ScaleDown(bal, scale))
			return nil
		},
	}
	cmd.Flags().UintVar(&scale, "scale", types.DefaultKarmaScale, "decimal places of a human Karma value")
	cmd.Flags().BoolVar(&raw, "raw", false, "print base units")
	return cmd
}

func connectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [address]",
		Short: "Show the ledger view of an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := targetAddress(flags, args)
			if err != nil {
				return err
			}
			ctx, cancel := flags.context()
			defer cancel()
			conn, err := client.New(flags.API).Connect(ctx, addr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), conn)
		},
	}
}

func eventsCmd(flags *globalFlags) *cobra.Command {
	var after uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List ledger events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := flags.context()
			defer cancel()
			events, err := client.New(flags.API).Events(ctx, after, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a higher sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events")
	return cmd
}

func auditCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check the ledger accounting invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := flags.context()
			defer cancel()
			report, err := client.New(flags.API).Audit(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("audit found %d problems", len(report.Problems))
			}
			return nil
		},
	}
}
