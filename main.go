// Package main is the entry point for stakesd, the karma stakes ledger
// daemon. It opens the ledger, wires the relay gateway and serves the API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/api"
	"karmastakes.app/stakes/internal/config"
	"karmastakes.app/stakes/internal/docs"
	"karmastakes.app/stakes/internal/feed"
	"karmastakes.app/stakes/internal/identity"
	"karmastakes.app/stakes/internal/ledger"
	"karmastakes.app/stakes/internal/logger"
	"karmastakes.app/stakes/internal/metrics"
	"karmastakes.app/stakes/internal/relay"
	"karmastakes.app/stakes/internal/types"
	"karmastakes.app/stakes/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stakesd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "stakesd",
		Short:         "Karma stakes ledger daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "stakes.yaml", "config file (JSON or YAML)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the ledger API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(configPath)
			},
		},
		&cobra.Command{
			Use:   "audit",
			Short: "Check the accounting invariants of the ledger file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(configPath, func(store *ledger.Store, _ *logger.Logger) error {
					return runAudit(cmd.Context(), store, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Copy the ledger file into the backup directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(configPath, func(store *ledger.Store, _ *logger.Logger) error {
					info, err := store.BackupCurrent(config.Get().MaxBackups)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), info.Path)
					return nil
				})
			},
		},
	)
	return root
}

// openStore loads config, the node key and the ledger. The node key is the
// owner of every role the config leaves unset.
func openStore(configPath string) (*ledger.Store, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logs, err := logger.NewWithOptions(cfg.LogBuffer, cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	id, err := identity.LoadOrCreateIdentity(cfg.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load node key: %w", err)
	}
	node := types.AddressFromPublicKey(id.PublicKey())

	params, err := cfg.LedgerParams()
	if err != nil {
		return nil, nil, err
	}
	genesis, err := cfg.LedgerGenesis(node)
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(ledger.Options{
		Path:    cfg.DBFile,
		Params:  params,
		Genesis: genesis,
		Logger:  logs.Named("ledger"),
	})
	if err != nil {
		return nil, nil, err
	}
	logs.Info("Ledger opened", zap.String("file", cfg.DBFile), zap.String("node", node.Short()))
	return store, logs, nil
}

func withStore(configPath string, fn func(*ledger.Store, *logger.Logger) error) error {
	store, logs, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer logs.Sync()
	defer store.Close()
	return fn(store, logs)
}

func serve(configPath string) error {
	return withStore(configPath, func(store *ledger.Store, logs *logger.Logger) error {
		cfg := config.Get()
		log := logs.Named("stakesd")

		collector := metrics.NewCollector("stakes")
		collector.TrackGauge("stakes", "paymaster_reserve", "Paymaster reserve in base units.", func() (*uint256.Int, error) {
			var reserve *uint256.Int
			err := store.View(context.Background(), func(tx *ledger.Tx) error {
				var err error
				reserve, err = tx.Reserve()
				return err
			})
			return reserve, err
		})

		hub := feed.NewHub(logs.Named("feed"))
		store.OnCommit(hub.Publish)
		if err := hub.OnEvent(collector.ObserveEvent); err != nil {
			return fmt.Errorf("subscribe metrics to feed: %w", err)
		}

		gateway := relay.NewGateway(store,
			relay.WithLogger(logs.Named("relay")),
			relay.WithObserver(collector),
		)
		svc := api.NewService(store, gateway, logs,
			api.WithHub(hub),
			api.WithMetrics(collector),
			api.WithDocs(docs.NewService(docs.Embedded())),
			api.WithMaxBackups(cfg.MaxBackups),
		)

		port := resolvePort(cfg.Port, log)
		if err := ensurePortAvailable(port); err != nil {
			return fmt.Errorf("port %d unavailable: %w", port, err)
		}
		server := web.NewServer(svc.Router(), port, logs.Named("web"))
		serverErrors, addr, err := server.Start()
		if err != nil {
			return err
		}
		log.Info("API listening", zap.String("addr", addr.String()))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case err := <-serverErrors:
			if err != nil {
				return fmt.Errorf("web server exited: %w", err)
			}
			return nil
		case sig := <-sigChan:
			log.Info("Shutting down", zap.String("signal", sig.String()))
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}

// runAudit prints the audit report and fails when an invariant is broken.
func runAudit(ctx context.Context, store *ledger.Store, w io.Writer) error {
	var report types.AuditReport
	err := store.View(ctx, func(tx *ledger.Tx) error {
		var err error
		report, err = tx.Audit()
		return err
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.OK {
		return fmt.Errorf("ledger audit failed: %s", strings.Join(report.Problems, "; "))
	}
	return nil
}

// resolvePort lets PORT override the configured port.
func resolvePort(defaultPort int, log *zap.Logger) int {
	portStr := os.Getenv("PORT")
	if portStr == "" {
		return defaultPort
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn("Invalid PORT value, using configured port", zap.String("value", portStr), zap.Int("port", defaultPort))
		return defaultPort
	}

	return port
}

func ensurePortAvailable(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return listener.Close()
}
