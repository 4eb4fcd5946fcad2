package ledger

import (
	"context"
	"fmt"

	"karmastakes.app/stakes/internal/types"
)

// Audit recomputes the accounting totals from the rows and compares them
// with the counters: Karma balances against minted minus burned, and
// settlement balances plus the reserve against settlement issued. It also
// checks every content item has a valid owner and creator.
func (t *Tx) Audit() (types.AuditReport, error) {
	report := types.AuditReport{KarmaSum: zero(), SettlementSum: zero()}

	rows, err := t.query(`SELECT address, karma, settlement FROM accounts ORDER BY seq`)
	if err != nil {
		return report, fmt.Errorf("audit accounts: %w", err)
	}
	for rows.Next() {
		var (
			addr              string
			karma, settlement []byte
		)
		if err := rows.Scan(&addr, &karma, &settlement); err != nil {
			rows.Close()
			return report, fmt.Errorf("scan account: %w", err)
		}
		k, err := decodeAmount(karma)
		if err != nil {
			rows.Close()
			return report, err
		}
		st, err := decodeAmount(settlement)
		if err != nil {
			rows.Close()
			return report, err
		}
		if report.KarmaSum, err = add("audit", report.KarmaSum, k); err != nil {
			rows.Close()
			return report, err
		}
		if report.SettlementSum, err = add("audit", report.SettlementSum, st); err != nil {
			rows.Close()
			return report, err
		}
		report.Accounts++
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return report, fmt.Errorf("audit accounts: %w", err)
	}

	supply, err := t.Supply()
	if err != nil {
		return report, err
	}
	report.Supply = supply.Total
	if !report.KarmaSum.Eq(report.Supply) {
		report.Problems = append(report.Problems, fmt.Sprintf("karma balances sum to %s, supply is %s",
			report.KarmaSum.Dec(), report.Supply.Dec()))
	}

	if report.Reserve, err = t.Reserve(); err != nil {
		return report, err
	}
	if report.SettlementIssued, err = t.counter(counterSettlementIssued); err != nil {
		return report, err
	}
	held, err := add("audit", report.SettlementSum, report.Reserve)
	if err != nil {
		return report, err
	}
	if !held.Eq(report.SettlementIssued) {
		report.Problems = append(report.Problems, fmt.Sprintf("settlement held is %s, issued is %s",
			held.Dec(), report.SettlementIssued.Dec()))
	}

	items, err := t.query(`SELECT token_id, creator, owner FROM content ORDER BY token_id`)
	if err != nil {
		return report, fmt.Errorf("audit content: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var (
			id             int64
			creator, owner string
		)
		if err := items.Scan(&id, &creator, &owner); err != nil {
			return report, fmt.Errorf("scan content: %w", err)
		}
		report.ContentItems++
		if !types.Address(owner).Valid() {
			report.Problems = append(report.Problems, fmt.Sprintf("token %d has invalid owner %q", id, owner))
		}
		if !types.Address(creator).Valid() {
			report.Problems = append(report.Problems, fmt.Sprintf("token %d has invalid creator %q", id, creator))
		}
	}
	if err := items.Err(); err != nil {
		return report, fmt.Errorf("audit content: %w", err)
	}

	report.OK = len(report.Problems) == 0
	return report, nil
}

// Audit runs Tx.Audit against a snapshot.
func (s *Store) Audit(ctx context.Context) (types.AuditReport, error) {
	var report types.AuditReport
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		report, err = tx.Audit()
		return err
	})
	return report, err
}
