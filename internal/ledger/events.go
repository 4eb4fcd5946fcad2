package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"karmastakes.app/stakes/internal/types"
)

const maxEventPage = 500

// emit appends ev to the log inside the current transaction and assigns it
// the next sequence number. A rollback discards it with the rest.
func (t *Tx) emit(ev types.Event) error {
	ev.Time = t.now
	var amount []byte
	if ev.Amount != nil {
		amount = encodeAmount(ev.Amount)
		ev.Amount = ev.Amount.Clone()
	}
	res, err := t.exec(`INSERT INTO events (kind, actor, subject, token_id, amount, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), string(ev.Actor), string(ev.Subject), int64(ev.TokenID), amount, ev.Detail,
		ev.Time.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event sequence: %w", err)
	}
	ev.Seq = uint64(seq)
	t.events = append(t.events, ev)
	return nil
}

// EventsAfter returns up to limit events with a sequence number above after,
// oldest first.
func (t *Tx) EventsAfter(after uint64, limit int) ([]types.Event, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	rows, err := t.query(`SELECT seq, kind, actor, subject, token_id, amount, detail, created_at
		FROM events WHERE seq > ? ORDER BY seq LIMIT ?`, int64(after), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []types.Event{}
	for rows.Next() {
		var (
			ev                   types.Event
			seq, tokenID         int64
			kind, actor, subject string
			detail, created      string
			amount               []byte
		)
		if err := rows.Scan(&seq, &kind, &actor, &subject, &tokenID, &amount, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Kind = types.EventKind(kind)
		ev.Actor = types.Address(actor)
		ev.Subject = types.Address(subject)
		ev.TokenID = uint64(tokenID)
		ev.Detail = detail
		if amount != nil {
			if ev.Amount, err = decodeAmount(amount); err != nil {
				return nil, err
			}
		}
		ev.Time, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastEventSeq is the sequence number of the newest event, 0 when empty.
func (t *Tx) LastEventSeq() (uint64, error) {
	var seq sql.NullInt64
	if err := t.queryRow(`SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last event: %w", err)
	}
	return uint64(seq.Int64), nil
}

// RecordReceipt marks a transaction id as processed. A second use of the
// same id fails with Replayed.
func (t *Tx) RecordReceipt(id uuid.UUID, sender types.Address, kind types.TransactionType, relayed bool) error {
	var existing string
	err := t.queryRow(`SELECT tx_id FROM receipts WHERE tx_id = ?`, id.String()).Scan(&existing)
	if err == nil {
		return fail(CodeReplayed, "receipt", "transaction %s already processed", id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read receipt: %w", err)
	}
	rel := 0
	if relayed {
		rel = 1
	}
	if _, err := t.exec(`INSERT INTO receipts (tx_id, sender, kind, relayed, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), string(sender), string(kind), rel, t.now.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	return nil
}

// HasReceipt reports whether id was already processed.
func (t *Tx) HasReceipt(id uuid.UUID) (bool, error) {
	var n int
	if err := t.queryRow(`SELECT count(*) FROM receipts WHERE tx_id = ?`, id.String()).Scan(&n); err != nil {
		return false, fmt.Errorf("read receipt: %w", err)
	}
	return n > 0, nil
}

// EventsAfter reads one page of the event log from a snapshot.
func (s *Store) EventsAfter(ctx context.Context, after uint64, limit int) ([]types.Event, error) {
	var events []types.Event
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		events, err = tx.EventsAfter(after, limit)
		return err
	})
	return events, err
}
