package store

import (
	"context"
	"fmt"

	"github.com/roach88/composer/internal/model"
)

// SessionRecord identifies an editing session.
type SessionRecord struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Source     string `json:"source"`
	CreatedSeq int64  `json:"created_seq"`
}

// Snapshot is the state of a session's query after one change.
type Snapshot struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Seq         int64             `json:"seq"`
	Label       string            `json:"label"`
	Fingerprint string            `json:"fingerprint"`
	Query       *model.Query      `json:"query"`
	Arguments   map[string]string `json:"arguments"`
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, model, source, created_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Model, rec.Source, rec.CreatedSeq)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteSnapshot appends a snapshot. The fingerprint is computed from the
// query when empty. Duplicate IDs are silently ignored.
//
// Note: The session referenced by SessionID must exist (foreign key constraint).
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	queryJSON, err := marshalQuery(snap.Query)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	argsJSON, err := marshalArguments(snap.Arguments)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fp := snap.Fingerprint
	if fp == "" {
		if fp, err = model.Fingerprint(snap.Query); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, session_id, seq, label, fingerprint, query, arguments)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		snap.ID,
		snap.SessionID,
		snap.Seq,
		snap.Label,
		fp,
		queryJSON,
		argsJSON,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// DeleteSession removes a session and, by cascade, its snapshots.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	return nil
}
