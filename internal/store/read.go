package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadSession returns one session record.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, model, source, created_seq
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Model, &rec.Source, &rec.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("read session: %w", err)
	}
	return rec, nil
}

// ListSessions returns all sessions in creation order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, source, created_seq
		FROM sessions
		ORDER BY created_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionRecord{}
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Model, &rec.Source, &rec.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSnapshots returns a session's history.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the session has no snapshots.
func (s *Store) ReadSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, label, fingerprint, query, arguments
		FROM snapshots
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// LatestSnapshot returns the snapshot with the highest seq.
func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, seq, label, fingerprint, query, arguments
		FROM snapshots
		WHERE session_id = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, sessionID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("session %s snapshots: %w", sessionID, ErrNotFound)
	}
	return snap, err
}

// FindSnapshot returns the earliest snapshot of a session whose query has
// the given fingerprint.
func (s *Store) FindSnapshot(ctx context.Context, sessionID, fingerprint string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, seq, label, fingerprint, query, arguments
		FROM snapshots
		WHERE session_id = ? AND fingerprint = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, sessionID, fingerprint)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("fingerprint %s: %w", fingerprint, ErrNotFound)
	}
	return snap, err
}

// MaxSeq returns the highest seq in use across sessions and snapshots, or
// 0 for an empty store. A restarted clock resumes after it.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT COALESCE(MAX(created_seq), 0) AS seq FROM sessions
			UNION ALL
			SELECT COALESCE(MAX(seq), 0) FROM snapshots
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var snap Snapshot
	var queryJSON, argsJSON string
	err := row.Scan(&snap.ID, &snap.SessionID, &snap.Seq, &snap.Label, &snap.Fingerprint, &queryJSON, &argsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if snap.Query, err = unmarshalQuery(queryJSON); err != nil {
		return Snapshot{}, err
	}
	if snap.Arguments, err = unmarshalArguments(argsJSON); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
