// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// PostgresStore is the production Store, backed by a pgxpool.Pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn and verifies connectivity.
// Callers should run RunMigrations before accepting traffic.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) PutInventory(ctx context.Context, snap Snapshot) (bool, error) {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return false, fmt.Errorf("snapshot: marshal inventory data: %w", err)
	}

	var changed bool
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO inventory_snapshots (agent_id, collected_at, data) VALUES ($1, $2, $3)`,
			snap.AgentID.String(), snap.CollectedAt, data); err != nil {
			return err
		}

		result, err := tx.Exec(ctx,
			`INSERT INTO inventory_latest (agent_id, collected_at, data) VALUES ($1, $2, $3)
			 ON CONFLICT (agent_id) DO UPDATE
			   SET collected_at = EXCLUDED.collected_at, data = EXCLUDED.data
			   WHERE inventory_latest.collected_at < EXCLUDED.collected_at`,
			snap.AgentID.String(), snap.CollectedAt, data)
		if err != nil {
			return err
		}
		changed = result.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return changed, nil
}

func (s *PostgresStore) Latest(ctx context.Context, agentID ref.AgentID) (Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT collected_at, data FROM inventory_latest WHERE agent_id = $1`, agentID.String())

	var collectedAt time.Time
	var raw []byte
	if err := row.Scan(&collectedAt, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var snap Snapshot
	snap.AgentID = agentID
	snap.CollectedAt = collectedAt
	if err := json.Unmarshal(raw, &snap.Data); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: unmarshal inventory data: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
