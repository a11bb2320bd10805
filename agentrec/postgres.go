// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentrec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

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
		return nil, fmt.Errorf("agentrec: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Register(ctx context.Context, agentID ref.AgentID, ownerID ref.OperatorID) (Record, string, error) {
	rawSecret, err := generateSecret()
	if err != nil {
		return Record{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword(rawSecret, bcrypt.DefaultCost)
	if err != nil {
		return Record{}, "", fmt.Errorf("agentrec: hashing secret: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (agent_id, owner_id, secret_hash, registered_at) VALUES ($1, $2, $3, $4)`,
		agentID.String(), ownerID.String(), string(hash), now)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Record{}, "", ErrAlreadyExists
		}
		return Record{}, "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	secretOut := string(rawSecret)
	for i := range rawSecret {
		rawSecret[i] = 0
	}
	return Record{AgentID: agentID, OwnerID: ownerID, RegisteredAt: now}, secretOut, nil
}

// ListOwnedBy returns every record owned by ownerID.
func (s *PostgresStore) ListOwnedBy(ctx context.Context, ownerID ref.OperatorID) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, hostname, platform, architecture, agent_version, registered_at, last_connected_at
		 FROM agents WHERE owner_id = $1`, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var record Record
		var agentID string
		var lastConnected *time.Time
		if err := rows.Scan(&agentID, &record.Hostname, &record.Platform, &record.Architecture,
			&record.AgentVersion, &record.RegisteredAt, &lastConnected); err != nil {
			return nil, fmt.Errorf("agentrec: scanning owned record: %w", err)
		}
		parsed, err := ref.NewAgentID(agentID)
		if err != nil {
			return nil, fmt.Errorf("agentrec: parsing agent_id: %w", err)
		}
		record.AgentID = parsed
		record.OwnerID = ownerID
		if lastConnected != nil {
			record.LastConnectedAt = *lastConnected
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Lookup(ctx context.Context, agentID ref.AgentID) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT owner_id, hostname, platform, architecture, agent_version, registered_at, last_connected_at
		 FROM agents WHERE agent_id = $1`, agentID.String())

	var record Record
	record.AgentID = agentID
	var ownerID string
	var lastConnected *time.Time
	if err := row.Scan(&ownerID, &record.Hostname, &record.Platform, &record.Architecture,
		&record.AgentVersion, &record.RegisteredAt, &lastConnected); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	owner, err := ref.NewOperatorID(ownerID)
	if err != nil {
		return Record{}, fmt.Errorf("agentrec: parsing owner_id: %w", err)
	}
	record.OwnerID = owner
	if lastConnected != nil {
		record.LastConnectedAt = *lastConnected
	}
	return record, nil
}

func (s *PostgresStore) TouchConnected(ctx context.Context, agentID ref.AgentID, hostname, platform, architecture, agentVersion string, now time.Time) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE agents SET hostname = $2, platform = $3, architecture = $4, agent_version = $5, last_connected_at = $6
		 WHERE agent_id = $1`,
		agentID.String(), hostname, platform, architecture, agentVersion, now)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, agentID ref.AgentID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE agent_id = $1`, agentID.String())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) VerifySecret(ctx context.Context, agentID ref.AgentID, presented string) (bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT secret_hash FROM agents WHERE agent_id = $1`, agentID.String()).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) AgentOwner(ctx context.Context, agentID ref.AgentID) (ref.OperatorID, error) {
	var ownerID string
	err := s.pool.QueryRow(ctx, `SELECT owner_id FROM agents WHERE agent_id = $1`, agentID.String()).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ref.OperatorID{}, ErrNotFound
		}
		return ref.OperatorID{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ref.NewOperatorID(ownerID)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
