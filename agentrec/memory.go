// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agentrec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// MemoryStore is an in-process Store used in tests and single-node
// deployments without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	secrets map[string][]byte // bcrypt hashes, keyed by agent_id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		secrets: make(map[string][]byte),
	}
}

func generateSecret() ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("agentrec: generating secret: %w", err)
	}
	encoded := []byte(hex.EncodeToString(raw))
	for i := range raw {
		raw[i] = 0
	}
	return encoded, nil
}

func (s *MemoryStore) Register(ctx context.Context, agentID ref.AgentID, ownerID ref.OperatorID) (Record, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := agentID.String()
	if _, exists := s.records[key]; exists {
		return Record{}, "", ErrAlreadyExists
	}

	rawSecret, err := generateSecret()
	if err != nil {
		return Record{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword(rawSecret, bcrypt.DefaultCost)
	if err != nil {
		return Record{}, "", fmt.Errorf("agentrec: hashing secret: %w", err)
	}

	record := Record{AgentID: agentID, OwnerID: ownerID, RegisteredAt: time.Now().UTC()}
	s.records[key] = record
	s.secrets[key] = hash
	return record, string(rawSecret), nil
}

// ListOwnedBy returns every record owned by ownerID.
func (s *MemoryStore) ListOwnedBy(ctx context.Context, ownerID ref.OperatorID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, record := range s.records {
		if record.OwnerID.Equal(ownerID) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *MemoryStore) Lookup(ctx context.Context, agentID ref.AgentID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[agentID.String()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStore) TouchConnected(ctx context.Context, agentID ref.AgentID, hostname, platform, architecture, agentVersion string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := agentID.String()
	record, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	record.Hostname = hostname
	record.Platform = platform
	record.Architecture = architecture
	record.AgentVersion = agentVersion
	record.LastConnectedAt = now
	s.records[key] = record
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, agentID ref.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := agentID.String()
	delete(s.records, key)
	delete(s.secrets, key)
	return nil
}

func (s *MemoryStore) VerifySecret(ctx context.Context, agentID ref.AgentID, presented string) (bool, error) {
	s.mu.Lock()
	hash, ok := s.secrets[agentID.String()]
	s.mu.Unlock()
	if !ok {
		return false, ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(presented)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) AgentOwner(ctx context.Context, agentID ref.AgentID) (ref.OperatorID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[agentID.String()]
	if !ok {
		return ref.OperatorID{}, ErrNotFound
	}
	return record.OwnerID, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
