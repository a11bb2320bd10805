// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"sync"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// StaticAuthority is a fixed-table Authority used in tests and
// single-operator deployments that do not need JWT validation.
type StaticAuthority struct {
	mu        sync.RWMutex
	secrets   map[string]string
	owners    map[string]ref.OperatorID
	operators map[string]ref.OperatorID // token -> operator
}

// NewStaticAuthority returns an empty StaticAuthority.
func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{
		secrets:   make(map[string]string),
		owners:    make(map[string]ref.OperatorID),
		operators: make(map[string]ref.OperatorID),
	}
}

// SetAgent registers an agent's secret and owning operator.
func (a *StaticAuthority) SetAgent(agentID ref.AgentID, secret string, owner ref.OperatorID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.secrets[agentID.String()] = secret
	a.owners[agentID.String()] = owner
}

// SetToken registers a bearer token as authenticating operatorID.
func (a *StaticAuthority) SetToken(token string, operatorID ref.OperatorID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.operators[token] = operatorID
}

func (a *StaticAuthority) AuthenticateAgent(ctx context.Context, agentID ref.AgentID, secret string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	want, ok := a.secrets[agentID.String()]
	if !ok || want != secret {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *StaticAuthority) AuthenticateOperator(ctx context.Context, token string) (ref.OperatorID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	operatorID, ok := a.operators[token]
	if !ok {
		return ref.OperatorID{}, ErrInvalidCredentials
	}
	return operatorID, nil
}

func (a *StaticAuthority) Owns(ctx context.Context, operatorID ref.OperatorID, agentID ref.AgentID) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	owner, ok := a.owners[agentID.String()]
	if !ok {
		return false, nil
	}
	return owner.Equal(operatorID), nil
}
