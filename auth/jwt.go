// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// AgentCredentialSource answers the two questions JWTAuthority needs
// about agents: whether a presented secret matches the one it
// registered with, and who owns it. It is satisfied by agentrec.Store
// without auth importing agentrec, keeping the dependency direction
// one-way (agentrec has no knowledge of auth).
type AgentCredentialSource interface {
	VerifySecret(ctx context.Context, agentID ref.AgentID, presented string) (bool, error)
	AgentOwner(ctx context.Context, agentID ref.AgentID) (ref.OperatorID, error)
}

// JWTAuthority validates operator bearer tokens as HS256-signed JWTs
// and agent secrets against the record store, following the same
// jwt.Parse/Keyfunc/MapClaims shape used to verify service tokens in
// the research-coven-gateway reference.
type JWTAuthority struct {
	signingKey []byte
	issuer     string
	audience   string
	records    AgentCredentialSource
}

// NewJWTAuthority constructs a JWTAuthority. signingKey verifies
// operator bearer tokens; records resolves agent secrets and
// ownership.
func NewJWTAuthority(signingKey []byte, issuer, audience string, records AgentCredentialSource) *JWTAuthority {
	return &JWTAuthority{signingKey: signingKey, issuer: issuer, audience: audience, records: records}
}

func (a *JWTAuthority) AuthenticateAgent(ctx context.Context, agentID ref.AgentID, secret string) error {
	ok, err := a.records.VerifySecret(ctx, agentID, secret)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *JWTAuthority) AuthenticateOperator(ctx context.Context, tokenString string) (ref.OperatorID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.signingKey, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithAudience(a.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ref.OperatorID{}, fmt.Errorf("%w: token expired", ErrInvalidCredentials)
		}
		return ref.OperatorID{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return ref.OperatorID{}, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ref.OperatorID{}, ErrInvalidCredentials
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return ref.OperatorID{}, fmt.Errorf("%w: missing sub claim", ErrInvalidCredentials)
	}
	operatorID, err := ref.NewOperatorID(sub)
	if err != nil {
		return ref.OperatorID{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return operatorID, nil
}

func (a *JWTAuthority) Owns(ctx context.Context, operatorID ref.OperatorID, agentID ref.AgentID) (bool, error) {
	owner, err := a.records.AgentOwner(ctx, agentID)
	if err != nil {
		return false, err
	}
	return owner.Equal(operatorID), nil
}

// IssueOperatorToken signs a bearer token for operatorID, expiring
// after ttl. Used by the registration/login endpoints the spec treats
// as an external collaborator, but provided here since the reference
// system issues its own HS256 tokens rather than delegating to a
// third-party identity provider.
func (a *JWTAuthority) IssueOperatorToken(operatorID ref.OperatorID, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": operatorID.String(),
		"iss": a.issuer,
		"aud": a.audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}
