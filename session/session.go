// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// session is one interactive terminal session. It may be homed
// entirely on one replica (operatorConn set and isAgentHome true) or
// split across two: the replica holding the operator's WebSocket and
// the replica holding the agent's transport, bridged by envelopes
// through the Presence Directory.
type session struct {
	id         ref.SessionID
	agentID    ref.AgentID
	operatorID ref.OperatorID

	agentReplica ref.ReplicaID
	isAgentHome  bool

	// operatorConn is non-nil when this replica owns the operator's
	// transport. writeMu serialises writes to it, mirroring the Hub's
	// single-writer discipline for agent transports.
	operatorConn *wire.Conn
	writeMu      sync.Mutex

	// remoteOperatorReplica is set when isAgentHome is true but the
	// operator lives elsewhere: output is forwarded there via Deliver.
	remoteOperatorReplica ref.ReplicaID

	mu           sync.Mutex
	outCmdSeq    uint64
	outOutputSeq uint64
	commandSeq   *sequencer[wire.TerminalCommandData]
	outputSeq    *sequencer[wire.TerminalOutputData]
	lastActivity time.Time

	ready     chan struct{}
	readyOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id ref.SessionID, agentID ref.AgentID, operatorID ref.OperatorID, now time.Time) *session {
	return &session{
		id:           id,
		agentID:      agentID,
		operatorID:   operatorID,
		lastActivity: now,
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *session) nextCommandSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.outCmdSeq
	s.outCmdSeq++
	return seq
}

func (s *session) nextOutputSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.outOutputSeq
	s.outOutputSeq++
	return seq
}

func (s *session) acceptCommand(seq uint64, cmd wire.TerminalCommandData) []wire.TerminalCommandData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commandSeq == nil {
		s.commandSeq = newSequencer[wire.TerminalCommandData]()
	}
	return s.commandSeq.Accept(seq, cmd)
}

func (s *session) acceptOutput(seq uint64, data wire.TerminalOutputData) []wire.TerminalOutputData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputSeq == nil {
		s.outputSeq = newSequencer[wire.TerminalOutputData]()
	}
	return s.outputSeq.Accept(seq, data)
}

func (s *session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *session) markDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// writeToOperator sends frame over operatorConn under writeMu. No-op
// if this replica does not own the operator transport.
func (s *session) writeToOperator(frame wire.Frame) error {
	if s.operatorConn == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.operatorConn.WriteFrame(frame)
}
