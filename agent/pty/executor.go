// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/wire"
)

// terminateGrace is how long terminate waits for a SIGTERM'd shell to
// exit on its own before escalating to SIGKILL (spec §4.4: "close:
// terminate the PTY process (signal then force)").
const terminateGrace = 5 * time.Second

// Sender is the subset of transport.Client the Executor needs to
// report session events back to the hub.
type Sender interface {
	Send(frame wire.Frame) error
}

// supportedPlatforms lists GOOS values creack/pty can open a real
// PTY on. Anything else gets terminal_error{reason: unsupported}.
var supportedPlatforms = map[string]bool{
	"linux":   true,
	"darwin":  true,
	"freebsd": true,
}

const (
	defaultRows = 24
	defaultCols = 80
	readBufSize = 4096
)

// Config configures an Executor.
type Config struct {
	Sender Sender
	Clock  clock.Clock
	Logger *slog.Logger

	// DefaultShell overrides the shell used when a terminal_command's
	// Shell field is empty. Empty means fall back to $SHELL, then a
	// platform default.
	DefaultShell string
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// session is one live PTY-backed shell.
type session struct {
	id     string
	file   *os.File
	cmd    *exec.Cmd
	seq    atomic.Uint64
	closed atomic.Bool
}

// Executor owns every PTY session running on this agent. The zero
// value is not usable; construct with New.
type Executor struct {
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs an Executor. Panics if config.Sender or config.Clock
// is nil.
func New(config Config) *Executor {
	if config.Sender == nil {
		panic("pty: Config.Sender is required")
	}
	if config.Clock == nil {
		panic("pty: Config.Clock is required")
	}
	return &Executor{
		config:   config,
		logger:   config.logger(),
		sessions: make(map[string]*session),
	}
}

// HandleTerminalCommand implements the transport.Router hook relevant
// to this component, dispatching by command kind.
func (e *Executor) HandleTerminalCommand(data wire.TerminalCommandData) {
	switch data.Command {
	case wire.TerminalCommandInit:
		e.init(data)
	case wire.TerminalCommandInput:
		e.input(data)
	case wire.TerminalCommandResize:
		e.resize(data)
	case wire.TerminalCommandClose:
		e.close(data.SessionID)
	default:
		e.logger.Warn("pty: unrecognised terminal command", "command", data.Command)
	}
}

func (e *Executor) init(data wire.TerminalCommandData) {
	e.mu.Lock()
	if _, exists := e.sessions[data.SessionID]; exists {
		e.mu.Unlock()
		e.sendError(data.SessionID, wire.TerminalErrorDoubleInit)
		return
	}
	e.mu.Unlock()

	if !supportedPlatforms[runtime.GOOS] {
		e.sendError(data.SessionID, wire.TerminalErrorUnsupported)
		return
	}

	rows, cols := data.Rows, data.Cols
	if rows <= 0 {
		rows = defaultRows
	}
	if cols <= 0 {
		cols = defaultCols
	}
	shell := data.Shell
	if shell == "" {
		shell = e.defaultShell()
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", rows),
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		e.logger.Warn("pty: start failed", "session_id", data.SessionID, "error", err)
		e.sendError(data.SessionID, err.Error())
		return
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		e.sendError(data.SessionID, err.Error())
		return
	}

	sess := &session{id: data.SessionID, file: ptmx, cmd: cmd}
	e.mu.Lock()
	e.sessions[data.SessionID] = sess
	e.mu.Unlock()

	e.sendReady(data.SessionID)
	go e.readOutput(sess)
}

func (e *Executor) defaultShell() string {
	if e.config.DefaultShell != "" {
		return e.config.DefaultShell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	switch runtime.GOOS {
	case "darwin":
		return "/bin/zsh"
	default:
		if _, err := exec.LookPath("/bin/bash"); err == nil {
			return "/bin/bash"
		}
		return "/bin/sh"
	}
}

func (e *Executor) input(data wire.TerminalCommandData) {
	sess, ok := e.get(data.SessionID)
	if !ok {
		e.sendError(data.SessionID, wire.TerminalErrorUnknownSession)
		return
	}
	if data.Data == "" {
		return
	}
	raw, err := wire.DecodeBinary(data.Data)
	if err != nil {
		e.logger.Warn("pty: invalid input encoding", "session_id", data.SessionID, "error", err)
		return
	}
	if _, err := sess.file.Write(raw); err != nil {
		e.logger.Warn("pty: write failed", "session_id", data.SessionID, "error", err)
	}
}

func (e *Executor) resize(data wire.TerminalCommandData) {
	sess, ok := e.get(data.SessionID)
	if !ok {
		e.sendError(data.SessionID, wire.TerminalErrorUnknownSession)
		return
	}
	rows, cols := data.Rows, data.Cols
	if rows <= 0 {
		rows = defaultRows
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if err := pty.Setsize(sess.file, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		e.logger.Warn("pty: resize failed", "session_id", data.SessionID, "error", err)
	}
}

func (e *Executor) close(sessionID string) {
	sess, ok := e.remove(sessionID)
	if !ok {
		return
	}
	e.terminate(sess)
}

// terminate closes the PTY and stops the shell process: SIGTERM
// first, then SIGKILL if it hasn't exited within terminateGrace (spec
// §4.4).
func (e *Executor) terminate(sess *session) {
	if !sess.closed.CompareAndSwap(false, true) {
		return
	}
	_ = sess.file.Close()
	if sess.cmd.Process == nil {
		return
	}

	exited := make(chan error, 1)
	go func() { exited <- sess.cmd.Wait() }()

	_ = sess.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
		return
	case <-e.config.Clock.After(terminateGrace):
	}

	_ = sess.cmd.Process.Kill()
	<-exited
}

// readOutput streams PTY output to the hub as terminal_output frames
// until the shell exits, then reports terminal_closed.
func (e *Executor) readOutput(sess *session) {
	buf := make([]byte, readBufSize)
	for {
		n, err := sess.file.Read(buf)
		if n > 0 {
			e.sendOutput(sess, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !sess.closed.Load() {
				e.logger.Warn("pty: read failed", "session_id", sess.id, "error", err)
			}
			break
		}
	}

	e.remove(sess.id)
	e.terminate(sess)
	e.sendClosed(sess.id)
}

func (e *Executor) get(sessionID string) (*session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	return sess, ok
}

func (e *Executor) remove(sessionID string) (*session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	return sess, ok
}

// CloseAll terminates every running session, for use during agent
// shutdown.
func (e *Executor) CloseAll() {
	e.mu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, sess := range e.sessions {
		sessions = append(sessions, sess)
	}
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, sess := range sessions {
		e.terminate(sess)
	}
}

func (e *Executor) sendReady(sessionID string) {
	e.sendFrame(wire.TypeTerminalReady, wire.TerminalReadyData{SessionID: sessionID})
}

func (e *Executor) sendOutput(sess *session, chunk []byte) {
	e.sendFrame(wire.TypeTerminalOutput, wire.TerminalOutputData{
		SessionID: sess.id,
		Data:      wire.EncodeBinary(chunk),
		Seq:       sess.seq.Add(1) - 1,
	})
}

func (e *Executor) sendClosed(sessionID string) {
	e.sendFrame(wire.TypeTerminalClosed, wire.TerminalClosedData{SessionID: sessionID})
}

func (e *Executor) sendError(sessionID, reason string) {
	e.sendFrame(wire.TypeTerminalError, wire.TerminalErrorData{SessionID: sessionID, Reason: reason})
}

func (e *Executor) sendFrame(frameType wire.Type, data any) {
	frame, err := wire.New(frameType, data, e.config.Clock.Now())
	if err != nil {
		e.logger.Error("pty: building frame", "type", frameType, "error", err)
		return
	}
	if err := e.config.Sender.Send(frame); err != nil {
		e.logger.Warn("pty: send failed", "type", frameType, "error", err)
	}
}
