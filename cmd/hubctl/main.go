// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command hubctl is a minimal operator client for a running hubd
// replica: list the operator's agents with colored status output, or
// open an interactive raw-mode terminal session against one of them.
// It exists for local testing against a single hubd; production
// operator surfaces (web UI, notifications) sit in front of the same
// HTTP/WebSocket endpoints this talks to.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/bureau-foundation/bureau/lib/wire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hubctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usageError()
	}

	switch args[0] {
	case "agents":
		return runAgents(args[1:])
	case "shell":
		return runShell(args[1:])
	default:
		return usageError()
	}
}

func usageError() error {
	fmt.Fprintln(os.Stderr, "usage: hubctl agents --hub <url> --token <token>")
	fmt.Fprintln(os.Stderr, "       hubctl shell --hub <url> --token <token> <agent_id>")
	return fmt.Errorf("no subcommand given")
}

// agentSummary mirrors cmd/hubd's GET /agents response shape.
type agentSummary struct {
	AgentID  string `json:"agent_id"`
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
	Platform string `json:"platform,omitempty"`
}

func runAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "hubd base URL")
	token := fs.String("token", "", "operator bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("--token is required")
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*hubURL, "/")+"/agents", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+*token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hub returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var summaries []agentSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return fmt.Errorf("decoding agent list: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("no agents registered")
		return nil
	}
	for _, a := range summaries {
		printStatus(a)
	}
	return nil
}

func printStatus(a agentSummary) {
	status := statusColor(a.Status).Sprintf("%-8s", a.Status)
	detail := a.Hostname
	if a.Platform != "" {
		detail = fmt.Sprintf("%s (%s)", detail, a.Platform)
	}
	fmt.Printf("%-24s %s  %s\n", a.AgentID, status, detail)
}

func statusColor(status string) *color.Color {
	switch status {
	case "online":
		return color.New(color.FgGreen)
	case "offline":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func runShell(args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	hubURL := fs.String("hub", "http://localhost:8080", "hubd base URL")
	token := fs.String("token", "", "operator bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("shell requires exactly one agent_id argument")
	}
	agentID := fs.Arg(0)
	if *token == "" {
		return fmt.Errorf("--token is required")
	}

	wsURL, err := terminalURL(*hubURL, agentID, *token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", agentID, err)
	}
	defer conn.Close()

	rows, cols := 24, 80
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		if w, h, err := term.GetSize(stdinFd); err == nil {
			cols, rows = w, h
		}
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("entering raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)
	}

	session := &shellSession{conn: conn}
	if err := session.sendOpen(rows, cols); err != nil {
		return err
	}

	go session.pumpStdin(ctx)
	return session.pumpOutput(ctx)
}

func terminalURL(hubURL, agentID, token string) (string, error) {
	parsed, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("invalid --hub URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = "/terminal/" + agentID
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// shellSession drives one interactive terminal against a hubd
// replica: stdin becomes input frames, terminal_output frames become
// stdout.
type shellSession struct {
	conn *websocket.Conn
}

func (s *shellSession) sendOpen(rows, cols int) error {
	frame, err := wire.New(wire.TypeOpen, wire.OperatorOpenData{Rows: rows, Cols: cols}, time.Now())
	if err != nil {
		return err
	}
	return s.writeFrame(frame)
}

func (s *shellSession) pumpStdin(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := wire.EncodeBinary(buf[:n])
			frame, ferr := wire.New(wire.TypeInput, wire.OperatorInputData{Data: data}, time.Now())
			if ferr == nil {
				if werr := s.writeFrame(frame); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *shellSession) pumpOutput(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return nil
		}
		var frame wire.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case wire.TypeTerminalOutput:
			var data wire.OperatorOutputData
			if err := frame.Decode(&data); err != nil {
				continue
			}
			decoded, err := wire.DecodeBinary(data.Output)
			if err != nil {
				continue
			}
			os.Stdout.Write(decoded)
		case wire.TypeTerminalClosed:
			return nil
		case wire.TypeError:
			var data wire.ErrorData
			_ = frame.Decode(&data)
			fmt.Fprintf(os.Stderr, "\r\nhub error: %s: %s\r\n", data.Code, data.Message)
			return nil
		}
	}
}

func (s *shellSession) writeFrame(frame wire.Frame) error {
	encoded, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, encoded)
}
