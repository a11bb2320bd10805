// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/bureau/agentrec"
	"github.com/bureau-foundation/bureau/auth"
	"github.com/bureau-foundation/bureau/hub"
	"github.com/bureau-foundation/bureau/internal/metrics"
	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/config"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/secret"
	"github.com/bureau-foundation/bureau/lib/version"
	"github.com/bureau-foundation/bureau/lib/wire"
	"github.com/bureau-foundation/bureau/presence"
	"github.com/bureau-foundation/bureau/session"
	"github.com/bureau-foundation/bureau/snapshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to hubd.yaml (overrides HUBD_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replicaID, err := resolveReplicaID(cfg.ReplicaID)
	if err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("hubd: connecting to redis: %w", err)
	}
	directory := presence.NewRedisDirectory(redisClient, cfg.Timing.Presence)

	if err := snapshot.RunMigrations(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("hubd: snapshot migrations: %w", err)
	}
	snapshots, err := snapshot.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("hubd: connecting snapshot store: %w", err)
	}
	defer snapshots.Close()

	if err := agentrec.RunMigrations(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("hubd: agentrec migrations: %w", err)
	}
	agents, err := agentrec.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("hubd: connecting agent record store: %w", err)
	}
	defer agents.Close()

	signingKey, err := secret.ReadFromPath(cfg.Auth.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("hubd: reading auth.signing_key_file: %w", err)
	}
	defer signingKey.Close()
	authority := auth.NewJWTAuthority(signingKey.Bytes(), cfg.Auth.Issuer, cfg.Auth.Audience, agents)

	realClock := clock.Real()

	metricsRegistry := prometheus.NewRegistry()
	metricsInstance := metrics.New(metricsRegistry)

	hubInstance := hub.NewHub(hub.Config{
		ReplicaID:      replicaID,
		Clock:          realClock,
		Logger:         logger,
		Directory:      directory,
		Authority:      authority,
		Snapshots:      snapshots,
		Metrics:        metricsInstance,
		ServerVersion:  version.Short(),
		Heartbeat:      cfg.Timing.Heartbeat,
		HeartbeatMiss:  cfg.Timing.HeartbeatMiss,
		HeartbeatCheck: cfg.Timing.HeartbeatCheck,
		Inventory:      cfg.Timing.Inventory,
		Write:          cfg.Timing.Write,
		Drain:          cfg.Timing.Drain,
	})

	broker := session.NewBroker(session.Config{
		ReplicaID:   replicaID,
		Hub:         hubInstance,
		Directory:   directory,
		Authority:   authority,
		Clock:       realClock,
		Logger:      logger,
		SessionIdle: cfg.Timing.SessionIdle,
		Metrics:     metricsInstance,
	})
	hubInstance.SetRouter(broker)

	hubRunDone := make(chan error, 1)
	go func() { hubRunDone <- hubInstance.Run(ctx) }()

	srv := &server{
		hub:       hubInstance,
		broker:    broker,
		authority: authority,
		directory: directory,
		agents:    agents,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /agent", srv.handleAgentUpgrade)
	mux.HandleFunc("GET /terminal/{agent_id}", srv.handleTerminalUpgrade)
	mux.HandleFunc("GET /agents", srv.handleListAgents)
	mux.HandleFunc("POST /agents/register", srv.handleRegisterAgent)

	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: mux}
	httpDone := make(chan error, 1)
	go func() { httpDone <- httpServer.ListenAndServe() }()

	var metricsServer *http.Server
	if cfg.MetricsListenAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsListenAddress, Handler: metricsMux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "address", cfg.MetricsListenAddress)
	}

	logger.Info("hubd listening", "address", cfg.ListenAddress, "replica_id", replicaID)

	select {
	case <-ctx.Done():
	case err := <-httpDone:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}

	logger.Info("hubd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timing.Drain+5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	hubInstance.Shutdown(shutdownCtx)

	select {
	case err := <-hubRunDone:
		if err != nil {
			logger.Warn("hub run loop exited", "error", err)
		}
	case <-time.After(time.Second):
	}

	return nil
}

func loadConfig(configPath string) (*config.ServerConfig, error) {
	if configPath != "" {
		return config.LoadServerFile(configPath)
	}
	return config.LoadServer()
}

// resolveReplicaID uses the configured value if present, else derives
// a stable per-process identifier from hostname and pid so every
// replica has a distinct Presence Directory address even when
// operators don't set one explicitly.
func resolveReplicaID(configured string) (ref.ReplicaID, error) {
	if configured != "" {
		return ref.NewReplicaID(configured)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "hubd"
	}
	return ref.NewReplicaID(fmt.Sprintf("%s-%d", hostname, os.Getpid()))
}

// server holds the constructed components an HTTP handler needs. Kept
// as a plain struct of interfaces rather than a global, per the "no
// process-wide singletons" design note.
type server struct {
	hub       *hub.Hub
	broker    *session.Broker
	authority auth.Authority
	directory presence.Directory
	agents    agentrec.Store
	logger    *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAgentUpgrade accepts an agent's inbound WebSocket connection
// and hands it to the Hub, which performs the hello/welcome handshake
// itself (spec §4.2 steps 1-7).
func (s *server) handleAgentUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("agent upgrade failed", "error", err)
		return
	}
	conn := wire.NewConn(ws)
	if err := s.hub.Accept(r.Context(), conn); err != nil {
		s.logger.Warn("agent session ended", "error", err)
	}
}

// handleTerminalUpgrade validates the operator's bearer token before
// ever upgrading the connection (spec §6: "HTTP 401 if invalid, never
// upgrading the connection"), then hands the upgraded socket to the
// Session Broker to drive the rest of the open/relay/teardown flow.
func (s *server) handleTerminalUpgrade(w http.ResponseWriter, r *http.Request) {
	agentID, err := ref.NewAgentID(r.PathValue("agent_id"))
	if err != nil {
		http.Error(w, "invalid agent_id", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	operatorID, err := s.authority.AuthenticateOperator(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("terminal upgrade failed", "error", err)
		return
	}
	conn := wire.NewConn(ws)

	sessionID, err := s.broker.Open(r.Context(), conn, agentID, operatorID)
	if err != nil {
		s.logger.Warn("terminal session failed to open", "agent_id", agentID, "operator_id", operatorID, "error", err)
		_ = conn.CloseWithReason(wire.CloseReasonAgentOffline)
		return
	}
	s.logger.Info("terminal session opened", "session_id", sessionID, "agent_id", agentID, "operator_id", operatorID)
}

type agentSummary struct {
	AgentID  string `json:"agent_id"`
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// handleListAgents returns the agents owned by the bearer-authenticated
// operator along with their current presence status (spec §6 [NEW]).
func (s *server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	operatorID, err := s.authorizedOperator(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := s.agents.ListOwnedBy(r.Context(), operatorID)
	if err != nil {
		http.Error(w, "agent lookup failed", http.StatusInternalServerError)
		return
	}

	summaries := make([]agentSummary, 0, len(records))
	for _, rec := range records {
		status := presence.StatusOffline
		if entry, err := s.directory.Lookup(r.Context(), rec.AgentID); err == nil {
			status = entry.Status
		}
		summaries = append(summaries, agentSummary{
			AgentID:  rec.AgentID.String(),
			Status:   string(status),
			Hostname: rec.Hostname,
			Platform: rec.Platform,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}

type registerRequest struct {
	AgentID string `json:"agent_id"`
}

type registerResponse struct {
	AgentID string `json:"agent_id"`
	Secret  string `json:"secret"`
}

// handleRegisterAgent creates an Agent record before the agent's first
// connect (spec §6 [NEW]). Role mapping is out of scope, so the
// authenticated operator calling this endpoint becomes the new
// record's owner directly.
func (s *server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	operatorID, err := s.authorizedOperator(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	agentID, err := ref.NewAgentID(req.AgentID)
	if err != nil {
		http.Error(w, "invalid agent_id", http.StatusBadRequest)
		return
	}

	record, secret, err := s.agents.Register(r.Context(), agentID, operatorID)
	if err != nil {
		if err == agentrec.ErrAlreadyExists {
			http.Error(w, "agent already registered", http.StatusConflict)
			return
		}
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(registerResponse{AgentID: record.AgentID.String(), Secret: secret})
}

func (s *server) authorizedOperator(r *http.Request) (ref.OperatorID, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ref.OperatorID{}, auth.ErrInvalidCredentials
	}
	return s.authority.AuthenticateOperator(r.Context(), token)
}
