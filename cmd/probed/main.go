// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/bureau/agent/heartbeat"
	"github.com/bureau-foundation/bureau/agent/inventory"
	"github.com/bureau-foundation/bureau/agent/pty"
	"github.com/bureau-foundation/bureau/agent/transport"
	"github.com/bureau-foundation/bureau/lib/clock"
	"github.com/bureau-foundation/bureau/lib/config"
	"github.com/bureau-foundation/bureau/lib/ref"
	"github.com/bureau-foundation/bureau/lib/version"
	"github.com/bureau-foundation/bureau/lib/wire"
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
	flag.StringVar(&configPath, "config", "", "path to probed.yaml (overrides PROBED_CONFIG)")
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

	agentID, err := ref.NewAgentID(cfg.AgentID)
	if err != nil {
		return fmt.Errorf("probed: invalid agent_id: %w", err)
	}

	logger := slog.Default()
	realClock := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := transport.New(transport.Config{
		ServerURL:     cfg.ServerURL,
		AgentID:       agentID,
		Secret:        cfg.Secret,
		AgentVersion:  version.Short(),
		Clock:         realClock,
		Logger:        logger,
		ReconnectBase: cfg.Timing.ReconnectBase,
		ReconnectMax:  cfg.Timing.ReconnectMax,
		WriteTimeout:  cfg.Timing.Write,
	})

	heartbeatInterval := cfg.Timing.Heartbeat
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	heartbeatRunner := heartbeat.New(heartbeat.Config{
		Sender:       client,
		Clock:        realClock,
		Interval:     heartbeatInterval,
		AgentVersion: version.Short(),
		Logger:       logger,
	})

	executor := pty.New(pty.Config{
		Sender:       client,
		Clock:        realClock,
		Logger:       logger,
		DefaultShell: cfg.Shell,
	})

	collector := inventory.NewCollector()

	router := &agentRouter{
		heartbeat: heartbeatRunner,
		executor:  executor,
		logger:    logger,
	}
	client.SetRouter(router)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("transport stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		heartbeatRunner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		runInventoryLoop(ctx, realClock, client, collector, cfg.Timing.Inventory, logger)
	}()

	<-ctx.Done()
	logger.Info("probed shutting down")
	executor.CloseAll()
	wg.Wait()
	return nil
}

func loadConfig(configPath string) (*config.AgentConfig, error) {
	if configPath != "" {
		return config.LoadAgentFile(configPath)
	}
	return config.LoadAgent()
}

// agentRouter implements transport.Router, fanning out inbound frames
// to the heartbeat, inventory, and PTY components that own each
// frame's response.
type agentRouter struct {
	heartbeat *heartbeat.Runner
	executor  *pty.Executor
	logger    *slog.Logger
}

func (r *agentRouter) HandleWelcome(data wire.WelcomeData) {
	r.logger.Info("connected to hub", "server_version", data.ServerVersion)
	if data.HeartbeatIntervalS > 0 {
		r.heartbeat.SetInterval(time.Duration(data.HeartbeatIntervalS) * time.Second)
	}
}

func (r *agentRouter) HandleHeartbeatAck(data wire.HeartbeatAckData) {
	r.heartbeat.HandleHeartbeatAck(data)
}

func (r *agentRouter) HandleInventoryAck(data wire.InventoryAckData) {
	r.logger.Debug("inventory acknowledged", "changed", data.Changed)
}

func (r *agentRouter) HandleTerminalCommand(data wire.TerminalCommandData) {
	r.executor.HandleTerminalCommand(data)
}

func (r *agentRouter) HandleError(data wire.ErrorData) {
	r.logger.Warn("hub reported error", "code", data.Code, "message", data.Message)
}

// runInventoryLoop submits an inventory snapshot immediately, then on
// every configured interval, until ctx is done.
func runInventoryLoop(ctx context.Context, clk clock.Clock, sender heartbeat.Sender, collector *inventory.Collector, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	submit := func() {
		data := collector.Collect()
		frame, err := wire.New(wire.TypeInventory, data, clk.Now())
		if err != nil {
			logger.Error("inventory: building frame", "error", err)
			return
		}
		if err := sender.Send(frame); err != nil {
			logger.Warn("inventory: send failed", "error", err)
		}
	}

	submit()
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submit()
		}
	}
}
