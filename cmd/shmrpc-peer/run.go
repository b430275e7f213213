package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/krossbar-platform/shmrpc/internal/config"
	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/rpc"
)

func buildLogger(cfg config.Log, verbose bool) *obs.Logger {
	level := obs.Info
	switch cfg.Level {
	case "debug":
		level = obs.Debug
	case "warn":
		level = obs.Warn
	case "error":
		level = obs.Error
	}
	if verbose {
		level = obs.Debug
	}
	return obs.New(obs.Config{Level: level, Component: "shmrpc-peer"})
}

// echoHandler is the reference peer's default behavior: every call is
// answered with its own body prefixed, every subscription gets one
// immediate reply, and plain messages are logged and dropped.
func echoHandler(logger *obs.Logger) rpc.Handler {
	return func(env rpc.Envelope, respond func([]byte) error) error {
		switch env.Kind {
		case rpc.KindCall, rpc.KindSubscription:
			logger.Info("handling request", obs.String("kind", env.Kind.String()), obs.String("id", env.ID.String()))
			return respond(append([]byte("echo:"), env.Body...))
		default:
			logger.Info("received message", obs.String("body", string(env.Body)))
			return nil
		}
	}
}

// runLoop drives peer.Dispatch until ctx is cancelled (SIGINT/SIGTERM),
// polling at a short fixed interval since transport.Transport exposes
// no blocking wait of its own (spec.md §4.C's futex wait is internal to
// ShmTransport; see internal/ring's Coordinator).
func runLoop(peer *rpc.Peer, logger *obs.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	logger.Info("peer running, press ctrl-c to stop")
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := peer.Dispatch(); err != nil {
				logger.Error("dispatch failed", obs.Err(err))
			}
		}
	}
}
