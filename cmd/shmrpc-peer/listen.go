package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/krossbar-platform/shmrpc/internal/config"
	"github.com/krossbar-platform/shmrpc/internal/fdpass"
	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/rpc"
	"github.com/krossbar-platform/shmrpc/internal/transport"
)

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Create the shared-memory mapping and wait for a dial",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen()
		},
	}
}

// runListen implements the listening half of spec.md §4.D's out-of-
// band handshake: create_mapping produces an fd with no path
// (memfd_create-equivalent, spec.md §6), so it is handed to the dialer
// over a Unix-domain socket via SCM_RIGHTS (internal/fdpass), and the
// dialer's own write-arena fd comes back the same way.
func runListen() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Log, verbose)

	if cfg.Peer.ListenPath == "" {
		return fmt.Errorf("listen: peer.listen_path must be set in config")
	}

	writeArena, err := transport.CreateMapping(cfg.Peer.Name, cfg.Arena.BufferSize, cfg.Arena.MaxMessageSize, logger)
	if err != nil {
		return fmt.Errorf("listen: create mapping: %w", err)
	}

	os.Remove(cfg.Peer.ListenPath)
	ln, err := net.Listen("unix", cfg.Peer.ListenPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	defer os.Remove(cfg.Peer.ListenPath)

	logger.Info("waiting for a peer", obs.String("path", cfg.Peer.ListenPath))
	raw, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("listen: accept: %w", err)
	}
	conn, ok := raw.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("listen: accepted connection is not a unix socket")
	}
	defer conn.Close()

	if err := fdpass.SendFd(conn, writeArena.Fd()); err != nil {
		return fmt.Errorf("listen: handshake send: %w", err)
	}
	peerFd, err := fdpass.RecvFd(conn)
	if err != nil {
		return fmt.Errorf("listen: handshake recv: %w", err)
	}

	tr, err := transport.InitShm(cfg.Peer.Name, writeArena, peerFd, uint64(cfg.Arena.MaxMessageSize), logger)
	if err != nil {
		return fmt.Errorf("listen: init transport: %w", err)
	}
	defer tr.Destroy()

	peer := rpc.NewPeer(tr, rpc.Config{
		Name:      cfg.Peer.Name,
		RateLimit: rpc.RateLimit(cfg.RateLimit),
	}, logger)
	peer.SetHandler(echoHandler(logger))

	return runLoop(peer, logger)
}
