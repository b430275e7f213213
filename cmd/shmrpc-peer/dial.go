package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/krossbar-platform/shmrpc/internal/config"
	"github.com/krossbar-platform/shmrpc/internal/fdpass"
	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/rpc"
	"github.com/krossbar-platform/shmrpc/internal/transport"
)

func newDialCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dial",
		Short: "Dial a listening peer and exchange shared-memory mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial()
		},
	}
}

// runDial is the mirror image of runListen's handshake: it reads the
// listener's write-arena fd first, then hands back its own.
func runDial() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Log, verbose)

	if cfg.Peer.DialPath == "" {
		return fmt.Errorf("dial: peer.dial_path must be set in config")
	}

	writeArena, err := transport.CreateMapping(cfg.Peer.Name, cfg.Arena.BufferSize, cfg.Arena.MaxMessageSize, logger)
	if err != nil {
		return fmt.Errorf("dial: create mapping: %w", err)
	}

	raw, err := net.Dial("unix", cfg.Peer.DialPath)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn, ok := raw.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("dial: connection is not a unix socket")
	}
	defer conn.Close()

	peerFd, err := fdpass.RecvFd(conn)
	if err != nil {
		return fmt.Errorf("dial: handshake recv: %w", err)
	}
	if err := fdpass.SendFd(conn, writeArena.Fd()); err != nil {
		return fmt.Errorf("dial: handshake send: %w", err)
	}

	tr, err := transport.InitShm(cfg.Peer.Name, writeArena, peerFd, uint64(cfg.Arena.MaxMessageSize), logger)
	if err != nil {
		return fmt.Errorf("dial: init transport: %w", err)
	}
	defer tr.Destroy()

	peer := rpc.NewPeer(tr, rpc.Config{
		Name:      cfg.Peer.Name,
		RateLimit: rpc.RateLimit(cfg.RateLimit),
	}, logger)
	peer.SetHandler(echoHandler(logger))

	logger.Info("connected to peer", obs.String("path", cfg.Peer.DialPath))
	return runLoop(peer, logger)
}
