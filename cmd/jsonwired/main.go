package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/danmuck/jsonwire/internal/endpoint"
	"github.com/danmuck/jsonwire/internal/logging"
	"github.com/danmuck/jsonwire/internal/wire"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to TOML server config")
	flag.Parse()
	logging.ConfigureRuntime()

	cfg := defaultServerConfig()
	if *configPath != "" {
		loaded, err := loadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jsonwired: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "jsonwired: %v\n", err)
		os.Exit(1)
	}
}

// run serves the echo protocol until SIGINT/SIGTERM: every inbound message
// is sent back on its connection of origin, payload and blocks intact.
func run(cfg serverConfig) error {
	ep, err := endpoint.New(cfg.Endpoint)
	if err != nil {
		return err
	}
	if err := ep.Run(); err != nil {
		return err
	}
	started := time.Now()

	if cfg.AdminAddr != "" {
		router := adminRouter(ep, cfg.Endpoint.Name, cfg.CORSOrigins, started)
		go func() {
			if err := router.Run(cfg.AdminAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.AdminAddr).Msg("admin server exited")
			}
		}()
	}

	go func() {
		for closure := range ep.Closures() {
			if closure.Err != nil {
				log.Warn().
					Str("conn_id", closure.ConnID).
					Str("remote", closure.RemoteAddr).
					Err(closure.Err).
					Msg("connection torn down")
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return ep.Stop()
		case d := <-ep.Recv():
			if err := ep.Send(d.ConnID, d.Message.Data, echoBlocks(d.Message)); err != nil {
				log.Warn().
					Str("conn_id", d.ConnID).
					Err(err).
					Msg("echo reply failed")
			}
		}
	}
}

// echoBlocks rebuilds outbound blocks from a parsed message, in stable name
// order.
func echoBlocks(msg wire.Message) []wire.Block {
	if len(msg.Blocks) == 0 {
		return nil
	}
	names := make([]string, 0, len(msg.Blocks))
	for name := range msg.Blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]wire.Block, 0, len(names))
	for _, name := range names {
		bd := msg.Blocks[name]
		out = append(out, wire.Block{Name: bd.Name, Data: bd.Raw, Encoding: bd.Encoding})
	}
	return out
}
