package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/jsonwire/internal/endpoint"
	"github.com/danmuck/jsonwire/internal/logging"
	"github.com/danmuck/jsonwire/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "server address")
	data := flag.String("data", `{"cmd":"ping"}`, "JSON payload for the data dict")
	note := flag.String("note", "", "optional UTF-8 text block named 'note'")
	file := flag.String("file", "", "optional file sent as a raw block named by its basename")
	oneshot := flag.Bool("oneshot", false, "send over a fresh connection and exit without a reply")
	timeout := flag.Duration("timeout", 10*time.Second, "overall deadline")
	flag.Parse()
	logging.ConfigureRuntime()

	if err := run(*addr, *data, *note, *file, *oneshot, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "jsonwire: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, data, note, file string, oneshot bool, timeout time.Duration) error {
	var payload json.RawMessage
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return fmt.Errorf("parse -data: %w", err)
	}

	var blocks []wire.Block
	if note != "" {
		blocks = append(blocks, wire.TextBlock("note", note))
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		block, err := wire.BlockFromReader(filepath.Base(file), f, "")
		f.Close()
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}

	if oneshot {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return endpoint.Post(ctx, addr, payload, blocks, wire.DefaultOptions())
	}

	ep, err := endpoint.New(endpoint.Config{Role: endpoint.RoleClient, Address: addr, Name: "jsonwire"})
	if err != nil {
		return err
	}
	if err := ep.Run(); err != nil {
		return err
	}
	defer ep.Stop()

	if err := ep.Broadcast(payload, blocks); err != nil {
		return err
	}

	select {
	case d := <-ep.Recv():
		return printReply(d)
	case c := <-ep.Closures():
		if c.Err != nil {
			return c.Err
		}
		return fmt.Errorf("connection closed before a reply arrived")
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for a reply")
	}
}

func printReply(d endpoint.Delivery) error {
	out := map[string]any{
		"conn_id": d.ConnID,
		"remote":  d.RemoteAddr,
		"data":    d.Message.Data,
	}
	if len(d.Message.Blocks) > 0 {
		blocks := map[string]any{}
		for name, bd := range d.Message.Blocks {
			if bd.Encoding != "" {
				blocks[name] = bd.Text
			} else {
				blocks[name] = fmt.Sprintf("%d raw bytes", len(bd.Raw))
			}
		}
		out["blocks"] = blocks
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
