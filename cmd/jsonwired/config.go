package main

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/jsonwire/internal/endpoint"
)

type serverConfig struct {
	Endpoint    endpoint.Config
	AdminAddr   string
	CORSOrigins []string
}

type fileConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	Name            string   `toml:"name"`
	AdminAddr       string   `toml:"admin_addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	IngressCapacity int      `toml:"ingress_capacity"`
	EgressCapacity  int      `toml:"egress_capacity"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	DataDictKey     string   `toml:"data_dict_key"`
	DataBlocksKey   string   `toml:"data_blocks_key"`
	DefaultEncoding string   `toml:"default_encoding"`
	ByteOrder       string   `toml:"byte_order"`
	MaxBlockSize    int64    `toml:"max_block_size"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Endpoint: endpoint.Config{
			Role:    endpoint.RoleServer,
			Address: "127.0.0.1:9999",
			Name:    "jsonwired",
		}.WithDefaults(),
	}
}

func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		addr := strings.TrimSpace(raw.ListenAddr)
		if addr != "" {
			cfg.Endpoint.Address = addr
		}
	}
	if meta.IsDefined("name") {
		name := strings.TrimSpace(raw.Name)
		if name != "" {
			cfg.Endpoint.Name = name
		}
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("ingress_capacity") {
		cfg.Endpoint.IngressCapacity = raw.IngressCapacity
	}
	if meta.IsDefined("egress_capacity") {
		cfg.Endpoint.EgressCapacity = raw.EgressCapacity
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.Endpoint.ShutdownTimeout = d
	}
	if meta.IsDefined("data_dict_key") {
		cfg.Endpoint.Codec.DataKey = strings.TrimSpace(raw.DataDictKey)
	}
	if meta.IsDefined("data_blocks_key") {
		cfg.Endpoint.Codec.BlocksKey = strings.TrimSpace(raw.DataBlocksKey)
	}
	if meta.IsDefined("default_encoding") {
		cfg.Endpoint.Codec.DefaultEncoding = strings.TrimSpace(raw.DefaultEncoding)
	}
	if meta.IsDefined("byte_order") {
		switch strings.ToLower(strings.TrimSpace(raw.ByteOrder)) {
		case "big", "big-endian":
			cfg.Endpoint.Codec.ByteOrder = binary.BigEndian
		case "little", "little-endian":
			cfg.Endpoint.Codec.ByteOrder = binary.LittleEndian
		default:
			return serverConfig{}, fmt.Errorf("parse byte_order: unknown value %q", raw.ByteOrder)
		}
	}
	if meta.IsDefined("max_block_size") {
		if raw.MaxBlockSize <= 0 {
			return serverConfig{}, fmt.Errorf("parse max_block_size: must be positive")
		}
		cfg.Endpoint.Codec.MaxBlockSize = uint64(raw.MaxBlockSize)
	}

	cfg.Endpoint = cfg.Endpoint.WithDefaults()
	return cfg, nil
}
