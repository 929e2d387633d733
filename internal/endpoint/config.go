package endpoint

import (
	"time"

	"github.com/danmuck/jsonwire/internal/wire"
)

// Role selects whether the endpoint accepts connections or initiates one.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Config defines endpoint construction parameters. The codec options must
// match the peer's.
type Config struct {
	Role    Role
	Address string
	// Name labels logs and metrics for this endpoint. Defaults to the role.
	Name string
	// IngressCapacity bounds the shared receive queue; a full queue blocks
	// connection readers (backpressure).
	IngressCapacity int
	// EgressCapacity bounds each connection's send queue.
	EgressCapacity int
	// ClosureCapacity bounds the closure notification queue.
	ClosureCapacity int
	ConnectTimeout  time.Duration
	// ShutdownTimeout bounds the wait for worker loops to join during Stop.
	ShutdownTimeout time.Duration
	Codec           wire.Options
}

// DefaultConfig returns server-role defaults on the conventional port.
func DefaultConfig() Config {
	return Config{
		Role:    RoleServer,
		Address: "localhost:9999",
	}.WithDefaults()
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = string(c.Role)
	}
	if c.IngressCapacity <= 0 {
		c.IngressCapacity = 64
	}
	if c.EgressCapacity <= 0 {
		c.EgressCapacity = 16
	}
	if c.ClosureCapacity <= 0 {
		c.ClosureCapacity = 16
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	c.Codec = c.Codec.WithDefaults()
	return c
}
