package endpoint

import (
	"context"
	"net"

	"github.com/danmuck/jsonwire/internal/wire"
)

// Post sends one message to addr over a fresh connection and closes it.
// Fire-and-forget: no reply is read. For a persistent bidirectional session
// use an Endpoint instead.
func Post(ctx context.Context, addr string, data any, blocks []wire.Block, opts wire.Options) error {
	payload, err := wire.Serialize(data, blocks, opts)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	_, err = conn.Write(payload)
	return err
}
