package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/PolybrainAI/polybrain-core/internal/rpc"
)

// Pipe is an in-memory Transport. The daemon side uses Receive and Send;
// the peer plays the client with Push and Next.
type Pipe struct {
	toServer chan rpc.ClientFrame
	toClient chan rpc.ServerFrame
	closed   chan struct{}
	once     sync.Once
}

// NewPipe returns an open, unbuffered pipe.
func NewPipe() *Pipe {
	return &Pipe{
		toServer: make(chan rpc.ClientFrame),
		toClient: make(chan rpc.ServerFrame),
		closed:   make(chan struct{}),
	}
}

// Receive implements Transport.
func (p *Pipe) Receive(ctx context.Context) (rpc.ClientFrame, error) {
	select {
	case f := <-p.toServer:
		return f, nil
	case <-p.closed:
		return rpc.ClientFrame{}, io.EOF
	case <-ctx.Done():
		return rpc.ClientFrame{}, ctx.Err()
	}
}

// Send implements Transport.
func (p *Pipe) Send(ctx context.Context, frame rpc.ServerFrame) error {
	select {
	case p.toClient <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push delivers a client frame to the daemon side.
func (p *Pipe) Push(ctx context.Context, frame rpc.ClientFrame) error {
	select {
	case p.toServer <- frame:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next waits for the daemon's next frame.
func (p *Pipe) Next(ctx context.Context) (rpc.ServerFrame, error) {
	select {
	case f := <-p.toClient:
		return f, nil
	case <-p.closed:
		return rpc.ServerFrame{}, io.EOF
	case <-ctx.Done():
		return rpc.ServerFrame{}, ctx.Err()
	}
}

// Close shuts both directions.
func (p *Pipe) Close() {
	p.once.Do(func() { close(p.closed) })
}

var _ Transport = (*Pipe)(nil)
