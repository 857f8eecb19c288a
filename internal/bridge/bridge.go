// Package bridge lets sequential, blocking agent code talk to a transport
// that only one goroutine may read from or write to. Agents hold a Client;
// a single Task owns the transport and serves one request at a time.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/observability"
	"github.com/PolybrainAI/polybrain-core/internal/rpc"
)

var (
	// ErrTransport is returned once the transport is gone. It is never retried.
	ErrTransport = errors.New("bridge: transport closed")
	// ErrProtocol marks a client frame that did not carry what the driver
	// expected. It ends the session like any other transport failure.
	ErrProtocol = fmt.Errorf("%w: protocol violation", ErrTransport)
	// ErrContractViolation means the driver answered a request with the
	// wrong response variant.
	ErrContractViolation = errors.New("bridge: response does not match request")
	// ErrBusy is returned when Send is called while another Send is in flight.
	ErrBusy = errors.New("bridge: request already in flight")
)

// Transport is the physical connection to the human-facing client.
type Transport interface {
	Receive(ctx context.Context) (rpc.ClientFrame, error)
	Send(ctx context.Context, frame rpc.ServerFrame) error
}

type result struct {
	resp Response
	err  error
}

type envelope struct {
	req   Request
	reply chan result
}

type link struct {
	requests chan envelope
	done     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once

	mu  sync.Mutex
	err error
}

func (l *link) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *link) closedErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return ErrTransport
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the driver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records transport errors under the given transport label.
func WithMetrics(metrics *observability.Metrics, transport string) Option {
	return func(t *Task) {
		t.metrics = metrics
		t.transportName = transport
	}
}

// New pairs a Client with the Task that serves it over transport.
func New(transport Transport, opts ...Option) (*Client, *Task) {
	l := &link{
		requests: make(chan envelope, 1),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
	task := &Task{
		link:          l,
		transport:     transport,
		logger:        zap.NewNop(),
		transportName: "unknown",
	}
	for _, opt := range opts {
		opt(task)
	}
	return &Client{link: l}, task
}

// Client is the agent-facing half of the bridge. It is meant for one
// sequential caller per session.
type Client struct {
	link     *link
	inFlight atomic.Bool
}

// Send enqueues req and blocks until the driver answers or the transport
// closes. Once the transport is gone every call fails with ErrTransport.
func (c *Client) Send(req Request) (Response, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.inFlight.Store(false)

	reply := make(chan result, 1)
	select {
	case <-c.link.done:
		return nil, c.link.closedErr()
	default:
	}
	select {
	case c.link.requests <- envelope{req: req, reply: reply}:
	case <-c.link.done:
		return nil, c.link.closedErr()
	}

	select {
	case r := <-reply:
		return r.resp, r.err
	case <-c.link.done:
		// The driver may have answered right before stopping.
		select {
		case r := <-reply:
			return r.resp, r.err
		default:
		}
		return nil, c.link.closedErr()
	}
}

// Close tells the driver no more requests will come. It is safe to call
// more than once and after the driver has stopped.
func (c *Client) Close() {
	c.link.quitOnce.Do(func() { close(c.link.quit) })
}

// Done is closed when the driver has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.link.done
}

func expect[T Response](resp Response, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrContractViolation, resp, zero)
	}
	return typed, nil
}

// AwaitSessionStart reads the opening frame.
func (c *Client) AwaitSessionStart() (SessionStartRequested, error) {
	return expect[SessionStartRequested](c.Send(AwaitSessionStart{}))
}

// StartSession delivers the session id.
func (c *Client) StartSession(id string) error {
	_, err := expect[SessionStarted](c.Send(StartSession{SessionID: id}))
	return err
}

// InitialRequest reads the user's first request.
func (c *Client) InitialRequest() (string, error) {
	resp, err := expect[InitialRequest](c.Send(GetInitialRequest{}))
	return resp.Text, err
}

// AskHuman asks a question and returns the literal answer.
func (c *Client) AskHuman(question string) (string, error) {
	resp, err := expect[HumanAnswer](c.Send(AskHuman{Question: question}))
	return resp.Text, err
}

// EmitStatus sends a status message and waits for the write to complete.
func (c *Client) EmitStatus(msg StatusMessage) error {
	_, err := expect[Ack](c.Send(EmitStatus{Message: msg}))
	return err
}

// EndSession sends the closing message.
func (c *Client) EndSession(msg StatusMessage) error {
	_, err := expect[Ack](c.Send(EndSession{Message: msg}))
	return err
}

// Abort sends an error frame and stops the driver.
func (c *Client) Abort(frame rpc.ErrorFrame) error {
	_, err := expect[Ack](c.Send(Abort{Error: frame}))
	return err
}

// Task is the single owner of the transport.
type Task struct {
	*link
	transport     Transport
	logger        *zap.Logger
	metrics       *observability.Metrics
	transportName string
}

// Run serves requests until the session ends, the client is closed or the
// transport fails. A nil return means the session ended normally.
func (t *Task) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			t.setErr(err)
		}
		close(t.done)
	}()

	for {
		select {
		case env := <-t.requests:
			resp, final, handleErr := t.handle(ctx, env.req)
			env.reply <- result{resp: resp, err: handleErr}
			if handleErr != nil {
				return handleErr
			}
			if final {
				t.logger.Debug("bridge session ended", zap.String("request", env.req.requestKind()))
				return nil
			}
		case <-t.quit:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
		}
	}
}

func (t *Task) handle(ctx context.Context, req Request) (Response, bool, error) {
	t.logger.Debug("bridge request", zap.String("request", req.requestKind()))

	switch r := req.(type) {
	case AwaitSessionStart:
		frame, err := t.receive(ctx, "session_start")
		if err != nil {
			return nil, false, err
		}
		if frame.UserToken == "" {
			return nil, false, t.reject(ctx, "session_start", "opening frame must carry user_token")
		}
		return SessionStartRequested{UserToken: frame.UserToken, DocumentID: frame.DocumentID}, false, nil

	case StartSession:
		if err := t.send(ctx, "start_session", rpc.ServerFrame{SessionID: r.SessionID}); err != nil {
			return nil, false, err
		}
		return SessionStarted{ID: r.SessionID}, false, nil

	case GetInitialRequest:
		frame, err := t.receive(ctx, "initial_request")
		if err != nil {
			return nil, false, err
		}
		if frame.Contents == "" {
			return nil, false, t.reject(ctx, "initial_request", "frame must carry contents")
		}
		return InitialRequest{Text: frame.Contents}, false, nil

	case AskHuman:
		if err := t.send(ctx, "ask_human", rpc.ServerFrame{Query: r.Question}); err != nil {
			return nil, false, err
		}
		frame, err := t.receive(ctx, "ask_human")
		if err != nil {
			return nil, false, err
		}
		if frame.Response == nil {
			return nil, false, t.reject(ctx, "user_response", "frame must carry response")
		}
		return HumanAnswer{Text: *frame.Response}, false, nil

	case EmitStatus:
		if err := t.send(ctx, "emit_status", r.Message.frame()); err != nil {
			return nil, false, err
		}
		return Ack{}, false, nil

	case EndSession:
		if err := t.send(ctx, "end_session", r.Message.frame()); err != nil {
			return nil, false, err
		}
		return Ack{}, true, nil

	case Abort:
		frame := r.Error
		if err := t.send(ctx, "abort", rpc.ServerFrame{Error: &frame}); err != nil {
			return nil, false, err
		}
		return Ack{}, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unknown request %T", ErrContractViolation, req)
	}
}

func (t *Task) receive(ctx context.Context, op string) (rpc.ClientFrame, error) {
	frame, err := t.transport.Receive(ctx)
	if err != nil {
		t.metrics.RecordTransportError(t.transportName, "receive_"+op)
		return rpc.ClientFrame{}, fmt.Errorf("%w: receive %s: %v", ErrTransport, op, err)
	}
	return frame, nil
}

func (t *Task) send(ctx context.Context, op string, frame rpc.ServerFrame) error {
	if err := t.transport.Send(ctx, frame); err != nil {
		t.metrics.RecordTransportError(t.transportName, "send_"+op)
		return fmt.Errorf("%w: send %s: %v", ErrTransport, op, err)
	}
	return nil
}

// reject answers a malformed client frame with a RequestError and returns
// the protocol error that stops the driver.
func (t *Task) reject(ctx context.Context, op, message string) error {
	t.metrics.RecordTransportError(t.transportName, "protocol_"+op)
	frame := rpc.ErrorFrame{Name: rpc.ErrRequest, Message: message, Operation: op}
	if err := t.transport.Send(ctx, rpc.ServerFrame{Error: &frame}); err != nil {
		t.logger.Debug("failed to report protocol error", zap.Error(err))
	}
	return fmt.Errorf("%w: %s: %s", ErrProtocol, op, message)
}
