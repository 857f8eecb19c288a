// Package session exposes the session service to clients, over a Connect
// bidi stream or over raw TCP with CRLF-terminated JSON frames.
package session

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bufbuild/connect-go"
	"go.uber.org/zap"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/rpc"
	"github.com/PolybrainAI/polybrain-core/internal/rpc/connectjson"
)

// ConverseProcedure is the Connect procedure carrying one session.
const ConverseProcedure = "/polybrain.session.v1.SessionService/Converse"

// Server runs one session over a transport. *pipeline.Orchestrator
// implements it.
type Server interface {
	Serve(ctx context.Context, transportName string, transport bridge.Transport) error
}

// NewConnectHandler builds the Connect bidi stream handler for Converse.
func NewConnectHandler(server Server, logger *zap.Logger) (string, http.Handler) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &connectHandler{server: server, logger: logger}
	return ConverseProcedure, connect.NewBidiStreamHandler(ConverseProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectHandler struct {
	server Server
	logger *zap.Logger
}

func (h *connectHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.ClientFrame, rpc.ServerFrame]) error {
	err := h.server.Serve(ctx, "connect", streamTransport{stream: stream})
	if err != nil {
		h.logger.Debug("connect session ended with error", zap.Error(err))
		if errors.Is(err, bridge.ErrProtocol) {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewError(connect.CodeAborted, err)
	}
	return nil
}

// streamTransport adapts the server side of a Connect stream to
// bridge.Transport.
type streamTransport struct {
	stream *connect.BidiStream[rpc.ClientFrame, rpc.ServerFrame]
}

func (t streamTransport) Receive(ctx context.Context) (rpc.ClientFrame, error) {
	if err := ctx.Err(); err != nil {
		return rpc.ClientFrame{}, err
	}
	frame, err := t.stream.Receive()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return rpc.ClientFrame{}, io.EOF
		}
		return rpc.ClientFrame{}, err
	}
	return *frame, nil
}

func (t streamTransport) Send(ctx context.Context, frame rpc.ServerFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.stream.Send(&frame)
}
