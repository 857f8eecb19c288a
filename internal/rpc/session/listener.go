package session

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LineServer accepts raw TCP connections and serves one session on each.
type LineServer struct {
	Server Server
	Logger *zap.Logger
}

// Serve accepts on ln until ctx is cancelled, then waits for open sessions
// to finish.
func (s *LineServer) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var sessions errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			_ = sessions.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		sessions.Go(func() error {
			defer conn.Close()
			remote := conn.RemoteAddr().String()
			logger.Debug("line connection accepted", zap.String("remote", remote))
			if err := s.Server.Serve(ctx, "line", NewLineTransport(conn)); err != nil {
				logger.Debug("line session ended with error", zap.String("remote", remote), zap.Error(err))
			}
			return nil
		})
	}
}
