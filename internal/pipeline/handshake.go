package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/credentials"
	"github.com/PolybrainAI/polybrain-core/internal/rpc"
	"github.com/PolybrainAI/polybrain-core/internal/session"
)

// AuthMessage is sent to a client whose user token cannot be resolved.
const AuthMessage = "Unable to fetch credentials for this user token"

// AuthError means the opening frame named a user without usable
// credentials. The client has already been sent an AuthenticationError.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Handshake opens a session. It reads the client's opening frame, resolves
// its credentials, hands out a new session id and reads the initial
// request. The session is returned as soon as it has an id, so a failure
// while reading the request still yields it.
func Handshake(ctx context.Context, client *bridge.Client, resolver credentials.Resolver, newID func() string) (*session.Session, error) {
	start, err := client.AwaitSessionStart()
	if err != nil {
		return nil, fmt.Errorf("await session start: %w", err)
	}

	creds, err := resolver.Resolve(ctx, start.UserToken)
	if err != nil {
		abortErr := client.Abort(rpc.ErrorFrame{
			Name:      rpc.ErrAuthentication,
			Message:   AuthMessage,
			Operation: "session_start",
		})
		if abortErr != nil {
			return nil, fmt.Errorf("report authentication failure: %w", abortErr)
		}
		return nil, &AuthError{Err: err}
	}

	sess := session.New(newID(), start.DocumentID, creds)
	if err := client.StartSession(sess.ID); err != nil {
		return sess, fmt.Errorf("start session: %w", err)
	}

	request, err := client.InitialRequest()
	if err != nil {
		return sess, fmt.Errorf("initial request: %w", err)
	}
	sess.Request = strings.TrimSpace(request)
	return sess, nil
}
