// Package session holds the per-connection state owned by the orchestrator.
package session

import (
	"time"

	"github.com/PolybrainAI/polybrain-core/internal/codegen"
)

// Credentials is the capability bundle a session runs with.
type Credentials struct {
	ModelAPIKey  string
	CADAccessKey string
	CADSecretKey string
}

// CADEnv returns the environment entries that hand the CAD key pair to an
// executed script.
func (c Credentials) CADEnv() []string {
	return codegen.CADEnv(c.CADAccessKey, c.CADSecretKey)
}

// String never prints secrets.
func (c Credentials) String() string {
	return "credentials{model:" + mask(c.ModelAPIKey) + " cad:" + mask(c.CADAccessKey) + "}"
}

func mask(s string) string {
	if s == "" {
		return "unset"
	}
	return "set"
}

// Session is one connection's pipeline run.
type Session struct {
	ID          string
	DocumentID  string
	Credentials Credentials
	StartedAt   time.Time
	// Request is the user's initial request, filled in after the handshake.
	Request string
}

// New creates a session.
func New(id, documentID string, creds Credentials) *Session {
	return &Session{
		ID:          id,
		DocumentID:  documentID,
		Credentials: creds,
		StartedAt:   time.Now().UTC(),
	}
}

// Target is where the session's scripts run.
func (s *Session) Target() codegen.Target {
	return codegen.Target{
		SessionID:  s.ID,
		DocumentID: s.DocumentID,
		Env:        s.Credentials.CADEnv(),
	}
}
