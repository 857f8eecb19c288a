package bridge

import "github.com/PolybrainAI/polybrain-core/internal/rpc"

// Request is an operation an agent asks the driver to perform on the
// transport. The set of variants is closed.
type Request interface {
	requestKind() string
}

// Response is the driver's answer to exactly one Request.
type Response interface {
	responseKind() string
}

// AwaitSessionStart reads the client's opening frame.
type AwaitSessionStart struct{}

// StartSession tells the client which session id it was given.
type StartSession struct {
	SessionID string
}

// GetInitialRequest reads the user's first modeling request.
type GetInitialRequest struct{}

// AskHuman sends a question and waits for the answer.
type AskHuman struct {
	Question string
}

// EmitStatus sends a one-way status message.
type EmitStatus struct {
	Message StatusMessage
}

// EndSession sends the closing message; the driver stops after it.
type EndSession struct {
	Message StatusMessage
}

// Abort sends an error frame; the driver stops after it.
type Abort struct {
	Error rpc.ErrorFrame
}

func (AwaitSessionStart) requestKind() string { return "await_session_start" }
func (StartSession) requestKind() string      { return "start_session" }
func (GetInitialRequest) requestKind() string { return "get_initial_request" }
func (AskHuman) requestKind() string          { return "ask_human" }
func (EmitStatus) requestKind() string        { return "emit_status" }
func (EndSession) requestKind() string        { return "end_session" }
func (Abort) requestKind() string             { return "abort" }

// SessionStartRequested carries the client's opening frame.
type SessionStartRequested struct {
	UserToken  string
	DocumentID string
}

// SessionStarted confirms the session id was delivered.
type SessionStarted struct {
	ID string
}

// InitialRequest is the user's first free-text request.
type InitialRequest struct {
	Text string
}

// HumanAnswer is the user's literal reply to a question.
type HumanAnswer struct {
	Text string
}

// Ack acknowledges a one-way message.
type Ack struct{}

func (SessionStartRequested) responseKind() string { return "session_start_requested" }
func (SessionStarted) responseKind() string        { return "session_started" }
func (InitialRequest) responseKind() string        { return "initial_request" }
func (HumanAnswer) responseKind() string           { return "human_answer" }
func (Ack) responseKind() string                   { return "ack" }

// StatusKind distinguishes progress updates from the closing result.
type StatusKind int

const (
	Info StatusKind = iota
	Final
)

func (k StatusKind) String() string {
	if k == Final {
		return rpc.ResponseFinal
	}
	return rpc.ResponseInfo
}

// StatusMessage is a structured message shown to the human.
type StatusMessage struct {
	Kind StatusKind
	Text string
}

// InfoMessage builds an informational status message.
func InfoMessage(text string) StatusMessage {
	return StatusMessage{Kind: Info, Text: text}
}

// FinalMessage builds the closing status message.
func FinalMessage(text string) StatusMessage {
	return StatusMessage{Kind: Final, Text: text}
}

func (m StatusMessage) frame() rpc.ServerFrame {
	return rpc.ServerFrame{ResponseType: m.Kind.String(), Content: m.Text}
}
