package rpc

// ClientFrame is any message sent by the human-facing client. Which field is
// expected depends on where the session is: the opening frame carries the
// user token and document, the second the initial request, and every later
// frame answers a query.
type ClientFrame struct {
	UserToken  string  `json:"user_token,omitempty"`
	DocumentID string  `json:"onshape_document_id,omitempty"`
	Contents   string  `json:"contents,omitempty"`
	Response   *string `json:"response,omitempty"`
}

// Answer builds a frame answering a query.
func Answer(text string) ClientFrame {
	return ClientFrame{Response: &text}
}

// Response types carried by status frames.
const (
	ResponseInfo  = "Info"
	ResponseFinal = "Final"
)

// Error frame names.
const (
	ErrAuthentication = "AuthenticationError"
	ErrRequest        = "RequestError"
	ErrInternal       = "InternalError"
)

// ServerFrame is any message the daemon writes to the client.
type ServerFrame struct {
	SessionID    string      `json:"session_id,omitempty"`
	Query        string      `json:"query,omitempty"`
	ResponseType string      `json:"response_type,omitempty"`
	Content      string      `json:"content,omitempty"`
	Error        *ErrorFrame `json:"error,omitempty"`
}

// ErrorFrame reports a failure that ends the session.
type ErrorFrame struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Operation string `json:"operation,omitempty"`
}

func (e *ErrorFrame) Error() string {
	if e.Operation != "" {
		return e.Name + " (" + e.Operation + "): " + e.Message
	}
	return e.Name + ": " + e.Message
}

// IsQuery reports whether the frame asks the client for an answer.
func (f ServerFrame) IsQuery() bool {
	return f.Query != ""
}

// IsTerminal reports whether no frame will follow this one.
func (f ServerFrame) IsTerminal() bool {
	return f.Error != nil || f.ResponseType == ResponseFinal
}
