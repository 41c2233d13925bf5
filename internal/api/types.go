package api

// StartCaptureRequest selects the devices a recording should capture.
// SessionID is optional; when empty a fresh session is created.
type StartCaptureRequest struct {
	DeviceIDs []int  `json:"device_ids"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateSessionRequest names a new session.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// UpdateSessionRequest carries partial session updates. Nil fields are
// left untouched.
type UpdateSessionRequest struct {
	Name  *string `json:"name,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// NotesRequest replaces a session's notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// SummarizeRequest picks the provider and model for summarization.
type SummarizeRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// EngineStatusResponse reports whether inference models are resident.
type EngineStatusResponse struct {
	Loaded bool `json:"loaded"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
