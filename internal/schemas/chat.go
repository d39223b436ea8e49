// Package schemas defines the request/response wire shapes and the
// conversational data model shared across the backend: chat requests and
// the NDJSON response envelope, the graph-scoped agent state, session
// history, mutation state, and the read-only schema manifest.
package schemas

// ChatRequest is the inbound payload for POST /query and POST /chat.
type ChatRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	UserID    string         `json:"user_id,omitempty"`
	UserRole  string         `json:"user_role,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RecordType discriminates the NDJSON envelope records.
type RecordType string

const (
	RecordToken  RecordType = "token"
	RecordResult RecordType = "result"
	RecordError  RecordType = "error"
)

// Status is the outcome of a completed turn.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// TokenRecord is the first NDJSON record streamed for every turn: the
// human-readable message.
type TokenRecord struct {
	Type    RecordType `json:"type"`
	Content string     `json:"content"`
}

// NewTokenRecord builds a token record.
func NewTokenRecord(content string) TokenRecord {
	return TokenRecord{Type: RecordToken, Content: content}
}

// ResultRecord is the second (and final) NDJSON record streamed for a
// completed turn.
type ResultRecord struct {
	Type         RecordType     `json:"type"`
	SessionID    string         `json:"session_id"`
	Message      string         `json:"message"`
	Status       Status         `json:"status"`
	Labels       []string       `json:"labels"`
	Workflow     map[string]any `json:"workflow,omitempty"`
	SQL          *SQLResult     `json:"sql,omitempty"`
	TokenUsage   map[string]int `json:"token_usage,omitempty"`
	ProviderUsed string         `json:"provider_used"`
	TraceID      string         `json:"trace_id"`
}

// ErrorRecord is emitted exactly once when an orchestrator-level exception
// occurs before any result can be produced.
type ErrorRecord struct {
	Type    RecordType `json:"type"`
	Message string     `json:"message"`
}

// NewErrorRecord builds an error record.
func NewErrorRecord(message string) ErrorRecord {
	return ErrorRecord{Type: RecordError, Message: message}
}

// SQLResult is the SQL execution payload embedded in a result record.
type SQLResult struct {
	Ran         bool             `json:"ran"`
	Cached      bool             `json:"cached"`
	Query       string           `json:"query"`
	RowCount    int              `json:"row_count"`
	RowsPreview []map[string]any `json:"rows_preview"`
}
