// Package orchestrator implements the Chat Orchestrator: the per-request
// controller that runs the mutation form-filling FSM ahead of the
// workflow graph, serves and populates the turn-indexed response cache,
// invokes the graph, recovers from a handful of known database errors by
// re-entering the mutation FSM, and streams the NDJSON response.
//
// Each turn runs session load -> mutation check -> cache check -> graph
// invoke -> recovery -> persist -> stream, with an explicit Go type for
// every state transition.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/shaharia-lab/tag-backend/internal/cache"
	"github.com/shaharia-lab/tag-backend/internal/graph"
	"github.com/shaharia-lab/tag-backend/internal/logger"
	"github.com/shaharia-lab/tag-backend/internal/metrics"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
	"github.com/shaharia-lab/tag-backend/internal/sessionstore"
)

// UserLookup resolves a display name for a user_id, best-effort. The
// schema.Inspector's LookupUserName method satisfies this.
type UserLookup interface {
	LookupUserName(ctx context.Context, connStr, userID string) (string, bool)
}

// Orchestrator is the per-request turn controller. One Orchestrator is
// built at startup and shared across every concurrent request; it holds no
// per-request mutable state itself.
type Orchestrator struct {
	Graph      *graph.Graph
	Sessions   *sessionstore.Store
	Cache      *cache.Cache
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	UserLookup UserLookup

	// DefaultConnString is the process-default database connection
	// string, used when a turn's metadata carries no override.
	DefaultConnString string

	// ProviderUsed is reported verbatim on every result record, naming the
	// configured LLM model/provider (or "fallback" when none is configured).
	ProviderUsed string
}

var (
	incorrectColumnPattern = regexp.MustCompile(`(?i)Incorrect .* for column '([^']+)'`)
	missingDefaultPattern  = regexp.MustCompile(`(?i)Field '([^']+)' doesn't have a default value`)
)

// Handle runs one turn of req to completion, streaming the NDJSON token
// and result records to w. w is flushed after every record when the
// caller supplies a flush callback.
func (o *Orchestrator) Handle(ctx context.Context, req schemas.ChatRequest, w io.Writer, flush func()) error {
	start := time.Now()
	sessionID := req.SessionID
	log := logger.Session(o.Logger, sessionID)

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["session_id"] = sessionID

	history := o.Sessions.History(ctx, sessionID)

	if ms := o.Sessions.Mutation(ctx, sessionID); ms != nil {
		log.Info("resuming pending mutation", "table", ms.Table, "awaiting", ms.Awaiting)
		return o.handlePendingMutation(ctx, req, metadata, history, ms, w, flush, start)
	}

	mutationInPlay := false
	if _, has := metadata["mutation_context"]; !has {
		key := cache.Key(sessionID, len(history), req.Message)
		if entry, ok := o.Cache.Get(ctx, key); ok {
			o.Metrics.RecordCacheHit()
			log.Info("turn served from cache", "turn_index", len(history))
			return o.streamCached(ctx, sessionID, entry, w, flush, start)
		}
		o.Metrics.RecordCacheMiss()
	} else {
		mutationInPlay = true
	}

	o.enrichUserIdentity(ctx, &req, metadata)

	state := o.buildState(req, metadata, history)
	o.Graph.Run(ctx, state)

	if state.Error != "" && mutationInPlay {
		if recovered := o.recoverFromDBError(ctx, sessionID, state, metadata); recovered {
			o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "user", Content: req.Message, Timestamp: time.Now()})
			o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "assistant", Content: state.Reply, Timestamp: time.Now()})
			o.Metrics.RecordTurn(string(state.Route), "error", time.Since(start).Seconds())
			return o.streamResult(ctx, sessionID, state, w, flush, false, false)
		}
	}

	if state.WorkflowPayload != nil && state.WorkflowPayload["completed"] == false {
		o.materializeMenuFromPayload(ctx, sessionID, state)
	}

	cacheable := state.Error == "" &&
		(state.WorkflowPayload == nil || state.WorkflowPayload["completed"] != false) &&
		!mutationInPlay

	o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "user", Content: req.Message, Timestamp: time.Now()})
	o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "assistant", Content: state.Reply, Timestamp: time.Now()})

	status := "ok"
	if state.Error != "" {
		status = "error"
	}
	o.Metrics.RecordTurn(string(state.Route), status, time.Since(start).Seconds())
	log.Info("turn completed", "route", state.Route, "status", status, "table", state.Table)

	if cacheable {
		key := cache.Key(sessionID, len(history), req.Message)
		o.Cache.Set(ctx, key, entryFromState(state))
	}

	return o.streamResult(ctx, sessionID, state, w, flush, false, false)
}

// handlePendingMutation runs the mutation FSM for a session with an
// in-flight form. A non-resolving step streams its own reply and returns;
// a confirmation resolves into metadata.mutation_context and falls through
// to the workflow graph.
func (o *Orchestrator) handlePendingMutation(ctx context.Context, req schemas.ChatRequest, metadata map[string]any, history []schemas.SessionHistoryEntry, ms *schemas.MutationState, w io.Writer, flush func(), start time.Time) error {
	sessionID := req.SessionID
	log := logger.Session(o.Logger, sessionID)
	step := stepMutation(ms, req.Message)

	if !step.Resolved {
		if step.Next == nil {
			o.Sessions.ClearMutation(ctx, sessionID)
		} else {
			o.Sessions.SaveMutation(ctx, sessionID, step.Next)
		}
		o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "user", Content: req.Message, Timestamp: time.Now()})
		o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "assistant", Content: step.Reply, Timestamp: time.Now()})
		o.Metrics.RecordTurn("mutation", "ok", time.Since(start).Seconds())

		workflow := map[string]any{
			"workflow_id": ms.WorkflowID,
			"state":       ms.State,
			"completed":   false,
		}
		result := schemas.ResultRecord{
			Type:         schemas.RecordResult,
			SessionID:    sessionID,
			Message:      step.Reply,
			Status:       schemas.StatusOK,
			Labels:       []string{"mutation"},
			Workflow:     workflow,
			ProviderUsed: o.ProviderUsed,
			TraceID:      uuid.New().String(),
		}
		return writeNDJSON(w, flush, schemas.NewTokenRecord(step.Reply), result)
	}

	o.Sessions.ClearMutation(ctx, sessionID)
	log.Info("mutation confirmed", "operation", ms.Operation, "table", ms.Table)
	metadata["mutation_context"] = map[string]any{
		"operation": string(ms.Operation),
		"table":     ms.Table,
		"fields":    ms.CollectedFields,
	}

	o.enrichUserIdentity(ctx, &req, metadata)
	state := o.buildState(req, metadata, history)
	o.Graph.Run(ctx, state)

	if state.Error != "" {
		if recovered := o.recoverFromDBError(ctx, sessionID, state, metadata); recovered {
			o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "user", Content: req.Message, Timestamp: time.Now()})
			o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "assistant", Content: state.Reply, Timestamp: time.Now()})
			o.Metrics.RecordTurn(string(state.Route), "error", time.Since(start).Seconds())
			return o.streamResult(ctx, sessionID, state, w, flush, false, false)
		}
	}

	o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "user", Content: req.Message, Timestamp: time.Now()})
	o.Sessions.AppendHistory(ctx, sessionID, schemas.SessionHistoryEntry{Role: "assistant", Content: state.Reply, Timestamp: time.Now()})

	status := "ok"
	if state.Error != "" {
		status = "error"
	}
	o.Metrics.RecordTurn(string(state.Route), status, time.Since(start).Seconds())

	return o.streamResult(ctx, sessionID, state, w, flush, false, false)
}

// recoverFromDBError inspects state.Error for a known recoverable MySQL
// message naming a column, and when found, re-enters the mutation FSM on
// that column instead of surfacing the raw error.
func (o *Orchestrator) recoverFromDBError(ctx context.Context, sessionID string, state *schemas.AgentState, metadata map[string]any) bool {
	mc, ok := metadata["mutation_context"].(map[string]any)
	if !ok {
		return false
	}

	var column string
	if m := incorrectColumnPattern.FindStringSubmatch(state.Error); m != nil {
		column = m[1]
	} else if m := missingDefaultPattern.FindStringSubmatch(state.Error); m != nil {
		column = m[1]
	}
	if column == "" {
		return false
	}

	operation, _ := mc["operation"].(string)
	table, _ := mc["table"].(string)
	fields, _ := mc["fields"].(map[string]string)

	required := []string{column}
	for f := range fields {
		if f != column {
			required = append(required, f)
		}
	}

	ms := NewMutationState(schemas.Operation(operation), table, required)
	for f, v := range fields {
		if f != column {
			ms.CollectedFields[f] = v
		}
	}
	ms.PendingField = column
	ms.Awaiting = schemas.AwaitingFieldValue

	o.Sessions.SaveMutation(ctx, sessionID, ms)
	logger.Session(o.Logger, sessionID).Warn("recovered database error into mutation form", "column", column)

	state.Error = ""
	state.Reply = fmt.Sprintf("That didn't go through. %s", renderFieldValuePrompt(ms))
	state.WorkflowPayload = map[string]any{
		"workflow_id": ms.WorkflowID,
		"state":       ms.State,
		"completed":   false,
	}
	return true
}

// materializeMenuFromPayload builds a fresh mutation state from the
// graph's bare workflow_payload hint and persists it, so the next turn
// resumes via the FSM instead of the one-shot payload alone; the
// builder's payload is a hint, the richer menu always wins.
func (o *Orchestrator) materializeMenuFromPayload(ctx context.Context, sessionID string, state *schemas.AgentState) {
	collected, _ := state.WorkflowPayload["collected_data"].(map[string]any)
	operation, _ := collected["operation"].(string)
	table, _ := collected["table"].(string)
	required, _ := collected["required_fields"].([]string)
	if table == "" || len(required) == 0 {
		return
	}

	ms := NewMutationState(schemas.Operation(operation), table, required)
	o.Sessions.SaveMutation(ctx, sessionID, ms)
	state.Reply = renderFieldSelectionMenu(ms)
	state.WorkflowPayload["workflow_id"] = ms.WorkflowID
	state.WorkflowPayload["state"] = ms.State
}

// enrichUserIdentity looks up and merges metadata["user_name"] when req
// carries a user_id and metadata doesn't already have one. Any failure is
// swallowed; this is a best-effort supplement to the x-user-context
// header path.
func (o *Orchestrator) enrichUserIdentity(ctx context.Context, req *schemas.ChatRequest, metadata map[string]any) {
	if o.UserLookup == nil || req.UserID == "" {
		return
	}
	if _, ok := metadata["user_name"]; ok {
		return
	}
	connStr := o.connString(metadata)
	if name, ok := o.UserLookup.LookupUserName(ctx, connStr, req.UserID); ok {
		metadata["user_name"] = name
	}
}

func (o *Orchestrator) connString(metadata map[string]any) string {
	if v, ok := metadata["database_url"].(string); ok && v != "" {
		return v
	}
	return o.DefaultConnString
}

func (o *Orchestrator) buildState(req schemas.ChatRequest, metadata map[string]any, history []schemas.SessionHistoryEntry) *schemas.AgentState {
	userName, _ := metadata["user_name"].(string)
	return &schemas.AgentState{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		UserName:  userName,
		Message:   req.Message,
		Metadata:  metadata,
		History:   history,
	}
}

func entryFromState(state *schemas.AgentState) cache.Entry {
	return cache.Entry{
		Message:      state.Reply,
		Labels:       labelsForState(state),
		Workflow:     state.WorkflowPayload,
		SQL:          sqlResultForState(state),
		TokenUsage:   state.TokenUsage,
		ProviderUsed: "",
	}
}

func labelsForState(state *schemas.AgentState) []string {
	labels := []string{string(state.Route)}
	if state.Route == schemas.RouteSQL && state.Operation != "" {
		labels = append(labels, string(state.Operation))
	}
	return labels
}

func sqlResultForState(state *schemas.AgentState) *schemas.SQLResult {
	if !state.Executed {
		return nil
	}
	return &schemas.SQLResult{
		Ran:         true,
		Cached:      false,
		Query:       state.SQLQuery,
		RowCount:    state.RowCount,
		RowsPreview: capPreview(state.RowsPreview, 20),
	}
}

func capPreview(rows []map[string]any, limit int) []map[string]any {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}

func (o *Orchestrator) streamResult(_ context.Context, sessionID string, state *schemas.AgentState, w io.Writer, flush func(), cached, _ bool) error {
	status := schemas.StatusOK
	if state.Error != "" {
		status = schemas.StatusError
	}

	result := schemas.ResultRecord{
		Type:         schemas.RecordResult,
		SessionID:    sessionID,
		Message:      state.Reply,
		Status:       status,
		Labels:       labelsForState(state),
		Workflow:     state.WorkflowPayload,
		SQL:          sqlResultForState(state),
		TokenUsage:   state.TokenUsage,
		ProviderUsed: o.ProviderUsed,
		TraceID:      uuid.New().String(),
	}
	if result.SQL != nil {
		result.SQL.Cached = cached
	}
	return writeNDJSON(w, flush, schemas.NewTokenRecord(state.Reply), result)
}

func (o *Orchestrator) streamCached(_ context.Context, sessionID string, entry cache.Entry, w io.Writer, flush func(), _ time.Time) error {
	sql := entry.SQL
	if sql != nil {
		cachedCopy := *sql
		cachedCopy.Cached = true
		sql = &cachedCopy
	}
	result := schemas.ResultRecord{
		Type:         schemas.RecordResult,
		SessionID:    sessionID,
		Message:      entry.Message,
		Status:       schemas.StatusOK,
		Labels:       entry.Labels,
		Workflow:     entry.Workflow,
		SQL:          sql,
		TokenUsage:   entry.TokenUsage,
		ProviderUsed: o.ProviderUsed,
		TraceID:      uuid.New().String(),
	}
	return writeNDJSON(w, flush, schemas.NewTokenRecord(entry.Message), result)
}

// writeNDJSON writes token then result, each as one JSON line terminated
// by \n, flushing after each write when flush is non-nil.
func writeNDJSON(w io.Writer, flush func(), token schemas.TokenRecord, result schemas.ResultRecord) error {
	if err := writeLine(w, token); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	if err := writeLine(w, result); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding NDJSON record: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// WriteError emits a single error NDJSON record. Used for failures before
// streaming starts at all (e.g. a missing session_id).
func WriteError(w io.Writer, message string) error {
	return writeLine(w, schemas.NewErrorRecord(message))
}
