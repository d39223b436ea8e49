package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shaharia-lab/tag-backend/internal/embedding"
	"github.com/shaharia-lab/tag-backend/internal/intent"
	"github.com/shaharia-lab/tag-backend/internal/llm"
	"github.com/shaharia-lab/tag-backend/internal/schema"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
	"github.com/shaharia-lab/tag-backend/internal/sqlbuild"
	"github.com/shaharia-lab/tag-backend/internal/sqlvalidate"
)

// domainHints gate the chat node's LLM fallback: an out-of-domain message
// never reaches the model at all, it gets the canned redirect.
var domainHints = []string{
	"task", "tasks", "asset", "assets", "facility", "facilities",
	"user", "users", "company", "checklist", "scheduler", "sql",
	"database", "tag", "session", "query", "insert", "update",
	"select", "count",
}

const capabilitiesMessage = "I only support TAG application tasks. I can help you with:\n" +
	"1. Querying project data (tasks, assets, facilities, users, companies).\n" +
	"2. Counting/listing records from the database.\n" +
	"3. Creating or updating records with valid fields.\n" +
	"4. Explaining schema-aware errors and required input fields."

const outOfDomainMessage = "I can only help with this TAG project and its database operations. " +
	"Ask about tasks, assets, facilities, users, schedules, or SQL-backed actions."

var helpPhrases = []string{"what can you do", "how can you help", "capabilities", "help"}

// NewRouteNode builds the route node: domain override when a
// mutation_context is already in metadata, else the Router classifier.
func NewRouteNode(router *intent.Router) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		_, hasMutationContext := state.Metadata["mutation_context"]
		route := router.Route(ctx, state.Message, hasMutationContext)
		if route == intent.RouteChat {
			state.Route = schemas.RouteChat
			return nodeChat
		}
		state.Route = schemas.RouteSQL
		return nodeIntent
	}
}

// NewChatNode builds the chat node: capability message, domain-hint gate,
// else a bounded, domain-scoped LLM reply.
func NewChatNode(retry *llm.RetryWrapper) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		q := strings.TrimSpace(state.Message)
		lower := strings.ToLower(q)

		for _, phrase := range helpPhrases {
			if strings.Contains(lower, phrase) {
				state.Reply = capabilitiesMessage
				state.AddTurn("assistant", state.Reply)
				return nodeEnd
			}
		}

		if !isDomainQuery(lower) {
			state.Reply = outOfDomainMessage
			state.AddTurn("assistant", state.Reply)
			return nodeEnd
		}

		if retry == nil {
			state.Reply = outOfDomainMessage
			state.AddTurn("assistant", state.Reply)
			return nodeEnd
		}

		prompt := "You are the TAG backend assistant. Keep responses strictly limited to this project's " +
			"application domain: tasks, assets, facilities, users, companies, schedules, and DB actions. " +
			"Do not offer generic assistant abilities outside the project.\n" +
			"User: " + q

		response, err := retry.InvokeWithRetry(ctx, prompt, "chat", llm.DefaultRetryConfig, nil)
		if err != nil {
			state.Reply = outOfDomainMessage
		} else {
			state.Reply = response
		}
		state.AddTurn("assistant", state.Reply)
		return nodeEnd
	}
}

func isDomainQuery(lowerQuery string) bool {
	for _, hint := range domainHints {
		if strings.Contains(lowerQuery, hint) {
			return true
		}
	}
	return false
}

// IntentCatalog is the subset of manifest.Catalog (or manifest.Registry)
// the intent node falls back to when the classifier didn't name a table.
type IntentCatalog interface {
	TableNames() []string
	ResolveTableFromQuery(query string) string
}

// NewIntentNode builds the intent node. When the classifier (LLM or regex
// fallback) didn't name a table, it asks the embedder to rank the
// manifest's tables by semantic similarity, then falls back to the
// manifest's alias-substring resolver, so a plain SELECT turn like "show
// task count" still resolves a table without needing an insert/update to
// reach the Mutation-Resolver's disambiguation rules.
func NewIntentNode(in *intent.Intent, catalog IntentCatalog, embedder embedding.TableEmbedder) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		analysis := in.Analyze(ctx, state.Message)
		state.Intent = string(analysis.Operation)
		state.Operation = schemas.Operation(analysis.Operation)
		state.Table = analysis.Table
		if state.Table == "" && catalog != nil && embedder != nil {
			if ranked, err := embedder.RankTables(ctx, state.Message, catalog.TableNames()); err == nil && len(ranked) > 0 {
				state.Table = ranked[0]
			}
		}
		if state.Table == "" && catalog != nil {
			state.Table = catalog.ResolveTableFromQuery(state.Message)
		}
		if state.WorkflowPayload == nil {
			state.WorkflowPayload = map[string]any{}
		}
		state.WorkflowPayload["_intent_filters"] = analysis.Filters
		state.WorkflowPayload["_intent_fields"] = analysis.Fields
		return nodeMutationUnderstand
	}
}

// NewMutationUnderstandNode builds the mutation_understand node: only
// insert/update operations get table disambiguation.
func NewMutationUnderstandNode(resolver *intent.MutationResolver) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		if state.Intent != string(intent.OperationInsert) && state.Intent != string(intent.OperationUpdate) {
			return nodeSQLBuild
		}
		if resolved := resolver.ResolveTable(state.Message, state.Table); resolved != "" {
			state.Table = resolved
		}
		return nodeSQLBuild
	}
}

// SQLBuildCatalog is the subset of manifest.Catalog (or manifest.Registry,
// for hot-swappable deployments) the sql_build node depends on.
type SQLBuildCatalog interface {
	RequiredCreateFields(table string) []string
}

// NewSQLBuildNode builds the sql_build node: mutation_context-forced build
// when present, else free-text resolution, required-field gating for
// inserts, and LLM-assisted SELECT generation.
func NewSQLBuildNode(catalog SQLBuildCatalog, builder *sqlbuild.Builder) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		companyID := state.Metadata["company_id"]

		if mc, ok := state.Metadata["mutation_context"].(map[string]any); ok && mc != nil {
			return buildFromMutationContext(ctx, state, builder, mc, companyID)
		}

		operation := state.Intent
		table := state.Table
		if table == "" {
			state.SQLQuery = schemas.SkipSQL
			state.Reply = "Please mention a table/entity like task, schedule, asset, user, or facility."
			return nodeEnd
		}

		fields := map[string]string{}
		if f, ok := state.WorkflowPayload["_intent_fields"].(map[string]string); ok {
			for k, v := range f {
				fields[k] = v
			}
		}
		for k, v := range sqlbuild.ParseKVPairs(state.Message) {
			fields[k] = v
		}

		switch operation {
		case string(intent.OperationInsert):
			required := catalog.RequiredCreateFields(table)
			if len(required) > 0 {
				var missing []string
				for _, f := range required {
					if _, ok := fields[f]; !ok {
						missing = append(missing, f)
					}
				}
				if len(missing) > 0 {
					next := missing[0]
					state.SQLQuery = schemas.SkipSQL
					state.Reply = fmt.Sprintf("Let's do this step by step. Please provide `%s`.", next)
					payload := sqlbuild.BuildMutationFormPayload(table, "insert", required)
					state.WorkflowPayload["workflow_id"] = payload.WorkflowID
					state.WorkflowPayload["state"] = payload.State
					state.WorkflowPayload["completed"] = payload.Completed
					state.WorkflowPayload["collected_data"] = payload.CollectedData
					state.WorkflowPayload["ui"] = payload.UI
					return nodeEnd
				}
			}
			sqlStr, err := builder.BuildInsert(table, fields, companyID)
			if err != nil {
				state.SQLQuery = schemas.SkipSQL
				state.Reply = err.Error()
				return nodeEnd
			}
			state.SQLQuery = sqlStr
			return nodeSQLValidate

		case string(intent.OperationUpdate):
			sqlStr, err := builder.BuildUpdate(table, fields, companyID)
			if err != nil {
				state.SQLQuery = schemas.SkipSQL
				state.Reply = err.Error() + " Use e.g. id=123, status=Completed"
				payload := sqlbuild.BuildMutationFormPayload(table, "update", []string{"id", "field=value"})
				state.WorkflowPayload["workflow_id"] = payload.WorkflowID
				state.WorkflowPayload["state"] = payload.State
				state.WorkflowPayload["completed"] = payload.Completed
				state.WorkflowPayload["collected_data"] = payload.CollectedData
				state.WorkflowPayload["ui"] = payload.UI
				return nodeEnd
			}
			state.SQLQuery = sqlStr
			return nodeSQLValidate

		default:
			state.SQLQuery = builder.BuildSelect(ctx, state.Message, table, companyID)
			return nodeSQLValidate
		}
	}
}

func buildFromMutationContext(_ context.Context, state *schemas.AgentState, builder *sqlbuild.Builder, mc map[string]any, companyID any) nodeLabel {
	operation, _ := mc["operation"].(string)
	table, _ := mc["table"].(string)
	fields := map[string]string{}
	if f, ok := mc["fields"].(map[string]string); ok {
		fields = f
	}

	operation = strings.ToLower(strings.TrimSpace(operation))
	table = strings.TrimSpace(table)
	if table == "" {
		return nodeSQLValidate
	}

	var (
		sqlStr string
		err    error
	)
	switch operation {
	case string(intent.OperationInsert):
		sqlStr, err = builder.BuildInsert(table, fields, companyID)
	case string(intent.OperationUpdate):
		sqlStr, err = builder.BuildUpdate(table, fields, companyID)
	default:
		return nodeSQLValidate
	}

	if err != nil {
		state.SQLQuery = schemas.SkipSQL
		state.Reply = err.Error()
		return nodeEnd
	}
	state.SQLQuery = sqlStr
	state.Table = table
	state.Operation = schemas.Operation(operation)
	return nodeSQLValidate
}

// NewSQLValidateNode builds the sql_validate node.
func NewSQLValidateNode(validator *sqlvalidate.Validator, inspector *schema.Inspector, connString func(state *schemas.AgentState) string) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		if state.SQLQuery == "" || state.SQLQuery == schemas.SkipSQL {
			return nodeEnd
		}

		result := validator.Validate(state.SQLQuery, columnMapFor(ctx, state, validator, inspector, connString))
		if !result.OK {
			state.Error = "SQL failed safety validation."
			return nodeRespond
		}
		return nodeSQLExecute
	}
}

func columnMapFor(ctx context.Context, state *schemas.AgentState, validator *sqlvalidate.Validator, inspector *schema.Inspector, connString func(*schemas.AgentState) string) map[string]map[string]struct{} {
	probe := validator.Validate(state.SQLQuery, nil)
	if len(probe.Tables) == 0 {
		return nil
	}
	colMap, err := inspector.ColumnMap(ctx, connString(state), probe.Tables)
	if err != nil {
		return nil
	}
	return colMap
}

// NewSQLExecuteNode builds the sql_execute node. It obtains an engine for
// the turn's connection string, runs the statement in a fresh connection,
// commits non-row-returning statements, and caps the preview at 20 rows.
func NewSQLExecuteNode(inspector *schema.Inspector, connString func(state *schemas.AgentState) string) Node {
	return func(ctx context.Context, state *schemas.AgentState) nodeLabel {
		if state.Error != "" {
			return nodeRespond
		}
		if state.SQLQuery == "" || state.SQLQuery == schemas.SkipSQL {
			return nodeRespond
		}

		db, err := inspector.Engine(ctx, connString(state))
		if err != nil {
			state.Error = err.Error()
			return nodeRespond
		}

		conn, err := db.Conn(ctx)
		if err != nil {
			state.Error = err.Error()
			return nodeRespond
		}
		defer conn.Close()

		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(state.SQLQuery)), "SELECT") {
			rows, err := conn.QueryContext(ctx, state.SQLQuery)
			if err != nil {
				state.Error = err.Error()
				return nodeRespond
			}
			defer rows.Close()

			result, err := scanRows(rows)
			if err != nil {
				state.Error = err.Error()
				return nodeRespond
			}
			state.RowCount = len(result)
			state.RowsPreview = capPreview(result, 20)
			state.Executed = true
			return nodeRespond
		}

		res, err := conn.ExecContext(ctx, state.SQLQuery)
		if err != nil {
			state.Error = err.Error()
			return nodeRespond
		}
		affected, _ := res.RowsAffected()
		state.RowCount = int(affected)
		state.RowsPreview = []map[string]any{{"status": "ok", "rows_affected": affected}}
		state.Executed = true
		return nodeRespond
	}
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeScanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func capPreview(rows []map[string]any, limit int) []map[string]any {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}

// NewRespondNode builds the respond node: the final user-facing message,
// composed purely from state.
func NewRespondNode() Node {
	return func(_ context.Context, state *schemas.AgentState) nodeLabel {
		if state.Error != "" {
			state.Reply = fmt.Sprintf("Request failed safely: %s", state.Error)
			state.AddTurn("assistant", state.Reply)
			return nodeEnd
		}

		sqlUpper := strings.ToUpper(strings.TrimSpace(state.SQLQuery))
		switch {
		case strings.HasPrefix(sqlUpper, "INSERT"):
			state.Reply = fmt.Sprintf("Insert successful. Rows affected: %d.", state.RowCount)
		case strings.HasPrefix(sqlUpper, "UPDATE"):
			state.Reply = fmt.Sprintf("Update successful. Rows affected: %d.", state.RowCount)
		case state.RowCount == 0:
			state.Reply = "No records found."
		default:
			state.Reply = fmt.Sprintf("Found %d record(s). Preview: %v", state.RowCount, capPreview(state.RowsPreview, 3))
		}
		state.AddTurn("assistant", state.Reply)
		return nodeEnd
	}
}
