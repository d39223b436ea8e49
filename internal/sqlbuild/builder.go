package sqlbuild

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaharia-lab/tag-backend/internal/llm"
	"github.com/shaharia-lab/tag-backend/internal/manifest"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// Catalog is the subset of manifest.Catalog the builder depends on.
type Catalog interface {
	ImportantColumns(table string) []string
}

// PromptEnricher is an optional capability a Catalog may implement to
// supply few-shot examples and canned query templates for BuildSelect's
// prompt. Catalog stays minimal so callers that only need important-column
// lookups (tests included) aren't forced to implement it.
type PromptEnricher interface {
	FewShotExamples() []schemas.QueryTemplate
	QueryTemplates() []schemas.QueryTemplate
}

var _ Catalog = (*manifest.Catalog)(nil)
var _ PromptEnricher = (*manifest.Catalog)(nil)

// Builder constructs SQL statements for a resolved table/operation.
type Builder struct {
	catalog Catalog
	retry   *llm.RetryWrapper
}

// New returns a Builder backed by catalog. retry may be nil, in which case
// BuildSelect always falls back to the deterministic SELECT without
// attempting an LLM call.
func New(catalog Catalog, retry *llm.RetryWrapper) *Builder {
	return &Builder{catalog: catalog, retry: retry}
}

func allowedSet(cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return set
}

// BuildInsert constructs an INSERT INTO statement from fields, filtered to
// the table's important-columns allow-list (when non-empty) and valid
// identifiers. When companyID is non-nil and the table has a company_id
// column that fields didn't already supply, it is injected. Returns an
// error if no field survives filtering.
func (b *Builder) BuildInsert(table string, fields map[string]string, companyID any) (string, error) {
	allowed := allowedSet(b.catalog.ImportantColumns(table))

	cols := make([]string, 0, len(fields))
	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		ident, ok := SafeIdent(k)
		if !ok {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[ident]; !ok {
				continue
			}
		}
		cols = append(cols, ident)
		vals[ident] = v
	}

	if _, hasCompanyID := vals["company_id"]; !hasCompanyID && companyID != nil {
		if _, ok := allowed["company_id"]; ok {
			cols = append(cols, "company_id")
			vals["company_id"] = fmt.Sprintf("%v", companyID)
		}
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("no valid fields found for insert")
	}

	sortStable(cols)

	colList := strings.Join(cols, ", ")
	valList := make([]string, len(cols))
	for i, c := range cols {
		valList[i] = SafeValue(vals[c])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", table, colList, strings.Join(valList, ", ")), nil
}

// BuildUpdate constructs an UPDATE statement. It requires an "id" field,
// never allows id or company_id in the SET list, and applies the same
// important-columns allow-list as BuildInsert.
func (b *Builder) BuildUpdate(table string, fields map[string]string, companyID any) (string, error) {
	recordID, ok := fields["id"]
	if !ok || recordID == "" {
		return "", fmt.Errorf("update requires id=<record_id>")
	}

	allowed := allowedSet(b.catalog.ImportantColumns(table))

	var setCols []string
	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		ident, ok := SafeIdent(k)
		if !ok || ident == "id" || ident == "company_id" {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[ident]; !ok {
				continue
			}
		}
		setCols = append(setCols, ident)
		vals[ident] = v
	}

	if len(setCols) == 0 {
		return "", fmt.Errorf("update requires at least one field to change")
	}
	sortStable(setCols)

	setParts := make([]string, len(setCols))
	for i, c := range setCols {
		setParts[i] = fmt.Sprintf("%s=%s", c, SafeValue(vals[c]))
	}

	where := fmt.Sprintf("id=%s", SafeValue(recordID))
	if _, ok := allowed["company_id"]; ok && companyID != nil {
		where += fmt.Sprintf(" AND company_id=%s", SafeValue(companyID))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;", table, strings.Join(setParts, ", "), where), nil
}

// selectValidator accepts any response containing a JSON object opener, so
// the retry wrapper only gives up on responses with no hope of containing
// usable SQL.
func selectValidator(response string) bool {
	return strings.Contains(response, "{")
}

// BuildSelect composes a prompt naming table, its top-12 important
// columns, a mandatory LIMIT 100, and an optional tenant clause, and asks
// the LLM for a SELECT via the retry wrapper. Any failure (LLM error,
// malformed JSON, empty sql field) falls back to a deterministic
// SELECT * FROM <table> [WHERE company_id=<id>] LIMIT 100.
func (b *Builder) BuildSelect(ctx context.Context, query, table string, companyID any) string {
	cols := b.catalog.ImportantColumns(table)
	if len(cols) > 12 {
		cols = cols[:12]
	}
	colList := "*"
	if len(cols) > 0 {
		colList = strings.Join(cols, ", ")
	}

	hasCompanyCol := false
	for _, c := range b.catalog.ImportantColumns(table) {
		if c == "company_id" {
			hasCompanyCol = true
			break
		}
	}

	whereHint := "no tenant clause"
	tenantClause := ""
	if companyID != nil && hasCompanyCol {
		tenantClause = fmt.Sprintf(" WHERE company_id = %s", SafeValue(companyID))
		whereHint = strings.TrimSpace(tenantClause)
	}

	fallback := fmt.Sprintf("SELECT * FROM %s%s LIMIT 100;", table, tenantClause)

	if b.retry == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`Return only JSON: {"sql":"..."}
Generate one SELECT query only.
Use table: %s
Columns: %s
Must include LIMIT 100.
Respect this if applicable: %s
%sUser query: %s`, table, colList, whereHint, b.examplesBlock(table), query)

	response, err := b.retry.InvokeWithRetry(ctx, prompt, "sql_builder_select", llm.RetryConfig{Attempts: 2, BackoffSeconds: 0.3}, selectValidator)
	if err != nil {
		return fallback
	}

	sql, ok := extractSQL(response)
	if !ok || sql == "" || !strings.Contains(strings.ToUpper(sql), "LIMIT 100") {
		return fallback
	}
	return sql
}

// examplesBlock renders the catalog's few-shot examples and any query
// template mentioning table into the SELECT prompt, capped at 3 few-shot
// examples and 6 examples in total so a large manifest doesn't blow out
// the prompt. Returns "" when the catalog
// doesn't implement PromptEnricher or has nothing to show.
func (b *Builder) examplesBlock(table string) string {
	enricher, ok := b.catalog.(PromptEnricher)
	if !ok {
		return ""
	}

	var lines []string
	for i, ex := range enricher.FewShotExamples() {
		if i >= 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("Q: %s\nSQL: %s", ex.Question, ex.SQL))
	}
	for _, tmpl := range enricher.QueryTemplates() {
		if !strings.Contains(strings.ToLower(tmpl.SQL), strings.ToLower(table)) {
			continue
		}
		lines = append(lines, fmt.Sprintf("Q: %s\nSQL: %s", tmpl.Question, tmpl.SQL))
		if len(lines) >= 6 {
			break
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return "Examples:\n" + strings.Join(lines, "\n") + "\n"
}

// extractSQL extracts the first {...} JSON object in response and reads
// its "sql" field.
func extractSQL(response string) (string, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}

	var parsed struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return "", false
	}
	return strings.TrimSpace(parsed.SQL), true
}

// FormField is one field rendered into a mutation form's UI descriptor.
type FormField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// FormUI is the structured form descriptor nested inside a mutation form
// payload.
type FormUI struct {
	Type        string      `json:"type"`
	State       string      `json:"state"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Fields      []FormField `json:"fields"`
}

// MutationFormPayload is the collected_data + ui descriptor the sql_build
// node hands back to the orchestrator when an insert/update cannot yet
// build SQL, used only when the orchestrator has not
// already built a richer menu from its own mutation state.
type MutationFormPayload struct {
	WorkflowID    string         `json:"workflow_id"`
	State         string         `json:"state"`
	Completed     bool           `json:"completed"`
	CollectedData map[string]any `json:"collected_data"`
	UI            FormUI         `json:"ui"`
}

// BuildMutationFormPayload renders the structured UI descriptor for an
// in-progress insert/update.
func BuildMutationFormPayload(table, operation string, requiredFields []string) MutationFormPayload {
	state := fmt.Sprintf("collect_%s_%s", operation, table)
	fields := make([]FormField, len(requiredFields))
	for i, f := range requiredFields {
		fields[i] = FormField{ID: f, Label: f, Type: "text"}
	}

	return MutationFormPayload{
		WorkflowID: "mutation_menu",
		State:      state,
		Completed:  false,
		CollectedData: map[string]any{
			"operation":       operation,
			"table":           table,
			"required_fields": requiredFields,
		},
		UI: FormUI{
			Type:        "form",
			State:       state,
			Title:       capitalize(operation) + " " + table,
			Description: "Provide values as key=value pairs separated by commas.",
			Fields:      fields,
		},
	}
}

// capitalize upper-cases s's first rune, leaving the rest untouched.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sortStable sorts cols in place, lexicographically, so statements built
// from a Go map (inherently unordered) are deterministic across calls.
func sortStable(cols []string) {
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && cols[j-1] > cols[j]; j-- {
			cols[j-1], cols[j] = cols[j], cols[j-1]
		}
	}
}
