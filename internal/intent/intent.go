package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/shaharia-lab/tag-backend/internal/llm"
)

// Operation is the database operation an Analysis resolves to.
type Operation string

const (
	OperationSelect Operation = "select"
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// Analysis is the Intent classifier's output.
type Analysis struct {
	Operation Operation         `json:"operation"`
	Table     string            `json:"table"`
	Filters   map[string]string `json:"filters"`
	Fields    map[string]string `json:"fields"`
}

var (
	insertPattern = regexp.MustCompile(`(?i)\b(insert|create|add|new)\b`)
	updatePattern = regexp.MustCompile(`(?i)\b(update|edit|modify|change|set)\b`)
)

// Intent classifies an utterance's operation, target table, and any
// filters/fields it names.
type Intent struct {
	retry *llm.RetryWrapper
}

// NewIntent returns an Intent classifier. retry may be nil to always use
// the regex fallback.
func NewIntent(retry *llm.RetryWrapper) *Intent {
	return &Intent{retry: retry}
}

// Fallback classifies query's operation by regex alone. Missing table,
// filters, and fields default to their zero values (empty string/maps).
func Fallback(query string) Analysis {
	q := strings.ToLower(query)
	operation := OperationSelect
	switch {
	case insertPattern.MatchString(q):
		operation = OperationInsert
	case updatePattern.MatchString(q):
		operation = OperationUpdate
	}
	return Analysis{
		Operation: operation,
		Filters:   map[string]string{},
		Fields:    map[string]string{},
	}
}

// Analyze classifies query, LLM-JSON first with a regex fallback on
// failure or parse error.
func (in *Intent) Analyze(ctx context.Context, query string) Analysis {
	if in.retry == nil {
		return Fallback(query)
	}

	prompt := "Return ONLY JSON with keys:\n" +
		"operation: select|insert|update\n" +
		"table: db table name or empty string\n" +
		"filters: object\n" +
		"fields: object\n\n" +
		"User query: " + query

	response, err := in.retry.InvokeWithRetry(ctx, prompt, "v2_intent", llm.RetryConfig{Attempts: 2, BackoffSeconds: 0.3}, jsonLikeValidator)
	if err != nil {
		return Fallback(query)
	}

	var parsed struct {
		Operation string            `json:"operation"`
		Table     string            `json:"table"`
		Filters   map[string]string `json:"filters"`
		Fields    map[string]string `json:"fields"`
	}
	if !decodeFirstJSONObject(response, &parsed) {
		return Fallback(query)
	}

	operation := Operation(strings.ToLower(parsed.Operation))
	switch operation {
	case OperationSelect, OperationInsert, OperationUpdate:
	default:
		operation = OperationSelect
	}

	if parsed.Filters == nil {
		parsed.Filters = map[string]string{}
	}
	if parsed.Fields == nil {
		parsed.Fields = map[string]string{}
	}

	return Analysis{
		Operation: operation,
		Table:     parsed.Table,
		Filters:   parsed.Filters,
		Fields:    parsed.Fields,
	}
}
