// Package intent resolves what a turn is asking for: whether it's a
// database question at all (Router), what operation and table it names
// (Intent), and, for mutations specifically, which table the schedule
// family of aliases actually means (Mutation-Resolver). Router and Intent
// try the LLM first and always have a deterministic regex fallback, since
// the model is treated as a best-effort enricher, never a correctness
// dependency; the Mutation-Resolver is rule-based only. The tests in this
// package cover both the LLM path (through llm.FakeClient) and the
// fallback.
package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shaharia-lab/tag-backend/internal/llm"
)

// Route is the Router's classification output.
type Route string

const (
	RouteSQL  Route = "SQL"
	RouteChat Route = "CHAT"
)

var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(task|asset|user|facility|select|insert|update|create|add|edit|modify|show|list|count|get|find)\b`)

// Router classifies an utterance as SQL or CHAT.
type Router struct {
	retry *llm.RetryWrapper
}

// NewRouter returns a Router. retry may be nil to always use the regex
// fallback (useful in tests and for a config with no LLM configured).
func NewRouter(retry *llm.RetryWrapper) *Router {
	return &Router{retry: retry}
}

// RouterFallback classifies query by regex alone: any of a fixed keyword
// set maps to SQL, everything else to CHAT.
func RouterFallback(query string) Route {
	if sqlKeywordPattern.MatchString(strings.ToLower(strings.TrimSpace(query))) {
		return RouteSQL
	}
	return RouteChat
}

// Route classifies query. If hasMutationContext is true (the agent state's
// metadata carries a mutation_context from a just-confirmed form), the
// router forces SQL without consulting the model at all.
func (r *Router) Route(ctx context.Context, query string, hasMutationContext bool) Route {
	if hasMutationContext {
		return RouteSQL
	}
	if r.retry == nil {
		return RouterFallback(query)
	}

	prompt := "Classify user message as SQL or CHAT.\n" +
		`Return only JSON: {"route":"SQL|CHAT"}` + "\n" +
		"User: " + query

	response, err := r.retry.InvokeWithRetry(ctx, prompt, "v2_router", llm.RetryConfig{Attempts: 2, BackoffSeconds: 0.3}, jsonLikeValidator)
	if err != nil {
		return RouterFallback(query)
	}

	var parsed struct {
		Route string `json:"route"`
	}
	if !decodeFirstJSONObject(response, &parsed) {
		return RouterFallback(query)
	}
	switch strings.ToUpper(parsed.Route) {
	case string(RouteSQL):
		return RouteSQL
	case string(RouteChat):
		return RouteChat
	default:
		return RouterFallback(query)
	}
}

func jsonLikeValidator(response string) bool {
	return strings.Contains(response, "{")
}

// decodeFirstJSONObject extracts the first {...} substring of response and
// unmarshals it into dst, reporting whether it succeeded.
func decodeFirstJSONObject(response string, dst any) bool {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(response[start:end+1]), dst) == nil
}
