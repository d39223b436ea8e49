// Mutation FSM: the session-scoped, multi-turn form-filling dialogue that
// collects an insert/update's required fields one at a time, with
// pagination, value-type coercion via suggested options, and a final
// confirmation step. Implemented as pure functions over
// schemas.MutationState so every transition is a table-driven unit test
// away from a live session.
package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
	"github.com/shaharia-lab/tag-backend/internal/sqlbuild"
)

var cancelWords = map[string]struct{}{
	"cancel": {}, "stop": {}, "exit": {}, "abort": {},
}

var confirmYesWords = map[string]struct{}{
	"yes": {}, "y": {}, "confirm": {}, "confirmed": {}, "proceed": {},
}

var confirmNoWords = map[string]struct{}{
	"no": {}, "n": {}, "edit": {}, "change": {},
}

var commandPrefixes = []string{
	"create ", "insert ", "add ", "update ", "show ", "list ", "count ", "get ", "find ",
}

func isCommandLike(lower string) bool {
	for _, p := range commandPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// NewMutationState builds a fresh, Redis-persistable mutation state for an
// insert/update into table, pending on its first required field.
func NewMutationState(operation schemas.Operation, table string, requiredFields []string) *schemas.MutationState {
	descriptions := make(map[string]schemas.FieldDescription, len(requiredFields))
	for _, f := range requiredFields {
		kind, options := FieldSuggestions(f)
		descriptions[f] = schemas.FieldDescription{Label: kind, Options: RenderOptionLabels(options)}
	}

	pending := ""
	if len(requiredFields) > 0 {
		pending = requiredFields[0]
	}

	return &schemas.MutationState{
		WorkflowID:        uuid.New().String(),
		State:             fmt.Sprintf("collect_%s_%s", operation, table),
		Operation:         operation,
		Table:             table,
		RequiredFields:    requiredFields,
		CollectedFields:   map[string]string{},
		PendingField:      pending,
		FieldDescriptions: descriptions,
		Awaiting:          schemas.AwaitingFieldSelection,
		Page:              0,
		PageSize:          schemas.DefaultPageSize,
	}
}

// fsmStep is the outcome of feeding one user message into a pending
// mutation's FSM.
type fsmStep struct {
	// Next is the mutation state to persist, or nil to clear it.
	Next *schemas.MutationState
	// Reply is the message to stream back to the caller.
	Reply string
	// Resolved is true only on confirmation -> yes: the caller clears the
	// state and proceeds into the workflow graph with Fields/Table/Operation.
	Resolved bool
}

// stepMutation advances ms by one user message.
func stepMutation(ms *schemas.MutationState, message string) fsmStep {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	if _, cancel := cancelWords[lower]; cancel {
		return fsmStep{Next: nil, Reply: "Mutation cancelled."}
	}

	switch ms.Awaiting {
	case schemas.AwaitingFieldSelection:
		return stepFieldSelection(ms, trimmed, lower)
	case schemas.AwaitingFieldValue:
		return stepFieldValue(ms, trimmed, lower)
	case schemas.AwaitingConfirmation:
		return stepConfirmation(ms, lower)
	default:
		ms.Awaiting = schemas.AwaitingFieldSelection
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	}
}

func stepFieldSelection(ms *schemas.MutationState, trimmed, lower string) fsmStep {
	remaining := ms.RemainingFields()
	pageFields := paginate(remaining, ms.Page, ms.PageSize)

	switch lower {
	case "next", "more":
		if (ms.Page+1)*ms.PageSize < len(remaining) {
			ms.Page++
		}
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	case "prev", "back":
		if ms.Page > 0 {
			ms.Page--
		}
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	}

	if isCommandLike(lower) {
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	}

	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(pageFields) {
		ms.PendingField = pageFields[n-1]
		ms.Awaiting = schemas.AwaitingFieldValue
		return fsmStep{Next: ms, Reply: renderFieldValuePrompt(ms)}
	}

	for _, f := range remaining {
		if strings.EqualFold(f, trimmed) {
			ms.PendingField = f
			ms.Awaiting = schemas.AwaitingFieldValue
			return fsmStep{Next: ms, Reply: renderFieldValuePrompt(ms)}
		}
	}

	// Any other non-command text is treated as a value for whatever field
	// is (or becomes) pending.
	if ms.PendingField == "" && len(remaining) > 0 {
		ms.PendingField = remaining[0]
	}
	ms.Awaiting = schemas.AwaitingFieldValue
	return stepFieldValue(ms, trimmed, lower)
}

func stepFieldValue(ms *schemas.MutationState, trimmed, lower string) fsmStep {
	if kv := parseFieldKVPair(trimmed, ms.RequiredFields); kv != nil {
		return acceptField(ms, kv.key, kv.value)
	}

	if isCommandLike(lower) {
		return fsmStep{Next: ms, Reply: renderFieldValuePrompt(ms)}
	}

	if ms.PendingField == "" {
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	}

	_, options := FieldSuggestions(ms.PendingField)
	if value, ok := CoerceOption(trimmed, options); ok {
		return acceptField(ms, ms.PendingField, value)
	}

	return acceptField(ms, ms.PendingField, trimmed)
}

type fieldKV struct{ key, value string }

// parseFieldKVPair looks for a "key = value" / "key: value" / "key is
// value" pair (via sqlbuild.ParseKVPairs, the same key=value grammar the
// SQL builder uses for free-text field assignment) whose key names one of
// requiredFields with a non-empty value. requiredFields is checked in
// order so the result is deterministic when a message names more than
// one. Returns nil when no such pair is found.
func parseFieldKVPair(text string, requiredFields []string) *fieldKV {
	parsed := sqlbuild.ParseKVPairs(text)
	for _, f := range requiredFields {
		for k, v := range parsed {
			if strings.EqualFold(k, f) && v != "" {
				return &fieldKV{key: f, value: v}
			}
		}
	}
	return nil
}

func acceptField(ms *schemas.MutationState, field, value string) fsmStep {
	valid := false
	for _, f := range ms.RequiredFields {
		if f == field {
			valid = true
			break
		}
	}
	if !valid {
		return fsmStep{Next: ms, Reply: renderFieldValuePrompt(ms)}
	}

	ms.CollectedFields[field] = value
	ms.PendingField = ""

	if ms.Complete() {
		ms.Awaiting = schemas.AwaitingConfirmation
		return fsmStep{Next: ms, Reply: renderConfirmation(ms)}
	}

	ms.Page = 0
	ms.Awaiting = schemas.AwaitingFieldSelection
	ms.PendingField = ms.RemainingFields()[0]
	return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
}

func stepConfirmation(ms *schemas.MutationState, lower string) fsmStep {
	if _, yes := confirmYesWords[lower]; yes {
		return fsmStep{Resolved: true, Reply: ""}
	}
	if _, no := confirmNoWords[lower]; no {
		remaining := ms.RemainingFields()
		if len(remaining) == 0 {
			remaining = ms.RequiredFields
			ms.CollectedFields = map[string]string{}
		}
		ms.Page = 0
		ms.Awaiting = schemas.AwaitingFieldSelection
		return fsmStep{Next: ms, Reply: renderFieldSelectionMenu(ms)}
	}
	return fsmStep{Next: ms, Reply: renderConfirmation(ms)}
}

func paginate(fields []string, page, pageSize int) []string {
	if pageSize <= 0 {
		pageSize = schemas.DefaultPageSize
	}
	start := page * pageSize
	if start >= len(fields) {
		return nil
	}
	end := start + pageSize
	if end > len(fields) {
		end = len(fields)
	}
	return fields[start:end]
}

func renderFieldSelectionMenu(ms *schemas.MutationState) string {
	remaining := ms.RemainingFields()
	pageFields := paginate(remaining, ms.Page, ms.PageSize)

	var b strings.Builder
	fmt.Fprintf(&b, "Let's %s %s. Choose a field to fill in:\n", operationVerb(ms.Operation), ms.Table)
	for i, f := range pageFields {
		desc := ms.FieldDescriptions[f]
		if len(desc.Options) > 0 {
			fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, f, strings.Join(desc.Options, ", "))
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}
	}
	if len(remaining) > len(pageFields)+ms.Page*ms.PageSize {
		b.WriteString("Reply 'next' for more fields.\n")
	}
	if ms.Page > 0 {
		b.WriteString("Reply 'prev' to go back.\n")
	}
	b.WriteString("Reply with a number, a field name, or its value directly.")
	return b.String()
}

func renderFieldValuePrompt(ms *schemas.MutationState) string {
	kind, options := FieldSuggestions(ms.PendingField)
	var b strings.Builder
	fmt.Fprintf(&b, "Please provide a value for `%s`", ms.PendingField)
	switch kind {
	case KindDate:
		b.WriteString(" (format YYYY-MM-DD).")
	case KindBoolean:
		b.WriteString(".")
	default:
		b.WriteString(".")
	}
	if len(options) > 0 {
		fmt.Fprintf(&b, " Options: %s.", strings.Join(RenderOptionLabels(options), ", "))
	}
	return b.String()
}

func renderConfirmation(ms *schemas.MutationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ready to %s %s with:\n", operationVerb(ms.Operation), ms.Table)
	for _, f := range ms.RequiredFields {
		fmt.Fprintf(&b, "- %s: %s\n", f, ms.CollectedFields[f])
	}
	b.WriteString("Reply 'yes' to proceed or 'no' to edit.")
	return b.String()
}

func operationVerb(op schemas.Operation) string {
	if op == schemas.OperationUpdate {
		return "update"
	}
	return "create"
}
