package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldOption is one suggested value for a mutation field, rendered as a
// "Label (Value)" choice in the field_selection / field_value prompts.
type FieldOption struct {
	Label string
	Value string
}

// Field kinds, used to pick a coercion/validation strategy and to label
// the value prompt.
const (
	KindText    = "text"
	KindNumeric = "numeric"
	KindBoolean = "boolean"
	KindDate    = "date"
)

var numericFieldPattern = regexp.MustCompile(`(?i)^id$|_id$|count|qty|quantity|amount|price|occurrence|number|ref_no`)

var occurrenceOptions = []FieldOption{
	{Label: "Daily", Value: "1"},
	{Label: "Weekly", Value: "2"},
	{Label: "Monthly", Value: "3"},
	{Label: "Quarterly", Value: "4"},
}

var booleanOptions = []FieldOption{
	{Label: "Yes", Value: "1"},
	{Label: "No", Value: "0"},
}

// FieldSuggestions returns the input kind and, when applicable, the
// suggested option set for a required field name, keyed off naming
// conventions in the operational schema.
func FieldSuggestions(field string) (kind string, options []FieldOption) {
	lower := strings.ToLower(field)

	switch lower {
	case "occurrence":
		return KindNumeric, occurrenceOptions
	case "is_active", "active", "enabled":
		return KindBoolean, booleanOptions
	}

	if strings.Contains(lower, "date") {
		return KindDate, nil
	}
	if numericFieldPattern.MatchString(lower) {
		return KindNumeric, nil
	}
	return KindText, nil
}

// RenderOptionLabels renders options as "Label (Value)" strings for
// persistence in MutationState.FieldDescriptions.
func RenderOptionLabels(options []FieldOption) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = fmt.Sprintf("%s (%s)", o.Label, o.Value)
	}
	return out
}

// CoerceOption resolves free text against a field's suggested options: a
// bare 1-based index into the option list, an exact or substring label
// match (case-insensitive, covering "Weekly (2)" style echoes of the
// rendered prompt), or a literal match on one of the option values
// themselves. Returns ("", false) when nothing matches, meaning the caller
// should fall through to treating text as a literal value.
func CoerceOption(text string, options []FieldOption) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	if n, err := strconv.Atoi(trimmed); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1].Value, true
		}
	}

	lower := strings.ToLower(trimmed)
	for _, opt := range options {
		if lower == strings.ToLower(opt.Label) {
			return opt.Value, true
		}
	}
	for _, opt := range options {
		if strings.Contains(lower, strings.ToLower(opt.Label)) {
			return opt.Value, true
		}
	}
	for _, opt := range options {
		if trimmed == opt.Value {
			return opt.Value, true
		}
	}
	return "", false
}
