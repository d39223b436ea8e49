package schemas

import "time"

// MutationTTL is how long a session's in-flight mutation survives in the
// session store without activity before Redis expires it.
const MutationTTL = time.Hour

// DefaultPageSize is how many fields the field_selection menu shows per page.
const DefaultPageSize = 5

// Awaiting discriminates what kind of input the mutation FSM expects next.
type Awaiting string

const (
	AwaitingFieldSelection Awaiting = "field_selection"
	AwaitingFieldValue     Awaiting = "field_value"
	AwaitingConfirmation   Awaiting = "confirmation"
)

// FieldDescription is the suggested-option hint rendered alongside a field
// in the field_selection menu.
type FieldDescription struct {
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
}

// MutationState is the full, Redis-persisted state of an in-flight
// multi-turn insert/update form. A session has at most one active mutation;
// starting a new one replaces any previous state.
type MutationState struct {
	WorkflowID string    `json:"workflow_id"`
	State      string    `json:"state"`
	Operation  Operation `json:"operation"`
	Table      string    `json:"table"`

	// RequiredFields is the ordered list of fields the mutation must
	// collect before confirmation; order is preserved from the manifest so
	// pagination is stable across turns.
	RequiredFields []string `json:"required_fields"`

	// CollectedFields holds values gathered so far, keyed by field name.
	CollectedFields map[string]string `json:"collected_fields"`

	// PendingField is the field currently awaiting a value, set when
	// Awaiting == AwaitingFieldValue.
	PendingField string `json:"pending_field"`

	FieldDescriptions map[string]FieldDescription `json:"field_descriptions"`

	Awaiting Awaiting `json:"awaiting"`

	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// RemainingFields returns the RequiredFields not yet present in
// CollectedFields, preserving order.
func (m *MutationState) RemainingFields() []string {
	var remaining []string
	for _, f := range m.RequiredFields {
		if _, ok := m.CollectedFields[f]; !ok {
			remaining = append(remaining, f)
		}
	}
	return remaining
}

// Complete reports whether every required field has been collected.
func (m *MutationState) Complete() bool {
	return len(m.RemainingFields()) == 0
}
