package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/tag-backend/internal/llm"
)

func TestIntentFallback(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Operation
	}{
		{"insert keyword", "create a new asset", OperationInsert},
		{"add keyword", "add a facility", OperationInsert},
		{"update keyword", "update the task status", OperationUpdate},
		{"set keyword", "set asset name to pump", OperationUpdate},
		{"no keyword defaults to select", "show me my tasks", OperationSelect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fallback(tt.query)
			assert.Equal(t, tt.want, got.Operation)
			assert.Empty(t, got.Table)
			assert.NotNil(t, got.Filters)
			assert.NotNil(t, got.Fields)
		})
	}
}

func TestIntent_NoLLM_UsesFallback(t *testing.T) {
	in := NewIntent(nil)
	got := in.Analyze(context.Background(), "create a new task")
	assert.Equal(t, OperationInsert, got.Operation)
}

func TestIntent_UsesLLMJSON(t *testing.T) {
	client := &llm.FakeClient{Responses: []string{`{"operation":"update","table":"asset","filters":{},"fields":{"name":"pump"}}`}}
	retry := llm.NewRetryWrapper(client, discardLogger())
	in := NewIntent(retry)

	got := in.Analyze(context.Background(), "set the pump name")
	assert.Equal(t, OperationUpdate, got.Operation)
	assert.Equal(t, "asset", got.Table)
	assert.Equal(t, "pump", got.Fields["name"])
}

func TestIntent_FallsBackOnInvalidOperationValue(t *testing.T) {
	client := &llm.FakeClient{Responses: []string{`{"operation":"drop","table":"asset"}`}}
	retry := llm.NewRetryWrapper(client, discardLogger())
	in := NewIntent(retry)

	got := in.Analyze(context.Background(), "show assets")
	assert.Equal(t, OperationSelect, got.Operation)
}

func TestIntent_FallsBackOnLLMFailure(t *testing.T) {
	client := &llm.FakeClient{Err: assert.AnError}
	retry := llm.NewRetryWrapper(client, discardLogger())
	in := NewIntent(retry)

	got := in.Analyze(context.Background(), "create a schedule")
	assert.Equal(t, OperationInsert, got.Operation)
}
