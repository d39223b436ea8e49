package sqlbuild

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/tag-backend/internal/llm"
)

type fakeCatalog struct {
	important map[string][]string
}

func (f *fakeCatalog) ImportantColumns(table string) []string {
	return f.important[table]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestParseKVPairs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{"equals form", "date=2026-02-14, occurrence=2", map[string]string{"date": "2026-02-14", "occurrence": "2"}},
		{"colon form", "date: 2026-02-14", map[string]string{"date": "2026-02-14"}},
		{"is form", "occurrence is Weekly", map[string]string{"occurrence": "Weekly"}},
		{"quoted value trimmed", `name = "Main Pump"`, map[string]string{"name": "Main Pump"}},
		{"empty text", "", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKVPairs(tt.text))
		})
	}
}

func TestSafeIdent(t *testing.T) {
	valid, ok := SafeIdent("scheduler_id")
	assert.True(t, ok)
	assert.Equal(t, "scheduler_id", valid)

	_, ok = SafeIdent("1bad")
	assert.False(t, ok)

	_, ok = SafeIdent("drop; table")
	assert.False(t, ok)
}

func TestSafeValue(t *testing.T) {
	assert.Equal(t, "NULL", SafeValue(nil))
	assert.Equal(t, "42", SafeValue(42))
	assert.Equal(t, "'O''Brien'", SafeValue("O'Brien"))
	assert.Equal(t, "'pump'", SafeValue(`"pump"`))
}

func TestBuildInsert(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{
		"asset": {"name", "status", "company_id"},
	}}
	b := New(cat, nil)

	sql, err := b.BuildInsert("asset", map[string]string{"name": "Pump 1", "bogus": "x"}, nil)
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO asset (")
	assert.True(t, sql[len(sql)-2:] == ");")
	assert.NotContains(t, sql, "bogus")
}

func TestBuildInsert_InjectsCompanyID(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{
		"asset": {"name", "company_id"},
	}}
	b := New(cat, nil)

	sql, err := b.BuildInsert("asset", map[string]string{"name": "Pump 1"}, 7)
	require.NoError(t, err)
	assert.Contains(t, sql, "company_id")
	assert.Contains(t, sql, "7")
}

func TestBuildInsert_NoValidFields(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	b := New(cat, nil)

	_, err := b.BuildInsert("asset", map[string]string{"bogus": "x"}, nil)
	assert.Error(t, err)
}

func TestBuildUpdate_RequiresID(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	b := New(cat, nil)

	_, err := b.BuildUpdate("asset", map[string]string{"name": "x"}, nil)
	assert.Error(t, err)
}

func TestBuildUpdate_NeverSetsIDOrCompanyID(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name", "company_id"}}}
	b := New(cat, nil)

	sql, err := b.BuildUpdate("asset", map[string]string{"id": "5", "company_id": "9", "name": "x"}, 9)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE id=")
	assert.NotContains(t, sql, "SET id=")
	assert.NotContains(t, sql, "SET company_id=")
}

func TestBuildUpdate_NoUpdatableField(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	b := New(cat, nil)

	_, err := b.BuildUpdate("asset", map[string]string{"id": "5"}, nil)
	assert.Error(t, err)
}

func TestBuildSelect_NilRetryFallsBack(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	b := New(cat, nil)

	sql := b.BuildSelect(context.Background(), "show assets", "asset", nil)
	assert.Equal(t, "SELECT * FROM asset LIMIT 100;", sql)
}

func TestBuildSelect_UsesLLMResponse(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	client := &llm.FakeClient{Responses: []string{`{"sql":"SELECT name FROM asset LIMIT 100;"}`}}
	retry := llm.NewRetryWrapper(client, discardLogger())
	b := New(cat, retry)

	sql := b.BuildSelect(context.Background(), "show asset names", "asset", nil)
	assert.Equal(t, "SELECT name FROM asset LIMIT 100;", sql)
}

func TestBuildSelect_FallsBackOnLLMFailure(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name", "company_id"}}}
	client := &llm.FakeClient{Err: assert.AnError}
	retry := llm.NewRetryWrapper(client, discardLogger())
	b := New(cat, retry)

	sql := b.BuildSelect(context.Background(), "show assets", "asset", 3)
	assert.Equal(t, "SELECT * FROM asset WHERE company_id = 3 LIMIT 100;", sql)
}

func TestBuildSelect_AlwaysHasLimit100(t *testing.T) {
	cat := &fakeCatalog{important: map[string][]string{"asset": {"name"}}}
	b := New(cat, nil)
	sql := b.BuildSelect(context.Background(), "anything", "asset", nil)
	assert.Contains(t, sql, "LIMIT 100")
}

func TestBuildMutationFormPayload(t *testing.T) {
	payload := BuildMutationFormPayload("scheduler_details", "insert", []string{"date", "occurrence"})
	assert.Equal(t, "mutation_menu", payload.WorkflowID)
	assert.False(t, payload.Completed)
	assert.Len(t, payload.UI.Fields, 2)
	assert.Equal(t, "Insert scheduler_details", payload.UI.Title)
}
