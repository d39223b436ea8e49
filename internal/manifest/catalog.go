// Package manifest provides a read-only index over the schema manifest: the
// operator-curated document describing which database tables the
// conversational backend is allowed to talk about, their plain-language
// aliases, and their per-operation field requirements.
package manifest

import (
	"sort"
	"strings"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// defaultExclusions are columns never considered "required" when deriving
// required-create fields from a table's important columns.
var defaultExclusions = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
	"deleted_at": {},
	"is_active":  {},
}

// schedulerSynonyms is the explicit alias group appended to any table whose
// name contains "scheduler"; plain underscore-to-space expansion alone
// would miss "schedule" and "scheduled".
var schedulerSynonyms = []string{"schedule", "scheduler", "scheduled"}

// Catalog is a process-global, immutable view over a loaded SchemaManifest.
// It is safe for concurrent use; nothing about it mutates after
// construction.
type Catalog struct {
	manifest *schemas.SchemaManifest
	names    []string
}

// New builds a Catalog over manifest. A nil manifest is treated as empty,
// so the catalog degrades to returning no tables rather than panicking.
func New(m *schemas.SchemaManifest) *Catalog {
	if m == nil {
		m = &schemas.SchemaManifest{Tables: map[string]schemas.TableManifest{}}
	}
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Catalog{manifest: m, names: names}
}

// TableNames returns every table in the manifest, in lexicographic order.
func (c *Catalog) TableNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// TableMeta returns the manifest entry for table, or the zero value if
// table is unknown.
func (c *Catalog) TableMeta(table string) schemas.TableManifest {
	return c.manifest.Tables[table]
}

// ImportantColumns returns table's manifest-declared important columns, in
// lexicographic order for determinism.
func (c *Catalog) ImportantColumns(table string) []string {
	cols := c.TableMeta(table).ImportantColumns
	out := make([]string, 0, len(cols))
	for col := range cols {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// Joins returns table's manifest-declared join hints, keyed by the other
// table name, e.g. {"task_transaction": "task_transaction.asset_id = asset.id"}.
func (c *Catalog) Joins(table string) map[string]string {
	return c.TableMeta(table).Joins
}

// FewShotExamples returns the manifest's canned natural-language-to-SQL
// examples, rendered into SELECT-building prompts to steer the model
// toward the manifest's vocabulary regardless of which table a turn names.
func (c *Catalog) FewShotExamples() []schemas.QueryTemplate {
	return c.manifest.FewShotExamples
}

// QueryTemplates returns the manifest's canned query templates, same shape
// as FewShotExamples but intended as exact-match examples for recurring
// questions rather than general style guidance.
func (c *Catalog) QueryTemplates() []schemas.QueryTemplate {
	return c.manifest.QueryTemplates
}

// Aliases builds the plain-language alias set for table: the lowercased
// table name, its underscore-to-space form, an implicit singular for
// tables ending in "_details" (stripped), an explicit scheduler synonym
// group when the name contains "scheduler", and any custom manifest
// aliases, with duplicates removed preserving first occurrence.
func (c *Catalog) Aliases(table string) []string {
	lower := strings.ToLower(table)
	var candidates []string
	candidates = append(candidates, lower)
	candidates = append(candidates, strings.ReplaceAll(lower, "_", " "))

	if strings.HasSuffix(lower, "_details") {
		candidates = append(candidates, strings.TrimSuffix(lower, "_details"))
	}

	if strings.Contains(lower, "scheduler") {
		candidates = append(candidates, schedulerSynonyms...)
	}

	for _, a := range c.TableMeta(table).Aliases {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			candidates = append(candidates, a)
		}
	}

	return dedupPreserveOrder(candidates)
}

// ResolveTableFromQuery iterates tables in lexicographic order and returns
// the first table whose any alias appears as a substring of the lowercased
// query. Returns "" on no match; the lexicographic iteration order makes
// ties deterministic.
func (c *Catalog) ResolveTableFromQuery(query string) string {
	q := strings.ToLower(query)
	if q == "" {
		return ""
	}
	for _, table := range c.names {
		for _, alias := range c.Aliases(table) {
			if alias == "" {
				continue
			}
			if strings.Contains(q, alias) {
				return table
			}
		}
	}
	return ""
}

// RequiredCreateFields returns the fields an INSERT into table must supply:
// the manifest's explicit operations.create.required_fields when present,
// else every important column not in the default exclusion set.
func (c *Catalog) RequiredCreateFields(table string) []string {
	meta := c.TableMeta(table)
	if explicit := meta.Operations.Create.RequiredFields; len(explicit) > 0 {
		out := make([]string, 0, len(explicit))
		for _, f := range explicit {
			f = strings.TrimSpace(f)
			if f != "" {
				out = append(out, f)
			}
		}
		return out
	}

	var derived []string
	for _, col := range c.ImportantColumns(table) {
		if _, excluded := defaultExclusions[col]; excluded {
			continue
		}
		derived = append(derived, col)
	}
	return derived
}

func dedupPreserveOrder(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
