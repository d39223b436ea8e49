package intent

import "regexp"

// Catalog is the subset of manifest.Catalog the mutation resolver needs.
type Catalog interface {
	TableNames() []string
	ResolveTableFromQuery(query string) string
}

var (
	schedulePattern = regexp.MustCompile(`(?i)\b(schedule|scheduler|scheduled)\b`)
	taskPattern     = regexp.MustCompile(`(?i)\btask\b`)
)

// MutationResolver disambiguates the target table for insert/update turns,
// where the base alias resolver cannot tell the scheduler subtypes apart
// from the word "task" alone.
type MutationResolver struct {
	catalog Catalog
}

// NewMutationResolver returns a MutationResolver over catalog.
func NewMutationResolver(catalog Catalog) *MutationResolver {
	return &MutationResolver{catalog: catalog}
}

// ResolveTable returns the table an insert/update turn targets. If the
// intent already named a known table, it is kept as-is. Otherwise the
// schedule/task disambiguation rules apply before falling through to the
// manifest alias resolver.
func (m *MutationResolver) ResolveTable(query string, intentTable string) string {
	if intentTable != "" && containsTable(m.catalog.TableNames(), intentTable) {
		return intentTable
	}

	q := query
	if schedulePattern.MatchString(q) && taskPattern.MatchString(q) {
		if containsTable(m.catalog.TableNames(), "scheduler_task_details") {
			return "scheduler_task_details"
		}
	}
	if schedulePattern.MatchString(q) {
		if containsTable(m.catalog.TableNames(), "scheduler_details") {
			return "scheduler_details"
		}
	}

	return m.catalog.ResolveTableFromQuery(q)
}

func containsTable(tables []string, target string) bool {
	for _, t := range tables {
		if t == target {
			return true
		}
	}
	return false
}
