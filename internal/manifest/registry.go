package manifest

import (
	"sync/atomic"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// Registry holds a hot-swappable Catalog so the housekeeping scheduler can
// install a freshly reloaded manifest without the graph's node closures
// needing to be rebuilt. Every method delegates to whatever Catalog is
// currently installed; callers see the swap take effect on their very next
// call, with no locking on the read path.
type Registry struct {
	current atomic.Pointer[Catalog]
}

// NewRegistry returns a Registry initialized with catalog.
func NewRegistry(catalog *Catalog) *Registry {
	r := &Registry{}
	r.Set(catalog)
	return r
}

// Set installs catalog as the current one. A nil catalog is replaced with
// an empty one so callers never have to nil-check the result of Load().
func (r *Registry) Set(catalog *Catalog) {
	if catalog == nil {
		catalog = New(nil)
	}
	r.current.Store(catalog)
}

// Get returns the currently installed Catalog.
func (r *Registry) Get() *Catalog {
	return r.current.Load()
}

func (r *Registry) TableNames() []string {
	return r.Get().TableNames()
}

func (r *Registry) ImportantColumns(table string) []string {
	return r.Get().ImportantColumns(table)
}

func (r *Registry) Aliases(table string) []string {
	return r.Get().Aliases(table)
}

func (r *Registry) ResolveTableFromQuery(query string) string {
	return r.Get().ResolveTableFromQuery(query)
}

func (r *Registry) RequiredCreateFields(table string) []string {
	return r.Get().RequiredCreateFields(table)
}

func (r *Registry) Joins(table string) map[string]string {
	return r.Get().Joins(table)
}

func (r *Registry) FewShotExamples() []schemas.QueryTemplate {
	return r.Get().FewShotExamples()
}

func (r *Registry) QueryTemplates() []schemas.QueryTemplate {
	return r.Get().QueryTemplates()
}
