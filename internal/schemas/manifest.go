package schemas

// TableOperations describes the per-operation rules a manifest entry
// carries for a table. Only create (insert) operations declare required
// fields; update operations accept any whitelisted column.
type TableOperations struct {
	Create CreateOperation `json:"create" yaml:"create"`
}

// CreateOperation lists the fields a valid insert into a table must supply.
type CreateOperation struct {
	RequiredFields []string `json:"required_fields" yaml:"required_fields"`
}

// ColumnInfo is the metadata attached to one of a table's important
// columns, rendered into LLM prompts describing the table.
type ColumnInfo struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TableManifest is one table's entry in the schema manifest: how it should
// be described to the LLM, what plain-language aliases resolve to it, which
// of its columns are "important" for mutation prompts, its join hints, and
// its per-operation field requirements.
type TableManifest struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// ImportantColumns maps column name to descriptive metadata. It doubles
	// as the INSERT/UPDATE allow-list and the SELECT projection seed.
	ImportantColumns map[string]ColumnInfo `json:"important_columns,omitempty" yaml:"important_columns,omitempty"`

	Operations TableOperations `json:"operations" yaml:"operations"`

	// Joins maps another table name to the join condition connecting it to
	// this table, e.g. {"task_transaction": "task_transaction.asset_id = asset.id"}.
	Joins map[string]string `json:"joins,omitempty" yaml:"joins,omitempty"`
}

// QueryTemplate is a canned natural-language-to-SQL example rendered into
// the SELECT-building prompt to steer the model toward the manifest's
// vocabulary.
type QueryTemplate struct {
	Question string `json:"question" yaml:"question"`
	SQL      string `json:"sql" yaml:"sql"`
}

// SchemaManifest is the read-only, operator-curated description of the
// database the conversational backend is allowed to talk about. It is
// loaded at startup and reloaded by the housekeeping job, and a loaded
// value is never mutated at runtime.
type SchemaManifest struct {
	Tables          map[string]TableManifest `json:"tables" yaml:"tables"`
	FewShotExamples []QueryTemplate          `json:"few_shot_examples,omitempty" yaml:"few_shot_examples,omitempty"`
	QueryTemplates  []QueryTemplate          `json:"query_templates,omitempty" yaml:"query_templates,omitempty"`
}
