package schemas

// Route discriminates the two top-level paths a turn can take out of the
// route node: a direct conversational reply, or the full SQL pipeline.
type Route string

const (
	RouteChat Route = "chat"
	RouteSQL  Route = "sql"
)

// Operation is the kind of statement a resolved SQL turn performs; reads
// carry OperationSelect.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationSelect Operation = "select"
)

// SkipSQL is the sentinel SQLQuery value a node sets to short-circuit the
// remainder of the SQL pipeline (validation and execution) without treating
// the turn as an error, used when mutation understanding is still collecting
// fields and has nothing to execute yet.
const SkipSQL = "SKIP"

// Turn is a single role-tagged message in the agent's working conversation,
// distinct from the longer-lived SessionHistoryEntry log.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentState is threaded through every node of the workflow graph for a
// single turn. It starts from a ChatRequest and accumulates the route,
// resolved table/operation, built SQL, validation outcome, and execution
// result as it passes through the graph. Each field has a concrete Go
// type so a node only ever sees the shape it actually produces or
// consumes.
type AgentState struct {
	SessionID string
	UserID    string
	UserRole  string
	UserName  string
	Message   string
	Metadata  map[string]any

	Messages []Turn
	History  []SessionHistoryEntry

	Route Route

	// Intent is the free-form classification produced by the intent
	// resolver, e.g. "select", "insert", "update".
	Intent string

	// Table and Operation are resolved before SQL construction. Table is
	// empty when the turn never reaches table resolution (pure chat).
	Table     string
	Operation Operation

	// Mutation is not populated by the graph nodes or the orchestrator; the
	// in-flight form-filling state of multi-turn insert/update flows lives
	// in the session store.
	Mutation *MutationState

	// SQLQuery is the built statement, or SkipSQL when the turn has no
	// statement to run this turn (mutation still collecting fields).
	SQLQuery string

	// Execution result, populated by the execute node.
	Executed    bool
	RowCount    int
	RowsPreview []map[string]any

	// WorkflowPayload carries auxiliary structured context a node wants the
	// orchestrator to surface to the client (e.g. the mutation form's
	// current field menu). Always JSON-serializable.
	WorkflowPayload map[string]any

	// Reply is the natural-language response text the respond node
	// produces for the client, independent of whether SQL ran.
	Reply string

	// Error, when non-empty, indicates the turn's SQL failed validation or
	// execution; the respond node turns it into a safe-failure reply.
	Error string

	TokenUsage map[string]int
}

// AddTurn appends a role-tagged message to the working conversation.
func (s *AgentState) AddTurn(role, content string) {
	s.Messages = append(s.Messages, Turn{Role: role, Content: content})
}
