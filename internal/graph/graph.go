// Package graph implements the workflow graph: a fixed, directed node
// pipeline routing one turn through intent classification, table/operation
// resolution, SQL construction, static safety validation, and execution,
// ending in a user-facing response. It is a DAG over a single per-request
// AgentState, expressed as node functions plus a driver that picks the
// next node by label, chosen over a generic graph library
// since the topology never changes at runtime.
package graph

import (
	"context"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// nodeLabel names a step in the pipeline.
type nodeLabel string

const (
	nodeRoute              nodeLabel = "route"
	nodeChat               nodeLabel = "chat"
	nodeIntent             nodeLabel = "intent"
	nodeMutationUnderstand nodeLabel = "mutation_understand"
	nodeSQLBuild           nodeLabel = "sql_build"
	nodeSQLValidate        nodeLabel = "sql_validate"
	nodeSQLExecute         nodeLabel = "sql_execute"
	nodeRespond            nodeLabel = "respond"
	nodeEnd                nodeLabel = ""
)

// Node runs one pipeline step, mutating state and returning the label of
// the node that should run next (nodeEnd to stop).
type Node func(ctx context.Context, state *schemas.AgentState) nodeLabel

// Graph is the compiled node pipeline with its fixed edges.
type Graph struct {
	nodes map[nodeLabel]Node
}

// Nodes groups every node implementation the graph is built from. All
// fields are required.
type Nodes struct {
	Route              Node
	Chat               Node
	Intent             Node
	MutationUnderstand Node
	SQLBuild           Node
	SQLValidate        Node
	SQLExecute         Node
	Respond            Node
}

// New compiles a Graph with the fixed edge topology:
//
//	route -> {CHAT -> chat -> END,
//	          SQL  -> intent -> mutation_understand -> sql_build -> {SKIP -> END,
//	                                                                else -> sql_validate -> {error -> respond,
//	                                                                                          ok    -> sql_execute -> respond}}}
//	respond -> END
//	chat    -> END
//
// Edge selection is entirely the responsibility of each node's returned
// label; Graph.Run just keeps following it.
func New(n Nodes) *Graph {
	return &Graph{nodes: map[nodeLabel]Node{
		nodeRoute:              n.Route,
		nodeChat:               n.Chat,
		nodeIntent:             n.Intent,
		nodeMutationUnderstand: n.MutationUnderstand,
		nodeSQLBuild:           n.SQLBuild,
		nodeSQLValidate:        n.SQLValidate,
		nodeSQLExecute:         n.SQLExecute,
		nodeRespond:            n.Respond,
	}}
}

// Run drives state through the graph starting at "route" until a node
// returns nodeEnd.
func (g *Graph) Run(ctx context.Context, state *schemas.AgentState) {
	label := nodeRoute
	for label != nodeEnd {
		node, ok := g.nodes[label]
		if !ok {
			return
		}
		label = node(ctx, state)
	}
}
