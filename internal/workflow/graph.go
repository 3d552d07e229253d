package workflow

// Plan is a validated, indexed view of a workflow document with a
// deterministic execution order. When several topological orders are valid,
// ties break by original node array order so repeated runs of the same
// snapshot walk the graph identically.
type Plan struct {
	nodes      map[string]*Node
	order      []string
	levels     [][]string
	deps       map[string][]string
	dependents map[string][]string
}

// Validate checks the document's structure and computes an execution plan.
// A cycle, dangling edge, duplicate id, self-loop, or unknown node kind
// rejects the document before any node executes.
func Validate(doc *Document) (*Plan, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, graphErrorf(CodeEmptyWorkflow, "workflow has no nodes")
	}

	p := &Plan{
		nodes:      make(map[string]*Node, len(doc.Nodes)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if node.ID == "" {
			return nil, graphErrorf(CodeUnknownNode, "node at index %d has no id", i)
		}
		if !node.Kind.Valid() {
			return nil, graphErrorf(CodeUnknownKind, "node %s has unknown kind %q", node.ID, node.Kind)
		}
		if _, exists := p.nodes[node.ID]; exists {
			return nil, graphErrorf(CodeDuplicateNode, "duplicate node id: %s", node.ID)
		}
		p.nodes[node.ID] = node
	}

	indegree := make(map[string]int, len(doc.Nodes))
	for _, edge := range doc.Edges {
		if _, ok := p.nodes[edge.Source]; !ok {
			return nil, graphErrorf(CodeUnknownNode, "edge %s references unknown node: %s", edge.ID, edge.Source)
		}
		if _, ok := p.nodes[edge.Target]; !ok {
			return nil, graphErrorf(CodeUnknownNode, "edge %s references unknown node: %s", edge.ID, edge.Target)
		}
		if edge.Source == edge.Target {
			return nil, graphErrorf(CodeCyclicGraph, "node %s depends on itself", edge.Source)
		}
		p.deps[edge.Target] = append(p.deps[edge.Target], edge.Source)
		p.dependents[edge.Source] = append(p.dependents[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	// Kahn's algorithm, one dependency level at a time. Within a level the
	// original node array order is preserved.
	remaining := len(doc.Nodes)
	emitted := make(map[string]bool, remaining)
	for remaining > 0 {
		var level []string
		for i := range doc.Nodes {
			id := doc.Nodes[i].ID
			if !emitted[id] && indegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, graphErrorf(CodeCyclicGraph, "workflow contains a cycle")
		}
		for _, id := range level {
			emitted[id] = true
			remaining--
			for _, dep := range p.dependents[id] {
				indegree[dep]--
			}
		}
		p.levels = append(p.levels, level)
		p.order = append(p.order, level...)
	}

	return p, nil
}

// Order returns node ids in execution order.
func (p *Plan) Order() []string {
	return p.order
}

// Levels groups the execution order into dependency levels. Nodes within
// one level share no edges and may execute concurrently.
func (p *Plan) Levels() [][]string {
	return p.levels
}

// Node returns the node definition by id, or nil if absent.
func (p *Plan) Node(id string) *Node {
	return p.nodes[id]
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int {
	return len(p.order)
}

// DependenciesOf returns the direct upstream node ids of a node, ordered by
// execution order.
func (p *Plan) DependenciesOf(id string) []string {
	return p.inExecutionOrder(p.deps[id])
}

// DependentsOf returns the direct downstream node ids of a node, ordered by
// execution order.
func (p *Plan) DependentsOf(id string) []string {
	return p.inExecutionOrder(p.dependents[id])
}

func (p *Plan) inExecutionOrder(ids []string) []string {
	if len(ids) <= 1 {
		return ids
	}
	member := make(map[string]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	ordered := make([]string, 0, len(ids))
	for _, id := range p.order {
		if member[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}
