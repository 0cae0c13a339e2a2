package analysis

import (
	"sort"

	"qlower/internal/ast"
	"qlower/internal/builtins"
	"qlower/internal/token"
)

// NodeID indexes the graph arena.
type NodeID int

const NoNode NodeID = -1

// CallSite is one syntactic call in a node's body.
type CallSite struct {
	Callee  NodeID // NoNode when the call does not resolve
	Name    string
	Variant ast.Variant
	Pos     token.Pos
}

// Node is one (callable, variant) pair.
type Node struct {
	ID        NodeID
	Callable  *ast.Callable
	Variant   ast.Variant
	Intrinsic *builtins.Intrinsic
	Body      *ast.BlockStatement
	Calls     []CallSite
}

// Name renders the node as Callable or Callable/variant.
func (n *Node) Name() string {
	if n.Variant == ast.Body {
		return n.Callable.Name
	}
	return n.Callable.Name + "/" + n.Variant.String()
}

func (n *Node) Params() []*ast.Param { return n.Callable.ParamsFor(n.Variant) }

type nodeKey struct {
	name    string
	variant ast.Variant
}

// Graph is the call graph over every variant in a program. Edges are indices
// into Nodes; no node points at another directly.
type Graph struct {
	Nodes []*Node
	index map[nodeKey]NodeID
}

// BuildGraph creates one node per variant that has a body or is supplied by
// the target and records every call site.
func BuildGraph(prog *ast.Program) *Graph {
	g := &Graph{index: map[nodeKey]NodeID{}}
	for _, c := range prog.Callables {
		intrinsic, isIntrinsic := builtins.Resolve(c)
		for _, v := range ast.Variants {
			s := c.Spec(v)
			if s == nil {
				continue
			}
			n := &Node{ID: NodeID(len(g.Nodes)), Callable: c, Variant: v}
			switch {
			case isIntrinsic:
				n.Intrinsic = intrinsic
			case s.Body != nil:
				n.Body = s.Body
			default:
				continue
			}
			g.index[nodeKey{c.Name, v}] = n.ID
			g.Nodes = append(g.Nodes, n)
		}
	}
	for _, n := range g.Nodes {
		if n.Body != nil {
			n.Calls = g.callSites(n.Body)
		}
	}
	return g
}

// Lookup finds the node for a callable variant.
func (g *Graph) Lookup(name string, v ast.Variant) (NodeID, bool) {
	id, ok := g.index[nodeKey{name, v}]
	return id, ok
}

func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// resolve maps a call expression to its target node.
func (g *Graph) resolve(call *ast.CallExpression) (CallSite, bool) {
	site := CallSite{Callee: NoNode, Pos: ast.PosOf(call)}
	ref, ok := ast.ResolveCallee(call.Function)
	if !ok {
		site.Name = call.Function.String()
		return site, false
	}
	site.Name = ref.Name
	site.Variant = ref.Variant()
	id, found := g.Lookup(ref.Name, site.Variant)
	if !found {
		return site, false
	}
	site.Callee = id
	return site, true
}

func (g *Graph) callSites(body *ast.BlockStatement) []CallSite {
	var out []CallSite
	ast.Inspect(body, func(n ast.Node) bool {
		if call, ok := n.(*ast.CallExpression); ok {
			site, _ := g.resolve(call)
			out = append(out, site)
		}
		return true
	})
	return out
}

// Successors lists the distinct resolved callees of id in ascending order.
func (g *Graph) Successors(id NodeID) []NodeID {
	seen := map[NodeID]bool{}
	var out []NodeID
	for _, c := range g.Nodes[id].Calls {
		if c.Callee == NoNode || seen[c.Callee] {
			continue
		}
		seen[c.Callee] = true
		out = append(out, c.Callee)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reachable returns every node reachable from root, root included, in
// ascending order.
func (g *Graph) Reachable(root NodeID) []NodeID {
	if g.Node(root) == nil {
		return nil
	}
	seen := map[NodeID]bool{root: true}
	stack := []NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Successors(id) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	out := make([]NodeID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NumEdges counts distinct resolved edges.
func (g *Graph) NumEdges() int {
	n := 0
	for id := range g.Nodes {
		n += len(g.Successors(NodeID(id)))
	}
	return n
}
