package analysis

import "sort"

// Component is one strongly connected component of the call graph.
type Component struct {
	ID      int
	Members []NodeID
	// Cyclic is set for components with more than one member or a self call.
	Cyclic bool
	// Level is 0 for components that call no other component, otherwise one
	// more than the highest level they call into.
	Level int
}

// Condense decomposes g with Tarjan's algorithm. Components come back in
// reverse topological order: every component appears after all the
// components it calls into.
func Condense(g *Graph) []*Component {
	t := &tarjan{
		g:       g,
		index:   make([]int, len(g.Nodes)),
		low:     make([]int, len(g.Nodes)),
		onStack: make([]bool, len(g.Nodes)),
		comp:    make([]int, len(g.Nodes)),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for id := range g.Nodes {
		if t.index[id] < 0 {
			t.visit(NodeID(id))
		}
	}
	for _, c := range t.out {
		for _, m := range c.Members {
			for _, s := range g.Successors(m) {
				sc := t.comp[s]
				if sc == c.ID {
					c.Cyclic = true
					continue
				}
				if lvl := t.out[sc].Level + 1; lvl > c.Level {
					c.Level = lvl
				}
			}
		}
	}
	return t.out
}

type tarjan struct {
	g       *Graph
	counter int
	index   []int
	low     []int
	onStack []bool
	stack   []NodeID
	comp    []int
	out     []*Component
}

type frame struct {
	node NodeID
	succ []NodeID
	next int
}

// visit runs the DFS from root with an explicit stack of frames.
func (t *tarjan) visit(root NodeID) {
	call := []*frame{t.enter(root)}
	for len(call) > 0 {
		f := call[len(call)-1]
		if f.next < len(f.succ) {
			s := f.succ[f.next]
			f.next++
			switch {
			case t.index[s] < 0:
				call = append(call, t.enter(s))
			case t.onStack[s]:
				t.low[f.node] = min(t.low[f.node], t.index[s])
			}
			continue
		}
		call = call[:len(call)-1]
		if len(call) > 0 {
			parent := call[len(call)-1].node
			t.low[parent] = min(t.low[parent], t.low[f.node])
		}
		if t.low[f.node] == t.index[f.node] {
			t.pop(f.node)
		}
	}
}

func (t *tarjan) enter(n NodeID) *frame {
	t.index[n] = t.counter
	t.low[n] = t.counter
	t.counter++
	t.stack = append(t.stack, n)
	t.onStack[n] = true
	return &frame{node: n, succ: t.g.Successors(n)}
}

func (t *tarjan) pop(root NodeID) {
	c := &Component{ID: len(t.out)}
	for {
		n := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[n] = false
		t.comp[n] = c.ID
		c.Members = append(c.Members, n)
		if n == root {
			break
		}
	}
	sort.Slice(c.Members, func(i, j int) bool { return c.Members[i] < c.Members[j] })
	c.Cyclic = len(c.Members) > 1
	t.out = append(t.out, c)
}

// byLevel groups components by level, lowest first.
func byLevel(comps []*Component) [][]*Component {
	var levels [][]*Component
	for _, c := range comps {
		for len(levels) <= c.Level {
			levels = append(levels, nil)
		}
		levels[c.Level] = append(levels[c.Level], c)
	}
	return levels
}
