package knowledge

import (
	"fmt"
	"sort"
)

// Centrality kinds accepted by Graph.Centrality.
const (
	CentralityDegree      = "degree"
	CentralityCloseness   = "closeness"
	CentralityBetweenness = "betweenness"
)

// Stats summarizes the graph shape
type Stats struct {
	TotalEntities       int            `json:"total_entities"`
	TotalRelationships  int            `json:"total_relationships"`
	EntityTypes         map[string]int `json:"entity_types"`
	AvgDegree           float64        `json:"avg_degree"`
	ConnectedComponents int            `json:"connected_components"`
	Density             float64        `json:"density"`
}

// adjacency is a read-only snapshot used by the graph algorithms. Parallel edges collapse into a
// single neighbour; edge counts are kept separately for degree figures.
type adjacency struct {
	nodes     []string
	index     map[string]int
	out       [][]int
	in        [][]int
	degree    []int
	edgeCount int
}

func (g *Graph) snapshotLocked() *adjacency {
	a := &adjacency{
		nodes: append([]string(nil), g.entityOrder...),
		index: make(map[string]int, len(g.entityOrder)),
	}
	for i, id := range a.nodes {
		a.index[id] = i
	}
	n := len(a.nodes)
	a.out = make([][]int, n)
	a.in = make([][]int, n)
	a.degree = make([]int, n)

	seen := make(map[[2]int]struct{})
	for _, rid := range g.relOrder {
		r := g.relationships[rid]
		s, okS := a.index[r.SourceID]
		t, okT := a.index[r.TargetID]
		if !okS || !okT {
			continue
		}
		a.edgeCount++
		a.degree[s]++
		a.degree[t]++
		if _, dup := seen[[2]int{s, t}]; dup {
			continue
		}
		seen[[2]int{s, t}] = struct{}{}
		a.out[s] = append(a.out[s], t)
		a.in[t] = append(a.in[t], s)
	}
	return a
}

// FindPaths returns the distinct simple paths from src to dst using at most maxLen edges.
func (g *Graph) FindPaths(src, dst string, maxLen int) [][]string {
	g.mu.RLock()
	a := g.snapshotLocked()
	g.mu.RUnlock()

	s, okS := a.index[src]
	t, okT := a.index[dst]
	if !okS || !okT || maxLen < 1 || s == t {
		return nil
	}

	var (
		paths   [][]string
		path    = []int{s}
		visited = make([]bool, len(a.nodes))
		walk    func(v int)
	)
	visited[s] = true
	walk = func(v int) {
		for _, w := range a.out[v] {
			if visited[w] {
				continue
			}
			if w == t {
				p := make([]string, 0, len(path)+1)
				for _, idx := range path {
					p = append(p, a.nodes[idx])
				}
				paths = append(paths, append(p, a.nodes[t]))
				continue
			}
			if len(path) >= maxLen {
				continue
			}
			visited[w] = true
			path = append(path, w)
			walk(w)
			path = path[:len(path)-1]
			visited[w] = false
		}
	}
	walk(s)
	return paths
}

// Centrality computes degree, closeness or betweenness centrality for every entity.
func (g *Graph) Centrality(kind string) (map[string]float64, error) {
	g.mu.RLock()
	a := g.snapshotLocked()
	g.mu.RUnlock()

	var scores []float64
	switch kind {
	case CentralityDegree:
		scores = a.degreeCentrality()
	case CentralityCloseness:
		scores = a.closeness()
	case CentralityBetweenness:
		scores = a.betweenness()
	default:
		return nil, fmt.Errorf("unsupported centrality type: %s", kind)
	}

	out := make(map[string]float64, len(scores))
	for i, v := range scores {
		out[a.nodes[i]] = v
	}
	return out, nil
}

// TopCentral returns up to n entity ids ordered by descending centrality, ties by id.
func TopCentral(scores map[string]float64, n int) []string {
	ids := sortedKeys(scores)
	sort.SliceStable(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func (a *adjacency) degreeCentrality() []float64 {
	n := len(a.nodes)
	out := make([]float64, n)
	if n <= 1 {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, d := range a.degree {
		out[i] = float64(d) / float64(n-1)
	}
	return out
}

// closeness uses incoming distances with the Wasserman-Faust correction for unreachable nodes.
func (a *adjacency) closeness() []float64 {
	n := len(a.nodes)
	out := make([]float64, n)
	for u := 0; u < n; u++ {
		dist := a.bfs(u, a.in)
		reached, total := 0, 0
		for v, d := range dist {
			if d > 0 && v != u {
				reached++
				total += d
			}
		}
		if total > 0 && n > 1 {
			c := float64(reached) / float64(total)
			out[u] = c * float64(reached) / float64(n-1)
		}
	}
	return out
}

func (a *adjacency) bfs(src int, edges [][]int) []int {
	dist := make([]int, len(a.nodes))
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0
	queue := []int{src}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range edges[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
		}
	}
	return dist
}

// betweenness is Brandes' algorithm for unweighted directed graphs, normalized by (n-1)(n-2).
func (a *adjacency) betweenness() []float64 {
	n := len(a.nodes)
	cb := make([]float64, n)
	for s := 0; s < n; s++ {
		var stack []int
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range a.out[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				cb[w] += delta[w]
			}
		}
	}

	if n > 2 {
		scale := 1 / float64((n-1)*(n-2))
		for i := range cb {
			cb[i] *= scale
		}
	}
	return cb
}

// components returns weakly connected components, largest first.
func (a *adjacency) components() [][]string {
	n := len(a.nodes)
	seen := make([]bool, n)
	var comps [][]string
	for start := 0; start < n; start++ {
		if seen[start] {
			continue
		}
		var comp []string
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, a.nodes[v])
			for _, edges := range [][]int{a.out[v], a.in[v]} {
				for _, w := range edges {
					if !seen[w] {
						seen[w] = true
						stack = append(stack, w)
					}
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	sort.SliceStable(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}

// Communities groups entities into weakly connected components, largest first.
func (g *Graph) Communities() [][]string {
	g.mu.RLock()
	a := g.snapshotLocked()
	g.mu.RUnlock()
	return a.components()
}

// Stats returns entity and relationship counts, average degree, component count and density.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	a := g.snapshotLocked()
	types := make(map[string]int)
	for t, ids := range g.byType {
		if len(ids) > 0 {
			types[t] = len(ids)
		}
	}
	g.mu.RUnlock()

	n := len(a.nodes)
	st := Stats{
		TotalEntities:       n,
		TotalRelationships:  a.edgeCount,
		EntityTypes:         types,
		ConnectedComponents: len(a.components()),
	}
	if n > 0 {
		st.AvgDegree = float64(2*a.edgeCount) / float64(n)
	}
	if n > 1 {
		st.Density = float64(a.edgeCount) / float64(n*(n-1))
	}
	return st
}
