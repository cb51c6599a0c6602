package codegraph

import (
	"context"
	"sort"
	"strings"

	"github.com/Strob0t/CodeForge-sub000/internal/model"
)

// SearchHit is one scored result from a graph search, mirroring
// graphrag.py's GraphSearchHit.
type SearchHit struct {
	Filepath   string
	SymbolName string
	Kind       string
	StartLine  int
	EndLine    int
	Distance   int
	Score      float64
	EdgePath   []string
}

const defaultHopDecay = 0.7

type queuedNode struct {
	id   string
	dist int
}

// Searcher runs hop-decay-scored BFS from a set of seed symbols, grounded
// on graphrag.py's GraphSearcher.search/_bfs/_build_results.
type Searcher struct {
	store GraphStore
}

// NewSearcher creates a searcher over the given graph store.
func NewSearcher(store GraphStore) *Searcher {
	return &Searcher{store: store}
}

// Search finds symbols reachable from seedSymbols within maxHops,
// traversing edges bidirectionally, and returns the topK highest-scoring
// hits sorted by (-score, distance, filepath). hopDecay <= 0 falls back to
// the original's default of 0.7.
func (s *Searcher) Search(ctx context.Context, projectID string, seedSymbols []string, maxHops, topK int, hopDecay float64) ([]SearchHit, error) {
	if hopDecay <= 0 {
		hopDecay = defaultHopDecay
	}

	seeds, err := s.store.SeedNodes(ctx, projectID, seedSymbols)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	nodeInfo := make(map[string]model.GraphNode, len(seeds))
	distance := make(map[string]int, len(seeds))
	edgePaths := make(map[string][]string, len(seeds))
	seedIDs := make(map[string]struct{}, len(seeds))

	var queue []queuedNode
	for _, n := range seeds {
		nodeInfo[n.ID] = n
		distance[n.ID] = 0
		seedIDs[n.ID] = struct{}{}
		queue = append(queue, queuedNode{id: n.ID, dist: 0})
	}
	visited := make(map[string]struct{}, len(seeds))
	for id := range seedIDs {
		visited[id] = struct{}{}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= maxHops {
			continue
		}

		currentName := cur.id
		if info, ok := nodeInfo[cur.id]; ok {
			currentName = info.SymbolName
		}

		outgoing, err := s.store.OutEdges(ctx, projectID, cur.id)
		if err != nil {
			return nil, err
		}
		incoming, err := s.store.InEdges(ctx, projectID, cur.id)
		if err != nil {
			return nil, err
		}

		for _, e := range outgoing {
			s.visitNeighbor(ctx, projectID, e.TargetID, e.Kind, "out", cur, currentName, visited, distance, edgePaths, nodeInfo, &queue)
		}
		for _, e := range incoming {
			s.visitNeighbor(ctx, projectID, e.SourceID, e.Kind, "in", cur, currentName, visited, distance, edgePaths, nodeInfo, &queue)
		}
	}

	var results []SearchHit
	for id, dist := range distance {
		if _, isSeed := seedIDs[id]; isSeed {
			continue
		}
		info, ok := nodeInfo[id]
		if !ok {
			continue
		}
		results = append(results, SearchHit{
			Filepath: info.Filepath, SymbolName: info.SymbolName, Kind: info.Kind,
			StartLine: info.StartLine, EndLine: info.EndLine,
			Distance: dist, Score: pow(hopDecay, dist), EdgePath: edgePaths[id],
		})
	}

	sortHits(results)
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Searcher) visitNeighbor(ctx context.Context, projectID, neighborID, edgeKind, direction string, cur queuedNode, currentName string, visited map[string]struct{}, distance map[string]int, edgePaths map[string][]string, nodeInfo map[string]model.GraphNode, queue *[]queuedNode) {
	if _, ok := visited[neighborID]; ok {
		return
	}
	visited[neighborID] = struct{}{}

	newDist := cur.dist + 1
	distance[neighborID] = newDist

	leaf := lastSegment(neighborID)
	var desc string
	if direction == "out" {
		desc = currentName + "-" + edgeKind + "->" + leaf
	} else {
		desc = leaf + "-" + edgeKind + "->" + currentName
	}
	edgePaths[neighborID] = append(append([]string{}, edgePaths[cur.id]...), desc)

	if _, ok := nodeInfo[neighborID]; !ok {
		if node, err := s.store.NodeByID(ctx, projectID, neighborID); err == nil && node != nil {
			nodeInfo[neighborID] = *node
		}
	}

	*queue = append(*queue, queuedNode{id: neighborID, dist: newDist})
}

func lastSegment(id string) string {
	parts := strings.Split(id, ":")
	return parts[len(parts)-1]
}

func sortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Filepath < b.Filepath
	})
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
