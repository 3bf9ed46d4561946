package graph

import "github.com/opencare/careplan/pkg/models"

// OutlineEntry is one row of the indented display tree. Depth is purely a
// rendering concern and never affects run order.
type OutlineEntry struct {
	Block *models.Block `json:"block"`
	Depth int           `json:"depth"`
}

// Outline turns the flat block collection into a depth-annotated sequence
// for indented rendering. Roots are blocks with no parents, visited in
// insertion order; children are walked depth-first with depth = parent
// depth + 1. A visited set guarantees each block appears at most once, so
// diamond graphs render under whichever parent reaches them first and
// accidental cycles terminate.
//
// Orphan cycles, where no member has zero parents, are unreachable from any
// root and are deliberately left out of the outline; they indicate an
// editing mistake and are reported by Orphans instead of being repaired.
func Outline(blocks []*models.Block) []OutlineEntry {
	idx := NewIndex(blocks)
	visited := make(map[string]struct{}, idx.Len())
	out := make([]OutlineEntry, 0, idx.Len())

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if _, seen := visited[id]; seen {
			return
		}

		visited[id] = struct{}{}
		out = append(out, OutlineEntry{Block: idx.Block(id), Depth: depth})

		for _, childID := range idx.childrenOf(id) {
			walk(childID, depth+1)
		}
	}

	for _, rootID := range idx.roots() {
		walk(rootID, 0)
	}

	return out
}

// Orphans returns the ids of blocks excluded from the outline: members of
// cycles no root can reach. Insertion order is preserved.
func Orphans(blocks []*models.Block) []string {
	entries := Outline(blocks)
	shown := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		shown[entry.Block.ID] = struct{}{}
	}

	orphans := make([]string, 0)

	for _, block := range blocks {
		if _, ok := shown[block.ID]; !ok {
			orphans = append(orphans, block.ID)
		}
	}

	return orphans
}
