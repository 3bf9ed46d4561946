// Package graph builds display outlines and maintains parent/child edges
// over the flat block collection of a care plan.
package graph

import (
	"github.com/opencare/careplan/pkg/models"
)

// Index is an arena plus adjacency maps over one care plan's blocks: id to
// block, id to parent set, id to child set. Edge mutation and lookup are
// O(1); the block records themselves stay free of traversal state.
type Index struct {
	order   []string
	blocks  map[string]*models.Block
	parents map[string]map[string]struct{}
	children map[string]map[string]struct{}
}

// NewIndex builds an index over the blocks in their insertion order.
// Edge references to ids outside the collection are ignored.
func NewIndex(blocks []*models.Block) *Index {
	idx := &Index{
		order:    make([]string, 0, len(blocks)),
		blocks:   make(map[string]*models.Block, len(blocks)),
		parents:  make(map[string]map[string]struct{}, len(blocks)),
		children: make(map[string]map[string]struct{}, len(blocks)),
	}

	for _, block := range blocks {
		if _, exists := idx.blocks[block.ID]; exists {
			continue
		}

		idx.order = append(idx.order, block.ID)
		idx.blocks[block.ID] = block
		idx.parents[block.ID] = make(map[string]struct{})
		idx.children[block.ID] = make(map[string]struct{})
	}

	for _, block := range blocks {
		for _, parentID := range block.ParentIDs {
			if _, known := idx.blocks[parentID]; known {
				idx.parents[block.ID][parentID] = struct{}{}
			}
		}

		for _, childID := range block.ChildIDs {
			if _, known := idx.blocks[childID]; known {
				idx.children[block.ID][childID] = struct{}{}
			}
		}
	}

	return idx
}

// Block returns the block for id, or nil.
func (idx *Index) Block(id string) *models.Block {
	return idx.blocks[id]
}

// Len returns the number of indexed blocks.
func (idx *Index) Len() int {
	return len(idx.order)
}

// HasEdge reports whether parentID -> childID is present.
func (idx *Index) HasEdge(parentID, childID string) bool {
	children, ok := idx.children[parentID]
	if !ok {
		return false
	}

	_, present := children[childID]

	return present
}

// IsValidEdge reports whether parentID -> childID may be added: self-edges
// and duplicate edges are invalid, as are edges touching unknown blocks.
func (idx *Index) IsValidEdge(parentID, childID string) bool {
	if parentID == childID {
		return false
	}

	if idx.blocks[parentID] == nil || idx.blocks[childID] == nil {
		return false
	}

	return !idx.HasEdge(parentID, childID)
}

// AddEdge records parentID -> childID in both adjacency maps and mirrors it
// onto the two block records. Re-adding an existing edge is a no-op.
func (idx *Index) AddEdge(parentID, childID string) bool {
	if !idx.IsValidEdge(parentID, childID) {
		return false
	}

	idx.children[parentID][childID] = struct{}{}
	idx.parents[childID][parentID] = struct{}{}

	idx.blocks[parentID].AddChild(childID)
	idx.blocks[childID].AddParent(parentID)

	return true
}

// childrenOf returns the child ids of id in the collection's insertion
// order, keeping traversal deterministic.
func (idx *Index) childrenOf(id string) []string {
	out := make([]string, 0, len(idx.children[id]))

	for _, candidate := range idx.order {
		if _, ok := idx.children[id][candidate]; ok {
			out = append(out, candidate)
		}
	}

	return out
}

// roots returns ids with no known parents, in insertion order.
func (idx *Index) roots() []string {
	out := make([]string, 0)

	for _, id := range idx.order {
		if len(idx.parents[id]) == 0 {
			out = append(out, id)
		}
	}

	return out
}
