package models

import "time"

// CarePlan is the conduite à tenir for one clinical episode: the flat,
// insertion-ordered collection of blocks the runner iterates. Tree depth is
// a display concern and never affects run order.
type CarePlan struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"      validate:"required,min=3"`
	PatientID string     `json:"patient_id" validate:"required"`
	EpisodeID string     `json:"episode_id"`
	Blocks    []*Block   `json:"blocks"`
	Owner     string     `json:"owner"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// BlockByID returns the block with the given id, or nil.
func (p *CarePlan) BlockByID(id string) *Block {
	for _, block := range p.Blocks {
		if block.ID == id {
			return block
		}
	}

	return nil
}

// BlockIndex returns the position of the block in the flat collection,
// or -1 when absent.
func (p *CarePlan) BlockIndex(id string) int {
	for i, block := range p.Blocks {
		if block.ID == id {
			return i
		}
	}

	return -1
}

// RemoveBlock deletes the block and strips its id from every other block's
// edge sets so no dangling references survive.
func (p *CarePlan) RemoveBlock(id string) bool {
	idx := p.BlockIndex(id)
	if idx < 0 {
		return false
	}

	p.Blocks = append(p.Blocks[:idx], p.Blocks[idx+1:]...)

	for _, block := range p.Blocks {
		block.ParentIDs = removeID(block.ParentIDs, id)
		block.ChildIDs = removeID(block.ChildIDs, id)
	}

	return true
}

func removeID(ids []string, id string) []string {
	out := ids[:0]

	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}

	return out
}
