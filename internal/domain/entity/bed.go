package entity

import "time"

// Bed is one ward bed tracked by the bed inventory
type Bed struct {
	Ref        string    `json:"ref"`
	Ward       string    `json:"ward"`
	OccupiedBy string    `json:"occupied_by,omitempty"` // admission entity ID
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsFree returns true if no admission holds the bed
func (b *Bed) IsFree() bool {
	return b.OccupiedBy == ""
}
