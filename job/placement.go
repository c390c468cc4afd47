package job

import (
	"fmt"
)

// Status is the progress of a JobPlacement within a run.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusSkipped    Status = "Skipped"
	StatusComplete   Status = "Complete"
)

// JobPlacement is one placement to perform during a run.
type JobPlacement struct {
	BoardLocation *BoardLocation
	Placement     *Placement
	Part          *Part

	Status Status
}

// NewJobPlacement returns a Pending JobPlacement.
func NewJobPlacement(bl *BoardLocation, p *Placement, part *Part) *JobPlacement {
	return &JobPlacement{
		BoardLocation: bl,
		Placement:     p,
		Part:          part,
		Status:        StatusPending,
	}
}

func (jp *JobPlacement) String() string {
	return fmt.Sprintf("%s:%s", jp.BoardLocation.Name(), jp.Placement.ID)
}

// PartID returns the part this placement needs.
func (jp *JobPlacement) PartID() string {
	if jp.Part != nil {
		return jp.Part.ID
	}
	return jp.Placement.PartID
}
