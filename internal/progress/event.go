package progress

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart            Stage = "RUN_START"
	StageCategoryExpanded    Stage = "CATEGORY_EXPANDED"
	StageSubcategoryExpanded Stage = "SUBCATEGORY_EXPANDED"
	StageEntityDiscovered    Stage = "ENTITY_DISCOVERED"
	StageEntityDetailed      Stage = "ENTITY_DETAILED"
	StageEntityFailed        Stage = "ENTITY_FAILED"
	StageAssociationSkipped  Stage = "ASSOCIATION_SKIPPED"
	StageCheckpointSaved     Stage = "CHECKPOINT_SAVED"
	StageRunDone             Stage = "RUN_DONE"
	StageRunError            Stage = "RUN_ERROR"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies one crawl run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Mode is the crawl mode tag.
	Mode string
	// URL is the page the milestone concerns, when there is one.
	URL string
	// Name is the category or entity name, when there is one.
	Name string
	// Count carries a stage-specific tally, e.g. entities found on a page.
	Count int
	// Note attaches low-volume context such as error text.
	Note string
}

// Validate checks the minimal invariants before fan-out.
func (e Event) Validate() error {
	if e.Stage == "" {
		return errors.New("progress event missing stage")
	}
	if e.TS.IsZero() {
		return errors.New("progress event missing timestamp")
	}
	return nil
}
