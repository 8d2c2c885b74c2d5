package mlcoordinator

import (
	"log"

	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// PipelineShape is what commit_workspace announces before dispatching any
// component (spec.md §4.H step 4): the stringified pipeline keys paired
// with the fresh uuid assigned to each position.
type PipelineShape struct {
	WorkspaceKey mlsemver.MetaKey
	Components   []ComponentShape
}

// ComponentShape names one pipeline position's identity and assigned
// component id.
type ComponentShape struct {
	Position    int
	Key         mlsemver.MetaKey
	ComponentID string
	Skipped     bool
}

// EventSink receives pipeline lifecycle announcements. It exists so a
// future admin surface (out of scope, see Non-goals) can subscribe without
// the coordinator itself growing a notion of subscribers.
type EventSink interface {
	PipelineStarted(shape PipelineShape)
	ComponentDispatched(componentID string, key mlsemver.MetaKey)
	ComponentDone(componentID string)
	PipelineCommitted(key mlsemver.MetaKey, version mlsemver.SemanticVersion)
}

// LogEventSink is the default EventSink: it writes every announcement to
// the ambient logger.
type LogEventSink struct{}

func (LogEventSink) PipelineStarted(shape PipelineShape) {
	log.Printf("[mlcoordinator] pipeline started: workspace=%s components=%d", shape.WorkspaceKey.VersionedString(), len(shape.Components))
	for _, c := range shape.Components {
		log.Printf("[mlcoordinator]   position=%d key=%s component_id=%s skipped=%v", c.Position, c.Key.VersionedString(), c.ComponentID, c.Skipped)
	}
}

func (LogEventSink) ComponentDispatched(componentID string, key mlsemver.MetaKey) {
	log.Printf("[mlcoordinator] dispatched component_id=%s key=%s", componentID, key.VersionedString())
}

func (LogEventSink) ComponentDone(componentID string) {
	log.Printf("[mlcoordinator] component done component_id=%s", componentID)
}

func (LogEventSink) PipelineCommitted(key mlsemver.MetaKey, version mlsemver.SemanticVersion) {
	log.Printf("[mlcoordinator] committed workspace=%s version=%s", key.VersionedString(), version.String())
}
