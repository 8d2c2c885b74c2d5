package main

import (
	"log"

	"github.com/virtengine/mlpipe/pkg/mlcoordinator"
	"github.com/virtengine/mlpipe/pkg/mlpac"
	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// pacTrackingSink feeds every started pipeline shape into a PAC State so
// the cache's version-score matrices learn from submission history
// (spec.md §4.F). It stays in the binary rather than mlcoordinator so the
// coordinator package never needs to know which cache policy is in use.
type pacTrackingSink struct {
	inner mlcoordinator.EventSink
	state *mlpac.State
}

func (s *pacTrackingSink) PipelineStarted(shape mlcoordinator.PipelineShape) {
	s.inner.PipelineStarted(shape)

	if len(shape.Components) != s.state.Length() {
		log.Printf("[mlpipe-coordinator] pac: pipeline length %d does not match tracked length %d, skipping submission", len(shape.Components), s.state.Length())
		return
	}
	pipeline := make([]mlpac.VersionCoord, len(shape.Components))
	for i, c := range shape.Components {
		pipeline[i] = coordFromKey(c.Key)
	}
	if err := s.state.Submit(pipeline); err != nil {
		log.Printf("[mlpipe-coordinator] pac: submit failed: %v", err)
	}
}

func (s *pacTrackingSink) ComponentDispatched(componentID string, key mlsemver.MetaKey) {
	s.inner.ComponentDispatched(componentID, key)
}

func (s *pacTrackingSink) ComponentDone(componentID string) {
	s.inner.ComponentDone(componentID)
}

func (s *pacTrackingSink) PipelineCommitted(key mlsemver.MetaKey, version mlsemver.SemanticVersion) {
	s.inner.PipelineCommitted(key, version)
}

func coordFromKey(key mlsemver.MetaKey) mlpac.VersionCoord {
	return mlpac.VersionCoord{Major: key.Version.API, Minor: key.Version.Inc}
}
