package mlpac

// Config holds the PAC configuration knobs enumerated in spec.md §4.F.
type Config struct {
	// PipelineLength is the fixed number of positions L this PAC instance
	// tracks.
	PipelineLength int
	// MaxMajor and MaxMinor bound the tracked version grid per position
	// (spec.md recommends small constants such as 3).
	MaxMajor, MaxMinor int
	// Alpha is the scaling rate applied by ScaleEntry/ScaleBatch, typically
	// in (0.01, 0.8).
	Alpha float64
	// HistoryCapacity is the ring buffer size C, at least 1.
	HistoryCapacity int
	// EnableSL and EnableUL toggle the two update rules independently.
	EnableSL bool
	EnableUL bool
}

// Validate checks the configuration knobs are within their documented
// ranges.
func (c Config) Validate() error {
	if c.PipelineLength < 1 {
		return ErrInvalidConfig.Wrap("pipeline_length must be >= 1")
	}
	if c.MaxMajor < 0 || c.MaxMinor < 0 {
		return ErrInvalidConfig.Wrap("max major/minor must be >= 0")
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return ErrInvalidConfig.Wrap("alpha must be in (0, 1)")
	}
	if c.HistoryCapacity < 1 {
		return ErrInvalidConfig.Wrap("history_capacity must be >= 1")
	}
	return nil
}

// State owns one PAC instance's VSM per position plus its submission
// History, under single-writer discipline (the coordinator's event loop).
type State struct {
	cfg     Config
	vsm     []*Matrix
	history *History
}

// NewState builds a State with every VSM[f] initialized to uniform.
func NewState(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vsm := make([]*Matrix, cfg.PipelineLength)
	for i := range vsm {
		vsm[i] = NewUniformMatrix(cfg.MaxMajor, cfg.MaxMinor)
	}
	return &State{
		cfg:     cfg,
		vsm:     vsm,
		history: NewHistory(cfg.HistoryCapacity),
	}, nil
}

// VSM returns the Matrix tracked at position f.
func (s *State) VSM(f int) *Matrix { return s.vsm[f] }

// Length returns the configured pipeline length L.
func (s *State) Length() int { return s.cfg.PipelineLength }

// History exposes the submission history, read-only for callers other
// than Submit.
func (s *State) History() *History { return s.history }

// Submit applies the enabled SL/UL update rules for pipeline against the
// existing history, then appends pipeline to history. pipeline must have
// exactly Length() entries.
func (s *State) Submit(pipeline []VersionCoord) error {
	if len(pipeline) != s.cfg.PipelineLength {
		return ErrPipelineMismatch.Wrapf("got %d positions, want %d", len(pipeline), s.cfg.PipelineLength)
	}

	if s.cfg.EnableSL {
		s.applySL(pipeline)
	}
	if s.cfg.EnableUL {
		s.applyUL(pipeline)
	}

	s.history.Append(pipeline)
	return nil
}

// applySL implements the "stable-version learning" rule: for each position
// k, versions that never appeared different from the current pipeline's
// version at k (across retained history) gain probability mass.
func (s *State) applySL(pipeline []VersionCoord) {
	for k, current := range pipeline {
		changed := make(map[VersionCoord]bool)
		for _, past := range s.history.AtPosition(k) {
			if past != current {
				changed[past] = true
			}
		}
		all := s.vsm[k].AllCoords()
		stable := make([]VersionCoord, 0, len(all))
		for _, c := range all {
			if !changed[c] {
				stable = append(stable, c)
			}
		}
		s.vsm[k].ScaleBatch(s.cfg.Alpha, stable)
	}
}

// applyUL implements the "update-direction learning" rule: when exactly
// one of (major, minor) moved between the predecessor pipeline and this
// one at position k, positions 0..k-2 are rewarded for staying put and
// position k's VSM is nudged toward the extrapolated next step along the
// axis that moved.
func (s *State) applyUL(pipeline []VersionCoord) {
	predecessor, ok := s.history.Last()
	if !ok {
		return
	}
	for k, current := range pipeline {
		if k >= len(predecessor) {
			break
		}
		prev := predecessor[k]
		majorChanged := current.Major != prev.Major
		minorChanged := current.Minor != prev.Minor
		if majorChanged == minorChanged {
			// Neither changed, or both changed: the rule only fires when
			// exactly one axis moved.
			continue
		}

		for i := 0; i < k-1; i++ {
			s.vsm[i].ScaleBatch(s.cfg.Alpha, otherCoords(s.vsm[i], pipeline[i]))
		}

		if minorChanged {
			extrap := 2*int(prev.Minor) - int(current.Minor)
			if extrap >= 0 && extrap <= s.cfg.MaxMinor {
				s.vsm[k].ScaleEntry(s.cfg.Alpha, int(current.Major), extrap)
			}
			continue
		}

		extrap := 2*int(prev.Major) - int(current.Major)
		if extrap >= 0 && extrap <= s.cfg.MaxMajor {
			s.vsm[k].ScaleEntry(s.cfg.Alpha, extrap, int(current.Minor))
		}
	}
}

// otherCoords returns every tracked coordinate of mx except exclude, the
// "ALL \ {(m_i, n_i)}" set the UL rule scales toward when rewarding a
// position for not having moved.
func otherCoords(mx *Matrix, exclude VersionCoord) []VersionCoord {
	all := mx.AllCoords()
	out := make([]VersionCoord, 0, len(all))
	for _, c := range all {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}
