// Package artifacts holds the single-slot workflow results: the pattern, the
// step list and its visualizations.
package artifacts

import (
	"slices"
	"sync"

	"github.com/rendis/papercut/pkg/schema"
)

// Token identifies one in-flight request of a stage. Only the newest token of
// a stage may commit.
type Token uint64

// Snapshot is a copy of the store contents.
type Snapshot struct {
	Pattern       schema.Pattern       `json:"pattern,omitempty"`
	Steps         schema.StepList      `json:"steps"`
	Visualization schema.Visualization `json:"visualization"`
}

// HasPattern reports whether a pattern is present.
func (s Snapshot) HasPattern() bool { return s.Pattern != "" }

// Store is the artifact store. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	pattern     schema.Pattern
	steps       schema.StepList
	vis         schema.Visualization
	patternGen  Token
	analysisGen Token
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// BeginPattern starts a pattern request, superseding any earlier one.
func (s *Store) BeginPattern() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patternGen++
	return s.patternGen
}

// CommitPattern stores p if tok is still current. Reports whether the commit was applied.
func (s *Store) CommitPattern(tok Token, p schema.Pattern) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.patternGen {
		return false
	}
	s.pattern = p
	return true
}

// PatternCurrent reports whether tok is still the newest pattern request.
func (s *Store) PatternCurrent(tok Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tok == s.patternGen
}

// BeginAnalysis starts an analysis request, superseding any earlier one.
func (s *Store) BeginAnalysis() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisGen++
	return s.analysisGen
}

// CommitAnalysis stores the step list and whichever visualizations res carries
// if tok is still current. Absent visualizations keep their previous value.
func (s *Store) CommitAnalysis(tok Token, res schema.AnalysisResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.analysisGen {
		return false
	}
	s.steps = cloneSteps(res.Steps)
	if res.Raster != "" {
		s.vis.Raster = res.Raster
	}
	if res.Vector != "" {
		s.vis.Vector = res.Vector
	}
	return true
}

// AnalysisCurrent reports whether tok is still the newest analysis request.
func (s *Store) AnalysisCurrent(tok Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tok == s.analysisGen
}

// Pattern returns the current pattern.
func (s *Store) Pattern() schema.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pattern
}

// Steps returns a copy of the current step list.
func (s *Store) Steps() schema.StepList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSteps(s.steps)
}

// Visualization returns the current visualizations.
func (s *Store) Visualization() schema.Visualization {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vis
}

// Snapshot returns a copy of everything.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Pattern:       s.pattern,
		Steps:         cloneSteps(s.steps),
		Visualization: s.vis,
	}
}

// Reset clears all artifacts and invalidates every outstanding token.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = ""
	s.steps = schema.StepList{}
	s.vis = schema.Visualization{}
	s.patternGen++
	s.analysisGen++
}

func cloneSteps(l schema.StepList) schema.StepList {
	return schema.StepList{
		Steps: slices.Clone(l.Steps),
		Raw:   slices.Clone(l.Raw),
	}
}
