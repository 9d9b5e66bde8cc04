package model

// LoadStats counts the per-run outcome of a loader pass. Records are never
// lost silently: anything not loaded shows up in Skipped or Errored.
type LoadStats struct {
	FilesProcessed int
	Loaded         int
	Skipped        int
	Errored        int
}

// Add merges another stats value into this one.
func (s *LoadStats) Add(other LoadStats) {
	s.FilesProcessed += other.FilesProcessed
	s.Loaded += other.Loaded
	s.Skipped += other.Skipped
	s.Errored += other.Errored
}

// BuildStats exposes the rows each build step silently excluded, so that
// unexpected data loss is observable without changing the inner-join
// exclusion semantics.
type BuildStats struct {
	RawRows            int
	StagedRows         int
	StagedDropped      int
	FactRows           int
	FactExcluded       int
	DetectionRows      int
	DetectionsExcluded int
}
