package topology

import (
	"fmt"
	"math"
)

// Section is a directed edge between two stations on one line.
// Fields are read-only once built by NewSection.
// ID is assigned by the Manager when the section joins a path; it is 0 on a
// freshly built section.
type Section struct {
	ID          int64   `json:"id"`
	LineID      int64   `json:"lineId"`
	SourceID    int64   `json:"sourceStationID"`
	TargetID    int64   `json:"targetStationID"`
	Distance    float64 `json:"distance"`
	ElapsedTime float64 `json:"elapsedTime"`
}

// PairKey identifies the unordered station pair of a section.
type PairKey struct{ Lo, Hi int64 }

func pairOf(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// NewSection validates the values and builds a Section.
func NewSection(lineID, sourceID, targetID int64, distance, elapsedTime float64) (Section, error) {
	if sourceID == targetID {
		return Section{}, fmt.Errorf("%w: source and target are both station %d", ErrInvalidSection, sourceID)
	}
	if math.IsNaN(distance) || math.IsInf(distance, 0) || distance <= 0 {
		return Section{}, fmt.Errorf("%w: distance must be positive, got %v", ErrInvalidSection, distance)
	}
	if math.IsNaN(elapsedTime) || math.IsInf(elapsedTime, 0) || elapsedTime < 0 {
		return Section{}, fmt.Errorf("%w: elapsed time must be non-negative, got %v", ErrInvalidSection, elapsedTime)
	}
	return Section{
		LineID:      lineID,
		SourceID:    sourceID,
		TargetID:    targetID,
		Distance:    distance,
		ElapsedTime: elapsedTime,
	}, nil
}

// Key returns the unordered station pair.
func (s Section) Key() PairKey { return pairOf(s.SourceID, s.TargetID) }

// SameEdge reports whether both sections connect the same two stations,
// regardless of direction, distance or elapsed time.
func (s Section) SameEdge(o Section) bool { return s.Key() == o.Key() }

// Touches reports whether the station is one of the section's ends.
func (s Section) Touches(stationID int64) bool {
	return s.SourceID == stationID || s.TargetID == stationID
}

// Other returns the end opposite to stationID.
func (s Section) Other(stationID int64) int64 {
	if s.SourceID == stationID {
		return s.TargetID
	}
	return s.SourceID
}
