package topology

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// StationRegistry resolves station ids.
type StationRegistry interface {
	StationExists(ctx context.Context, stationID int64) (bool, error)
}

// LineRegistry resolves line ids.
type LineRegistry interface {
	LineExists(ctx context.Context, lineID int64) (bool, error)
}

// Committer durably stores a line's path before a mutation becomes visible.
// A commit error aborts the mutation.
type Committer interface {
	CommitPath(ctx context.Context, lineID int64, rec PathRecord) error
}

// Metrics receives mutation outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SectionsAttached(n int)
	SectionsDetached(n int)
	StationsOrphaned(n int)
	Rejected(reason string)
	LinesTracked(n int)
	MutationObserve(d time.Duration)
}

// Leg carries the distance and elapsed time of one caller-supplied section.
type Leg struct {
	Distance    float64 `json:"distance"`
	ElapsedTime float64 `json:"elapsedTime"`
}

// View is a read-only snapshot of one line's path.
type View struct {
	LineID           int64     `json:"lineId"`
	Stations         []int64   `json:"stations"`
	Sections         []Section `json:"sections"`
	TotalDistance    float64   `json:"totalDistance"`
	TotalElapsedTime float64   `json:"totalElapsedTime"`
}

// Manager routes section mutations to the path of each line. Mutations on the
// same line are serialized; different lines proceed in parallel.
type Manager struct {
	stations  StationRegistry
	lines     LineRegistry
	committer Committer
	metrics   Metrics

	mu    sync.Mutex
	paths map[int64]*lineEntry // lineID -> path

	lastSectionID atomic.Int64
}

type lineEntry struct {
	mu   sync.Mutex
	path *Path
}

// NewManager builds a Manager. committer and metrics may be nil.
func NewManager(stations StationRegistry, lines LineRegistry, committer Committer, metrics Metrics) *Manager {
	return &Manager{
		stations:  stations,
		lines:     lines,
		committer: committer,
		metrics:   metrics,
		paths:     make(map[int64]*lineEntry),
	}
}

// AddSection attaches source-target to the line's path.
func (m *Manager) AddSection(ctx context.Context, lineID, sourceID, targetID int64, distance, elapsedTime float64) (Section, []int64, error) {
	start := time.Now()
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return Section{}, nil, err
	}
	if err := m.requireStations(ctx, sourceID, targetID); err != nil {
		return Section{}, nil, err
	}
	sec, err := NewSection(lineID, sourceID, targetID, distance, elapsedTime)
	if err != nil {
		m.reject(err)
		return Section{}, nil, err
	}
	sec.ID = m.nextSectionID()

	e.mu.Lock()
	defer e.mu.Unlock()
	var stations []int64
	err = m.mutate(ctx, e, func(p *Path) error {
		var aerr error
		stations, aerr = p.Attach(sec)
		return aerr
	})
	if err != nil {
		return Section{}, nil, err
	}
	if m.metrics != nil {
		m.metrics.SectionsAttached(1)
		m.metrics.MutationObserve(time.Since(start))
	}
	return sec, stations, nil
}

// RemoveSection detaches the station and its sections from the line's path.
func (m *Manager) RemoveSection(ctx context.Context, lineID, stationID int64) (Detached, error) {
	start := time.Now()
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return Detached{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var det Detached
	err = m.mutate(ctx, e, func(p *Path) error {
		var derr error
		det, derr = p.Detach(stationID)
		return derr
	})
	if err != nil {
		return Detached{}, err
	}
	if m.metrics != nil {
		m.metrics.SectionsDetached(len(det.Removed))
		m.metrics.StationsOrphaned(len(det.Orphaned))
		m.metrics.MutationObserve(time.Since(start))
	}
	return det, nil
}

// InsertBetween replaces the section fromID-toID with fromID-viaID-toID using
// the supplied legs.
func (m *Manager) InsertBetween(ctx context.Context, lineID, fromID, viaID, toID int64, in, out Leg) ([]Section, []int64, error) {
	start := time.Now()
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return nil, nil, err
	}
	if err := m.requireStations(ctx, fromID, viaID, toID); err != nil {
		return nil, nil, err
	}
	first, err := NewSection(lineID, fromID, viaID, in.Distance, in.ElapsedTime)
	if err != nil {
		m.reject(err)
		return nil, nil, err
	}
	second, err := NewSection(lineID, viaID, toID, out.Distance, out.ElapsedTime)
	if err != nil {
		m.reject(err)
		return nil, nil, err
	}
	first.ID, second.ID = m.nextSectionID(), m.nextSectionID()

	e.mu.Lock()
	defer e.mu.Unlock()
	var stations []int64
	err = m.mutate(ctx, e, func(p *Path) error {
		var serr error
		stations, serr = p.Split(first, second)
		return serr
	})
	if err != nil {
		return nil, nil, err
	}
	if m.metrics != nil {
		m.metrics.SectionsDetached(1)
		m.metrics.SectionsAttached(2)
		m.metrics.MutationObserve(time.Since(start))
	}
	return []Section{first, second}, stations, nil
}

// RemoveStationBridged removes an interior station and connects its two
// neighbours with a section built from bridge.
func (m *Manager) RemoveStationBridged(ctx context.Context, lineID, stationID int64, bridge Leg) (Section, Detached, error) {
	start := time.Now()
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return Section{}, Detached{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	nbrs, ok := e.path.adj[stationID]
	if !ok {
		m.reject(ErrStationNotInPath)
		return Section{}, Detached{}, fmt.Errorf("%w: station %d on line %d", ErrStationNotInPath, stationID, lineID)
	}
	if len(nbrs) != 2 {
		m.reject(ErrTopologyViolation)
		return Section{}, Detached{}, fmt.Errorf("%w: station %d is not interior on line %d", ErrTopologyViolation, stationID, lineID)
	}
	// keep the head-to-tail direction across the removed station
	from, to := nbrs[0], nbrs[1]
	if order := e.path.Stations(); indexOf(order, from) > indexOf(order, to) {
		from, to = to, from
	}
	replacement, err := NewSection(lineID, from, to, bridge.Distance, bridge.ElapsedTime)
	if err != nil {
		m.reject(err)
		return Section{}, Detached{}, err
	}
	replacement.ID = m.nextSectionID()

	var det Detached
	err = m.mutate(ctx, e, func(p *Path) error {
		var berr error
		_, det, berr = p.Bridge(stationID, replacement)
		return berr
	})
	if err != nil {
		return Section{}, Detached{}, err
	}
	if m.metrics != nil {
		m.metrics.SectionsDetached(len(det.Removed))
		m.metrics.SectionsAttached(1)
		m.metrics.MutationObserve(time.Since(start))
	}
	return replacement, det, nil
}

// OrderedStations returns the line's stations from head to tail.
func (m *Manager) OrderedStations(ctx context.Context, lineID int64) ([]int64, error) {
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path.Stations(), nil
}

// Snapshot returns the stations, sections and totals of the line's path.
func (m *Manager) Snapshot(ctx context.Context, lineID int64) (View, error) {
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		LineID:           lineID,
		Stations:         e.path.Stations(),
		Sections:         e.path.Sections(),
		TotalDistance:    e.path.TotalDistance(),
		TotalElapsedTime: e.path.TotalElapsedTime(),
	}, nil
}

// Restore replaces the line's path with a persisted record. Registries and
// the committer are not consulted.
func (m *Manager) Restore(lineID int64, rec PathRecord) error {
	rec.Sections = append([]Section(nil), rec.Sections...)
	for i := range rec.Sections {
		m.observeSectionID(rec.Sections[i].ID)
	}
	for i := range rec.Sections {
		if rec.Sections[i].ID == 0 {
			rec.Sections[i].ID = m.nextSectionID()
		}
	}
	p, err := rec.build(lineID)
	if err != nil {
		return fmt.Errorf("restore line %d: %w", lineID, err)
	}

	m.mu.Lock()
	e, ok := m.paths[lineID]
	if !ok {
		m.paths[lineID] = &lineEntry{path: p}
	}
	n := len(m.paths)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.path = p
		e.mu.Unlock()
	}
	if m.metrics != nil {
		m.metrics.LinesTracked(n)
	}
	return nil
}

// Section returns the section with the given id on the line's path.
func (m *Manager) Section(ctx context.Context, lineID, sectionID int64) (Section, error) {
	e, err := m.entry(ctx, lineID)
	if err != nil {
		return Section{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.path.edges {
		if s.ID == sectionID {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %d on line %d", ErrSectionNotFound, sectionID, lineID)
}

// LinesWith returns the ids of lines whose path holds the station, sorted.
func (m *Manager) LinesWith(stationID int64) []int64 {
	m.mu.Lock()
	entries := make(map[int64]*lineEntry, len(m.paths))
	for id, e := range m.paths {
		entries[id] = e
	}
	m.mu.Unlock()

	var out []int64
	for id, e := range entries {
		e.mu.Lock()
		if e.path.Contains(stationID) {
			out = append(out, id)
		}
		e.mu.Unlock()
	}
	slices.Sort(out)
	return out
}

// DropLine forgets the line's path. Used when the line is deleted.
func (m *Manager) DropLine(lineID int64) {
	m.mu.Lock()
	delete(m.paths, lineID)
	n := len(m.paths)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.LinesTracked(n)
	}
}

// mutate applies fn to the entry's path. With a committer the change is made
// on a copy and swapped in only after a successful commit. Caller holds e.mu.
func (m *Manager) mutate(ctx context.Context, e *lineEntry, fn func(p *Path) error) error {
	target := e.path
	if m.committer != nil {
		target = e.path.Clone()
	}
	if err := fn(target); err != nil {
		m.reject(err)
		return err
	}
	if m.committer != nil {
		if err := m.committer.CommitPath(ctx, target.lineID, target.Record()); err != nil {
			return fmt.Errorf("commit line %d: %w", target.lineID, err)
		}
		e.path = target
	}
	return nil
}

func (m *Manager) entry(ctx context.Context, lineID int64) (*lineEntry, error) {
	ok, err := m.lines.LineExists(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("lookup line %d: %w", lineID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrLineNotFound, lineID)
	}

	m.mu.Lock()
	e, exists := m.paths[lineID]
	if !exists {
		e = &lineEntry{path: NewPath(lineID)}
		m.paths[lineID] = e
	}
	n := len(m.paths)
	m.mu.Unlock()
	if !exists && m.metrics != nil {
		m.metrics.LinesTracked(n)
	}
	return e, nil
}

func (m *Manager) requireStations(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		ok, err := m.stations.StationExists(ctx, id)
		if err != nil {
			return fmt.Errorf("lookup station %d: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrStationNotFound, id)
		}
	}
	return nil
}

func (m *Manager) nextSectionID() int64 { return m.lastSectionID.Add(1) }

// observeSectionID keeps ids handed out later above a restored one.
func (m *Manager) observeSectionID(id int64) {
	for {
		cur := m.lastSectionID.Load()
		if id <= cur || m.lastSectionID.CompareAndSwap(cur, id) {
			return
		}
	}
}

func (m *Manager) reject(err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, ErrDuplicateSection):
		m.metrics.Rejected("duplicate")
	case errors.Is(err, ErrDisconnectedSection):
		m.metrics.Rejected("disconnected")
	case errors.Is(err, ErrTopologyViolation):
		m.metrics.Rejected("topology")
	case errors.Is(err, ErrInvalidSection):
		m.metrics.Rejected("invalid")
	case errors.Is(err, ErrStationNotInPath):
		m.metrics.Rejected("not_in_path")
	}
}
