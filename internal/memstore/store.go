// Package memstore keeps stations, lines and line sections in memory. It
// satisfies the same contract as the Postgres store and backs STORE=memory
// and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"line-topology/internal/network"
	"line-topology/internal/topology"
)

type Store struct {
	mu        sync.RWMutex
	nextID    int64
	stations  map[int64]network.Station
	lines     map[int64]network.Line
	paths     map[int64]topology.PathRecord
	commitErr error
}

func New() *Store {
	return &Store{
		stations: make(map[int64]network.Station),
		lines:    make(map[int64]network.Line),
		paths:    make(map[int64]topology.PathRecord),
	}
}

// FailCommits makes subsequent CommitPath calls return err. Pass nil to reset.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateStation(_ context.Context, name string) (network.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	st := network.Station{ID: s.nextID, Name: name}
	s.stations[st.ID] = st
	return st, nil
}

func (s *Store) GetStation(_ context.Context, id int64) (network.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return network.Station{}, fmt.Errorf("%w: %d", topology.ErrStationNotFound, id)
	}
	return st, nil
}

func (s *Store) ListStations(context.Context) ([]network.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]network.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteStation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[id]; !ok {
		return fmt.Errorf("%w: %d", topology.ErrStationNotFound, id)
	}
	for _, rec := range s.paths {
		if rec.Head == id {
			return fmt.Errorf("%w: %d", topology.ErrStationInUse, id)
		}
		for _, sec := range rec.Sections {
			if sec.Touches(id) {
				return fmt.Errorf("%w: %d", topology.ErrStationInUse, id)
			}
		}
	}
	delete(s.stations, id)
	return nil
}

func (s *Store) StationExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stations[id]
	return ok, nil
}

func (s *Store) CreateLine(_ context.Context, l network.Line) (network.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	s.lines[l.ID] = l
	return l, nil
}

func (s *Store) GetLine(_ context.Context, id int64) (network.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lines[id]
	if !ok {
		return network.Line{}, fmt.Errorf("%w: %d", topology.ErrLineNotFound, id)
	}
	return l, nil
}

func (s *Store) ListLines(context.Context) ([]network.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]network.Line, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteLine(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[id]; !ok {
		return fmt.Errorf("%w: %d", topology.ErrLineNotFound, id)
	}
	delete(s.lines, id)
	delete(s.paths, id)
	return nil
}

func (s *Store) LineExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lines[id]
	return ok, nil
}

func (s *Store) CommitPath(_ context.Context, lineID int64, rec topology.PathRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	if _, ok := s.lines[lineID]; !ok {
		return fmt.Errorf("%w: %d", topology.ErrLineNotFound, lineID)
	}
	rec.Sections = append([]topology.Section(nil), rec.Sections...)
	s.paths[lineID] = rec
	return nil
}

// LoadPaths returns the persisted path of every line that has one.
func (s *Store) LoadPaths(context.Context) (map[int64]topology.PathRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]topology.PathRecord, len(s.paths))
	for id, rec := range s.paths {
		if rec.Head == 0 && len(rec.Sections) == 0 {
			continue
		}
		out[id] = topology.PathRecord{Head: rec.Head, Sections: append([]topology.Section(nil), rec.Sections...)}
	}
	return out, nil
}
