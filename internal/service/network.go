package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"line-topology/internal/network"
	"line-topology/internal/publisher"
	"line-topology/internal/topology"
)

// Store is the record storage required by the network service. Both the
// Postgres and the in-memory stores satisfy it.
type Store interface {
	topology.StationRegistry
	topology.LineRegistry
	topology.Committer

	Ping(ctx context.Context) error
	CreateStation(ctx context.Context, name string) (network.Station, error)
	GetStation(ctx context.Context, id int64) (network.Station, error)
	ListStations(ctx context.Context) ([]network.Station, error)
	DeleteStation(ctx context.Context, id int64) error
	CreateLine(ctx context.Context, l network.Line) (network.Line, error)
	GetLine(ctx context.Context, id int64) (network.Line, error)
	ListLines(ctx context.Context) ([]network.Line, error)
	DeleteLine(ctx context.Context, id int64) error
	LoadPaths(ctx context.Context) (map[int64]topology.PathRecord, error)
}

// Notifier publishes committed path changes. Publish failures are logged,
// never returned to the caller: the change is already durable.
type Notifier interface {
	PublishPathChanged(msg publisher.PathChanged) error
}

// NetworkService orchestrates station and line records with the line path
// manager and change notifications.
type NetworkService struct {
	store    Store
	paths    *topology.Manager
	notifier Notifier
	logger   *slog.Logger
	nowFn    func() time.Time
}

// LineDetail is a line record with its current path.
type LineDetail struct {
	network.Line
	Path             topology.View `json:"path"`
	DeparturesPerDay int           `json:"departuresPerDay"`
}

// NewNetworkService builds the service. notifier may be nil.
func NewNetworkService(store Store, paths *topology.Manager, notifier Notifier, logger *slog.Logger) *NetworkService {
	return &NetworkService{
		store:    store,
		paths:    paths,
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *NetworkService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Restore rebuilds every line's path from persisted sections.
func (s *NetworkService) Restore(ctx context.Context) error {
	all, err := s.store.LoadPaths(ctx)
	if err != nil {
		return err
	}
	for lineID, rec := range all {
		if err := s.paths.Restore(lineID, rec); err != nil {
			return err
		}
	}
	s.logger.Info("restored line paths", "lines", len(all))
	return nil
}

func (s *NetworkService) Probe(ctx context.Context) error { return s.store.Ping(ctx) }

func (s *NetworkService) CreateStation(ctx context.Context, name string) (network.Station, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return network.Station{}, fmt.Errorf("%w: station name is required", topology.ErrInvalid)
	}
	return s.store.CreateStation(ctx, name)
}

func (s *NetworkService) GetStation(ctx context.Context, id int64) (network.Station, error) {
	return s.store.GetStation(ctx, id)
}

func (s *NetworkService) ListStations(ctx context.Context) ([]network.Station, error) {
	return s.store.ListStations(ctx)
}

// DeleteStation removes a station that no line path holds, including a path
// reduced to that one station.
func (s *NetworkService) DeleteStation(ctx context.Context, id int64) error {
	if lines := s.paths.LinesWith(id); len(lines) > 0 {
		return fmt.Errorf("%w: %d is on lines %v", topology.ErrStationInUse, id, lines)
	}
	return s.store.DeleteStation(ctx, id)
}

func (s *NetworkService) CreateLine(ctx context.Context, l network.Line) (network.Line, error) {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return network.Line{}, fmt.Errorf("%w: line name is required", topology.ErrInvalid)
	}
	if l.IntervalMinutes <= 0 {
		return network.Line{}, fmt.Errorf("%w: timeInterval must be positive", topology.ErrInvalid)
	}
	if l.ExtraFare < 0 {
		return network.Line{}, fmt.Errorf("%w: extraFare must not be negative", topology.ErrInvalid)
	}
	if _, _, err := l.ServiceWindow(s.nowFn()); err != nil {
		return network.Line{}, fmt.Errorf("%w: startTime and lastTime must be HH:MM", topology.ErrInvalid)
	}
	return s.store.CreateLine(ctx, l)
}

func (s *NetworkService) ListLines(ctx context.Context) ([]network.Line, error) {
	return s.store.ListLines(ctx)
}

func (s *NetworkService) GetLine(ctx context.Context, id int64) (LineDetail, error) {
	l, err := s.store.GetLine(ctx, id)
	if err != nil {
		return LineDetail{}, err
	}
	view, err := s.paths.Snapshot(ctx, id)
	if err != nil {
		return LineDetail{}, err
	}
	detail := LineDetail{Line: l, Path: view}
	if first, last, err := l.ServiceWindow(s.nowFn()); err == nil && l.IntervalMinutes > 0 {
		detail.DeparturesPerDay = int(last.Sub(first)/(time.Duration(l.IntervalMinutes)*time.Minute)) + 1
	}
	return detail, nil
}

// DeleteLine removes the line record and drops its path.
func (s *NetworkService) DeleteLine(ctx context.Context, id int64) error {
	if err := s.store.DeleteLine(ctx, id); err != nil {
		return err
	}
	s.paths.DropLine(id)
	s.notify(publisher.NewPathChanged(id, publisher.OpDrop, []int64{}, nil, 0, 0))
	return nil
}

// AttachSection adds source-target to the line's path.
func (s *NetworkService) AttachSection(ctx context.Context, lineID, sourceID, targetID int64, distance, elapsedTime float64) (topology.Section, []int64, error) {
	sec, stations, err := s.paths.AddSection(ctx, lineID, sourceID, targetID, distance, elapsedTime)
	if err != nil {
		return topology.Section{}, nil, err
	}
	s.logger.Info("section attached", "line", lineID, "source", sourceID, "target", targetID, "stations", len(stations))
	s.notifyView(ctx, lineID, publisher.OpAttach, nil)
	return sec, stations, nil
}

// DetachStation removes the station from the line's path.
func (s *NetworkService) DetachStation(ctx context.Context, lineID, stationID int64) (topology.Detached, error) {
	det, err := s.paths.RemoveSection(ctx, lineID, stationID)
	if err != nil {
		return topology.Detached{}, err
	}
	if len(det.Orphaned) > 0 {
		s.logger.Warn("interior station removed, fragment orphaned", "line", lineID, "station", stationID, "orphaned", det.Orphaned)
	} else {
		s.logger.Info("station detached", "line", lineID, "station", stationID)
	}
	s.notifyView(ctx, lineID, publisher.OpDetach, det.Orphaned)
	return det, nil
}

// InsertStation places viaID between the adjacent stations fromID and toID.
func (s *NetworkService) InsertStation(ctx context.Context, lineID, fromID, viaID, toID int64, in, out topology.Leg) ([]topology.Section, []int64, error) {
	secs, stations, err := s.paths.InsertBetween(ctx, lineID, fromID, viaID, toID, in, out)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("station inserted", "line", lineID, "from", fromID, "via", viaID, "to", toID)
	s.notifyView(ctx, lineID, publisher.OpSplit, nil)
	return secs, stations, nil
}

// BridgeStation removes an interior station and reconnects its neighbours.
func (s *NetworkService) BridgeStation(ctx context.Context, lineID, stationID int64, bridge topology.Leg) (topology.Section, topology.Detached, error) {
	sec, det, err := s.paths.RemoveStationBridged(ctx, lineID, stationID, bridge)
	if err != nil {
		return topology.Section{}, topology.Detached{}, err
	}
	s.logger.Info("station bridged", "line", lineID, "station", stationID)
	s.notifyView(ctx, lineID, publisher.OpBridge, nil)
	return sec, det, nil
}

// GetSection returns one section of the line's current path.
func (s *NetworkService) GetSection(ctx context.Context, lineID, sectionID int64) (topology.Section, error) {
	return s.paths.Section(ctx, lineID, sectionID)
}

func (s *NetworkService) LinePath(ctx context.Context, lineID int64) (topology.View, error) {
	return s.paths.Snapshot(ctx, lineID)
}

func (s *NetworkService) notifyView(ctx context.Context, lineID int64, op string, orphaned []int64) {
	if s.notifier == nil {
		return
	}
	view, err := s.paths.Snapshot(ctx, lineID)
	if err != nil {
		s.logger.Error("snapshot for notification failed", "line", lineID, "error", err)
		return
	}
	s.notify(publisher.NewPathChanged(lineID, op, view.Stations, orphaned, view.TotalDistance, view.TotalElapsedTime))
}

func (s *NetworkService) notify(msg publisher.PathChanged) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishPathChanged(msg); err != nil {
		s.logger.Error("publish path change failed", "line", msg.LineID, "op", msg.Op, "error", err)
	}
}
