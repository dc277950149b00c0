package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"line-topology/internal/network"
	"line-topology/internal/topology"
)

func TestStore_StationAndLineRecords(t *testing.T) {
	ctx := context.Background()
	s := New()

	a, err := s.CreateStation(ctx, "A")
	require.NoError(t, err)
	l, err := s.CreateLine(ctx, network.Line{Name: "L", StartTime: "05:00", LastTime: "23:00", IntervalMinutes: 5})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, l.ID)

	ok, err := s.StationExists(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.LineExists(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetStation(ctx, 999)
	assert.ErrorIs(t, err, topology.ErrStationNotFound)
	_, err = s.GetLine(ctx, 999)
	assert.ErrorIs(t, err, topology.ErrLineNotFound)
	assert.ErrorIs(t, s.DeleteLine(ctx, 999), topology.ErrNotFound)
}

func TestStore_CommitPath(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.CreateStation(ctx, "A")
	b, _ := s.CreateStation(ctx, "B")
	l, _ := s.CreateLine(ctx, network.Line{Name: "L"})

	sec, err := topology.NewSection(l.ID, a.ID, b.ID, 1, 1)
	require.NoError(t, err)
	secs := []topology.Section{sec}
	require.NoError(t, s.CommitPath(ctx, l.ID, topology.PathRecord{Head: b.ID, Sections: secs}))
	secs[0].Distance = 99

	all, err := s.LoadPaths(ctx)
	require.NoError(t, err)
	require.Len(t, all[l.ID].Sections, 1)
	assert.Equal(t, b.ID, all[l.ID].Head)
	assert.Equal(t, 1.0, all[l.ID].Sections[0].Distance)

	assert.ErrorIs(t, s.DeleteStation(ctx, a.ID), topology.ErrStationInUse)
	assert.ErrorIs(t, s.CommitPath(ctx, 999, topology.PathRecord{}), topology.ErrLineNotFound)

	s.FailCommits(errors.New("disk full"))
	assert.EqualError(t, s.CommitPath(ctx, l.ID, topology.PathRecord{}), "disk full")
	s.FailCommits(nil)

	// a lone head station keeps the station in use
	require.NoError(t, s.CommitPath(ctx, l.ID, topology.PathRecord{Head: a.ID}))
	assert.ErrorIs(t, s.DeleteStation(ctx, a.ID), topology.ErrStationInUse)
	require.NoError(t, s.DeleteStation(ctx, b.ID))
	all, err = s.LoadPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, topology.PathRecord{Head: a.ID}, all[l.ID])

	require.NoError(t, s.DeleteLine(ctx, l.ID))
	require.NoError(t, s.DeleteStation(ctx, a.ID))
	all, err = s.LoadPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
