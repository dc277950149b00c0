package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"line-topology/internal/memstore"
	"line-topology/internal/network"
	"line-topology/internal/service"
	"line-topology/internal/topology"
)

type failingHealth struct{}

func (failingHealth) Probe(context.Context) error { return errors.New("db unreachable") }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	svc := service.NewNetworkService(store, topology.NewManager(store, store, store, nil), nil, logger)
	return NewRouter(logger, RouterDependencies{Health: svc, API: NewAPIHandlers(logger, svc)})
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createStation(t *testing.T, h http.Handler, name string) int64 {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/stations", stationRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[network.Station](t, rec).ID
}

func createLine(t *testing.T, h http.Handler) int64 {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/lines", lineRequest{Name: "2호선", StartTime: "05:00", LastTime: "23:50", TimeInterval: 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[network.Line](t, rec).ID
}

func TestRouter_LinePathLifecycle(t *testing.T) {
	h := newTestRouter(t)
	a := createStation(t, h, "강남역")
	b := createStation(t, h, "역삼역")
	c := createStation(t, h, "선릉역")
	x := createStation(t, h, "삼성역")
	line := createLine(t, h)

	rec := do(t, h, http.MethodPost, fmt.Sprintf("/lines/%d/edge", line), sectionRequest{SourceStationID: a, TargetStationID: b, Distance: 12, ElapsedTime: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	attached := decode[edgeResponse](t, rec)
	assert.Equal(t, fmt.Sprintf("/lines/%d/edge/%d", line, attached.ID), rec.Header().Get("Location"))
	assert.Equal(t, a, attached.SourceID)
	assert.Equal(t, []int64{a, b}, attached.Stations)

	rec = do(t, h, http.MethodGet, rec.Header().Get("Location"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fetched := decode[edgeResponse](t, rec)
	assert.Equal(t, attached.Section, fetched.Section)
	assert.Empty(t, fetched.Stations)

	rec = do(t, h, http.MethodPost, fmt.Sprintf("/lines/%d/edge", line), sectionRequest{SourceStationID: b, TargetStationID: c, Distance: 5, ElapsedTime: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, fmt.Sprintf("/lines/%d/edge/split", line), splitRequest{
		FromStationID: b, ViaStationID: x, ToStationID: c,
		In:  topology.Leg{Distance: 2, ElapsedTime: 0.5},
		Out: topology.Leg{Distance: 3, ElapsedTime: 0.5},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int64{a, b, x, c}, decode[splitResponse](t, rec).Stations)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/lines/%d/stations", line), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[topology.View](t, rec)
	assert.Equal(t, []int64{a, b, x, c}, view.Stations)
	assert.InDelta(t, 17.0, view.TotalDistance, 1e-9)
	assert.InDelta(t, 3.0, view.TotalElapsedTime, 1e-9)

	rec = do(t, h, http.MethodPost, fmt.Sprintf("/lines/%d/stations/%d/bridge", line, x), topology.Leg{Distance: 5, ElapsedTime: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bridged := decode[bridgeResponse](t, rec)
	assert.Equal(t, []int64{a, b, c}, bridged.Stations)
	assert.Equal(t, b, bridged.Section.SourceID)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/lines/%d/stations/%d", line, b), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	det := decode[topology.Detached](t, rec)
	assert.Equal(t, []int64{a}, det.Stations)
	assert.Equal(t, []int64{c}, det.Orphaned)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/lines/%d", line), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[service.LineDetail](t, rec)
	assert.Equal(t, "2호선", detail.Name)
	assert.Equal(t, []int64{a}, detail.Path.Stations)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/lines/%d", line), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, fmt.Sprintf("/lines/%d/stations", line), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	h := newTestRouter(t)
	a := createStation(t, h, "A")
	b := createStation(t, h, "B")
	c := createStation(t, h, "C")
	d := createStation(t, h, "D")
	line := createLine(t, h)
	edges := fmt.Sprintf("/lines/%d/edge", line)

	rec := do(t, h, http.MethodPost, edges, sectionRequest{SourceStationID: a, TargetStationID: b, Distance: 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{name: "duplicate section", method: http.MethodPost, target: edges, body: sectionRequest{SourceStationID: b, TargetStationID: a, Distance: 1}, want: http.StatusConflict},
		{name: "disconnected section", method: http.MethodPost, target: edges, body: sectionRequest{SourceStationID: c, TargetStationID: d, Distance: 1}, want: http.StatusConflict},
		{name: "zero distance", method: http.MethodPost, target: edges, body: sectionRequest{SourceStationID: b, TargetStationID: c}, want: http.StatusBadRequest},
		{name: "unknown station", method: http.MethodPost, target: edges, body: sectionRequest{SourceStationID: b, TargetStationID: 999, Distance: 1}, want: http.StatusNotFound},
		{name: "unknown line", method: http.MethodPost, target: "/lines/999/edge", body: sectionRequest{SourceStationID: a, TargetStationID: b, Distance: 1}, want: http.StatusNotFound},
		{name: "unknown field", method: http.MethodPost, target: edges, body: map[string]any{"upStationId": a, "downStationId": b, "distance": 1}, want: http.StatusBadRequest},
		{name: "non-numeric distance", method: http.MethodPost, target: edges, body: map[string]any{"sourceStationID": b, "targetStationID": c, "distance": "far"}, want: http.StatusBadRequest},
		{name: "bad line id", method: http.MethodGet, target: "/lines/abc/stations", want: http.StatusBadRequest},
		{name: "missing edge", method: http.MethodGet, target: edges + "/999", want: http.StatusNotFound},
		{name: "bad edge id", method: http.MethodGet, target: edges + "/abc", want: http.StatusBadRequest},
		{name: "station not in path", method: http.MethodDelete, target: fmt.Sprintf("/lines/%d/stations/%d", line, c), want: http.StatusNotFound},
		{name: "station in use", method: http.MethodDelete, target: fmt.Sprintf("/stations/%d", a), want: http.StatusConflict},
		{name: "missing station", method: http.MethodGet, target: "/stations/999", want: http.StatusNotFound},
		{name: "blank station name", method: http.MethodPost, target: "/stations", body: stationRequest{Name: " "}, want: http.StatusBadRequest},
		{name: "bad line clock", method: http.MethodPost, target: "/lines", body: lineRequest{Name: "L", StartTime: "5", LastTime: "23:00", TimeInterval: 5}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec), "error")
		})
	}

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/lines/%d/stations", line), nil)
	assert.Equal(t, []int64{a, b}, decode[topology.View](t, rec).Stations)
}

func TestRouter_Listings(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalResults":0,"results":[]}`, rec.Body.String())

	a := createStation(t, h, "A")
	line := createLine(t, h)

	stations := decode[listResponse[network.Station]](t, do(t, h, http.MethodGet, "/stations", nil))
	assert.Equal(t, 1, stations.TotalResults)
	require.Len(t, stations.Results, 1)
	assert.Equal(t, a, stations.Results[0].ID)

	lines := decode[listResponse[network.Line]](t, do(t, h, http.MethodGet, "/lines", nil))
	assert.Equal(t, 1, lines.TotalResults)
	require.Len(t, lines.Results, 1)
	assert.Equal(t, line, lines.Results[0].ID)
	assert.Equal(t, 10, lines.Results[0].IntervalMinutes)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/stations/%d", a), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// Request bodies here are written out by hand to pin the wire format that
// existing clients send, including string-encoded numbers.
func TestRouter_LineContract(t *testing.T) {
	h := newTestRouter(t)
	gangnam := createStation(t, h, "강남역")
	yeoksam := createStation(t, h, "역삼역")

	post := func(target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/lines", `{"name":"2호선","startTime":"05:00","lastTime":"23:50","timeInterval":10,"extra_fare":900}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Regexp(t, `.*/lines/[0-9]*$`, rec.Header().Get("Location"))
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "2호선", created["name"])
	assert.Equal(t, "05:00", created["startTime"])
	assert.Equal(t, "23:50", created["lastTime"])
	assert.EqualValues(t, 10, created["timeInterval"])
	assert.EqualValues(t, 900, created["extraFare"])
	lineID := int64(created["id"].(float64))

	rec = do(t, h, http.MethodGet, "/lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, listed["totalResults"])
	results := listed["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "2호선", results[0].(map[string]any)["name"])

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/lines/%d", lineID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, lineID, got["id"])
	assert.Equal(t, "2호선", got["name"])

	body := fmt.Sprintf(`{"lineId":"%d","elapsedTime":"2","distance":"12","sourceStationID":%d,"targetStationID":%d}`, lineID, gangnam, yeoksam)
	rec = post(fmt.Sprintf("/lines/%d/edge", lineID), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Regexp(t, `.*/lines/[0-9]*/edge/[0-9]*$`, rec.Header().Get("Location"))
	edge := decode[map[string]any](t, rec)
	assert.EqualValues(t, gangnam, edge["sourceStationID"])
	assert.EqualValues(t, yeoksam, edge["targetStationID"])
	assert.EqualValues(t, 12, edge["distance"])
	assert.EqualValues(t, 2, edge["elapsedTime"])

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/lines/%d", lineID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_Healthz(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	degraded := NewRouter(logger, RouterDependencies{Health: failingHealth{}})
	rec = do(t, degraded, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]any](t, rec)["status"])
}
