package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"line-topology/internal/network"
	"line-topology/internal/service"
	"line-topology/internal/topology"
)

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger  *slog.Logger
	service *service.NetworkService
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc *service.NetworkService) *APIHandlers {
	return &APIHandlers{
		logger:  logger,
		service: svc,
	}
}

type stationRequest struct {
	Name string `json:"name"`
}

// lineRequest accepts the fare as extraFare or extra_fare.
type lineRequest struct {
	Name          string `json:"name"`
	StartTime     string `json:"startTime"`
	LastTime      string `json:"lastTime"`
	TimeInterval  int    `json:"timeInterval"`
	ExtraFare     int    `json:"extraFare"`
	ExtraFareDash *int   `json:"extra_fare,omitempty"`
}

// sectionRequest takes distance and elapsed time as numbers or numeric
// strings. lineId is accepted and ignored: the path names the line.
type sectionRequest struct {
	LineID          json.RawMessage `json:"lineId,omitempty"`
	SourceStationID int64           `json:"sourceStationID"`
	TargetStationID int64           `json:"targetStationID"`
	Distance        flexFloat       `json:"distance"`
	ElapsedTime     flexFloat       `json:"elapsedTime"`
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %s", b)
	}
	*f = flexFloat(v)
	return nil
}

type listResponse[T any] struct {
	TotalResults int `json:"totalResults"`
	Results      []T `json:"results"`
}

func newListResponse[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{TotalResults: len(items), Results: items}
}

type splitRequest struct {
	FromStationID int64        `json:"fromStationId"`
	ViaStationID  int64        `json:"viaStationId"`
	ToStationID   int64        `json:"toStationId"`
	In            topology.Leg `json:"in"`
	Out           topology.Leg `json:"out"`
}

type edgeResponse struct {
	topology.Section
	Stations []int64 `json:"stations,omitempty"`
}

type splitResponse struct {
	Sections []topology.Section `json:"sections"`
	Stations []int64            `json:"stations"`
}

type bridgeResponse struct {
	Section topology.Section `json:"section"`
	topology.Detached
}

func (h *APIHandlers) createStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.service.CreateStation(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, err, "failed to create station")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/stations/%d", st.ID))
	respondJSON(w, http.StatusCreated, st)
}

func (h *APIHandlers) listStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.ListStations(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list stations")
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(stations))
}

func (h *APIHandlers) getStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.service.GetStation(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch station")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *APIHandlers) deleteStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteStation(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete station")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) createLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fare := req.ExtraFare
	if req.ExtraFareDash != nil {
		fare = *req.ExtraFareDash
	}
	line, err := h.service.CreateLine(r.Context(), network.Line{
		Name:            req.Name,
		StartTime:       req.StartTime,
		LastTime:        req.LastTime,
		IntervalMinutes: req.TimeInterval,
		ExtraFare:       fare,
	})
	if err != nil {
		h.writeServiceError(w, err, "failed to create line")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/lines/%d", line.ID))
	respondJSON(w, http.StatusCreated, line)
}

func (h *APIHandlers) listLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.ListLines(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list lines")
		return
	}
	respondJSON(w, http.StatusOK, newListResponse(lines))
}

func (h *APIHandlers) getLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetLine(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch line")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *APIHandlers) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteLine(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete line")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) attachSection(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req sectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sec, stations, err := h.service.AttachSection(r.Context(), lineID, req.SourceStationID, req.TargetStationID, float64(req.Distance), float64(req.ElapsedTime))
	if err != nil {
		h.writeServiceError(w, err, "failed to attach section")
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/lines/%d/edge/%d", lineID, sec.ID))
	respondJSON(w, http.StatusCreated, edgeResponse{Section: sec, Stations: stations})
}

func (h *APIHandlers) getSection(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	edgeID, ok := pathID(w, r, "edgeID")
	if !ok {
		return
	}
	sec, err := h.service.GetSection(r.Context(), lineID, edgeID)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch section")
		return
	}
	respondJSON(w, http.StatusOK, edgeResponse{Section: sec})
}

func (h *APIHandlers) splitSection(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	secs, stations, err := h.service.InsertStation(r.Context(), lineID, req.FromStationID, req.ViaStationID, req.ToStationID, req.In, req.Out)
	if err != nil {
		h.writeServiceError(w, err, "failed to split section")
		return
	}
	respondJSON(w, http.StatusOK, splitResponse{Sections: secs, Stations: stations})
}

func (h *APIHandlers) linePath(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.service.LinePath(r.Context(), lineID)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch line path")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *APIHandlers) detachStation(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stationID, ok := pathID(w, r, "stationID")
	if !ok {
		return
	}
	det, err := h.service.DetachStation(r.Context(), lineID, stationID)
	if err != nil {
		h.writeServiceError(w, err, "failed to detach station")
		return
	}
	respondJSON(w, http.StatusOK, det)
}

func (h *APIHandlers) bridgeStation(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stationID, ok := pathID(w, r, "stationID")
	if !ok {
		return
	}
	var leg topology.Leg
	if err := decodeJSON(r, &leg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sec, det, err := h.service.BridgeStation(r.Context(), lineID, stationID, leg)
	if err != nil {
		h.writeServiceError(w, err, "failed to bridge station")
		return
	}
	respondJSON(w, http.StatusOK, bridgeResponse{Section: sec, Detached: det})
}

// writeServiceError maps topology error classes to status codes. Anything
// unclassified is a storage failure and is logged.
func (h *APIHandlers) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, topology.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, topology.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, topology.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
