package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"TrafficFeeds/internal/catalog"
	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/infrastructure/export"
	"TrafficFeeds/internal/marker"
	"TrafficFeeds/internal/ports"
	"TrafficFeeds/internal/usecase"
)

const maxRequestBody = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// HandlerDeps wires the use cases the HTTP surface exposes.
type HandlerDeps struct {
	Aggregator ports.Aggregator
	Refresher  *usecase.Refresher
	Store      ports.SnapshotStore
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Handler serves the traffic feed API.
type Handler struct {
	aggregator ports.Aggregator
	refresher  *usecase.Refresher
	store      ports.SnapshotStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler builds the HTTP handlers.
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		aggregator: deps.Aggregator,
		refresher:  deps.Refresher,
		store:      deps.Store,
		logger:     logger,
		now:        clock,
	}
}

type districtView struct {
	District domain.District     `json:"district"`
	Types    []domain.DataType   `json:"types"`
	Center   *catalog.Coordinate `json:"center,omitempty"`
}

type availabilityView struct {
	Types     map[domain.DataType][]domain.District `json:"types"`
	Districts []districtView                        `json:"districts"`
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respondData(w, map[string]string{"status": "ok"}, Metadata{})
}

// Availability lists which district publishes which feed.
func (h *Handler) Availability(w http.ResponseWriter, _ *http.Request) {
	districts := catalog.Districts()
	view := availabilityView{Types: catalog.Availability(), Districts: make([]districtView, 0, len(districts))}
	for _, d := range districts {
		dv := districtView{District: d, Types: catalog.TypesFor(d)}
		if c, ok := catalog.DistrictCenter(d); ok {
			dv.Center = &c
		}
		view.Districts = append(view.Districts, dv)
	}
	h.respondData(w, view, Metadata{Count: countOf(len(view.Districts))})
}

type feedsView struct {
	Types     []domain.DataType `json:"types"`
	Districts []domain.District `json:"districts"`
	Empty     bool              `json:"empty"`
	domain.Report
}

// Feeds runs a one-shot aggregation for ?types= or ?mask= over ?districts=.
// An empty districts list is valid and yields an all-empty result.
func (h *Handler) Feeds(w http.ResponseWriter, r *http.Request) {
	sel, districts, ok := h.selectionFromQuery(w, r)
	if !ok {
		return
	}

	report, err := h.aggregator.Aggregate(r.Context(), sel, districts)
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, codeCancelled, "aggregation cancelled", err)
		return
	}

	h.respondData(w, feedsView{
		Types:     sel.Types(),
		Districts: districts,
		Empty:     report.Result.Empty(),
		Report:    report,
	}, Metadata{Count: countOf(report.Result.Len())})
}

type selectionRequest struct {
	Mask      *int     `json:"mask" validate:"omitempty,gte=0,lte=63"`
	Types     []string `json:"types" validate:"omitempty,dive,required"`
	Districts []int    `json:"districts" validate:"required,dive,gte=1,lte=12"`
}

type snapshotSummary struct {
	ID         string                  `json:"id"`
	Generation uint64                  `json:"generation"`
	Types      []domain.DataType       `json:"types"`
	Districts  []domain.District       `json:"districts"`
	FetchedAt  time.Time               `json:"fetched_at"`
	Counts     map[domain.DataType]int `json:"counts"`
	Failures   []domain.Failure        `json:"failures"`
}

func summarize(snap domain.Snapshot) snapshotSummary {
	return snapshotSummary{
		ID:         snap.ID,
		Generation: snap.Generation,
		Types:      snap.Types,
		Districts:  snap.Districts,
		FetchedAt:  snap.FetchedAt,
		Counts:     snap.Result.Counts(),
		Failures:   snap.Failures,
	}
}

// UpdateSelection replaces the tracked selection and refreshes it, superseding any refresh in flight.
func (h *Handler) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeValidation, "unreadable body", err)
		return
	}

	var req selectionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, codeValidation, "body must be a JSON object", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, codeValidation, validationMessage(err), nil)
		return
	}

	sel, err := resolveSelection(req.Types, req.Mask)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeInvalidSelection, err.Error(), nil)
		return
	}
	districts, err := domain.DistrictsFromInts(req.Districts)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeInvalidDistrict, err.Error(), nil)
		return
	}

	snap, err := h.refresher.Refresh(r.Context(), usecase.Request{Selection: sel, Districts: districts})
	switch {
	case errors.Is(err, usecase.ErrSuperseded):
		h.respondError(w, http.StatusConflict, codeSuperseded, "a newer selection replaced this one", nil)
		return
	case err != nil:
		h.respondError(w, http.StatusServiceUnavailable, codeCancelled, "refresh cancelled", err)
		return
	}

	h.respondData(w, summarize(snap), Metadata{Generation: snap.Generation, Count: countOf(snap.Result.Len())})
}

// Snapshot returns the latest published snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.latest(w)
	if !ok {
		return
	}
	h.respondData(w, snap, Metadata{Generation: snap.Generation, Count: countOf(snap.Result.Len())})
}

type markerView struct {
	marker.Marker
	PopupHTML string `json:"popup_html"`
}

type boundsQuery struct {
	South string `validate:"required,latitude"`
	West  string `validate:"required,longitude"`
	North string `validate:"required,latitude"`
	East  string `validate:"required,longitude"`
}

// Markers projects the latest snapshot onto map markers for ?district= and an optional viewport.
func (h *Handler) Markers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter marker.Filter
	if raw := strings.TrimSpace(q.Get("district")); raw != "" {
		districts, err := domain.ParseDistricts(raw)
		if err != nil || len(districts) != 1 {
			h.respondError(w, http.StatusBadRequest, codeInvalidDistrict, "district must be a single value in 1..12", nil)
			return
		}
		filter.District = districts[0]
	}

	bounds, err := boundsFromQuery(q.Get("south"), q.Get("west"), q.Get("north"), q.Get("east"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeInvalidBounds, err.Error(), nil)
		return
	}
	filter.Bounds = bounds

	snap, ok := h.latest(w)
	if !ok {
		return
	}

	markers := marker.Project(snap.Result, filter)
	views := make([]markerView, 0, len(markers))
	for _, m := range markers {
		html, err := m.Popup.RenderHTML()
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, codeInternal, "render popup", err)
			return
		}
		views = append(views, markerView{Marker: m, PopupHTML: html})
	}
	h.respondData(w, views, Metadata{Generation: snap.Generation, Count: countOf(len(views))})
}

// Export renders the latest snapshot in the text export format.
func (h *Handler) Export(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.latest(w)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteText(&buf, snap.Result); err != nil {
		h.respondError(w, http.StatusInternalServerError, codeInternal, "render export", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Snapshot-Generation", strconv.FormatUint(snap.Generation, 10))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) latest(w http.ResponseWriter) (domain.Snapshot, bool) {
	if h.store != nil {
		if snap, ok := h.store.Latest(); ok {
			return snap, true
		}
	}
	h.respondError(w, http.StatusNotFound, codeNoSnapshot, "no snapshot has been published yet", nil)
	return domain.Snapshot{}, false
}

func (h *Handler) selectionFromQuery(w http.ResponseWriter, r *http.Request) (domain.Selection, []domain.District, bool) {
	q := r.URL.Query()

	var types []string
	if raw := strings.TrimSpace(q.Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	var mask *int
	if raw := strings.TrimSpace(q.Get("mask")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, codeInvalidSelection, "mask must be an integer in 0..63", nil)
			return 0, nil, false
		}
		mask = &v
	}

	sel, err := resolveSelection(types, mask)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeInvalidSelection, err.Error(), nil)
		return 0, nil, false
	}

	if !q.Has("districts") {
		h.respondError(w, http.StatusBadRequest, codeInvalidDistrict, "districts is required; pass districts= for none", nil)
		return 0, nil, false
	}
	districts, err := domain.ParseDistricts(q.Get("districts"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, codeInvalidDistrict, err.Error(), nil)
		return 0, nil, false
	}
	return sel, districts, true
}

// resolveSelection prefers explicit type codes, then the mask, then every type.
func resolveSelection(types []string, mask *int) (domain.Selection, error) {
	switch {
	case len(types) > 0:
		return domain.ParseSelection(types)
	case mask != nil:
		return domain.SelectionFromMask(*mask)
	default:
		return domain.SelectionFromMask(63)
	}
}

func boundsFromQuery(south, west, north, east string) (*marker.Bounds, error) {
	if south == "" && west == "" && north == "" && east == "" {
		return nil, nil
	}
	q := boundsQuery{South: south, West: west, North: north, East: east}
	if err := validate.Struct(q); err != nil {
		return nil, errors.New(validationMessage(err))
	}

	var b marker.Bounds
	var err error
	for _, p := range []struct {
		dst *float64
		raw string
	}{{&b.South, south}, {&b.West, west}, {&b.North, north}, {&b.East, east}} {
		if *p.dst, err = strconv.ParseFloat(p.raw, 64); err != nil {
			return nil, fmt.Errorf("bounds: %w", err)
		}
	}
	if b.South > b.North || b.West > b.East {
		return nil, errors.New("bounds: south must not exceed north and west must not exceed east")
	}
	return &b, nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
