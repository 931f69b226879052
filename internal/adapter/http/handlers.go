package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/scoring"
)

const (
	defaultTopN          = 20
	defaultTrackingWeeks = 4
	defaultRadiusM       = 1000
)

type handlers struct {
	svc    *scoring.Service
	logger *slog.Logger
}

func (h *handlers) routes(r chi.Router) {
	r.Get("/units", h.listUnits)
	r.Post("/units", h.createUnit)
	r.Get("/units/within/geo", h.unitsWithin)
	r.Get("/units/{unit_id}", h.getUnit)

	r.Get("/comfort-index", h.listScores)
	r.Post("/comfort-index/compute", h.compute)
	r.Get("/comfort-index/{unit_id}", h.getScore)

	r.Get("/priority-queue", h.priorityQueue)
	r.Get("/geo/comfort-index.geojson", h.scoreGeoJSON)
	r.Get("/geo/priority.geojson", h.priorityGeoJSON)

	r.Get("/action-cards", h.actionCards)

	r.Post("/anomaly/compute", h.computeAnomalies)
	r.Get("/anomaly", h.listAnomalies)
	r.Get("/anomaly/{unit_id}", h.getAnomaly)

	r.Post("/interventions", h.createIntervention)
	r.Get("/interventions", h.listInterventions)
	r.Get("/interventions/{intervention_id}/tracking", h.tracking)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, h.logger, r, err)
}

func (h *handlers) listUnits(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", scoring.DefaultUnitLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	units, err := h.svc.ListSpatialUnits(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *handlers) createUnit(w http.ResponseWriter, r *http.Request) {
	var u domain.SpatialUnit
	if err := decodeJSON(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.CreateSpatialUnit(r.Context(), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) unitsWithin(w http.ResponseWriter, r *http.Request) {
	var c domain.Circle
	var err error
	if c.Lng, err = requiredFloat(r, "lng"); err != nil {
		h.fail(w, r, err)
		return
	}
	if c.Lat, err = requiredFloat(r, "lat"); err != nil {
		h.fail(w, r, err)
		return
	}
	if c.RadiusM, err = queryFloat(r, "radius_m", defaultRadiusM); err != nil {
		h.fail(w, r, err)
		return
	}
	units, err := h.svc.UnitsWithin(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *handlers) getUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := h.svc.GetSpatialUnit(r.Context(), chi.URLParam(r, "unit_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *handlers) listScores(w http.ResponseWriter, r *http.Request) {
	topK, err := queryInt(r, "top_k", domain.MaxResults)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grade := domain.Grade(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("grade"))))
	records, err := h.svc.ListScores(r.Context(), queryDate(r), grade, topK)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) getScore(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetScore(r.Context(), chi.URLParam(r, "unit_id"), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type computeRequest struct {
	UnitID      string `json:"unit_id"`
	Date        string `json:"date"`
	WindowWeeks *int   `json:"window_weeks"`
	UsePigeon   *bool  `json:"use_pigeon"`
}

func (h *handlers) compute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	opts := h.svc.Options()
	if req.WindowWeeks != nil {
		opts.WindowWeeks = *req.WindowWeeks
	}
	if req.UsePigeon != nil {
		opts.UsePigeon = *req.UsePigeon
	}
	if req.Date == "" {
		req.Date = domain.Today()
	}

	if strings.TrimSpace(req.UnitID) == "" {
		res, err := h.svc.ComputeAll(r.Context(), req.Date, opts.WindowWeeks, opts.UsePigeon)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	out, err := h.svc.ComputeUCIForUnit(r.Context(), req.UnitID, req.Date, opts.WindowWeeks, opts.UsePigeon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out.Status == scoring.StatusUnitNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "spatial unit not found: "+req.UnitID)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) priorityQueue(w http.ResponseWriter, r *http.Request) {
	topN, err := queryInt(r, "top_n", defaultTopN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.GetPriorityQueue(r.Context(), queryDate(r), topN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) scoreGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := h.svc.ExportGeoJSON(r.Context(), queryDate(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeGeoJSON(w, fc)
}

func (h *handlers) priorityGeoJSON(w http.ResponseWriter, r *http.Request) {
	topN, err := queryInt(r, "top_n", defaultTopN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fc, err := h.svc.ExportPriorityGeoJSON(r.Context(), queryDate(r), topN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeGeoJSON(w, fc)
}

func writeGeoJSON(w http.ResponseWriter, fc domain.FeatureCollection) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(fc) //nolint:errcheck // client may be gone
}

func (h *handlers) actionCards(w http.ResponseWriter, r *http.Request) {
	usePigeon, err := queryBool(r, "use_pigeon", h.svc.Options().UsePigeon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cards, err := h.svc.GenerateActionCards(r.Context(), queryDate(r), queryList(r, "unit_id"), usePigeon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *handlers) createIntervention(w http.ResponseWriter, r *http.Request) {
	var req scoring.CreateInterventionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	iv, err := h.svc.CreateIntervention(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (h *handlers) listInterventions(w http.ResponseWriter, r *http.Request) {
	ivs, err := h.svc.ListInterventions(r.Context(), r.URL.Query().Get("unit_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ivs)
}

func (h *handlers) tracking(w http.ResponseWriter, r *http.Request) {
	baseline, err := queryInt(r, "baseline_weeks", defaultTrackingWeeks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	followup, err := queryInt(r, "followup_weeks", defaultTrackingWeeks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.svc.GetTracking(r.Context(), chi.URLParam(r, "intervention_id"), baseline, followup)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) computeAnomalies(w http.ResponseWriter, r *http.Request) {
	var req scoring.AnomalyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Date == "" {
		req.Date = domain.Today()
	}
	req.UnitID = strings.TrimSpace(req.UnitID)
	batch, err := h.svc.ComputeAnomalies(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *handlers) listAnomalies(w http.ResponseWriter, r *http.Request) {
	var flagged *bool
	if r.URL.Query().Get("anomaly_flag") != "" {
		f, err := queryBool(r, "anomaly_flag", false)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		flagged = &f
	}
	q := r.URL.Query()
	results, err := h.svc.ListAnomalies(r.Context(), strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("unit_id")), flagged)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handlers) getAnomaly(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetAnomaly(r.Context(), chi.URLParam(r, "unit_id"), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
