package controllers

import (
	"net/http"

	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/runtime"
	"github.com/rzbill/labeld/internal/scorestore"
	"github.com/rzbill/labeld/pkg/id"
)

// AdminController handles operator endpoints: queue introspection, manual
// reconciliation, and datapoint intake.
type AdminController struct {
	rt  *runtime.Runtime
	gen *id.Generator
}

// NewAdminController creates a new admin controller.
func NewAdminController(rt *runtime.Runtime) *AdminController {
	return &AdminController{rt: rt, gen: id.NewGenerator()}
}

// RegisterRoutes registers admin routes with the given mux.
func (c *AdminController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/queues/stats", c.handleQueueStats)
	mux.HandleFunc("/v1/queues/seed", c.handleSeed)
	mux.HandleFunc("/v1/datapoints", c.handleCreateDatapoint)
}

// handleQueueStats reports depth, eligibility, and in-flight totals for
// both queues.
func (c *AdminController) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	mcq, err := c.rt.Engine().QueueStats(r.Context(), scorestore.QueueMCQ)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}
	txt, err := c.rt.Engine().QueueStats(r.Context(), scorestore.QueueText)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read queue stats")
		return
	}
	writeJSON(w, map[string]any{"mcq": mcq, "txt": txt})
}

// handleSeed triggers an immediate reconciliation pass.
func (c *AdminController) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	inserted, dropped, err := c.rt.Seeder().SeedOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Seed pass failed")
		return
	}
	writeJSON(w, map[string]int{"inserted": inserted, "dropped": dropped})
}

// handleCreateDatapoint stores a new datapoint and makes it assignable
// right away via a reconciliation pass. An omitted ID gets a generated,
// time-sortable one.
func (c *AdminController) handleCreateDatapoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req datapointCreateReq
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = c.gen.Next().String()
	}

	d := &docstore.Datapoint{
		ID:       req.ID,
		MediaURL: req.MediaURL,
		Priority: req.Priority,
	}
	d.PreLabel.Keywords = req.Keywords
	d.PreLabel.MapPlacement = req.MapPlacement
	for _, q := range req.Questions {
		d.PreLabel.Questions = append(d.PreLabel.Questions, docstore.Question{Text: q.Text})
	}
	if err := c.rt.Datapoints().Put(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store datapoint")
		return
	}
	if _, _, err := c.rt.Seeder().SeedOnce(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Stored but failed to enqueue")
		return
	}
	writeCreated(w, map[string]string{"id": d.ID})
}
