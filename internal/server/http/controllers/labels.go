package controllers

import (
	"errors"
	"net/http"

	"github.com/rzbill/labeld/internal/dispatch"
	"github.com/rzbill/labeld/internal/docstore"
	"github.com/rzbill/labeld/internal/runtime"
)

// LabelsController handles the worker-facing labeling endpoints: drawing
// assignments from both queues and submitting answers.
type LabelsController struct {
	rt *runtime.Runtime
}

// NewLabelsController creates a new labels controller.
func NewLabelsController(rt *runtime.Runtime) *LabelsController {
	return &LabelsController{rt: rt}
}

// RegisterRoutes registers labeling routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Drawing assignments (/v1/labels/mcq/draw, /v1/labels/txt/draw)
// - Submitting answers (/v1/labels/mcq/submit, /v1/labels/txt/submit)
func (c *LabelsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/labels/mcq/draw", c.handleDrawMCQ)
	mux.HandleFunc("/v1/labels/mcq/submit", c.handleSubmitMCQ)
	mux.HandleFunc("/v1/labels/txt/draw", c.handleDrawText)
	mux.HandleFunc("/v1/labels/txt/submit", c.handleSubmitText)
}

// handleDrawMCQ assigns multiple-choice datapoints to the caller.
//
// An empty queue and a fully-occupied queue both return 200 with an empty
// list and a reason, so clients can tell "come back later" from an error.
func (c *LabelsController) handleDrawMCQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req drawReq
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	out, err := c.rt.Engine().DrawMCQ(r.Context(), req.Count)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrQueueEmpty):
			writeJSON(w, map[string]any{"datapoints": []docstore.Datapoint{}, "reason": "queue_empty"})
		case errors.Is(err, dispatch.ErrNoEligible):
			writeJSON(w, map[string]any{"datapoints": []docstore.Datapoint{}, "reason": "all_assigned"})
		default:
			writeDispatchError(w, err)
		}
		return
	}
	writeJSON(w, map[string]any{"datapoints": out})
}

// handleSubmitMCQ records multiple-choice answers, single or batched.
func (c *LabelsController) handleSubmitMCQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req mcqSubmitReq
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var subs []mcqSubmission
	switch {
	case req.DatapointID != "" && len(req.Submissions) == 0:
		subs = []mcqSubmission{{DatapointID: req.DatapointID, Answers: req.Answers}}
	case req.DatapointID == "" && len(req.Submissions) > 0:
		subs = req.Submissions
	default:
		writeError(w, http.StatusBadRequest, "provide either datapoint_id+answers or submissions")
		return
	}

	accepted := 0
	for _, sub := range subs {
		if err := c.rt.Engine().SubmitMCQ(r.Context(), sub.DatapointID, sub.Answers, req.WorkerID); err != nil {
			// Batch semantics: report how far we got alongside the failure.
			writeJSON(w, map[string]any{"accepted": accepted, "error": err.Error()})
			return
		}
		accepted++
	}
	writeJSON(w, map[string]any{"accepted": accepted})
}

// handleDrawText assigns flagged questions to the caller.
func (c *LabelsController) handleDrawText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req drawReq
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	out, err := c.rt.Engine().DrawText(r.Context(), req.Count)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	if out == nil {
		out = []dispatch.TextQuestion{}
	}
	writeJSON(w, map[string]any{"questions": out})
}

// handleSubmitText records one free-text answer.
func (c *LabelsController) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req txtSubmitReq
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := c.rt.Engine().SubmitText(r.Context(), req.DatapointID, *req.QuestionIndex, req.Answer, req.WorkerID); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "accepted"})
}
