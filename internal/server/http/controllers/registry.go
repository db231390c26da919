package controllers

import (
	"net/http"

	"github.com/rzbill/labeld/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general *GeneralController
	labels  *LabelsController
	admin   *AdminController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		labels:  NewLabelsController(rt),
		admin:   NewAdminController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This method sets up all HTTP endpoints for the labeld service: health,
// the worker-facing labeling surface, and the operator surface.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.labels.RegisterRoutes(mux)
	r.admin.RegisterRoutes(mux)
}
