package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// RunRequest is the body of POST /workflows.
type RunRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	Request   map[string]any `json:"request"`
}

// ResumeRequest is the body of POST /workflows/{id}/resume. Answer is a
// shorthand for {"customer_answer": answer}; Input is merged as is.
type ResumeRequest struct {
	Answer *string        `json:"answer,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

// WorkflowList is the response of GET /workflows.
type WorkflowList struct {
	Workflows []string `json:"workflows"`
}

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ListWorkflowsParams defines parameters for ListWorkflows.
type ListWorkflowsParams struct {
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}

// GetAuditParams defines parameters for GetAudit.
type GetAuditParams struct {
	Since *int `form:"since,omitempty" json:"since,omitempty"`
}

// SubscribeEventsParams defines parameters for SubscribeEvents.
type SubscribeEventsParams struct {
	Watch *string `form:"watch,omitempty" json:"watch,omitempty"`
}

// ServerInterface represents all server handlers of openapi.yaml.
type ServerInterface interface {
	ListWorkflows(w http.ResponseWriter, r *http.Request, params ListWorkflowsParams)
	RunWorkflow(w http.ResponseWriter, r *http.Request)
	GetWorkflow(w http.ResponseWriter, r *http.Request, id string)
	DeleteWorkflow(w http.ResponseWriter, r *http.Request, id string)
	ResumeWorkflow(w http.ResponseWriter, r *http.Request, id string)
	RecoverWorkflow(w http.ResponseWriter, r *http.Request, id string)
	CancelWorkflow(w http.ResponseWriter, r *http.Request, id string)
	GetAudit(w http.ResponseWriter, r *http.Request, id string, params GetAuditParams)
	SubscribeEvents(w http.ResponseWriter, r *http.Request, id string, params SubscribeEventsParams)
	ListStages(w http.ResponseWriter, r *http.Request)
	GetHealth(w http.ResponseWriter, r *http.Request)
	GetInfo(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError reports a parameter that could not be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper binds path and query parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return "", false
	}
	return id, true
}

func (siw *ServerInterfaceWrapper) queryInt(w http.ResponseWriter, r *http.Request, name string, dest **int) bool {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

func (siw *ServerInterfaceWrapper) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	var params ListWorkflowsParams
	if !siw.queryInt(w, r, "limit", &params.Limit) {
		return
	}
	siw.Handler.ListWorkflows(w, r, params)
}

func (siw *ServerInterfaceWrapper) RunWorkflow(w http.ResponseWriter, r *http.Request) {
	siw.Handler.RunWorkflow(w, r)
}

func (siw *ServerInterfaceWrapper) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathID(w, r); ok {
		siw.Handler.GetWorkflow(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathID(w, r); ok {
		siw.Handler.DeleteWorkflow(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathID(w, r); ok {
		siw.Handler.ResumeWorkflow(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) RecoverWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathID(w, r); ok {
		siw.Handler.RecoverWorkflow(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathID(w, r); ok {
		siw.Handler.CancelWorkflow(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	var params GetAuditParams
	if !siw.queryInt(w, r, "since", &params.Since) {
		return
	}
	siw.Handler.GetAudit(w, r, id, params)
}

func (siw *ServerInterfaceWrapper) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathID(w, r)
	if !ok {
		return
	}
	var params SubscribeEventsParams
	if err := runtime.BindQueryParameter("form", true, false, "watch", r.URL.Query(), &params.Watch); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "watch", Err: err})
		return
	}
	siw.Handler.SubscribeEvents(w, r, id, params)
}

func (siw *ServerInterfaceWrapper) ListStages(w http.ResponseWriter, r *http.Request) {
	siw.Handler.ListStages(w, r)
}

func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetHealth(w, r)
}

func (siw *ServerInterfaceWrapper) GetInfo(w http.ResponseWriter, r *http.Request) {
	siw.Handler.GetInfo(w, r)
}

// HandlerFromMux registers the API routes of si on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		},
	}

	r.Get("/workflows", wrapper.ListWorkflows)
	r.Post("/workflows", wrapper.RunWorkflow)
	r.Get("/workflows/{id}", wrapper.GetWorkflow)
	r.Delete("/workflows/{id}", wrapper.DeleteWorkflow)
	r.Post("/workflows/{id}/resume", wrapper.ResumeWorkflow)
	r.Post("/workflows/{id}/recover", wrapper.RecoverWorkflow)
	r.Post("/workflows/{id}/cancel", wrapper.CancelWorkflow)
	r.Get("/workflows/{id}/audit", wrapper.GetAudit)
	r.Get("/workflows/{id}/events", wrapper.SubscribeEvents)
	r.Get("/stages", wrapper.ListStages)
	r.Get("/health", wrapper.GetHealth)
	r.Get("/info", wrapper.GetInfo)
	return r
}
