package api

import (
	"encoding/json"
	"net/http"

	"blockflow/internal/models"
)

// CreateSessionRequest is the body of /api/simulation/create.
type CreateSessionRequest struct {
	ModelName string `json:"modelName"`
	SessionID string `json:"sessionId,omitempty"`
}

// StepRequest is the body of /api/simulation/step.
type StepRequest struct {
	SessionID string `json:"sessionId"`
	Steps     int    `json:"steps,omitempty"`
}

// RunRequest is the body of /api/simulation/run.
type RunRequest struct {
	SessionID string  `json:"sessionId"`
	Until     float64 `json:"until"`
}

// SetInputRequest is the body of /api/simulation/input. Data carries the
// flat row-major elements; a scalar is a single-element array.
type SetInputRequest struct {
	SessionID string    `json:"sessionId"`
	Port      string    `json:"port"`
	Type      string    `json:"type,omitempty"` // defaults to "double"
	Data      []float64 `json:"data"`
}

// CreateSession creates a simulation session for a registered model.
// POST /api/simulation/create
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	status, err := s.manager.CreateSession(req.SessionID, req.ModelName)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session_create_failed", err.Error())
		return
	}
	s.writeSuccess(w, status, "Session created successfully")
}

// GetSession returns a session's status. GET /api/simulation/get?id=...
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeSuccess(w, s.manager.ListSessions(), "")
		return
	}
	status, err := s.manager.GetSession(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.writeSuccess(w, status, "")
}

// StepSession advances a session by a number of steps and returns the new
// status plus current outputs. POST /api/simulation/step
func (s *Server) StepSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	var req StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	status, err := s.manager.Step(req.SessionID, req.Steps)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "step_failed", err.Error())
		return
	}
	outputs, _ := s.manager.Outputs(req.SessionID)
	s.writeSuccess(w, map[string]interface{}{
		"status":  status,
		"outputs": outputs,
	}, "")
}

// RunSession advances a session until a target time.
// POST /api/simulation/run
func (s *Server) RunSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	status, err := s.manager.RunUntil(req.SessionID, req.Until)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "run_failed", err.Error())
		return
	}
	outputs, _ := s.manager.Outputs(req.SessionID)
	s.writeSuccess(w, map[string]interface{}{
		"status":  status,
		"outputs": outputs,
	}, "")
}

// SetSessionInput sets one model-level input of a session.
// POST /api/simulation/input
func (s *Server) SetSessionInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	var req SetInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	typ := models.ScalarDouble()
	if req.Type != "" {
		parsed, err := models.ParseSignalType(req.Type)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid_type", err.Error())
			return
		}
		typ = parsed
	} else if len(req.Data) > 1 {
		typ = models.Vector(models.BaseDouble, len(req.Data))
	}
	v := models.NewValue(typ)
	copy(v.Data, req.Data)

	if err := s.manager.SetInput(req.SessionID, req.Port, v); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "set_input_failed", err.Error())
		return
	}
	s.writeSuccess(w, nil, "Input set successfully")
}

// SessionOutputs returns a session's current outputs, or one named signal
// when the signal query parameter is present.
// GET /api/simulation/outputs?id=...[&signal=name]
func (s *Server) SessionOutputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Session ID is required")
		return
	}
	if signal := r.URL.Query().Get("signal"); signal != "" {
		v, err := s.manager.Signal(id, signal)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "signal_not_found", err.Error())
			return
		}
		s.writeSuccess(w, v, "")
		return
	}
	outputs, err := s.manager.Outputs(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.writeSuccess(w, outputs, "")
}

// DeleteSession removes a session. DELETE /api/simulation/delete?id=...
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only DELETE or POST methods are allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Session ID is required")
		return
	}
	if err := s.manager.DeleteSession(id); err != nil {
		s.writeError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.writeSuccess(w, nil, "Session deleted successfully")
}
