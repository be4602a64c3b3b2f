package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"blockflow/internal/codegen"
	"blockflow/internal/compile"
	"blockflow/internal/models"
	"blockflow/internal/sim"
)

// Server represents the API server: a model registry plus the simulation
// session manager behind it.
type Server struct {
	parser   *models.ModelParser
	manager  *sim.Manager
	compiled map[string]*compile.CompiledModel // by model name
	mutex    sync.RWMutex
}

// NewServer creates a new API server.
func NewServer() *Server {
	return &Server{
		parser:   models.NewModelParser(),
		manager:  sim.NewManager(),
		compiled: make(map[string]*compile.CompiledModel),
	}
}

// Close closes the server and releases resources.
func (s *Server) Close() {
	s.manager.Close()
}

// Response structures

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ModelInfo summarizes one registered model.
type ModelInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Timestep    float64             `json:"timestep"`
	Blocks      int                 `json:"blocks"`
	Connections int                 `json:"connections"`
	HasErrors   bool                `json:"hasErrors"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
}

func modelInfo(c *compile.CompiledModel) ModelInfo {
	return ModelInfo{
		Name:        c.Model.Name,
		Description: c.Model.Description,
		Timestep:    c.Model.Timestep,
		Blocks:      len(c.Flattened.Blocks),
		Connections: len(c.Flattened.Connections),
		HasErrors:   c.HasErrors(),
		Diagnostics: c.Diagnostics.Entries(),
	}
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err string, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}, message string) {
	s.writeJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// parseBody parses a model document from a request body, honoring the
// format query parameter ("yaml" or "json", default json).
func (s *Server) parseBody(r *http.Request) (*models.Model, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "yaml") {
		return s.parser.ParseYAML(data)
	}
	return s.parser.Parse(data)
}

func (s *Server) getCompiled(name string) (*compile.CompiledModel, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	c, ok := s.compiled[name]
	return c, ok
}

// LoadModel parses, compiles, and registers a model document.
// POST /api/model/load[?format=yaml]
func (s *Server) LoadModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	model, err := s.parseBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_document", err.Error())
		return
	}

	c := compile.Compile(model)
	if c.HasErrors() {
		s.writeJSON(w, http.StatusUnprocessableEntity, SuccessResponse{
			Success: false,
			Data:    modelInfo(c),
			Message: "Model has compile errors",
		})
		return
	}

	s.mutex.Lock()
	s.compiled[model.Name] = c
	s.mutex.Unlock()
	s.manager.RegisterModel(c)

	s.writeSuccess(w, modelInfo(c), "Model loaded successfully")
}

// ListModels lists registered model names. GET /api/model/list
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	s.writeSuccess(w, s.manager.ListModels(), "")
}

// GetModel returns the summary of one registered model.
// GET /api/model/get?name=...
func (s *Server) GetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Model name is required")
		return
	}
	c, ok := s.getCompiled(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "model_not_found", "Model "+name+" not found")
		return
	}
	s.writeSuccess(w, modelInfo(c), "")
}

// DeleteModel removes a model and its sessions.
// DELETE /api/model/delete?name=...
func (s *Server) DeleteModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only DELETE or POST methods are allowed")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Model name is required")
		return
	}
	if err := s.manager.UnregisterModel(name); err != nil {
		s.writeError(w, http.StatusNotFound, "model_not_found", err.Error())
		return
	}
	s.mutex.Lock()
	delete(s.compiled, name)
	s.mutex.Unlock()
	s.writeSuccess(w, nil, "Model deleted successfully")
}

// ValidateModel compiles a model document and returns its diagnostics
// without registering it. POST /api/model/validate[?format=yaml]
func (s *Server) ValidateModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	model, err := s.parseBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_document", err.Error())
		return
	}
	s.writeSuccess(w, modelInfo(compile.Compile(model)), "")
}

// CompileModel generates C code for a registered model.
// GET /api/model/compile?name=...
func (s *Server) CompileModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "Model name is required")
		return
	}
	c, ok := s.getCompiled(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "model_not_found", "Model "+name+" not found")
		return
	}
	out, err := codegen.Generate(c)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "codegen_failed", err.Error())
		return
	}
	s.writeSuccess(w, map[string]string{"name": out.Name, "source": out.Source}, "")
}
