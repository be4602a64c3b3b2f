package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"blockflow/internal/compile"
	"blockflow/internal/models"
)

// Session is one running simulation bound to a registered model.
type Session struct {
	ID        string    `json:"id"`
	ModelName string    `json:"modelName"`
	CreatedAt time.Time `json:"createdAt"`

	engine *Engine
}

// Status is a point-in-time snapshot of a session for API responses.
type Status struct {
	ID        string    `json:"id"`
	ModelName string    `json:"modelName"`
	Time      float64   `json:"time"`
	Steps     int       `json:"steps"`
	Timestep  float64   `json:"timestep"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) status() *Status {
	return &Status{
		ID:        s.ID,
		ModelName: s.ModelName,
		Time:      s.engine.Time(),
		Steps:     s.engine.StepCount(),
		Timestep:  s.engine.Timestep(),
		CreatedAt: s.CreatedAt,
	}
}

// Manager handles simulation session lifecycle: registered compiled models
// and the sessions running against them. Safe for concurrent use.
type Manager struct {
	models   map[string]*compile.CompiledModel
	sessions map[string]*Session
	mutex    sync.RWMutex
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		models:   make(map[string]*compile.CompiledModel),
		sessions: make(map[string]*Session),
	}
}

// RegisterModel stores a compiled model under its name, replacing any
// previous registration of the same name.
func (m *Manager) RegisterModel(c *compile.CompiledModel) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.models[c.Model.Name] = c
}

// UnregisterModel removes a model and closes every session running it.
func (m *Manager) UnregisterModel(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.models[name]; !exists {
		return fmt.Errorf("model %s not found", name)
	}
	delete(m.models, name)

	for id, s := range m.sessions {
		if s.ModelName == name {
			s.engine.Close()
			delete(m.sessions, id)
		}
	}
	return nil
}

// GetModel retrieves a registered compiled model.
func (m *Manager) GetModel(name string) (*compile.CompiledModel, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	c, exists := m.models[name]
	if !exists {
		return nil, fmt.Errorf("model %s not found", name)
	}
	return c, nil
}

// ListModels returns the registered model names, sorted.
func (m *Manager) ListModels() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.models))
	for name := range m.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateSession builds a new engine for the named model. An empty session
// id is replaced with a generated one.
func (m *Manager) CreateSession(sessionID, modelName string) (*Status, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c, exists := m.models[modelName]
	if !exists {
		return nil, fmt.Errorf("model %s not found", modelName)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}

	engine, err := NewEngine(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine for model %s: %w", modelName, err)
	}

	s := &Session{
		ID:        sessionID,
		ModelName: modelName,
		CreatedAt: time.Now(),
		engine:    engine,
	}
	m.sessions[sessionID] = s
	return s.status(), nil
}

// GetSession returns the status of a session.
func (m *Manager) GetSession(sessionID string) (*Status, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return s.status(), nil
}

// ListSessions returns the status of every session, sorted by id.
func (m *Manager) ListSessions() []*Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]*Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteSession closes a session's engine and removes it.
func (m *Manager) DeleteSession(sessionID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %s not found", sessionID)
	}
	s.engine.Close()
	delete(m.sessions, sessionID)
	return nil
}

// SetInput supplies a value for one of a session's model-level input ports.
func (m *Manager) SetInput(sessionID, port string, v *models.Value) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return s.engine.SetInput(port, v)
}

// Step advances a session by n steps and returns its new status.
func (m *Manager) Step(sessionID string, n int) (*Status, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if n <= 0 {
		n = 1
	}
	if err := s.engine.Run(n); err != nil {
		return nil, err
	}
	return s.status(), nil
}

// RunUntil advances a session until its time reaches end.
func (m *Manager) RunUntil(sessionID string, end float64) (*Status, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err := s.engine.RunUntil(end); err != nil {
		return nil, err
	}
	return s.status(), nil
}

// Outputs returns the current model-level output values of a session.
func (m *Manager) Outputs(sessionID string) (map[string]*models.Value, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return s.engine.Outputs(), nil
}

// Signal returns the current value of one named block output in a session.
func (m *Manager) Signal(sessionID, name string) (*models.Value, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	v, ok := s.engine.Signal(name)
	if !ok {
		return nil, fmt.Errorf("no signal named %s", name)
	}
	return v, nil
}

// Close closes every session.
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for id, s := range m.sessions {
		s.engine.Close()
		delete(m.sessions, id)
	}
}
