package api

import (
	"log"
	"net/http"
)

// SetupRoutes sets up the HTTP routes for the API server.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Model management
	mux.HandleFunc("/api/model/load", s.corsMiddleware(s.LoadModel))
	mux.HandleFunc("/api/model/list", s.corsMiddleware(s.ListModels))
	mux.HandleFunc("/api/model/get", s.corsMiddleware(s.GetModel))
	mux.HandleFunc("/api/model/delete", s.corsMiddleware(s.DeleteModel))
	mux.HandleFunc("/api/model/validate", s.corsMiddleware(s.ValidateModel))
	mux.HandleFunc("/api/model/compile", s.corsMiddleware(s.CompileModel))

	// Simulation sessions
	mux.HandleFunc("/api/simulation/create", s.corsMiddleware(s.CreateSession))
	mux.HandleFunc("/api/simulation/get", s.corsMiddleware(s.GetSession))
	mux.HandleFunc("/api/simulation/step", s.corsMiddleware(s.StepSession))
	mux.HandleFunc("/api/simulation/run", s.corsMiddleware(s.RunSession))
	mux.HandleFunc("/api/simulation/input", s.corsMiddleware(s.SetSessionInput))
	mux.HandleFunc("/api/simulation/outputs", s.corsMiddleware(s.SessionOutputs))
	mux.HandleFunc("/api/simulation/delete", s.corsMiddleware(s.DeleteSession))

	// Health check endpoint
	mux.HandleFunc("/api/health", s.corsMiddleware(s.HealthCheck))

	return mux
}

// StartServer starts the HTTP server on the given port.
func (s *Server) StartServer(port string) error {
	mux := s.SetupRoutes()
	log.Printf("Server listening on port %s", port)
	return http.ListenAndServe(":"+port, mux)
}

// corsMiddleware adds CORS headers to allow cross-origin requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// HealthCheck returns the health status of the API.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	s.mutex.RLock()
	modelCount := len(s.compiled)
	s.mutex.RUnlock()

	status := map[string]interface{}{
		"status":  "healthy",
		"service": "blockflow",
		"version": "1.0.0",
		"models":  modelCount,
	}

	s.writeSuccess(w, status, "Service is healthy")
}
