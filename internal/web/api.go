package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Live swarm state
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	mux.HandleFunc("GET /api/agents/{id}/messages", s.getAgentMessages)
	mux.HandleFunc("GET /api/templates", s.listTemplates)
	mux.HandleFunc("GET /api/stats", s.getStats)

	// Task records
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("GET /api/tasks/{id}/runs", s.listTaskRuns)

	// Activity
	mux.HandleFunc("GET /api/activity", s.listActivity)
	mux.HandleFunc("GET /api/activity/export", s.exportActivity)

	// System
	mux.HandleFunc("GET /api/health", s.getHealth)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.runtime.All()
	if project := r.URL.Query().Get("project"); project != "" {
		agents = s.runtime.ByProject(project)
	}
	jsonResponse(w, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	inst := s.runtime.Get(r.PathValue("id"))
	if inst == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, inst)
}

func (s *Server) getAgentMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.runtime.Get(id) == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, s.runtime.MessagesFor(id))
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.registry.All())
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.runtime.Stats())
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if task == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, task)
}

func (s *Server) listTaskRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRunsForTask(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, runs)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.ListActivity(r.URL.Query().Get("task"), limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, entries)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"status":  s.router.Health(),
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
