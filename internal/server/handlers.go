package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/appello-dev/appello/internal/models"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a standard error JSON response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// limitParam reads the ?limit query parameter, defaulting to 50.
func limitParam(r *http.Request) int {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// enqueueRequest is the POST /api/tasks body.
type enqueueRequest struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Priority int             `json:"priority"`
	Owner    string          `json:"owner"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.storage.TaskStorage().ListTasks(r.Context(), limitParam(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks, "count": len(tasks)})

	case http.MethodPost:
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		taskType := models.TaskType(req.Type)
		switch taskType {
		case models.TaskTypeDiscover:
		case models.TaskTypeApply:
			// Apply tasks must carry a decodable payload; rejecting here
			// keeps garbage out of the queue.
			task := &models.Task{Type: taskType, Payload: req.Payload}
			if _, err := task.DecodeApplyPayload(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown task type "+req.Type)
			return
		}

		taskID, err := s.storage.TaskStorage().Enqueue(r.Context(), taskType, req.Payload, req.Priority, req.Owner)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"task_id": taskID, "status": "queued"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}

	task, err := s.storage.TaskStorage().GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	postings, err := s.storage.PostingStorage().List(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": postings, "count": len(postings)})
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	list, err := s.storage.ProposalStorage().List(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": list, "count": len(list)})
}

// handleGenerate kicks off proposal generation for one posting. The
// work runs in the background; progress is visible through the
// posting's generation status.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "proposal generation is not configured")
		return
	}

	var req struct {
		JobURL string `json:"job_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobURL == "" {
		writeError(w, http.StatusBadRequest, "job_url is required")
		return
	}

	if _, err := s.storage.PostingStorage().GetByURL(r.Context(), req.JobURL); err != nil {
		writeError(w, http.StatusNotFound, "posting not found")
		return
	}

	go func() {
		ctx := context.Background()
		if _, err := s.generator.Generate(ctx, req.JobURL); err != nil {
			s.logger.Error().Err(err).Str("job_url", req.JobURL).Msg("Proposal generation failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "proposal generation started",
	})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"prompt": s.prompts.Get()})

	case http.MethodPut:
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.prompts.Set(r.Context(), req.Prompt); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
