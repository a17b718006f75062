package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mediaTranscode/api/dto"
	"mediaTranscode/api/middleware"
	"mediaTranscode/api/repository"
	"mediaTranscode/api/service"
	"mediaTranscode/api/validation"
)

type TaskService interface {
	SubmitTask(ctx context.Context, traceID string, req *dto.SubmitTaskRequest) (*dto.SubmitTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*dto.TaskStatusResponse, error)
	CancelTask(ctx context.Context, taskID string) error
}

type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

func NewTaskHandler(service TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	if err := validation.ValidateRequest(&req); err != nil {
		h.handleError(w, err.Error(), err, traceID, http.StatusUnprocessableEntity)
		return
	}

	resp, err := h.service.SubmitTask(r.Context(), traceID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrTaskAlreadyExists) {
			h.handleError(w, "Task already exists", err, traceID, http.StatusConflict)
			return
		}
		h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("Task submitted",
		zap.String("trace_id", traceID),
		zap.String("task_id", resp.TaskID),
		zap.Int("profiles", len(req.Profiles)),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/status/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, dto.ErrTaskNotFound) {
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if r.Method != http.MethodDelete {
		h.handleError(w, "Method not allowed", nil, traceID, http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/cancel/")
	if taskID == "" {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	err := h.service.CancelTask(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrTaskNotFound):
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
		case errors.Is(err, service.ErrTaskFinished):
			h.handleError(w, "Task already finished", err, traceID, http.StatusConflict)
		default:
			h.handleError(w, "Failed to cancel task", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
