package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/tasks-api/internal/api/shared"
	"github.com/phrazzld/tasks-api/internal/dispatch"
	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/store"
)

const acceptedStatus = "accepted"

// TaskHandler handles task HTTP requests. Writes become queued commands;
// reads come from the task store.
type TaskHandler struct {
	dispatcher dispatch.Service
	tasks      store.TaskStore
	logger     *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(dispatcher dispatch.Service, tasks store.TaskStore, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		dispatcher: dispatcher,
		tasks:      tasks,
		logger:     logger.With("component", "task_handler"),
	}
}

// CreateTask handles POST /api/tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.dispatcher.SubmitCreate(r.Context(), req.Task.Fields(), actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	h.accepted(w, r, receipt)
}

// UpdateTask handles PUT /api/tasks/{id}.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	resourceID, err := getPathResourceID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	req, ok := h.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	receipt, err := h.dispatcher.SubmitUpdate(r.Context(), resourceID, req.Task.Fields(), actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}

	h.accepted(w, r, receipt)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	resourceID, err := getPathResourceID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	receipt, err := h.dispatcher.SubmitDelete(r.Context(), resourceID, actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}

	h.accepted(w, r, receipt)
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit, offset, err := getPagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.tasks.ListByUser(r.Context(), actor.UserID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Status: "success",
		Tasks:  tasks,
		Limit:  limit,
		Offset: offset,
	})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := handleActorAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(r.Context(), taskID, actor.UserID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{Status: "success", Task: task})
}

func (h *TaskHandler) decodeTaskRequest(w http.ResponseWriter, r *http.Request) (*TaskRequest, bool) {
	var req TaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return nil, false
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return nil, false
	}
	return &req, true
}

func (h *TaskHandler) accepted(w http.ResponseWriter, r *http.Request, receipt *dispatch.Receipt) {
	logger.FromContextOrDefault(r.Context(), h.logger).Debug("task command accepted",
		slog.String("message_id", receipt.MessageID),
		slog.String("action", string(receipt.Action)))

	shared.RespondWithJSON(w, r, http.StatusAccepted, AcceptedResponse{
		Status:     acceptedStatus,
		MessageID:  receipt.MessageID,
		Action:     string(receipt.Action),
		ResourceID: receipt.ResourceID,
	})
}
