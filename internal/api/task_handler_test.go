package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasks-api/internal/api/shared"
	"github.com/phrazzld/tasks-api/internal/broker"
	"github.com/phrazzld/tasks-api/internal/command"
	"github.com/phrazzld/tasks-api/internal/dispatch"
	"github.com/phrazzld/tasks-api/internal/domain"
	"github.com/phrazzld/tasks-api/internal/mocks"
	"github.com/phrazzld/tasks-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fixedMessageID = "9b2f3c1e-0d4a-4e55-8a6b-2f1f7c9d0e11"

var testActor = domain.Actor{UserID: "u1", Email: "a@b.com"}

// newTestRouter mounts the handler the way the server does, with an optional
// authenticated actor injected in place of the auth middleware.
func newTestRouter(h *TaskHandler, actor *domain.Actor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.WithTraceID(req.Context(), "test-trace")
			if actor != nil {
				ctx = shared.WithActor(ctx, *actor)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Get("/{id}", h.GetTask)
		r.Put("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
	})
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestTaskHandler_CreateTask(t *testing.T) {
	t.Parallel()

	validBody := map[string]interface{}{
		"task": map[string]interface{}{
			"title":       "  Write report  ",
			"description": "Q2 numbers",
			"dueDate":     "2025-05-01T09:00:00+02:00",
		},
	}

	tests := []struct {
		name           string
		actor          *domain.Actor
		body           interface{}
		submitErr      error
		expectedStatus int
		expectedError  string
		expectSubmit   bool
	}{
		{
			name:           "accepted",
			actor:          &testActor,
			body:           validBody,
			expectedStatus: http.StatusAccepted,
			expectSubmit:   true,
		},
		{
			name:           "missing actor",
			body:           validBody,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "Authentication required",
		},
		{
			name:           "malformed json",
			actor:          &testActor,
			body:           `{"task": {"title": }`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request format",
		},
		{
			name:           "missing task object",
			actor:          &testActor,
			body:           map[string]interface{}{"title": "flat"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid task: required field",
		},
		{
			name:  "unknown status",
			actor: &testActor,
			body: map[string]interface{}{
				"task": map[string]interface{}{"title": "a", "description": "b", "status": "archived"},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid status: invalid value",
		},
		{
			name:  "blank title rejected by command builder",
			actor: &testActor,
			body: map[string]interface{}{
				"task": map[string]interface{}{"title": "   ", "description": "b"},
			},
			submitErr: &dispatch.DispatchError{
				Action: command.ActionCreate,
				Stage:  dispatch.StageBuild,
				Err:    domain.NewValidationError("title", "is required and must be a non-empty string", domain.ErrValidation),
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid title: is required and must be a non-empty string",
			expectSubmit:   true,
		},
		{
			name:  "broker unreachable",
			actor: &testActor,
			body:  validBody,
			submitErr: &dispatch.DispatchError{
				Action:    command.ActionCreate,
				MessageID: fixedMessageID,
				Stage:     dispatch.StagePublish,
				Err:       &broker.PublishError{Queue: "taskqueue", MessageID: fixedMessageID, Err: broker.ErrNotConnected},
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "Task command could not be queued, please retry",
			expectSubmit:   true,
		},
		{
			name:  "circuit open",
			actor: &testActor,
			body:  validBody,
			submitErr: &dispatch.DispatchError{
				Action: command.ActionCreate,
				Stage:  dispatch.StagePublish,
				Err:    dispatch.ErrCircuitOpen,
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "Task commands are temporarily unavailable, please retry later",
			expectSubmit:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mocks.MockDispatchService{MessageID: fixedMessageID, DefaultError: tt.submitErr}
			h := NewTaskHandler(svc, &mocks.TestifyMockTaskStore{}, nil)

			rr := doRequest(t, newTestRouter(h, tt.actor), http.MethodPost, "/api/tasks", tt.body)
			require.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())

			if tt.expectSubmit {
				require.Len(t, svc.Calls(), 1)
			} else {
				assert.Empty(t, svc.Calls())
			}

			if tt.expectedError != "" {
				resp := decodeError(t, rr)
				assert.Equal(t, tt.expectedError, resp.Error)
				assert.Equal(t, "test-trace", resp.TraceID)
				return
			}

			var resp AcceptedResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, AcceptedResponse{Status: "accepted", MessageID: fixedMessageID, Action: "create"}, resp)

			call := svc.Calls()[0]
			assert.Equal(t, testActor, call.Actor, "actor comes from the token, never the body")
			assert.Equal(t, "Write report", call.Fields.Title)
			require.NotNil(t, call.Fields.DueDate)
			assert.Equal(t, time.UTC, call.Fields.DueDate.Location())
		})
	}
}

func TestTaskHandler_UpdateTask(t *testing.T) {
	t.Parallel()

	svc := &mocks.MockDispatchService{MessageID: fixedMessageID}
	h := NewTaskHandler(svc, &mocks.TestifyMockTaskStore{}, nil)
	router := newTestRouter(h, &testActor)

	body := map[string]interface{}{
		"task": map[string]interface{}{"title": "Write report", "description": "Q2", "status": "completed"},
	}
	rr := doRequest(t, router, http.MethodPut, "/api/tasks/t123", body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp AcceptedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "update", resp.Action)
	assert.Equal(t, "t123", resp.ResourceID)
	assert.Equal(t, fixedMessageID, resp.MessageID)

	calls := svc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "t123", calls[0].ResourceID)
	assert.Equal(t, domain.TaskStatusCompleted, calls[0].Fields.Status)

	long := make([]byte, maxResourceIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	rr = doRequest(t, router, http.MethodPut, "/api/tasks/"+string(long), body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, svc.Calls(), 1)
}

func TestTaskHandler_DeleteTask(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		svc := &mocks.MockDispatchService{MessageID: fixedMessageID}
		h := NewTaskHandler(svc, &mocks.TestifyMockTaskStore{}, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodDelete, "/api/tasks/t123", nil)
		require.Equal(t, http.StatusAccepted, rr.Code)

		var resp AcceptedResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "delete", resp.Action)
		assert.Equal(t, "t123", resp.ResourceID)
	})

	t.Run("channel closed mid-call", func(t *testing.T) {
		t.Parallel()
		svc := &mocks.MockDispatchService{
			SubmitDeleteFn: func(ctx context.Context, resourceID string, actor domain.Actor) (*dispatch.Receipt, error) {
				return nil, &dispatch.DispatchError{
					Action:     command.ActionDelete,
					ResourceID: resourceID,
					MessageID:  fixedMessageID,
					Stage:      dispatch.StagePublish,
					Err:        &broker.PublishError{Queue: "taskqueue", Err: errors.New("channel/connection is not open")},
				}
			},
		}
		h := NewTaskHandler(svc, &mocks.TestifyMockTaskStore{}, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodDelete, "/api/tasks/t123", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.NotContains(t, rr.Body.String(), "channel/connection")
	})
}

func TestTaskHandler_ListTasks(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	tasks := []*domain.Task{{
		ID:          uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		UserID:      "u1",
		Title:       "Write report",
		Description: "Q2",
		Status:      domain.TaskStatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}}

	t.Run("paginated", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		taskStore.On("ListByUser", mock.Anything, "u1", 10, 20).Return(tasks, nil)
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks?limit=10&offset=20", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp TaskListResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp.Status)
		assert.Equal(t, 10, resp.Limit)
		assert.Equal(t, 20, resp.Offset)
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, "Write report", resp.Tasks[0].Title)
		taskStore.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		taskStore.On("ListByUser", mock.Anything, "u1", store.DefaultListLimit, 0).Return([]*domain.Task{}, nil)
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		taskStore.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid limit: must be a positive integer", decodeError(t, rr).Error)
		taskStore.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		taskStore.On("ListByUser", mock.Anything, "u1", store.DefaultListLimit, 0).
			Return(nil, errors.New("pq: connection refused to postgres://app:pw@db/tasks"))
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Failed to retrieve tasks", decodeError(t, rr).Error)
	})
}

func TestTaskHandler_GetTask(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		taskStore.On("GetByID", mock.Anything, id, "u1").
			Return(&domain.Task{ID: id, UserID: "u1", Title: "Write report", Status: domain.TaskStatusPending}, nil)
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks/"+id.String(), nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.Task.ID)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		taskStore := &mocks.TestifyMockTaskStore{}
		taskStore.On("GetByID", mock.Anything, id, "u1").Return(nil, store.ErrTaskNotFound)
		h := NewTaskHandler(&mocks.MockDispatchService{}, taskStore, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks/"+id.String(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Task not found", decodeError(t, rr).Error)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()
		h := NewTaskHandler(&mocks.MockDispatchService{}, &mocks.TestifyMockTaskStore{}, nil)

		rr := doRequest(t, newTestRouter(h, &testActor), http.MethodGet, "/api/tasks/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid id: has invalid format", decodeError(t, rr).Error)
	})

	t.Run("missing actor", func(t *testing.T) {
		t.Parallel()
		h := NewTaskHandler(&mocks.MockDispatchService{}, &mocks.TestifyMockTaskStore{}, nil)

		rr := doRequest(t, newTestRouter(h, nil), http.MethodGet, "/api/tasks/"+id.String(), nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
