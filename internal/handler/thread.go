package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
	"labmate/internal/handler/sse"
	"labmate/internal/httputil"
	"labmate/internal/service/clarify"
	orch "labmate/internal/service/orchestration"
)

// ThreadService is the orchestration surface the HTTP API exposes.
type ThreadService interface {
	CreateThread(ctx context.Context, meta orch.ThreadMeta) (*orchestration.ConversationState, error)
	GetThread(ctx context.Context, threadID string) (*orchestration.ConversationState, error)
	DeleteThread(ctx context.Context, threadID string) error
	Run(ctx context.Context, req *orch.RunRequest, sink services.EventSink) (*orch.TurnResult, error)
	Resume(ctx context.Context, req *orch.ResumeRequest, sink services.EventSink) (*orch.TurnResult, error)
	WizardStep(ctx context.Context, req *orch.WizardRequest, sink services.EventSink) (*orch.WizardResult, error)
}

// ThreadHandler handles conversation thread HTTP requests
type ThreadHandler struct {
	threads ThreadService
	sse     *sse.Config
	logger  *slog.Logger
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(threads ThreadService, sseConfig *sse.Config, logger *slog.Logger) *ThreadHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &ThreadHandler{
		threads: threads,
		sse:     sseConfig,
		logger:  logger,
	}
}

type createThreadRequest struct {
	LearningStyle string `json:"learning_style"`
	TaskType      string `json:"task_type"`
}

type postMessageRequest struct {
	Message       string `json:"message"`
	LearningStyle string `json:"learning_style"`
	TaskType      string `json:"task_type"`
}

type resumeRequest struct {
	Answers map[string]string `json:"answers"`
}

type wizardRequest struct {
	Action clarify.Action `json:"action"`
	Answer string         `json:"answer"`
}

// HealthCheck reports liveness
// GET /health
func (h *ThreadHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateThread creates an empty thread
// POST /api/threads
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := httputil.GetIdentity(r)
	state, err := h.threads.CreateThread(r.Context(), orch.ThreadMeta{
		UserName:      id.UserName,
		CustomerID:    id.CustomerID,
		LearningStyle: req.LearningStyle,
		TaskType:      req.TaskType,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, state)
}

// GetThread returns the persisted state of a thread
// GET /api/threads/{id}
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	state, err := h.threads.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// DeleteThread deletes a thread
// DELETE /api/threads/{id}
func (h *ThreadHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := h.threads.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage runs a turn and streams its events
// POST /api/threads/{id}/messages
func (h *ThreadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := httputil.GetIdentity(r)
	run := &orch.RunRequest{
		ThreadID: r.PathValue("id"),
		Message:  req.Message,
		ThreadMeta: orch.ThreadMeta{
			UserName:      id.UserName,
			CustomerID:    id.CustomerID,
			LearningStyle: req.LearningStyle,
			TaskType:      req.TaskType,
		},
	}

	h.stream(w, r, func(ctx context.Context, sink services.EventSink) (*orch.TurnResult, error) {
		return h.threads.Run(ctx, run, sink)
	})
}

// Resume answers pending clarification questions and streams the continued run
// POST /api/threads/{id}/resume
func (h *ThreadHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resume := &orch.ResumeRequest{ThreadID: r.PathValue("id"), Answers: req.Answers}
	h.stream(w, r, func(ctx context.Context, sink services.EventSink) (*orch.TurnResult, error) {
		return h.threads.Resume(ctx, resume, sink)
	})
}

// Wizard applies one step of a stepwise clarification
// POST /api/threads/{id}/wizard
func (h *ThreadHandler) Wizard(w http.ResponseWriter, r *http.Request) {
	var req wizardRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.threads.WizardStep(context.WithoutCancel(r.Context()), &orch.WizardRequest{
		ThreadID: r.PathValue("id"),
		Action:   req.Action,
		Answer:   req.Answer,
	}, nil)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

// stream runs fn and delivers its events as SSE, or as a single JSON body
// when the client asks for application/json. The run is detached from the
// request context so a dropped connection still leaves a saved checkpoint.
func (h *ThreadHandler) stream(w http.ResponseWriter, r *http.Request, fn func(context.Context, services.EventSink) (*orch.TurnResult, error)) {
	ctx := context.WithoutCancel(r.Context())
	threadID := r.PathValue("id")

	if !httputil.WantsEventStream(r) {
		res, err := fn(ctx, nil)
		if err != nil {
			handleError(w, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, res)
		return
	}

	clientID := uuid.NewString()
	writer, err := sse.NewEventWriter(w, clientID)
	if err != nil {
		h.logger.Error("streaming unsupported", "thread_id", threadID)
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h.logger.Info("SSE stream opened",
		"thread_id", threadID,
		"client_id", clientID,
	)

	keepAlive := sse.NewTickerKeepAlive(h.sse.KeepAliveInterval)
	stopped := keepAlive.Start(writer, h.logger)
	res, err := fn(ctx, writer)
	keepAlive.Stop()
	<-stopped

	switch {
	case err != nil && !writer.Started():
		handleError(w, err)
	case err != nil:
		h.logger.Error("turn failed after streaming started",
			"thread_id", threadID,
			"error", err,
		)
	default:
		h.logger.Info("SSE stream closed",
			"thread_id", threadID,
			"client_id", clientID,
			"done", res.Done,
			"awaiting_human", res.AwaitingHuman,
			"write_error", writer.Err(),
		)
	}
}

// Routes registers the thread API on mux.
func (h *ThreadHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/threads", h.CreateThread)
	mux.HandleFunc("GET /api/threads/{id}", h.GetThread)
	mux.HandleFunc("DELETE /api/threads/{id}", h.DeleteThread)
	mux.HandleFunc("POST /api/threads/{id}/messages", h.PostMessage)
	mux.HandleFunc("POST /api/threads/{id}/resume", h.Resume)
	mux.HandleFunc("POST /api/threads/{id}/wizard", h.Wizard)
}
