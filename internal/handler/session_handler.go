package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/validator"
)

// SessionHandler exposes the exam session of the authenticated student over REST.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

type paperURI struct {
	PaperID string `uri:"paper_id" binding:"required,max=128"`
}

type questionURI struct {
	PaperID    string `uri:"paper_id" binding:"required,max=128"`
	QuestionID string `uri:"question_id" binding:"required,max=128"`
}

// StartSession godoc
// POST /api/v1/student/papers/:paper_id/session
// Starts a new attempt, or returns the one already in progress (idempotent).
func (h *SessionHandler) StartSession(c *gin.Context) {
	studentID, paperID, ok := h.target(c)
	if !ok {
		return
	}

	sess, created, err := h.sessionService.StartOrResume(c.Request.Context(), studentID, paperID)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"created": created, "view": sess.View()})
}

// GetSession godoc
// GET /api/v1/student/papers/:paper_id/session
// Returns the navigation view. This endpoint covers page reloads.
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.run(c, h.sessionService.Get)
}

// SelectAnswer godoc
// PUT /api/v1/student/papers/:paper_id/session/questions/:question_id/answer
// Selects an answer; a null value clears it.
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	var uri questionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return
	}
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.run(c, func(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
		return h.sessionService.Answer(ctx, studentID, paperID, uri.QuestionID, req.Value)
	})
}

// ClearAnswer godoc
// DELETE /api/v1/student/papers/:paper_id/session/questions/:question_id/answer
func (h *SessionHandler) ClearAnswer(c *gin.Context) {
	var uri questionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return
	}

	h.run(c, func(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
		return h.sessionService.Answer(ctx, studentID, paperID, uri.QuestionID, nil)
	})
}

// ToggleFlag godoc
// POST /api/v1/student/papers/:paper_id/session/questions/:question_id/flag
func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	var uri questionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return
	}

	h.run(c, func(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
		return h.sessionService.ToggleFlag(ctx, studentID, paperID, uri.QuestionID)
	})
}

// Navigate godoc
// POST /api/v1/student/papers/:paper_id/session/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.run(c, func(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
		return h.sessionService.Navigate(ctx, studentID, paperID, *req.SectionIndex, *req.QuestionIndex)
	})
}

// Next godoc
// POST /api/v1/student/papers/:paper_id/session/next
func (h *SessionHandler) Next(c *gin.Context) { h.run(c, h.sessionService.Next) }

// Previous godoc
// POST /api/v1/student/papers/:paper_id/session/previous
func (h *SessionHandler) Previous(c *gin.Context) { h.run(c, h.sessionService.Previous) }

// Pause godoc
// POST /api/v1/student/papers/:paper_id/session/pause
func (h *SessionHandler) Pause(c *gin.Context) { h.run(c, h.sessionService.Pause) }

// Resume godoc
// POST /api/v1/student/papers/:paper_id/session/resume
func (h *SessionHandler) Resume(c *gin.Context) { h.run(c, h.sessionService.Resume) }

// Abandon godoc
// POST /api/v1/student/papers/:paper_id/session/abandon
func (h *SessionHandler) Abandon(c *gin.Context) { h.run(c, h.sessionService.Abandon) }

// Submit godoc
// POST /api/v1/student/papers/:paper_id/session/submit
// Finishes the attempt and returns the graded result.
func (h *SessionHandler) Submit(c *gin.Context) {
	studentID, paperID, ok := h.target(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.Submit(c.Request.Context(), studentID, paperID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": sess.Result()})
}

// GetResult godoc
// GET /api/v1/student/papers/:paper_id/session/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	studentID, paperID, ok := h.target(c)
	if !ok {
		return
	}

	res, err := h.sessionService.Result(c.Request.Context(), studentID, paperID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetAttempt godoc
// GET /api/v1/student/papers/:paper_id/attempt
// Returns the durable record of the last finished attempt.
func (h *SessionHandler) GetAttempt(c *gin.Context) {
	studentID, paperID, ok := h.target(c)
	if !ok {
		return
	}

	attempt, err := h.sessionService.LatestAttempt(c.Request.Context(), studentID, paperID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempt)
}

// ─── helpers ────────────────────────────────────────────────────────

type sessionOp func(ctx context.Context, studentID int, paperID string) (*session.Session, error)

// run executes op against the caller's session and responds with the resulting view.
func (h *SessionHandler) run(c *gin.Context, op sessionOp) {
	studentID, paperID, ok := h.target(c)
	if !ok {
		return
	}

	sess, err := op(c.Request.Context(), studentID, paperID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

func (h *SessionHandler) target(c *gin.Context) (int, string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, "", false
	}

	var uri paperURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return 0, "", false
	}
	return claims.UserID, uri.PaperID, true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code, expected := classify(err)
	if !expected {
		h.log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Session request failed")
		response.Fail(c, status, code)
		return
	}
	response.FailWithDetail(c, status, code, err.Error())
}
