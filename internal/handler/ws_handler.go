package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

const sendBuffer = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session to the student and accepts actions over the socket.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/papers/:paper_id/stream
// Pushes ticks, expiries and state changes of the student's session. The session must
// have been started over REST first.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var uri paperURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, validator.TranslateErrors(err))
		return
	}
	studentID, paperID := claims.UserID, uri.PaperID

	sess, err := h.sessionService.Get(c.Request.Context(), studentID, paperID)
	if err != nil {
		status, code, _ := classify(err)
		response.Fail(c, status, code)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("paper_id", paperID).
		Str("attempt_id", sess.AttemptID()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan interface{}, sendBuffer)
	send := func(v interface{}) {
		select {
		case out <- v:
		case <-ctx.Done():
		default:
			wsLog.Warn().Msg("Send buffer full, dropping message")
		}
	}

	unsubscribe := sess.Subscribe(func(ev session.Event) {
		if msg := toMessage(sess, ev); msg != nil {
			send(msg)
		}
	})
	defer unsubscribe()

	go h.writeLoop(ctx, conn, out, cancel, wsLog)
	send(ws.StateResponse{Event: ws.EventState, View: sess.View()})

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		if reply := h.handleAction(c.Request.Context(), studentID, paperID, &msg); reply != nil {
			send(reply)
		}
	}
}

// handleAction applies one client action. State changes reach the client through the
// subscription; only errors and pongs are answered directly.
func (h *WSHandler) handleAction(ctx context.Context, studentID int, paperID string, msg *ws.RequestPayload) interface{} {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}
	case ws.ActionAnswer:
		if msg.QID == "" || msg.Answer == "" {
			return errorMessage(response.ErrValidation, "q_id and ans are required")
		}
		ans := msg.Answer
		_, err = h.sessionService.Answer(ctx, studentID, paperID, msg.QID, &ans)
	case ws.ActionClear:
		if msg.QID == "" {
			return errorMessage(response.ErrValidation, "q_id is required")
		}
		_, err = h.sessionService.Answer(ctx, studentID, paperID, msg.QID, nil)
	case ws.ActionFlag:
		if msg.QID == "" {
			return errorMessage(response.ErrValidation, "q_id is required")
		}
		_, err = h.sessionService.ToggleFlag(ctx, studentID, paperID, msg.QID)
	case ws.ActionNavigate:
		req := model.NavigateRequest{SectionIndex: msg.SectionIndex, QuestionIndex: msg.QuestionIndex}
		if fields := validator.Validate(&req); fields != nil {
			return errorMessage(response.ErrValidation, joinFields(fields))
		}
		_, err = h.sessionService.Navigate(ctx, studentID, paperID, *req.SectionIndex, *req.QuestionIndex)
	case ws.ActionNext:
		_, err = h.sessionService.Next(ctx, studentID, paperID)
	case ws.ActionPrevious:
		_, err = h.sessionService.Previous(ctx, studentID, paperID)
	case ws.ActionPause:
		_, err = h.sessionService.Pause(ctx, studentID, paperID)
	case ws.ActionResume:
		_, err = h.sessionService.Resume(ctx, studentID, paperID)
	case ws.ActionSubmit:
		_, err = h.sessionService.Submit(ctx, studentID, paperID)
	default:
		return errorMessage(response.ErrInvalidPayload, "unknown action: "+string(msg.Action))
	}

	if err != nil {
		_, code, expected := classify(err)
		if !expected {
			h.log.Error().Err(err).Str("action", string(msg.Action)).Msg("Session action failed")
			return errorMessage(code, response.GetMessage(code))
		}
		return errorMessage(code, err.Error())
	}
	return nil
}

// writeLoop owns all writes to conn. It closes the socket once the session has ended.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan interface{}, cancel context.CancelFunc, log zerolog.Logger) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := ws.WriteTyped(conn, msg); err != nil {
				log.Debug().Err(err).Msg("Write failed")
				_ = conn.Close()
				return
			}
			if final(msg) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}

func toMessage(sess *session.Session, ev session.Event) interface{} {
	switch ev.Type {
	case session.EventTick:
		if ev.Remaining == nil {
			return nil
		}
		return ws.TickResponse{Event: ws.EventTick, Remaining: *ev.Remaining}
	case session.EventExpire:
		return ws.ExpireResponse{Event: ws.EventExpire, Scope: ev.Scope}
	case session.EventStateChange:
		return ws.StateResponse{Event: ws.EventState, View: sess.View()}
	case session.EventSubmitted:
		return ws.SubmittedResponse{Event: ws.EventSubmitted, Result: sess.Result()}
	case session.EventPersistenceError:
		return errorMessage(response.ErrPersistence, response.GetMessage(response.ErrPersistence))
	}
	return nil
}

// final reports whether msg is the last one of a session.
func final(msg interface{}) bool {
	switch m := msg.(type) {
	case ws.SubmittedResponse:
		return true
	case ws.StateResponse:
		return m.View.Status == model.SessionStatusAbandoned
	}
	return false
}

func errorMessage(code response.ErrCode, detail string) ws.ErrorResponse {
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: detail}
}

func joinFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for _, msg := range fields {
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
