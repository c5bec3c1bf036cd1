package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

// classify maps a session error to its HTTP status and error code. The bool is false
// for errors that are not the caller's fault.
func classify(err error) (int, response.ErrCode, bool) {
	var (
		paperErr *session.InvalidPaperError
		navErr   *session.InvalidNavigationError
		stateErr *session.StateTransitionError
		qErr     *session.UnknownQuestionError
	)

	switch {
	case errors.As(err, &paperErr):
		return http.StatusUnprocessableEntity, response.ErrInvalidPaper, true
	case errors.As(err, &navErr):
		return http.StatusBadRequest, response.ErrInvalidNavigation, true
	case errors.As(err, &stateErr):
		if stateErr.Status.Terminal() {
			return http.StatusConflict, response.ErrSessionFinished, true
		}
		return http.StatusConflict, response.ErrInvalidStateTransition, true
	case errors.As(err, &qErr):
		return http.StatusNotFound, response.ErrUnknownQuestion, true
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound, true
	case errors.Is(err, service.ErrPaperNotFound):
		return http.StatusNotFound, response.ErrPaperNotFound, true
	case errors.Is(err, repository.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound, true
	case errors.Is(err, service.ErrServiceClosed):
		return http.StatusServiceUnavailable, response.ErrInternal, false
	default:
		return http.StatusInternalServerError, response.ErrInternal, false
	}
}
