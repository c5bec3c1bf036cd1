package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFailWithDetailEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		FailWithDetail(c, http.StatusConflict, ErrInvalidStateTransition, "pause not allowed while SUBMITTED")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrInvalidStateTransition || body.Error.Detail == "" {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
	if body.Metadata.RequestID != "req-123" || w.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id not propagated: %+v", body.Metadata)
	}
}

func TestRequestIDRejectsOversizedHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"id": RequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 500))
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestGetMessageCoversCodes(t *testing.T) {
	codes := []ErrCode{
		ErrTokenRequired, ErrTokenInvalid, ErrTokenExpired, ErrStudentAccessOnly,
		ErrValidation, ErrInvalidID, ErrInvalidPayload,
		ErrInvalidPaper, ErrInvalidNavigation, ErrInvalidStateTransition, ErrUnknownQuestion,
		ErrSessionNotFound, ErrPaperNotFound, ErrSessionFinished, ErrInternal,
	}
	fallback := GetMessage("SOMETHING_ELSE")
	for _, code := range codes {
		if GetMessage(code) == fallback {
			t.Fatalf("code %s has no message", code)
		}
	}
}
