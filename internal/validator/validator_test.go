package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func TestBindNavigateRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "valid", body: `{"section_index":1,"question_index":0}`},
		{name: "missing question", body: `{"section_index":1}`, wantField: "question_index"},
		{name: "negative section", body: `{"section_index":-1,"question_index":0}`, wantField: "section_index"},
		{name: "not json", body: `{`, wantField: "detail"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req model.NavigateRequest
			fields := Bind(c, &req)
			if tc.wantField == "" {
				if fields != nil {
					t.Fatalf("expected no errors, got %v", fields)
				}
				return
			}
			if _, ok := fields[tc.wantField]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.wantField, fields)
			}
		})
	}
}

func TestValidateOutsideGin(t *testing.T) {
	long := strings.Repeat("x", 501)
	if fields := Validate(&model.AnswerRequest{Value: &long}); fields["value"] == "" {
		t.Fatalf("expected value to be rejected, got %v", fields)
	}
	ok := "B"
	if fields := Validate(&model.AnswerRequest{Value: &ok}); fields != nil {
		t.Fatalf("expected valid request, got %v", fields)
	}
}

func TestTranslateNonValidationError(t *testing.T) {
	fields := TranslateErrors(errors.New("boom"))
	if fields["detail"] != "boom" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
