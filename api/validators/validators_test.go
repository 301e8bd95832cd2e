package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

type finalizeBody struct {
	Outcome   string   `json:"outcome" validate:"required,oneof=completed failed"`
	Artifacts []string `json:"artifacts" validate:"omitempty,dive,required"`
}

func TestDecodeJSONBodyValidatesTags(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"outcome":"cancelled"}`))
	var body finalizeBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["outcome"] != "must be one of completed failed" {
		t.Fatalf("unexpected detail %q", details["outcome"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"outcome":"completed","cost":0}`))
	var body finalizeBody
	if err := DecodeJSONBody(req, &body); err == nil {
		t.Fatal("expected unknown field rejected")
	}
}

func TestDecodeJSONBodyAcceptsValid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"outcome":"completed","artifacts":["a.png"]}`))
	var body finalizeBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Outcome != "completed" || len(body.Artifacts) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected out of range error")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if v, err := ParseQueryInt(req, "limit", 25, 1, 100); err != nil || v != 25 {
		t.Fatalf("expected default 25, got %d %v", v, err)
	}
}

func TestParseQueryDate(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-04&to=03/05/2026", nil)

	from, err := ParseQueryDate(req, "from", fallback)
	if err != nil {
		t.Fatalf("parse from: %v", err)
	}
	if !from.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %s", from)
	}
	if _, err := ParseQueryDate(req, "to", fallback); err == nil {
		t.Fatal("expected bad format rejected")
	}
	missing, err := ParseQueryDate(req, "until", fallback)
	if err != nil || !missing.Equal(fallback) {
		t.Fatalf("expected fallback, got %s %v", missing, err)
	}
}

func TestSanitizeStringCountsCharacters(t *testing.T) {
	reason := "x" + strings.Repeat("é", 1999)
	got := SanitizeString(reason, 2000)
	if got != reason {
		t.Fatalf("expected reason at the limit kept whole, got %d characters", utf8.RuneCountInString(got))
	}

	got = SanitizeString("  "+strings.Repeat("画像", 100)+"  ", 51)
	if !utf8.ValidString(got) {
		t.Fatal("expected valid utf-8 after truncation")
	}
	if n := utf8.RuneCountInString(got); n != 51 {
		t.Fatalf("expected 51 characters, got %d", n)
	}

	if got := SanitizeString("ok\xffok", 10); !utf8.ValidString(got) {
		t.Fatalf("expected invalid bytes replaced, got %q", got)
	}
}
