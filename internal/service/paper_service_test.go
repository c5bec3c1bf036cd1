package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
)

type countingSource struct {
	papers map[string]*model.Paper
	calls  int
}

func (s *countingSource) GetByID(_ context.Context, id string) (*model.Paper, error) {
	s.calls++
	p, ok := s.papers[id]
	if !ok {
		return nil, ErrPaperNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *countingSource) ListPublishedIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.papers))
	for id := range s.papers {
		ids = append(ids, id)
	}
	return ids, nil
}

func newPaperService(t *testing.T, src PaperSource) (*PaperService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPaperService(src, rdb, time.Minute, zerolog.Nop()), mr
}

func TestPaperServiceReadThrough(t *testing.T) {
	src := &countingSource{papers: map[string]*model.Paper{"cgl-1": testPaper()}}
	svc, mr := newPaperService(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := svc.Get(ctx, "cgl-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if p.QuestionCount() != 3 || p.Sections[0].Questions[0].AnswerKey != "A" {
			t.Fatalf("unexpected paper %+v", p)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one source read, got %d", src.calls)
	}
	if !mr.Exists(config.CacheKey.PaperPayloadKey("cgl-1")) {
		t.Fatal("paper not cached")
	}

	if err := svc.Invalidate(ctx, "cgl-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = svc.Get(ctx, "cgl-1")
	if src.calls != 2 {
		t.Fatalf("expected a source read after invalidate, got %d", src.calls)
	}
}

func TestPaperServiceRejects(t *testing.T) {
	broken := testPaper()
	broken.ID = "broken"
	broken.Sections = nil
	src := &countingSource{papers: map[string]*model.Paper{"broken": broken}}
	svc, mr := newPaperService(t, src)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrPaperNotFound) {
		t.Fatalf("expected ErrPaperNotFound, got %v", err)
	}
	var pe *session.InvalidPaperError
	if _, err := svc.Get(ctx, "broken"); !errors.As(err, &pe) {
		t.Fatalf("expected InvalidPaperError, got %v", err)
	}
	if mr.Exists(config.CacheKey.PaperPayloadKey("broken")) {
		t.Fatal("invalid paper was cached")
	}
}

func TestPaperServiceDropsCorruptCache(t *testing.T) {
	src := &countingSource{papers: map[string]*model.Paper{"cgl-1": testPaper()}}
	svc, mr := newPaperService(t, src)
	_ = mr.Set(config.CacheKey.PaperPayloadKey("cgl-1"), "{not json")

	p, err := svc.Get(context.Background(), "cgl-1")
	if err != nil || p.ID != "cgl-1" {
		t.Fatalf("expected fallback to source, got %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one source read, got %d", src.calls)
	}
}

func TestPaperServicePrewarm(t *testing.T) {
	other := testPaper()
	other.ID = "cgl-2"
	broken := testPaper()
	broken.ID = "broken"
	broken.DurationSeconds = 0
	src := &countingSource{papers: map[string]*model.Paper{"cgl-1": testPaper(), "cgl-2": other, "broken": broken}}
	svc, mr := newPaperService(t, src)

	if err := svc.Prewarm(context.Background()); err != nil {
		t.Fatalf("prewarm: %v", err)
	}
	for _, id := range []string{"cgl-1", "cgl-2"} {
		if !mr.Exists(config.CacheKey.PaperPayloadKey(id)) {
			t.Fatalf("%s not warmed", id)
		}
	}
	if mr.Exists(config.CacheKey.PaperPayloadKey("broken")) {
		t.Fatal("invalid paper warmed")
	}
}

func TestPaperServiceWithoutRedis(t *testing.T) {
	src := &countingSource{papers: map[string]*model.Paper{"cgl-1": testPaper()}}
	svc := NewPaperService(src, nil, time.Minute, zerolog.Nop())

	_, _ = svc.Get(context.Background(), "cgl-1")
	_, _ = svc.Get(context.Background(), "cgl-1")
	if src.calls != 2 {
		t.Fatalf("expected uncached reads, got %d", src.calls)
	}
	if err := svc.Prewarm(context.Background()); err != nil {
		t.Fatalf("prewarm: %v", err)
	}
}
