package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const yamlPaper = `
id: cgl-tier1
title: CGL Tier 1 Mock
duration_seconds: 3600
free_navigation: true
per_question_score: 2
negative_marks: 0.5
sections:
  - id: reasoning
    title: General Intelligence
    duration_seconds: 900
    questions:
      - id: r1
        answer_key: B
        payload:
          prompt: Odd one out
          options: [Apple, Mango, Carrot, Banana]
      - id: r2
        time_limit_seconds: 60
        answer_key: A
`

const jsonPaper = `{
  "id": "quant-short",
  "title": "Quant Sprint",
  "duration_seconds": 600,
  "sections": [{"id": "q", "questions": [{"id": "q1", "payload": {"prompt": "2+2"}}]}]
}`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPaperFileRepository(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cgl.yaml", yamlPaper)
	writeFile(t, dir, "quant.json", jsonPaper)
	writeFile(t, dir, "README.md", "ignored")

	repo, err := NewPaperFileRepository(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ids, _ := repo.ListPublishedIDs(context.Background())
	if len(ids) != 2 || ids[0] != "cgl-tier1" || ids[1] != "quant-short" {
		t.Fatalf("unexpected ids %v", ids)
	}

	p, err := repo.GetByID(context.Background(), "cgl-tier1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.DurationSeconds != 3600 || !p.FreeNavigation || p.NegativeMarks != 0.5 {
		t.Fatalf("unexpected paper header %+v", p)
	}
	if got := p.Sections[0].Questions[1].TimeLimitSeconds; got != 60 {
		t.Fatalf("expected time limit 60, got %d", got)
	}

	var payload struct {
		Prompt  string   `json:"prompt"`
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(p.Sections[0].Questions[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Prompt != "Odd one out" || len(payload.Options) != 4 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrPaperNotFound) {
		t.Fatalf("expected ErrPaperNotFound, got %v", err)
	}
}

func TestPaperFileRepositoryRejects(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "invalid yaml", files: map[string]string{"bad.yaml": "id: [unclosed"}},
		{name: "no sections", files: map[string]string{"empty.json": `{"id":"x","duration_seconds":60}`}},
		{name: "duplicate id", files: map[string]string{"a.json": jsonPaper, "b.json": jsonPaper}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, body := range tc.files {
				writeFile(t, dir, name, body)
			}
			if _, err := NewPaperFileRepository(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
