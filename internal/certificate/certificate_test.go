package certificate

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRenderProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Data{
		LearnerName:    "Asha Nair",
		CourseTitle:    "Advanced Go Concurrency",
		InstructorName: "R. Menon",
		CompletedAt:    time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		Serial:         "SF-2026-00042",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected PDF bytes")
	}
	if !strings.HasPrefix(buf.String(), "%PDF") {
		t.Fatalf("output is not a PDF, starts with %q", buf.String()[:8])
	}
}

func TestRenderRejectsIncompleteData(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Data{LearnerName: "Asha Nair"})
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("expected no output for incomplete data")
	}
}
