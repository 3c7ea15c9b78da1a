package postgres

import (
	"log/slog"
	"testing"

	"labmate/internal/domain/models/orchestration"
)

func TestNewDocumentRetriever_FunctionName(t *testing.T) {
	tests := []struct {
		name     string
		function string
		wantErr  bool
	}{
		{name: "plain", function: "match_document_chunks"},
		{name: "schema qualified", function: "public.match_chunks"},
		{name: "injection", function: "match(); DROP TABLE checkpoints; --", wantErr: true},
		{name: "empty", function: "", wantErr: true},
		{name: "leading digit", function: "1match", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDocumentRetriever(nil, tt.function, slog.Default())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDocumentRetriever(%q) error = %v, wantErr %v", tt.function, err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeEvidence(t *testing.T) {
	if got := SummarizeEvidence(nil); got != "" {
		t.Errorf("SummarizeEvidence(nil) = %q, want empty", got)
	}
	got := SummarizeEvidence([]orchestration.EvidenceItem{
		{Title: "Pump manual", Page: "12"},
		{Title: "SOP 7"},
	})
	want := "Found 2 relevant passage(s): Pump manual p.12; SOP 7."
	if got != want {
		t.Errorf("SummarizeEvidence() = %q, want %q", got, want)
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[float64]float64{-0.5: 0, 0.4: 0.4, 1.7: 1} {
		if got := clampScore(in); got != want {
			t.Errorf("clampScore(%v) = %v, want %v", in, got, want)
		}
	}
}
