package compaction

import (
	"strings"
	"testing"

	"github.com/youssefsiam38/contextpg/storage"
)

func intPtr(n int) *int { return &n }

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{
			name:     "empty string",
			content:  "",
			expected: 0,
		},
		{
			name:     "short string",
			content:  "hi",
			expected: 1,
		},
		{
			name:     "4 chars",
			content:  "test",
			expected: 1,
		},
		{
			name:     "5 chars rounds up",
			content:  "tests",
			expected: 2,
		},
		{
			name:     "longer text",
			content:  "This is a longer piece of text for testing token approximation.",
			expected: 16,
		},
		{
			name:     "multi-byte runes count once",
			content:  "héllo wörld",
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.content)
			if got != tt.expected {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.content, got, tt.expected)
			}
		})
	}
}

func TestEstimateTokensDeterministic(t *testing.T) {
	text := strings.Repeat("abc ", 250)
	first := EstimateTokens(text)
	for i := 0; i < 10; i++ {
		if got := EstimateTokens(text); got != first {
			t.Fatalf("EstimateTokens not deterministic: %d != %d", got, first)
		}
	}
	if first != 250 {
		t.Errorf("EstimateTokens = %d, want 250", first)
	}
}

func TestMessageTokens(t *testing.T) {
	tests := []struct {
		name  string
		msg   *storage.Message
		want  TokenCount
		label string
	}{
		{
			name:  "exact count wins",
			msg:   &storage.Message{Content: "12345678", TokenCount: intPtr(42)},
			want:  ExactCount(42),
			label: "42",
		},
		{
			name:  "estimate when absent",
			msg:   &storage.Message{Content: "12345678"},
			want:  EstimatedCount(2),
			label: "~2",
		},
		{
			name:  "exact zero is still exact",
			msg:   &storage.Message{Content: "ignored", TokenCount: intPtr(0)},
			want:  ExactCount(0),
			label: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MessageTokens(tt.msg)
			if got != tt.want {
				t.Errorf("MessageTokens() = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.label {
				t.Errorf("String() = %q, want %q", got.String(), tt.label)
			}
		})
	}
}

func TestSumTokens(t *testing.T) {
	t.Run("empty is exact zero", func(t *testing.T) {
		got := SumTokens(nil)
		if got != ExactCount(0) {
			t.Errorf("SumTokens(nil) = %+v, want exact 0", got)
		}
	})

	t.Run("all exact", func(t *testing.T) {
		got := SumTokens([]*storage.Message{
			{TokenCount: intPtr(10)},
			{TokenCount: intPtr(5)},
		})
		if got != ExactCount(15) {
			t.Errorf("SumTokens = %+v, want exact 15", got)
		}
	})

	t.Run("mixed is estimated", func(t *testing.T) {
		got := SumTokens([]*storage.Message{
			{TokenCount: intPtr(10)},
			{Content: "12345678"},
		})
		if got.N != 12 || got.Exact {
			t.Errorf("SumTokens = %+v, want estimated 12", got)
		}
	})
}
