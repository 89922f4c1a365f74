package compaction

import (
	"sync"
	"testing"
)

func TestRegistry_WindowSize(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		model string
		want  int
	}{
		{"claude-sonnet-4-5-20250929", 200000},
		{"claude-instant-1.2", 100000},
		{"CLAUDE-3-OPUS", 200000},
		{"gpt-4", 8192},
		{"gpt-4-32k-0613", 32768},
		{"gpt-4o-mini", 128000},
		{"gpt-4.1-nano", 1047576},
		{"gemini-1.5-pro-latest", 2097152},
		{"gemini-2.0-flash", 1048576},
		{"llama3.1:70b", 131072},
		{"llama3:8b", 8192},
		{"totally-unknown-model", DefaultWindowSize},
		{"", DefaultWindowSize},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := r.WindowSize(tt.model); got != tt.want {
				t.Errorf("WindowSize(%q) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("tiny-model", 2500)
	r.Register("ignored", 0)
	r.Register("", 100)

	if got := r.WindowSize("acme/tiny-model-v2"); got != 2500 {
		t.Errorf("WindowSize = %d, want 2500", got)
	}
	if got := r.WindowSize("ignored"); got != DefaultWindowSize {
		t.Errorf("non-positive size should be ignored, got %d", got)
	}

	r.SetDefault(4096)
	if got := r.WindowSize("unknown"); got != 4096 {
		t.Errorf("WindowSize after SetDefault = %d, want 4096", got)
	}
}

func TestRegistry_Threshold(t *testing.T) {
	r := NewRegistry()
	r.Register("demo", 2500)

	if got := r.Threshold("demo", 0.8); got != 2000 {
		t.Errorf("Threshold = %d, want 2000", got)
	}
	if got := r.Threshold("demo", 0.333); got != 832 {
		t.Errorf("Threshold = %d, want 832 (floored)", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("custom", 1000)
		}()
		go func() {
			defer wg.Done()
			_ = r.WindowSize("custom")
		}()
	}
	wg.Wait()
}
