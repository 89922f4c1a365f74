package compaction

import (
	"math"
	"strings"
	"sync"
)

// DefaultWindowSize is returned for model identifiers the registry does not
// recognize.
const DefaultWindowSize = 200000

// Registry maps model identifiers to context window sizes by substring
// matching. When several patterns match, the longest one wins, so
// "gpt-4o" beats "gpt-4". Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	windows  map[string]int
	fallback int
}

// defaultWindows lists known model families. Patterns are matched
// case-insensitively against the model identifier.
var defaultWindows = map[string]int{
	"claude":            200000,
	"claude-instant":    100000,
	"claude-2":          100000,
	"claude-3":          200000,
	"claude-3-5-haiku":  200000,
	"claude-3-7-sonnet": 200000,
	"claude-sonnet-4":   200000,
	"claude-opus-4":     200000,
	"claude-haiku-4":    200000,
	"gpt-3.5-turbo":     16385,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4.1":           1047576,
	"gemini":            1048576,
	"gemini-1.5-pro":    2097152,
	"llama3":            8192,
	"llama3.1":          131072,
	"mistral":           32768,
	"mistral-large":     131072,
	"deepseek":          65536,
	"command-r":         128000,
	"qwen2.5":           32768,
}

// NewRegistry returns a Registry seeded with the known model families and
// DefaultWindowSize as the fallback.
func NewRegistry() *Registry {
	r := &Registry{
		windows:  make(map[string]int, len(defaultWindows)),
		fallback: DefaultWindowSize,
	}
	for pattern, size := range defaultWindows {
		r.windows[pattern] = size
	}
	return r
}

// Register adds or replaces the window size for a model pattern.
// Non-positive sizes are ignored.
func (r *Registry) Register(pattern string, size int) {
	if pattern == "" || size <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[strings.ToLower(pattern)] = size
}

// SetDefault changes the window size returned for unrecognized models.
func (r *Registry) SetDefault(size int) {
	if size <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = size
}

// WindowSize returns the context window of model. It never fails.
func (r *Registry) WindowSize(model string) int {
	model = strings.ToLower(model)

	r.mu.RLock()
	defer r.mu.RUnlock()

	best, size := "", r.fallback
	for pattern, s := range r.windows {
		if !strings.Contains(model, pattern) {
			continue
		}
		// Longest pattern wins; ties resolved lexically for determinism.
		if len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
			best, size = pattern, s
		}
	}
	return size
}

// Threshold returns floor(window(model) * ratio).
func (r *Registry) Threshold(model string, ratio float64) int {
	return int(math.Floor(float64(r.WindowSize(model)) * ratio))
}
