package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// BeforeContextHook is called with the assembled history before it is
// returned for generation
type BeforeContextHook func(ctx context.Context, sessionID string, messages []compaction.ContextMessage) error

// AfterResponseHook is called after an assistant response is persisted.
// usage is nil when the generation call did not report it.
type AfterResponseHook func(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error

// BeforeCompactionHook is called once the trigger fires, before summarization
type BeforeCompactionHook func(ctx context.Context, sessionID string, decision compaction.Decision) error

// AfterCompactionHook is called after every compaction attempt that got past the trigger
type AfterCompactionHook func(ctx context.Context, sessionID string, result *compaction.Result) error

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	beforeContext    []BeforeContextHook
	afterResponse    []AfterResponseHook
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		beforeContext:    []BeforeContextHook{},
		afterResponse:    []AfterResponseHook{},
		beforeCompaction: []BeforeCompactionHook{},
		afterCompaction:  []AfterCompactionHook{},
	}
}

// OnBeforeContext registers a hook to be called before the history is handed out
func (r *Registry) OnBeforeContext(hook BeforeContextHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeContext = append(r.beforeContext, hook)
}

// OnAfterResponse registers a hook to be called after a response is recorded
func (r *Registry) OnAfterResponse(hook AfterResponseHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterResponse = append(r.afterResponse, hook)
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// TriggerBeforeContext calls all registered before-context hooks
func (r *Registry) TriggerBeforeContext(ctx context.Context, sessionID string, messages []compaction.ContextMessage) error {
	r.mu.RLock()
	hooks := make([]BeforeContextHook, len(r.beforeContext))
	copy(hooks, r.beforeContext)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, messages); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterResponse calls all registered after-response hooks
func (r *Registry) TriggerAfterResponse(ctx context.Context, sessionID string, msg *storage.Message, usage *storage.Usage) error {
	r.mu.RLock()
	hooks := make([]AfterResponseHook, len(r.afterResponse))
	copy(hooks, r.afterResponse)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, msg, usage); err != nil {
			return err
		}
	}
	return nil
}

// TriggerBeforeCompaction calls all registered before-compaction hooks
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, sessionID string, decision compaction.Decision) error {
	r.mu.RLock()
	hooks := make([]BeforeCompactionHook, len(r.beforeCompaction))
	copy(hooks, r.beforeCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, decision); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompaction calls all registered after-compaction hooks
func (r *Registry) TriggerAfterCompaction(ctx context.Context, sessionID string, result *compaction.Result) error {
	r.mu.RLock()
	hooks := make([]AfterCompactionHook, len(r.afterCompaction))
	copy(hooks, r.afterCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, result); err != nil {
			return err
		}
	}
	return nil
}
