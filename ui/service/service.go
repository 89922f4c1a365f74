package service

import (
	"time"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
)

// Service provides read-only inspector operations over a store.
type Service struct {
	store   storage.Store
	trigger *compaction.Trigger
	model   string
	now     func() time.Time
}

// New creates a new Service. Usage and trigger figures are computed
// against model's context window.
func New(store storage.Store, trigger *compaction.Trigger, model string) *Service {
	if trigger == nil {
		trigger = compaction.NewTrigger(compaction.DefaultConfig(), compaction.NewRegistry())
	}
	return &Service{
		store:   store,
		trigger: trigger,
		model:   model,
		now:     time.Now,
	}
}

// Store returns the underlying store.
// This is useful for advanced operations not covered by the service.
func (s *Service) Store() storage.Store {
	return s.store
}

// Model returns the model usage is computed against.
func (s *Service) Model() string {
	return s.model
}
