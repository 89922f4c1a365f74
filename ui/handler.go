package ui

import (
	"net/http"

	"github.com/youssefsiam38/contextpg/compaction"
	"github.com/youssefsiam38/contextpg/storage"
	"github.com/youssefsiam38/contextpg/ui/api"
	"github.com/youssefsiam38/contextpg/ui/frontend"
	"github.com/youssefsiam38/contextpg/ui/service"
)

// UIHandler returns an http.Handler for the read-only inspector pages.
// trigger supplies the window registry and thresholds; nil uses defaults.
//
// Usage:
//
//	http.Handle("/ui/", http.StripPrefix("/ui", ui.UIHandler(store, compactor.Trigger(), cfg)))
func UIHandler(store storage.Store, trigger *compaction.Trigger, cfg *Config) http.Handler {
	cfg = prepare(cfg)

	return frontend.NewRouter(service.New(store, trigger, cfg.Model), &frontend.Config{
		BasePath:        cfg.BasePath,
		PageSize:        cfg.PageSize,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          cfg.Logger,
	})
}

// APIHandler returns an http.Handler for the JSON API.
//
// Usage:
//
//	http.Handle("/api/", http.StripPrefix("/api", ui.APIHandler(store, compactor.Trigger(), cfg)))
func APIHandler(store storage.Store, trigger *compaction.Trigger, cfg *Config) http.Handler {
	cfg = prepare(cfg)

	return api.NewRouter(service.New(store, trigger, cfg.Model), &api.Config{
		PageSize: cfg.PageSize,
		Notifier: cfg.Notifier,
		Logger:   cfg.Logger,
	})
}

// Handler mounts the pages at the root and the JSON API under /api.
func Handler(store storage.Store, trigger *compaction.Trigger, cfg *Config) http.Handler {
	cfg = prepare(cfg)

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", APIHandler(store, trigger, cfg)))
	mux.Handle("/", UIHandler(store, trigger, cfg))
	return mux
}

func prepare(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}

	// Invalid configuration is a programmer error.
	if err := cfg.validate(); err != nil {
		panic("ui: invalid configuration: " + err.Error())
	}
	return cfg
}
