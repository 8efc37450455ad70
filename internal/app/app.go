// Package app wires configuration, storage, the mood scheduler and the
// reply pipeline into one value both binaries share.
package app

import (
	"fmt"
	"log"

	"github.com/keshon/server-miyabi/internal/ai"
	"github.com/keshon/server-miyabi/internal/chat"
	"github.com/keshon/server-miyabi/internal/config"
	"github.com/keshon/server-miyabi/internal/mind"
	"github.com/keshon/server-miyabi/internal/storage"
	"github.com/keshon/server-miyabi/pkg/jobmgr"
)

const AppName = "Miyabi"

// App holds the long-lived components.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Jobs      *jobmgr.Manager
	Scheduler *mind.MoodScheduler
	Handler   *chat.Handler
}

// New builds every component. gen overrides the completion client when
// non-nil; otherwise one is built from cfg.
func New(cfg *config.Config, gen mind.Generator) (*App, error) {
	store, err := storage.Open(cfg.StorageBackend, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Printf("[STORE] action=open backend=%s path=%s", cfg.StorageBackend, cfg.StoragePath)

	a, err := build(cfg, store, gen)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, store storage.Store, gen mind.Generator) (*App, error) {
	catalog, err := mind.NewCatalog(mind.DefaultMoods())
	if err != nil {
		return nil, err
	}

	jobs := jobmgr.NewManager(jobmgr.LogReporter)
	sched, err := mind.NewMoodScheduler(catalog, mind.SchedulerConfig{
		DefaultMood: cfg.DefaultMood,
		MinInterval: cfg.MoodMinInterval(),
		MaxInterval: cfg.MoodMaxInterval(),
	}, mind.WithRecorder(store), mind.WithJobs(jobs))
	if err != nil {
		return nil, err
	}

	persona := mind.NewPersonaTemplate(mind.DefaultPersonaTemplate, cfg.AgentName)
	if cfg.PersonaPath != "" {
		persona, err = mind.LoadPersonaTemplate(cfg.PersonaPath, cfg.AgentName)
		if err != nil {
			return nil, err
		}
	}

	if gen == nil {
		client, err := ai.New(ai.Options{
			BaseURL:       cfg.AIBaseURL,
			APIKey:        cfg.AIAPIKey,
			Model:         cfg.AIModel,
			Timeout:       cfg.AITimeout,
			Temperature:   cfg.AITemperature,
			MaxTokens:     cfg.AIMaxTokens,
			RatePerSecond: cfg.AIRatePerSecond,
		})
		if err != nil {
			return nil, err
		}
		gen = client
	}

	orch := mind.NewResponseOrchestrator(sched, mind.NewContextAssembler(store), persona, gen, cfg.MaxTurns)
	handler, err := chat.NewHandler(orch, sched, store, chat.Options{
		AgentName: cfg.AgentName,
		CreatorID: cfg.CreatorID,
		Retries:   cfg.ReplyRetries,
		Limiter:   chat.NewReplyLimiter(cfg.ReplyPerMin, cfg.ReplyCooldown),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Store:     store,
		Jobs:      jobs,
		Scheduler: sched,
		Handler:   handler,
	}, nil
}

// Start arms the automatic mood changes.
func (a *App) Start() {
	a.Scheduler.Start()
}

// Close stops the scheduler, drains pending writes and closes storage.
func (a *App) Close() error {
	a.Scheduler.Stop()
	log.Printf("[INFO] Shutting down jobs. %s", a.Jobs.Status())
	a.Jobs.Shutdown()
	return a.Store.Close()
}
