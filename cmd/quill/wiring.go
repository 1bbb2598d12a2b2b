package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/quillworks/quill/internal/classifier"
	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/ledger"
	"github.com/quillworks/quill/internal/notify"
	"github.com/quillworks/quill/internal/orchestrator"
	"github.com/quillworks/quill/internal/permission"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/registry"
	"github.com/quillworks/quill/internal/router"
	"github.com/quillworks/quill/internal/selector"
	"github.com/quillworks/quill/pkg/models"
)

// core bundles the wired execution core for the CLI commands.
type core struct {
	cfg       *config.Config
	service   *orchestrator.Service
	approvals *permission.Manager
	notifier  *notify.ChannelNotifier
	journal   ledger.Ledger
	watcher   *registry.CatalogWatcher
	resolver  *liveResolver
	debugLog  *orchestrator.DebugLogger
}

// close releases everything the core holds open.
func (c *core) close() {
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.journal.Close()
	orchestrator.SetDebugLogger(nil)
	c.debugLog.Close()
}

// catalogDir is where the worker, provider, and grant catalogs live.
func catalogDir() string {
	return filepath.Dir(config.GetUserConfigPath())
}

// buildCore loads configuration and catalogs and wires the execution core.
func buildCore() (*core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir := catalogDir()
	workerCatalog, err := registry.LoadWorkerCatalog(filepath.Join(dir, "workers.yaml"))
	if err != nil {
		return nil, fmt.Errorf("worker catalog: %w (see 'quill config' for setup)", err)
	}
	providerCatalog, err := registry.LoadProviderCatalog(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return nil, fmt.Errorf("provider catalog: %w", err)
	}
	grantCatalog, err := registry.LoadGrantCatalog(filepath.Join(dir, "grants.yaml"))
	if err != nil {
		return nil, fmt.Errorf("grant catalog: %w", err)
	}

	workers := registry.NewWorkerRegistry()
	registry.ApplyWorkerCatalog(workers, workerCatalog)
	watcher, err := registry.WatchWorkerCatalog(filepath.Join(dir, "workers.yaml"), workers)
	if err != nil {
		return nil, fmt.Errorf("watch worker catalog: %w", err)
	}

	providers := registry.NewProviderRegistry(cfg.Router.BreakerFailureThreshold, cfg.Router.BreakerCooldown)
	for _, p := range providerCatalog.Providers {
		if err := providers.Register(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("register provider %s: %w", p.ID, err)
		}
	}

	grants := permission.NewGrantStore()
	for _, g := range grantCatalog.Grants {
		if err := grants.Put(g); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("grant %s: %w", g.ID, err)
		}
	}

	journal, err := ledger.Open(ledger.DefaultDBPath())
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := journal.Migrate(); err != nil {
		watcher.Close()
		journal.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	debugLog, err := orchestrator.NewDebugLogger(filepath.Join(dir, "logs", "workflow-debug.log"))
	if err != nil {
		debugLog = &orchestrator.DebugLogger{}
	}
	orchestrator.SetDebugLogger(debugLog)

	approvals := permission.NewManager(grants, permission.NewAccountant(journal), journal, cfg.Timeouts.Approval)
	rt := router.New(providers, cfg.Router)
	emitter := orchestrator.NewEmitter(256)
	notifier := notify.NewChannelNotifier(16)
	resolver := newLiveResolver(cfg.Anthropic)

	engine := orchestrator.NewEngine(orchestrator.EngineDeps{
		Workers:   workers,
		Providers: providers,
		Router:    rt,
		Approvals: approvals,
		Journal:   journal,
		Emitter:   emitter,
		Backends:  resolver,
		Notifier:  notify.Multi{notify.LogNotifier{}, notifier},
		Validators: []orchestrator.Validator{
			orchestrator.MinLengthValidator{MinChars: cfg.Validation.MinOutputChars},
			orchestrator.RefusalValidator{},
		},
		Limits:   cfg.Limits,
		Timeouts: cfg.Timeouts,
	})

	service := orchestrator.NewService(
		classifier.New(classifierBackend(cfg), cfg.Classifier),
		selector.New(workers, cfg.Selector),
		rt, approvals, engine, journal, emitter)

	return &core{
		cfg:       cfg,
		service:   service,
		approvals: approvals,
		notifier:  notifier,
		journal:   journal,
		watcher:   watcher,
		resolver:  resolver,
		debugLog:  debugLog,
	}, nil
}

// classifierBackend builds the LLM classification backend when credentials
// are configured. Without credentials the classifier falls back to keyword
// rules on its own.
func classifierBackend(cfg *config.Config) classifier.Backend {
	if _, err := config.GetAPIKey(cfg); err != nil && !cfg.Anthropic.UseBedrock {
		return nil
	}
	kind := "anthropic"
	if cfg.Anthropic.UseBedrock {
		kind = "bedrock"
	}
	backend, err := provider.NewBackendFor(models.Provider{ID: "classifier", Kind: kind}, cfg.Anthropic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "classifier backend unavailable, using keyword rules: %v\n", err)
		return nil
	}
	return classifier.NewLLMBackend(backend)
}

// liveResolver builds and caches one SDK backend per catalog provider.
type liveResolver struct {
	cfg       config.AnthropicConfig
	backends  map[string]provider.Backend
	providers map[string]models.Provider
	mu        sync.Mutex
}

func newLiveResolver(cfg config.AnthropicConfig) *liveResolver {
	return &liveResolver{
		cfg:       cfg,
		backends:  make(map[string]provider.Backend),
		providers: make(map[string]models.Provider),
	}
}

// Resolve returns the backend for a provider, creating it on first use.
func (r *liveResolver) Resolve(p models.Provider) (provider.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[p.ID]; ok {
		return b, nil
	}
	b, err := provider.NewBackendFor(p, r.cfg)
	if err != nil {
		return nil, err
	}
	r.backends[p.ID] = b
	r.providers[p.ID] = p
	return b, nil
}

// sessionUsage is the token consumption of one CLI run, summed across
// backends and priced at each provider's catalog rates.
type sessionUsage struct {
	inputTokens  int64
	outputTokens int64
	calls        int
	cost         float64
}

// usage sums the token trackers of every backend created this session.
func (r *liveResolver) usage() sessionUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var u sessionUsage
	for id, b := range r.backends {
		tracked, ok := b.(interface{ Tracker() *provider.TokenTracker })
		if !ok {
			continue
		}
		tr := tracked.Tracker()
		in, out := tr.Total()
		u.inputTokens += in
		u.outputTokens += out
		u.calls += tr.Calls()
		u.cost += tr.CostFor(r.providers[id])
	}
	return u
}
