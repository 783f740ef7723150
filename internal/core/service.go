package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/blob"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/infra/persistence/memory"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/pluginapi"
)

// Service exposes higher-level transactional CRUD operations for the
// governance schema and owns the plugin lifecycle: install, configure,
// uninstall, route lookup and event fan-out.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	blobs   blob.Store
	logger  zerolog.Logger
	metrics MetricsRecorder
	tracer  Tracer

	mu      sync.RWMutex
	plugins map[string]*installedPlugin
}

type installedPlugin struct {
	plugin   pluginapi.Plugin
	meta     PluginMetadata
	config   map[string]any
	routes   map[pluginapi.RouteKey]pluginapi.Handler
	handlers map[EventKind]pluginapi.EventHandler
}

// ServiceOption customizes a Service during construction.
type ServiceOption func(*Service)

// WithLogger sets the logger used for host and plugin diagnostics.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetricsRecorder attaches a metrics sink observed on every operation.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer attaches a tracer spanning every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithBlobStore sets the blob backend exposed to plugins through the host.
func WithBlobStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.blobs = store }
}

// NewService constructs a service backed by the supplied store. The engine
// must be the one the store evaluates transactions against; plugin rules are
// registered into it.
func NewService(store PersistentStore, engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Service{
		store:   store,
		engine:  engine,
		blobs:   blob.NewMemory(),
		logger:  zerolog.Nop(),
		plugins: make(map[string]*installedPlugin),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return NewService(memory.NewStore(engine), engine, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Blobs returns the blob backend the host grants to plugins.
func (s *Service) Blobs() blob.Store {
	return s.blobs
}

// Logger returns the service logger.
func (s *Service) Logger() zerolog.Logger {
	return s.logger
}

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	return err
}

// CreateWorkspace persists a new workspace.
func (s *Service) CreateWorkspace(ctx context.Context, workspace Workspace) (Workspace, Result, error) {
	var created Workspace
	var res Result
	err := s.run(ctx, "create_workspace", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateWorkspace(workspace)
			return err
		})
		return err
	})
	if err == nil {
		_ = s.Publish(ctx, Event{
			Kind:        domain.EventWorkspaceCreated,
			WorkspaceID: created.ID,
			Entity:      domain.EntityWorkspace,
			EntityID:    created.ID,
			Payload:     map[string]any{"name": created.Name},
		})
	}
	return created, res, err
}

// DeleteWorkspace removes a workspace record.
func (s *Service) DeleteWorkspace(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_workspace", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteWorkspace(id)
		})
		return err
	})
	return res, err
}

// CreateFramework persists a new framework.
func (s *Service) CreateFramework(ctx context.Context, framework Framework) (Framework, Result, error) {
	var created Framework
	var res Result
	err := s.run(ctx, "create_framework", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateFramework(framework)
			return err
		})
		return err
	})
	return created, res, err
}

// DeleteFramework removes a framework record.
func (s *Service) DeleteFramework(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_framework", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteFramework(id)
		})
		return err
	})
	return res, err
}

// CreateControl persists a control under an existing framework.
func (s *Service) CreateControl(ctx context.Context, control Control) (Control, Result, error) {
	var created Control
	var res Result
	err := s.run(ctx, "create_control", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateControl(control)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateControl mutates a control using the provided mutator.
func (s *Service) UpdateControl(ctx context.Context, id string, mutator func(*Control) error) (Control, Result, error) {
	var updated Control
	var res Result
	err := s.run(ctx, "update_control", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateControl(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// SetControlStatus transitions a control's implementation status.
func (s *Service) SetControlStatus(ctx context.Context, id string, status domain.ControlStatus) (Control, Result, error) {
	return s.UpdateControl(ctx, id, func(c *Control) error {
		c.Status = status
		return nil
	})
}

// CreateRisk persists a new risk.
func (s *Service) CreateRisk(ctx context.Context, risk Risk) (Risk, Result, error) {
	var created Risk
	var res Result
	err := s.run(ctx, "create_risk", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateRisk(risk)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateRisk mutates a risk using the provided mutator.
func (s *Service) UpdateRisk(ctx context.Context, id string, mutator func(*Risk) error) (Risk, Result, error) {
	var updated Risk
	var res Result
	err := s.run(ctx, "update_risk", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateRisk(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// SetRiskStatus transitions a risk through its review lifecycle.
func (s *Service) SetRiskStatus(ctx context.Context, id string, status domain.RiskStatus) (Risk, Result, error) {
	return s.UpdateRisk(ctx, id, func(r *Risk) error {
		r.Status = status
		return nil
	})
}

// DeleteRisk removes a risk record.
func (s *Service) DeleteRisk(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_risk", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteRisk(id)
		})
		return err
	})
	return res, err
}

// CreateDataset persists a new dataset.
func (s *Service) CreateDataset(ctx context.Context, dataset Dataset) (Dataset, Result, error) {
	var created Dataset
	var res Result
	err := s.run(ctx, "create_dataset", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateDataset(dataset)
			return err
		})
		return err
	})
	return created, res, err
}

// DeleteDataset removes a dataset record.
func (s *Service) DeleteDataset(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, "delete_dataset", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteDataset(id)
		})
		return err
	})
	return res, err
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InstallPlugin validates and installs a plugin, wiring its routes and event
// subscriptions into the host.
func (s *Service) InstallPlugin(ctx context.Context, plugin pluginapi.Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	manifest := plugin.Manifest()
	if err := validateManifest(manifest); err != nil {
		return PluginMetadata{}, err
	}

	handlers := make(map[EventKind]pluginapi.EventHandler)
	for kind, handler := range plugin.EventHandlers() {
		if !kind.Known() {
			return PluginMetadata{}, fmt.Errorf("plugin %s subscribes to unknown event kind %q", manifest.Name, kind)
		}
		if handler == nil {
			continue
		}
		handlers[kind] = handler
	}
	routes := make(map[pluginapi.RouteKey]pluginapi.Handler)
	for key, handler := range plugin.Routes() {
		if key.Method == "" || key.Path == "" {
			return PluginMetadata{}, fmt.Errorf("plugin %s declares a route with empty method or path", manifest.Name)
		}
		if handler == nil {
			continue
		}
		routes[key] = handler
	}

	s.mu.Lock()
	if _, ok := s.plugins[manifest.Name]; ok {
		s.mu.Unlock()
		return PluginMetadata{}, fmt.Errorf("plugin %s already installed", manifest.Name)
	}
	s.mu.Unlock()

	if err := plugin.Install(ctx, s.Host()); err != nil {
		return PluginMetadata{}, fmt.Errorf("install plugin %s: %w", manifest.Name, err)
	}

	meta := PluginMetadata{
		Name:        manifest.Name,
		Version:     manifest.Version,
		DisplayName: manifest.DisplayName,
		Manifest:    manifest,
		InstalledAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.plugins[manifest.Name] = &installedPlugin{
		plugin:   plugin,
		meta:     meta,
		routes:   routes,
		handlers: handlers,
	}
	s.mu.Unlock()

	s.logger.Info().Str("plugin", manifest.Name).Str("version", manifest.Version).Msg("plugin installed")
	s.publishPluginEvent(ctx, domain.EventPluginInstalled, manifest.Name)
	return meta, nil
}

// UninstallPlugin removes an installed plugin after giving it a chance to
// release its state.
func (s *Service) UninstallPlugin(ctx context.Context, name string) error {
	s.mu.Lock()
	installed, ok := s.plugins[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %s not installed", name)
	}
	if err := installed.plugin.Uninstall(ctx, s.Host()); err != nil {
		return fmt.Errorf("uninstall plugin %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.plugins, name)
	s.mu.Unlock()

	s.logger.Info().Str("plugin", name).Msg("plugin uninstalled")
	s.publishPluginEvent(ctx, domain.EventPluginUninstalled, name)
	return nil
}

// ValidatePluginConfig checks a configuration payload without applying it.
func (s *Service) ValidatePluginConfig(name string, config map[string]any) error {
	s.mu.RLock()
	installed, ok := s.plugins[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plugin %s not installed", name)
	}
	return installed.plugin.ValidateConfig(config)
}

// ConfigurePlugin validates and applies a configuration payload.
func (s *Service) ConfigurePlugin(ctx context.Context, name string, config map[string]any) error {
	s.mu.RLock()
	installed, ok := s.plugins[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("plugin %s not installed", name)
	}
	if err := installed.plugin.ValidateConfig(config); err != nil {
		return fmt.Errorf("validate config for %s: %w", name, err)
	}
	if err := installed.plugin.Configure(ctx, s.Host(), config); err != nil {
		return fmt.Errorf("configure plugin %s: %w", name, err)
	}
	cp := make(map[string]any, len(config))
	for k, v := range config {
		cp[k] = v
	}
	s.mu.Lock()
	installed.config = cp
	s.mu.Unlock()
	return nil
}

// PluginConfig returns the last applied configuration for a plugin.
func (s *Service) PluginConfig(name string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	installed, ok := s.plugins[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(installed.config))
	for k, v := range installed.config {
		out[k] = v
	}
	return out, true
}

// PluginRoutes returns the HTTP routes contributed by an installed plugin.
func (s *Service) PluginRoutes(name string) (map[pluginapi.RouteKey]pluginapi.Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	installed, ok := s.plugins[name]
	if !ok {
		return nil, false
	}
	out := make(map[pluginapi.RouteKey]pluginapi.Handler, len(installed.routes))
	for key, handler := range installed.routes {
		out[key] = handler
	}
	return out, true
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, installed := range s.plugins {
		out = append(out, installed.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Publish delivers an event to every installed plugin subscribed to its kind.
// Handler failures are logged and do not abort delivery to other plugins.
func (s *Service) Publish(ctx context.Context, event Event) error {
	if !event.Kind.Known() {
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	type delivery struct {
		plugin  string
		handler pluginapi.EventHandler
	}
	s.mu.RLock()
	deliveries := make([]delivery, 0, len(s.plugins))
	for name, installed := range s.plugins {
		if handler, ok := installed.handlers[event.Kind]; ok {
			deliveries = append(deliveries, delivery{plugin: name, handler: handler})
		}
	}
	s.mu.RUnlock()
	sort.Slice(deliveries, func(i, j int) bool { return deliveries[i].plugin < deliveries[j].plugin })

	host := s.Host()
	for _, d := range deliveries {
		if err := d.handler(ctx, host, event); err != nil {
			s.logger.Warn().
				Str("plugin", d.plugin).
				Str("event", string(event.Kind)).
				Err(err).
				Msg("event handler failed")
		}
	}
	return nil
}

func (s *Service) publishPluginEvent(ctx context.Context, kind EventKind, name string) {
	_ = s.Publish(ctx, Event{
		Kind:    kind,
		Entity:  "plugin",
		Payload: map[string]any{"plugin": name},
	})
}

func validateManifest(m pluginapi.Manifest) error {
	if m.Name == "" {
		return fmt.Errorf("plugin manifest requires a name")
	}
	if m.Version == "" {
		return fmt.Errorf("plugin %s manifest requires a version", m.Name)
	}
	return nil
}
