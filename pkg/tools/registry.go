package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Runtime executes a custom tool's source against bound arguments. The
// sandbox package provides the production implementation.
type Runtime interface {
	Execute(ctx context.Context, m Manifest, args map[string]interface{}, timeout time.Duration) ExecutionResult
}

// Snapshot is an immutable point-in-time view of the full tool catalogue:
// built-ins merged with custom tools. It is rebuilt wholesale on every load
// and never patched in place, so an in-flight dispatch that captured a
// snapshot keeps a fully consistent view until it finishes.
type Snapshot struct {
	tools    map[string]Tool
	order    []string
	builtins map[string]bool
	loadedAt time.Time
}

// Resolve looks up a tool by name.
func (s *Snapshot) Resolve(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Schemas returns planner-facing descriptions of every tool, built-ins first,
// custom tools in name order.
func (s *Snapshot) Schemas() []Schema {
	schemas := make([]Schema, 0, len(s.order))
	for _, name := range s.order {
		schemas = append(schemas, s.tools[name].Schema())
	}
	return schemas
}

// Names returns all tool names in presentation order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.order...)
}

// IsBuiltin reports whether name belongs to a built-in tool.
func (s *Snapshot) IsBuiltin(name string) bool {
	return s.builtins[name]
}

// LoadedAt returns when this snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Registry is the in-memory index the dispatch loop resolves tool calls
// against. The current snapshot sits behind an atomic pointer: readers grab
// it without locking, and Load/Reload swap in a replacement with a single
// pointer store. On a Store I/O error the previous snapshot stays current.
type Registry struct {
	store     *Store
	validator *Validator
	runtime   Runtime

	builtins     []Tool
	builtinNames map[string]bool

	current atomic.Pointer[Snapshot]
	loadMu  sync.Mutex

	execTimeout time.Duration
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store     *Store
	Validator *Validator
	Runtime   Runtime

	// ExecTimeout is the wall-clock bound applied to custom tool
	// invocations resolved through this registry.
	ExecTimeout time.Duration
}

// NewRegistry creates a registry. Call RegisterBuiltin for each built-in
// tool, then Load before serving lookups.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("manifest store is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("runtime is required")
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}

	return &Registry{
		store:        cfg.Store,
		validator:    cfg.Validator,
		runtime:      cfg.Runtime,
		builtinNames: make(map[string]bool),
		execTimeout:  cfg.ExecTimeout,
	}, nil
}

// RegisterBuiltin adds a built-in tool. Built-in names are reserved: they can
// never be overwritten, renamed, or deleted through the mutation API.
func (r *Registry) RegisterBuiltin(t Tool) error {
	name := t.Schema().Name
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("invalid built-in name: %w", err)
	}
	if r.builtinNames[name] {
		return fmt.Errorf("built-in already registered: %s", name)
	}

	r.builtins = append(r.builtins, t)
	r.builtinNames[name] = true
	return nil
}

// BuiltinNames returns the reserved built-in tool names.
func (r *Registry) BuiltinNames() []string {
	names := make([]string, 0, len(r.builtins))
	for _, t := range r.builtins {
		names = append(names, t.Schema().Name)
	}
	return names
}

// Load builds a fresh snapshot from built-ins plus the Manifest Store's
// current catalogue and atomically swaps it in. On Store I/O error the
// previous snapshot (if any) remains current.
func (r *Registry) Load() error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	manifests, err := r.store.List()
	if err != nil {
		log.Error().Err(err).Msg("Registry load failed, keeping last-good snapshot")
		return &FailureError{Kind: FailStorage, Message: err.Error()}
	}

	snap := &Snapshot{
		tools:    make(map[string]Tool, len(r.builtins)+len(manifests)),
		builtins: make(map[string]bool, len(r.builtins)),
		loadedAt: time.Now(),
	}

	for _, t := range r.builtins {
		name := t.Schema().Name
		snap.tools[name] = t
		snap.builtins[name] = true
		snap.order = append(snap.order, name)
	}

	customNames := make([]string, 0, len(manifests))
	for _, m := range manifests {
		if snap.builtins[m.Name] {
			// A catalogue edited out of band could collide with a
			// built-in; the built-in wins.
			log.Warn().Str("tool", m.Name).Msg("Custom manifest shadows built-in, ignoring")
			continue
		}
		snap.tools[m.Name] = &customTool{manifest: m, runtime: r.runtime, timeout: r.execTimeout}
		customNames = append(customNames, m.Name)
	}
	sort.Strings(customNames)
	snap.order = append(snap.order, customNames...)

	r.current.Store(snap)
	log.Info().
		Int("builtins", len(r.builtins)).
		Int("custom", len(customNames)).
		Msg("Registry snapshot loaded")
	return nil
}

// Reload rebuilds the snapshot to pick up out-of-band edits to persisted
// manifests. Safe to call while dispatches are in flight: they continue
// against the snapshot they started with.
func (r *Registry) Reload() error {
	return r.Load()
}

// Snapshot returns the current snapshot. Callers should capture it once per
// dispatch cycle and use it for every lookup in that cycle.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Resolve looks a tool up in the current snapshot.
func (r *Registry) Resolve(name string) (Tool, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, &FailureError{Kind: FailUnknownTool, Message: "registry not loaded"}
	}
	t, ok := snap.Resolve(name)
	if !ok {
		return nil, &FailureError{Kind: FailUnknownTool, Message: fmt.Sprintf("unknown tool: %s", name)}
	}
	return t, nil
}

// Schemas returns the current snapshot's planner-facing tool descriptions.
func (r *Registry) Schemas() []Schema {
	snap := r.current.Load()
	if snap == nil {
		return nil
	}
	return snap.Schemas()
}

// Create validates a candidate tool, persists it, and reloads the snapshot so
// the tool is immediately callable. A validation rejection is returned in the
// ValidationResult, not as an error; errors report storage failures.
func (r *Registry) Create(name, description string, params []Parameter, source string) (ValidationResult, error) {
	if err := ValidateName(name); err != nil {
		return ValidationResult{Reasons: []string{err.Error()}}, nil
	}
	if r.builtinNames[name] {
		return ValidationResult{}, fmt.Errorf("%w: %s", ErrReserved, name)
	}
	if err := ValidateParameters(params); err != nil {
		return ValidationResult{Reasons: []string{err.Error()}}, nil
	}

	result := r.validator.Validate(source)
	if !result.Accepted {
		return result, nil
	}

	if _, err := r.store.Put(Manifest{
		Name:        name,
		Description: description,
		Parameters:  params,
		Source:      source,
	}); err != nil {
		return ValidationResult{}, err
	}

	if err := r.Load(); err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

// Update mirrors Create's validate-then-persist-then-reload sequencing for an
// existing custom tool. Empty description, nil params, or empty source keep
// the stored values.
func (r *Registry) Update(name, description string, params []Parameter, source string) (ValidationResult, error) {
	if r.builtinNames[name] {
		return ValidationResult{}, fmt.Errorf("%w: %s", ErrReserved, name)
	}

	existing, err := r.store.Get(name)
	if err != nil {
		return ValidationResult{}, err
	}

	if description == "" {
		description = existing.Description
	}
	if params == nil {
		params = existing.Parameters
	}
	if source == "" {
		source = existing.Source
	}

	if err := ValidateParameters(params); err != nil {
		return ValidationResult{Reasons: []string{err.Error()}}, nil
	}
	result := r.validator.Validate(source)
	if !result.Accepted {
		return result, nil
	}

	if _, err := r.store.Put(Manifest{
		Name:        name,
		Description: description,
		Parameters:  params,
		Source:      source,
	}); err != nil {
		return ValidationResult{}, err
	}

	if err := r.Load(); err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

// Delete removes a custom tool and reloads the snapshot.
func (r *Registry) Delete(name string) error {
	if r.builtinNames[name] {
		return fmt.Errorf("%w: %s", ErrReserved, name)
	}
	if err := r.store.Delete(name); err != nil {
		return err
	}
	return r.Load()
}

// Source returns the stored source text of a custom tool.
func (r *Registry) Source(name string) (Manifest, error) {
	if r.builtinNames[name] {
		return Manifest{}, fmt.Errorf("%w: %s (built-in source is not stored)", ErrReserved, name)
	}
	return r.store.Get(name)
}

// customTool bridges a stored manifest to the capability interface through
// the sandbox runtime.
type customTool struct {
	manifest Manifest
	runtime  Runtime
	timeout  time.Duration
}

// Schema implements Tool.
func (c *customTool) Schema() Schema {
	return Schema{
		Name:        c.manifest.Name,
		Description: c.manifest.Description,
		Parameters:  c.manifest.Parameters,
	}
}

// Invoke implements Tool by delegating to the sandbox runtime. Failures come
// back as *FailureError so callers can classify them.
func (c *customTool) Invoke(ctx context.Context, args map[string]interface{}) (string, error) {
	result := c.runtime.Execute(ctx, c.manifest, args, c.timeout)
	if !result.OK {
		return "", &FailureError{Kind: result.Kind, Message: result.Message}
	}
	return result.Text, nil
}
