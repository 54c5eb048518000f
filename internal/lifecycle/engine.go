// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/loader"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/sandbox"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/signature"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// DefaultTeardownTimeout is how long disable() waits for a plugin's
// teardown to return before escalating to forced termination.
const DefaultTeardownTimeout = 5 * time.Second

// Engine coordinates install/enable/disable/update/uninstall across the
// registry, loader, signature verifier, permission broker, and sandbox
// governor.
type Engine struct {
	reg      registry.Registry
	verifier *signature.Verifier
	trust    signature.TrustLevel
	broker   *permission.Broker
	governor sandbox.Governor
	bus      *Bus

	fetcher Fetcher
	updates UpdateChecker

	installRoot     string
	hostAPIVersion  plugin.Version
	tier            loader.Tier
	sandboxCmd      []string
	teardownTimeout time.Duration
	limits          []sandbox.ResourceLimit
	linkFunc        linkFunc

	locks sync.Map // pluginID -> *sync.Mutex
	mu    sync.Mutex
	live  map[string]*liveModule // pluginID -> handle while Enabled

	limitOverrides map[string][]sandbox.ResourceLimit // pluginID -> per-plugin limit override
	limitEvents    map[string][]sandbox.BreachEvent   // pluginID -> bounded breach history

	callbackMu sync.Mutex
	callbacks  map[string]uintptr // registered-callback name -> native function pointer
}

type liveModule struct {
	module    linkedModule
	container sandbox.Container
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithFetcher(f Fetcher) Option             { return func(e *Engine) { e.fetcher = f } }
func WithUpdateChecker(u UpdateChecker) Option { return func(e *Engine) { e.updates = u } }
func WithTier(t loader.Tier) Option            { return func(e *Engine) { e.tier = t } }
func WithSandboxCmd(cmd []string) Option       { return func(e *Engine) { e.sandboxCmd = cmd } }
func WithTeardownTimeout(d time.Duration) Option {
	return func(e *Engine) { e.teardownTimeout = d }
}
func WithResourceLimits(limits []sandbox.ResourceLimit) Option {
	return func(e *Engine) { e.limits = limits }
}

// NewEngine constructs an Engine. installRoot is the directory under which
// each plugin gets its own install_path subdirectory; hostAPIVersion is
// compared against every manifest's api_version.
func NewEngine(
	reg registry.Registry,
	verifier *signature.Verifier,
	trust signature.TrustLevel,
	broker *permission.Broker,
	governor sandbox.Governor,
	bus *Bus,
	installRoot string,
	hostAPIVersion plugin.Version,
	opts ...Option,
) *Engine {
	e := &Engine{
		reg:             reg,
		verifier:        verifier,
		trust:           trust,
		broker:          broker,
		governor:        governor,
		bus:             bus,
		installRoot:     installRoot,
		hostAPIVersion:  hostAPIVersion,
		tier:            loader.TierOutOfProcess,
		teardownTimeout: DefaultTeardownTimeout,
		live:            make(map[string]*liveModule),
		callbacks:       make(map[string]uintptr),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = NewBus()
	}
	if e.linkFunc == nil {
		e.linkFunc = e.defaultLink
	}
	return e
}

func (e *Engine) lockFor(pluginID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(pluginID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Engine) publish(kind EventKind, pluginID string, status registry.Status, reason string) {
	e.bus.Publish(Event{Kind: kind, PluginID: pluginID, Status: status, Reason: reason, Timestamp: time.Now()})
}

// onModuleLog and onModuleRegister are passed to the in-process tier as the
// log sink and callback-registration handler.
func (e *Engine) onModuleLog(level int32, message string) {
	slog.Info("native module log", "level", level, "message", message)
}

// onModuleRegister records a native module's callback pointer under its
// registered name. There is no typed dispatch contract for native callbacks
// at the manifest level yet (see DESIGN.md), so nothing in this engine
// invokes fn itself; RegisteredCallback exposes the raw pointer for a future
// concrete callback contract to call through.
func (e *Engine) onModuleRegister(name string, fn uintptr) {
	slog.Debug("native module registered callback", "name", name)
	e.callbackMu.Lock()
	e.callbacks[name] = fn
	e.callbackMu.Unlock()
}

// RegisteredCallback returns the native function pointer a loaded module
// registered under name, if any.
func (e *Engine) RegisteredCallback(name string) (uintptr, bool) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	fn, ok := e.callbacks[name]
	return fn, ok
}

// resolveArchive turns a Source into a local archive path plus a cleanup
// function, fetching through the configured Fetcher for non-local sources.
func (e *Engine) resolveArchive(ctx context.Context, source Source) (string, func(), error) {
	if source.Kind == registry.SourceLocalArchive {
		return source.Locator, func() {}, nil
	}
	if e.fetcher == nil {
		return "", nil, sigilerr.New(sigilerr.CodeLifecycleInvalidState,
			"no fetcher configured for non-local plugin source")
	}
	return e.fetcher.Fetch(ctx, source)
}

// Install runs the install(source) pipeline: fetch,
// verify signature, extract to staging, validate manifest, check
// compatibility, broker-validate permissions, then atomically move staging
// into place and commit the registry record.
func (e *Engine) Install(ctx context.Context, source Source, opts InstallOptions) (*registry.InstalledRecord, error) {
	archivePath, cleanup, err := e.resolveArchive(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	payload, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIoFailure, "reading plugin archive")
	}

	env, err := loadEnvelope(archivePath)
	if err != nil {
		return nil, err
	}
	outcome, err := e.verifier.Verify(payload, env)
	if err != nil {
		// Every error path in Verify pairs with an outcome that Proceed would
		// reject at any trust level anyway; propagate the more specific error.
		return nil, err
	}
	if !signature.Proceed(e.trust, outcome) {
		return nil, sigilerr.Errorf(sigilerr.CodeSignatureUntrusted,
			"signature outcome %q is not acceptable under trust level %q", outcome, e.trust)
	}

	stagingDir := filepath.Join(e.installRoot, ".staging", uuid.NewString())
	prepared, err := loader.Prepare(archivePath, stagingDir, e.hostAPIVersion.Major, e.hostAPIVersion.Minor)
	if err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, err
	}

	lock := e.lockFor(prepared.Manifest.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, _ := e.reg.Get(ctx, prepared.Manifest.ID)
	if existing != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Errorf(sigilerr.CodeLifecycleAlreadyExists,
			"plugin %q is already installed; use update() instead", prepared.Manifest.ID)
	}

	if err := e.broker.Validate(prepared.Manifest.ID, prepared.Manifest.Permissions); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, err
	}

	finalDir := filepath.Join(e.installRoot, prepared.Manifest.ID)
	if err := os.Rename(stagingDir, finalDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Wrap(err, sigilerr.CodeIoFailure, "moving staged install into place")
	}

	rec := &registry.InstalledRecord{
		ID:                   prepared.Manifest.ID,
		Version:              prepared.Manifest.Version,
		InstallPath:          finalDir,
		EntryPath:            filepath.Join(finalDir, filepath.Base(prepared.EntryPath)),
		InstalledAt:          time.Now(),
		Status:               registry.StatusDisabled,
		Source:               source,
		SignatureFingerprint: fingerprintOf(env),
	}

	if err := e.reg.Create(ctx, rec); err != nil {
		_ = os.RemoveAll(finalDir)
		return nil, err
	}

	e.publish(EventPluginInstalled, rec.ID, rec.Status, "")

	if opts.AutoEnable {
		if err := e.enableLocked(ctx, rec); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

func fingerprintOf(env signature.Envelope) string {
	if len(env.SignerChain) == 0 {
		return ""
	}
	return signature.Fingerprint(env.SignerChain[0])
}

// Enable loads the module, grants/consults permissions, starts
// containment, and flips status to Enabled.
func (e *Engine) Enable(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	return e.enableLocked(ctx, rec)
}

func (e *Engine) enableLocked(ctx context.Context, rec *registry.InstalledRecord) error {
	if rec.Status != registry.StatusDisabled && rec.Status != registry.StatusPendingRestart {
		return sigilerr.Errorf(sigilerr.CodeLifecycleInvalidState,
			"plugin %q cannot be enabled from status %q", rec.ID, rec.Status)
	}

	manifest, err := loader.LoadManifest(rec.InstallPath, e.hostAPIVersion.Major, e.hostAPIVersion.Minor)
	if err != nil {
		return e.markErrored(ctx, rec, err)
	}

	granted, err := e.broker.Request(ctx, rec.ID, manifest.Permissions, "plugin enable")
	if err != nil {
		return e.markErrored(ctx, rec, err)
	}

	module, err := e.linkFunc(ctx, rec.EntryPath, manifest.ApiVersion)
	if err != nil {
		return e.markErrored(ctx, rec, err)
	}

	var container sandbox.Container
	if e.governor != nil && module.Pid() != 0 {
		container, err = e.governor.Start(ctx, rec.ID, module.Pid(), e.ResourceLimits(rec.ID), e.onBreach)
		if err != nil {
			_ = module.Teardown(ctx)
			return e.markErrored(ctx, rec, err)
		}
	}

	rec.Status = registry.StatusEnabled
	rec.GrantedPermissions = grantedCapabilities(manifest.Permissions, granted)
	rec.UpdatedAt = time.Now()
	if err := e.reg.Update(ctx, rec); err != nil {
		if container != nil {
			_ = container.Stop(ctx)
		}
		_ = module.Teardown(ctx)
		return err
	}

	e.mu.Lock()
	e.live[rec.ID] = &liveModule{module: module, container: container}
	e.mu.Unlock()

	e.publish(EventStatusChanged, rec.ID, rec.Status, "")
	return nil
}

func grantedCapabilities(declared []plugin.Capability, decisions map[plugin.Category]permission.Decision) []plugin.Capability {
	var out []plugin.Capability
	for _, cap := range declared {
		if decisions[cap.Category] == permission.Grant {
			out = append(out, cap)
		}
	}
	return out
}

func (e *Engine) onBreach(ev sandbox.BreachEvent) {
	var kind EventKind
	switch ev.Edge {
	case sandbox.EdgeSoftBreach:
		kind = EventSoftLimitBreached
	case sandbox.EdgeRecovered:
		kind = EventLimitRecovered
	default:
		kind = EventHardLimitBreached
	}
	e.bus.Publish(Event{
		Kind: kind, PluginID: ev.PluginID, Resource: ev.Resource,
		Value: ev.Value, Limit: ev.Limit, Action: ev.Action, Timestamp: time.Now(),
	})
	e.recordLimitEvent(ev)

	if ev.Edge == sandbox.EdgeHardBreach && ev.Action == sandbox.ActionTerminate {
		ctx := context.Background()
		rec, err := e.reg.Get(ctx, ev.PluginID)
		if err != nil {
			return
		}
		_ = e.markErrored(ctx, rec, sigilerr.Errorf(sigilerr.CodeResourceLimitExceeded,
			"resource %s terminated for exceeding its hard limit", ev.Resource))
	}
}

func (e *Engine) markErrored(ctx context.Context, rec *registry.InstalledRecord, cause error) error {
	rec.Status = registry.StatusErrored
	rec.ErrorReason = cause.Error()
	rec.UpdatedAt = time.Now()
	if updErr := e.reg.Update(ctx, rec); updErr != nil {
		slog.Error("failed to persist errored status", "plugin_id", rec.ID, "error", updErr)
	}
	e.mu.Lock()
	delete(e.live, rec.ID)
	e.mu.Unlock()
	e.publish(EventStatusChanged, rec.ID, rec.Status, rec.ErrorReason)
	return cause
}

// Disable tears down the module and sandbox for an Enabled plugin, with a
// bounded teardown timeout that escalates to forced termination.
func (e *Engine) Disable(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != registry.StatusEnabled {
		return sigilerr.Errorf(sigilerr.CodeLifecycleInvalidState,
			"plugin %q cannot be disabled from status %q", rec.ID, rec.Status)
	}

	e.mu.Lock()
	live := e.live[rec.ID]
	delete(e.live, rec.ID)
	e.mu.Unlock()

	if live != nil {
		teardownCtx, cancel := context.WithTimeout(ctx, e.teardownTimeout)
		err := live.module.Teardown(teardownCtx)
		cancel()
		if err != nil {
			slog.Warn("plugin teardown failed or timed out; force-releasing handle",
				"plugin_id", rec.ID, "error", err)
		}
		if live.container != nil {
			_ = live.container.Stop(ctx)
		}
	}

	rec.Status = registry.StatusDisabled
	rec.UpdatedAt = time.Now()
	if err := e.reg.Update(ctx, rec); err != nil {
		return err
	}

	e.publish(EventStatusChanged, rec.ID, rec.Status, "")
	return nil
}

// Uninstall disables the plugin if necessary, deletes its install
// directory, purges its permission decisions, and removes the registry
// record.
func (e *Engine) Uninstall(ctx context.Context, id string) error {
	lock := e.lockFor(id)
	lock.Lock()
	rec, err := e.reg.Get(ctx, id)
	lock.Unlock()
	if err != nil {
		return err
	}

	if rec.Status == registry.StatusEnabled {
		if err := e.Disable(ctx, id); err != nil {
			return err
		}
	}

	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(rec.InstallPath); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIoFailure, "removing plugin install directory")
	}

	for _, dec := range e.broker.List(rec.ID) {
		_ = e.broker.Revoke(rec.ID, dec.Capability)
	}

	if err := e.reg.Delete(ctx, id); err != nil {
		return err
	}

	e.publish(EventPluginUninstalled, id, "", "")
	return nil
}

// Update re-installs a newer version, composing the current record's
// source descriptor when source is nil. The new version must be strictly
// greater; capabilities no longer declared are revoked silently, and
// newly declared capabilities trigger a fresh consent prompt via
// enableLocked's call into the broker.
func (e *Engine) Update(ctx context.Context, id string, source *Source) (*registry.InstalledRecord, error) {
	lock := e.lockFor(id)
	lock.Lock()
	current, err := e.reg.Get(ctx, id)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	src := current.Source
	if source != nil {
		src = *source
	}

	archivePath, cleanup, err := e.resolveArchive(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	payload, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIoFailure, "reading plugin archive")
	}
	env, err := loadEnvelope(archivePath)
	if err != nil {
		return nil, err
	}
	outcome, err := e.verifier.Verify(payload, env)
	if err != nil {
		// Every error path in Verify pairs with an outcome that Proceed would
		// reject at any trust level anyway; propagate the more specific error.
		return nil, err
	}
	if !signature.Proceed(e.trust, outcome) {
		return nil, sigilerr.Errorf(sigilerr.CodeSignatureUntrusted,
			"signature outcome %q is not acceptable under trust level %q", outcome, e.trust)
	}

	stagingDir := filepath.Join(e.installRoot, ".staging", uuid.NewString())
	prepared, err := loader.Prepare(archivePath, stagingDir, e.hostAPIVersion.Major, e.hostAPIVersion.Minor)
	if err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, err
	}

	lock.Lock()
	defer lock.Unlock()

	// Re-fetch: the lock was released while the archive was being staged,
	// so another call could have changed status or version in between.
	current, err = e.reg.Get(ctx, id)
	if err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, err
	}

	if prepared.Manifest.ID != id {
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Errorf(sigilerr.CodeLifecycleInvalidState,
			"update archive id %q does not match installed id %q", prepared.Manifest.ID, id)
	}
	if prepared.Manifest.Version.Compare(current.Version) <= 0 {
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Errorf(sigilerr.CodeLifecycleNoUpdate,
			"update version %s is not strictly greater than installed version %s",
			prepared.Manifest.Version, current.Version)
	}

	if err := e.broker.Validate(id, prepared.Manifest.Permissions); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, err
	}

	wasEnabled := current.Status == registry.StatusEnabled
	if wasEnabled {
		if err := e.disableLocked(ctx, current); err != nil {
			_ = os.RemoveAll(stagingDir)
			return nil, err
		}
	}

	previousDir := current.InstallPath + ".previous"
	_ = os.RemoveAll(previousDir)
	if err := os.Rename(current.InstallPath, previousDir); err != nil {
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Wrap(err, sigilerr.CodeIoFailure, "preserving previous version during update")
	}

	finalDir := filepath.Join(e.installRoot, id)
	if err := os.Rename(stagingDir, finalDir); err != nil {
		// Roll back: the old version must come back into place.
		_ = os.Rename(previousDir, current.InstallPath)
		_ = os.RemoveAll(stagingDir)
		return nil, sigilerr.Wrap(err, sigilerr.CodeIoFailure, "moving updated install into place")
	}
	_ = os.RemoveAll(previousDir)

	e.reconcileGrants(id, current.GrantedPermissions, prepared.Manifest.Permissions)

	current.Version = prepared.Manifest.Version
	current.EntryPath = filepath.Join(finalDir, filepath.Base(prepared.EntryPath))
	current.UpdatedAt = time.Now()
	current.Status = registry.StatusDisabled
	current.Source = src
	current.SignatureFingerprint = fingerprintOf(env)

	if err := e.reg.Update(ctx, current); err != nil {
		return nil, err
	}

	e.publish(EventPluginUpdated, id, current.Status, "")

	if wasEnabled {
		if err := e.enableLocked(ctx, current); err != nil {
			return current, err
		}
	}

	return current, nil
}

// reconcileGrants revokes decisions for capabilities no longer declared.
// Newly declared capabilities are left untouched here; enableLocked's
// broker.Request call is what prompts for them on the next enable.
func (e *Engine) reconcileGrants(pluginID string, previouslyGranted, nowDeclared []plugin.Capability) {
	for _, old := range previouslyGranted {
		if !declaredByCategory(nowDeclared, old) {
			if err := e.broker.Revoke(pluginID, old); err != nil {
				slog.Warn("failed to revoke stale permission during update",
					"plugin_id", pluginID, "capability", old.Category, "error", err)
			}
		}
	}
}

func declaredByCategory(declared []plugin.Capability, cap plugin.Capability) bool {
	for _, d := range declared {
		if d.Category == cap.Category {
			return true
		}
	}
	return false
}

// disableLocked is Disable's body for callers that already hold id's lock.
func (e *Engine) disableLocked(ctx context.Context, rec *registry.InstalledRecord) error {
	e.mu.Lock()
	live := e.live[rec.ID]
	delete(e.live, rec.ID)
	e.mu.Unlock()

	if live != nil {
		teardownCtx, cancel := context.WithTimeout(ctx, e.teardownTimeout)
		err := live.module.Teardown(teardownCtx)
		cancel()
		if err != nil {
			slog.Warn("plugin teardown failed or timed out during update; force-releasing handle",
				"plugin_id", rec.ID, "error", err)
		}
		if live.container != nil {
			_ = live.container.Stop(ctx)
		}
	}

	rec.Status = registry.StatusDisabled
	rec.UpdatedAt = time.Now()
	return e.reg.Update(ctx, rec)
}

// CheckUpdates queries the update checker for every installed record whose
// source is a store id. Per-plugin failures are reported but do not abort
// the batch.
func (e *Engine) CheckUpdates(ctx context.Context) (map[string]plugin.Version, map[string]error) {
	versions := make(map[string]plugin.Version)
	failures := make(map[string]error)

	if e.updates == nil {
		return versions, failures
	}

	records, err := e.reg.List(ctx)
	if err != nil {
		failures["*"] = err
		return versions, failures
	}

	for _, rec := range records {
		if rec.Source.Kind != registry.SourceStore {
			continue
		}
		v, err := e.updates.LatestVersion(ctx, rec.Source.Locator)
		if err != nil {
			failures[rec.ID] = err
			continue
		}
		if v.Compare(rec.Version) > 0 {
			versions[rec.ID] = v
		}
	}

	return versions, failures
}

func (e *Engine) Get(ctx context.Context, id string) (*registry.InstalledRecord, error) {
	return e.reg.Get(ctx, id)
}

func (e *Engine) List(ctx context.Context) ([]*registry.InstalledRecord, error) {
	return e.reg.List(ctx)
}

func (e *Engine) ListEnabled(ctx context.Context) ([]*registry.InstalledRecord, error) {
	return e.reg.ListByStatus(ctx, registry.StatusEnabled)
}

func (e *Engine) ListDisabled(ctx context.Context) ([]*registry.InstalledRecord, error) {
	return e.reg.ListByStatus(ctx, registry.StatusDisabled)
}

// Events returns a subscription to the engine's event bus.
func (e *Engine) Events(buffer int) (<-chan Event, func()) {
	return e.bus.Subscribe(buffer)
}

