// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/config"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/consent"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/lifecycle"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/sandbox"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/server"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/signature"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/storeclient"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// hostAPIVersion is the native-module ABI version this build of the host
// implements. A plugin's manifest api_version must be compatible with it
// for install/enable to succeed.
var hostAPIVersion = plugin.Version{Major: 1, Minor: 0, Patch: 0}

// Gateway holds all wired subsystems and manages their lifecycle.
type Gateway struct {
	Server   *server.Server
	Engine   *lifecycle.Engine
	Registry registry.Registry
}

// WireGateway creates the registry, permission broker, signature verifier,
// sandbox governor, and lifecycle engine, then wires the REST/SSE server on
// top of them. dataDir is the root directory for all persistent host state.
func WireGateway(ctx context.Context, cfg *config.Config, dataDir string) (*Gateway, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	pathOf := func(name string) string {
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dataDir, name)
	}

	reg, err := registry.Open(pathOf(cfg.Paths.RegistryFile))
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "opening plugin registry: %w", err)
	}

	verifier, err := wireVerifier(cfg, pathOf(cfg.Paths.TrustStoreDir))
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	broker, err := wireBroker(cfg, dataDir, pathOf(cfg.Paths.PermissionFile))
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	governor := sandbox.NewGovernor(cfg.Sandbox.MonitoringInterval)

	installRoot := pathOf("plugins")
	if err := os.MkdirAll(installRoot, 0o755); err != nil {
		_ = reg.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating plugin install root: %w", err)
	}
	store := storeclient.New(cfg.Store.BaseURL, cfg.Store.Timeout, filepath.Join(installRoot, ".downloads"), cfg.Store.APIToken)

	bus := lifecycle.NewBus()
	engine := lifecycle.NewEngine(
		reg, verifier, cfg.Signature.TrustLevel, broker, governor, bus, installRoot, hostAPIVersion,
		lifecycle.WithFetcher(store),
		lifecycle.WithUpdateChecker(store),
		lifecycle.WithResourceLimits(cfg.Sandbox.DefaultLimits),
	)

	var tokenValidator server.TokenValidator
	if len(cfg.Server.AuthTokens) > 0 {
		var tvErr error
		tokenValidator, tvErr = newConfigTokenValidator(cfg.Server.AuthTokens)
		if tvErr != nil {
			_ = reg.Close()
			return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "configuring auth tokens: %w", tvErr)
		}
	} else {
		slog.Warn("authentication disabled: no bearer tokens configured — all endpoints are unauthenticated")
	}

	services, err := server.NewServices(
		&pluginServiceAdapter{engine: engine},
		&permissionServiceAdapter{engine: engine},
		&resourceServiceAdapter{engine: engine},
	)
	if err != nil {
		_ = reg.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TokenValidator: tokenValidator,
		BehindProxy:    cfg.Server.BehindProxy,
		TrustedProxies: cfg.Server.TrustedProxies,
		EnableHSTS:     cfg.Server.EnableHSTS,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			Burst:             cfg.Server.RateLimitBurst,
		},
	})
	if err != nil {
		_ = reg.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(services)
	srv.RegisterEventSource(bus)

	return &Gateway{Server: srv, Engine: engine, Registry: reg}, nil
}

// wireVerifier loads every PEM certificate in trustedRootsDir as a trust
// anchor. A missing directory is treated as an empty trust store rather
// than a setup failure, since TrustNone deployments have no use for one.
func wireVerifier(cfg *config.Config, trustedRootsDir string) (*signature.Verifier, error) {
	entries, err := os.ReadDir(trustedRootsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return signature.NewVerifier(nil, nil), nil
		}
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "reading trust store directory %s", trustedRootsDir)
	}

	var roots []*x509.Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(trustedRootsDir, entry.Name()))
		if err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "reading trust root %s", entry.Name())
		}
		for block, rest := pem.Decode(raw); block != nil; block, rest = pem.Decode(rest) {
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				slog.Warn("skipping unparseable trust root certificate", "file", entry.Name(), "error", err)
				continue
			}
			roots = append(roots, cert)
		}
	}

	_ = cfg
	return signature.NewVerifier(roots, nil), nil
}

// wireBroker constructs the decision store and consent prompter behind the
// permission broker. The well-known-roots are dataDir's plugins/ subtree,
// dataDir itself, and the host's OS temp directory.
func wireBroker(cfg *config.Config, dataDir, decisionStorePath string) (*permission.Broker, error) {
	decisions, err := permission.OpenDecisionStore(decisionStorePath)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "opening permission decision store: %w", err)
	}

	roots := permission.WellKnownRoots{
		PluginData: filepath.Join(dataDir, "plugins"),
		AppData:    dataDir,
		Temp:       os.TempDir(),
	}

	broker := permission.NewBroker(
		decisions,
		consent.NewTerminalPrompter(),
		cfg.Permissions.PromptPolicy,
		cfg.Permissions.AuditLevel,
		roots,
	)
	return broker, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close releases every resource the gateway holds.
func (gw *Gateway) Close() error {
	_ = gw.Server.Close()
	return gw.Registry.Close()
}

// --- Service adapters: translate between lifecycle/registry/sandbox types
// and the server package's REST DTOs. ---

type pluginServiceAdapter struct {
	engine *lifecycle.Engine
}

func toPluginSummary(rec *registry.InstalledRecord) server.PluginSummary {
	return server.PluginSummary{
		ID:      rec.ID,
		Version: rec.Version.String(),
		Status:  string(rec.Status),
	}
}

func toPluginDetail(rec *registry.InstalledRecord) *server.PluginDetail {
	granted := make([]string, 0, len(rec.GrantedPermissions))
	for _, cap := range rec.GrantedPermissions {
		granted = append(granted, string(cap.Category))
	}
	return &server.PluginDetail{
		ID:                   rec.ID,
		Version:              rec.Version.String(),
		Status:               string(rec.Status),
		ErrorReason:          rec.ErrorReason,
		InstallPath:          rec.InstallPath,
		GrantedPermissions:   granted,
		SignatureFingerprint: rec.SignatureFingerprint,
	}
}

func (a *pluginServiceAdapter) List(ctx context.Context) ([]server.PluginSummary, error) {
	recs, err := a.engine.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]server.PluginSummary, len(recs))
	for i, rec := range recs {
		out[i] = toPluginSummary(rec)
	}
	return out, nil
}

func (a *pluginServiceAdapter) Get(ctx context.Context, id string) (*server.PluginDetail, error) {
	rec, err := a.engine.Get(ctx, id)
	if err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeLifecycleNotFound) {
			return nil, sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "plugin %q not found", id)
		}
		return nil, err
	}
	return toPluginDetail(rec), nil
}

func (a *pluginServiceAdapter) InstallFromFile(ctx context.Context, path string, autoEnable bool) (*server.PluginDetail, error) {
	rec, err := a.engine.Install(ctx, lifecycle.Source{Kind: registry.SourceLocalArchive, Locator: path}, lifecycle.InstallOptions{AutoEnable: autoEnable})
	if err != nil {
		return nil, err
	}
	return toPluginDetail(rec), nil
}

func (a *pluginServiceAdapter) InstallFromURL(ctx context.Context, url string, autoEnable bool) (*server.PluginDetail, error) {
	rec, err := a.engine.Install(ctx, lifecycle.Source{Kind: registry.SourceURL, Locator: url}, lifecycle.InstallOptions{AutoEnable: autoEnable})
	if err != nil {
		return nil, err
	}
	return toPluginDetail(rec), nil
}

func (a *pluginServiceAdapter) InstallFromStore(ctx context.Context, storeID string, autoEnable bool) (*server.PluginDetail, error) {
	rec, err := a.engine.Install(ctx, lifecycle.Source{Kind: registry.SourceStore, Locator: storeID}, lifecycle.InstallOptions{AutoEnable: autoEnable})
	if err != nil {
		return nil, err
	}
	return toPluginDetail(rec), nil
}

func (a *pluginServiceAdapter) Enable(ctx context.Context, id string) error  { return a.engine.Enable(ctx, id) }
func (a *pluginServiceAdapter) Disable(ctx context.Context, id string) error { return a.engine.Disable(ctx, id) }
func (a *pluginServiceAdapter) Uninstall(ctx context.Context, id string) error {
	return a.engine.Uninstall(ctx, id)
}

func (a *pluginServiceAdapter) Update(ctx context.Context, id string) (*server.PluginDetail, error) {
	rec, err := a.engine.Update(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return toPluginDetail(rec), nil
}

func (a *pluginServiceAdapter) CheckForUpdates(ctx context.Context) (map[string]string, map[string]string, error) {
	versions, failures := a.engine.CheckUpdates(ctx)
	outVersions := make(map[string]string, len(versions))
	for id, v := range versions {
		outVersions[id] = v.String()
	}
	outFailures := make(map[string]string, len(failures))
	for id, err := range failures {
		outFailures[id] = err.Error()
	}
	return outVersions, outFailures, nil
}

type permissionServiceAdapter struct {
	engine *lifecycle.Engine
}

func (a *permissionServiceAdapter) List(_ context.Context, pluginID string) ([]server.PermissionGrant, error) {
	recs := a.engine.Permissions(pluginID)
	out := make([]server.PermissionGrant, len(recs))
	for i, rec := range recs {
		g := server.PermissionGrant{
			Category: string(rec.Capability.Category),
			Decision: string(rec.Decision),
			Remember: rec.Remember,
			GrantedAt: rec.GrantedAt.Format(time.RFC3339),
		}
		if rec.ExpiresAt != nil {
			g.ExpiresAt = rec.ExpiresAt.Format(time.RFC3339)
		}
		out[i] = g
	}
	return out, nil
}

func (a *permissionServiceAdapter) Grant(_ context.Context, pluginID string, cap plugin.Capability) error {
	return a.engine.GrantPermission(pluginID, cap)
}

func (a *permissionServiceAdapter) Revoke(_ context.Context, pluginID string, cap plugin.Capability) error {
	return a.engine.RevokePermission(pluginID, cap)
}

type resourceServiceAdapter struct {
	engine *lifecycle.Engine
}

func (a *resourceServiceAdapter) Usage(_ context.Context, pluginID string) (map[string]float64, error) {
	usage, err := a.engine.ResourceUsage(pluginID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(usage))
	for res, v := range usage {
		out[string(res)] = v
	}
	return out, nil
}

func (a *resourceServiceAdapter) Limits(_ context.Context, pluginID string) ([]server.ResourceLimit, error) {
	limits := a.engine.ResourceLimits(pluginID)
	out := make([]server.ResourceLimit, len(limits))
	for i, l := range limits {
		out[i] = server.ResourceLimit{
			Resource:          string(l.Resource),
			SoftLimit:         l.SoftLimit,
			HardLimit:         l.HardLimit,
			MeasurementPeriod: l.MeasurementPeriod.String(),
			BreachAction:      string(l.BreachAction),
		}
	}
	return out, nil
}

func (a *resourceServiceAdapter) UpdateLimits(_ context.Context, pluginID string, limits []server.ResourceLimit) error {
	out := make([]sandbox.ResourceLimit, len(limits))
	for i, l := range limits {
		period, err := time.ParseDuration(l.MeasurementPeriod)
		if err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeServerValidationFailure, "parsing measurement_period %q", l.MeasurementPeriod)
		}
		out[i] = sandbox.ResourceLimit{
			Resource:          sandbox.Resource(l.Resource),
			SoftLimit:         l.SoftLimit,
			HardLimit:         l.HardLimit,
			MeasurementPeriod: period,
			BreachAction:      sandbox.BreachAction(l.BreachAction),
		}
	}
	return a.engine.UpdateResourceLimits(pluginID, out)
}

func (a *resourceServiceAdapter) LimitEvents(_ context.Context, pluginID string) ([]server.LimitEvent, error) {
	events := a.engine.LimitEvents(pluginID, 0)
	out := make([]server.LimitEvent, len(events))
	for i, ev := range events {
		out[i] = server.LimitEvent{
			Resource:       string(ev.Resource),
			Edge:           string(ev.Edge),
			Action:         string(ev.Action),
			Value:          ev.Value,
			Limit:          ev.Limit,
			OveragePercent: ev.OveragePercent,
			Timestamp:      ev.Timestamp.Format(time.RFC3339Nano),
		}
	}
	return out, nil
}

// configTokenValidator validates bearer tokens against pre-computed SHA256
// hashes of static config entries. Hashing at init time avoids per-request
// rehashing and keeps raw tokens out of long-lived memory.
type configTokenValidator struct {
	tokens map[[32]byte]*server.AuthenticatedUser
}

func newConfigTokenValidator(tokens []config.TokenConfig) (*configTokenValidator, error) {
	m := make(map[[32]byte]*server.AuthenticatedUser, len(tokens))
	for _, tc := range tokens {
		user, err := server.NewAuthenticatedUser(tc.UserID, tc.Name, tc.Permissions)
		if err != nil {
			slog.Warn("skipping token with invalid user config", "error", err, "user_id", tc.UserID)
			continue
		}
		hash := sha256.Sum256([]byte(tc.Token))
		m[hash] = user
	}
	if len(tokens) > 0 && len(m) == 0 {
		return nil, sigilerr.New(sigilerr.CodeCLISetupFailure,
			"all configured auth tokens failed validation — gateway would be unusable")
	}
	return &configTokenValidator{tokens: m}, nil
}

func (v *configTokenValidator) ValidateToken(_ context.Context, token string) (*server.AuthenticatedUser, error) {
	candidateHash := sha256.Sum256([]byte(token))
	// Iterate through every configured token so the match (or lack of one)
	// never leaks token count or position through timing.
	var matched *server.AuthenticatedUser

	for hash, user := range v.tokens {
		if subtle.ConstantTimeCompare(hash[:], candidateHash[:]) == 1 {
			matched = user
		}
	}

	if matched != nil {
		return matched, nil
	}
	slog.Debug("token validation failed: no configured token matched")
	return nil, sigilerr.New(sigilerr.CodeServerAuthUnauthorized, "invalid token")
}
