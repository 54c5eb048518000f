// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package config loads and validates the host's configuration: where its
// persistent state lives, how aggressively it audits permission requests,
// the default resource ceilings newly enabled plugins run under, and how it
// reaches the plugin store and the UI collaborator.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/sandbox"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/secrets"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/signature"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// Config is the top-level host configuration.
type Config struct {
	Paths       PathsConfig       `mapstructure:"paths"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Sandbox     SandboxConfig     `mapstructure:"sandbox"`
	Signature   SignatureConfig   `mapstructure:"signature"`
	Store       StoreConfig       `mapstructure:"store"`
	Server      ServerConfig      `mapstructure:"server"`
}

// PathsConfig locates the host's persistent state on disk. RegistryFile,
// PermissionFile, and TrustStoreDir are resolved relative to AppDataDir
// unless given as absolute paths.
type PathsConfig struct {
	AppDataDir     string `mapstructure:"app_data_dir"`
	RegistryFile   string `mapstructure:"registry_file"`
	PermissionFile string `mapstructure:"permission_file"`
	TrustStoreDir  string `mapstructure:"trust_store_dir"`
}

// PermissionsConfig controls the broker's audit ceiling and prompt policy.
type PermissionsConfig struct {
	AuditLevel   permission.AuditLevel   `mapstructure:"audit_level"`
	PromptPolicy permission.PromptPolicy `mapstructure:"prompt_policy"`
}

// SandboxConfig controls the resource governor's sampling cadence and the
// default per-resource ceilings newly enabled plugins run under absent a
// manifest-declared override.
type SandboxConfig struct {
	MonitoringInterval time.Duration           `mapstructure:"monitoring_interval"`
	DefaultLimits      []sandbox.ResourceLimit `mapstructure:"default_limits"`
}

// SignatureConfig controls how strictly module archives are verified.
type SignatureConfig struct {
	TrustLevel      signature.TrustLevel `mapstructure:"trust_level"`
	TrustedRootsDir string               `mapstructure:"trusted_roots_dir"`
}

// StoreConfig addresses the plugin-store HTTP client used for
// install_plugin_from_store and check_for_updates.
type StoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// APIToken authenticates requests to the store catalog and download
	// endpoints as a bearer token. May be given directly or as a
	// keyring://service/key URI, resolved against the OS keyring during
	// Load.
	APIToken string `mapstructure:"api_token"`
}

// ServerConfig controls the REST/SSE surface exposed to the UI collaborator.
type ServerConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// AuthTokens, when non-empty, requires every request to carry one of
	// these bearer tokens. Empty means the deployment explicitly opted out
	// of authentication (local-only, loopback-bound default).
	AuthTokens []TokenConfig `mapstructure:"auth_tokens"`

	// BehindProxy trusts X-Forwarded-For/X-Real-IP from TrustedProxies
	// instead of the raw connection address. Only enable for deployments
	// fronted by a known reverse proxy (e.g. a Tailscale sidecar).
	BehindProxy    bool     `mapstructure:"behind_proxy"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	EnableHSTS     bool     `mapstructure:"enable_hsts"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// TokenConfig is one statically configured bearer token and the operator
// identity it authenticates as.
type TokenConfig struct {
	Token       string   `mapstructure:"token"`
	UserID      string   `mapstructure:"user_id"`
	Name        string   `mapstructure:"name"`
	Permissions []string `mapstructure:"permissions"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix SIGIL_PLUGINHOST_).
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("SIGIL_PLUGINHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	// Any string value, most commonly store.api_token or an
	// auth_tokens[].token entry, may be given as a keyring://service/key URI
	// instead of a literal secret. Resolution failures are logged and the
	// original URI is left in place rather than failing config load, since
	// only certain deployments (those that actually use keyring:// values)
	// depend on the OS keyring being reachable.
	secrets.ResolveViperSecrets(v, secrets.NewKeyringStore())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Wrapf(errors.Join(errs...), sigilerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("paths.app_data_dir", defaultAppDataDir())
	v.SetDefault("paths.registry_file", "registry.db")
	v.SetDefault("paths.permission_file", "permissions.json")
	v.SetDefault("paths.trust_store_dir", "trust_store")

	v.SetDefault("permissions.audit_level", string(permission.AuditNormal))
	v.SetDefault("permissions.prompt_policy", string(permission.PolicyAskOnce))

	v.SetDefault("sandbox.monitoring_interval", sandbox.DefaultMonitoringInterval.String())
	v.SetDefault("sandbox.default_limits", defaultResourceLimits())

	v.SetDefault("signature.trust_level", string(signature.TrustBasic))
	v.SetDefault("signature.trusted_roots_dir", "trust_store")

	v.SetDefault("store.base_url", "https://store.example.invalid/api/v1")
	v.SetDefault("store.timeout", "30s")

	v.SetDefault("server.listen_addr", "127.0.0.1:7420")
	v.SetDefault("server.cors_origins", []string{"tauri://localhost"})
}

// defaultResourceLimits seeds a conservative ceiling on the resources most
// likely to run away in a misbehaving plugin: CPU, memory, and handles. The
// other resources get no default entry and are not limited unless an
// operator adds one.
func defaultResourceLimits() []map[string]any {
	limit := func(res sandbox.Resource, soft, hard float64, period time.Duration, action sandbox.BreachAction) map[string]any {
		return map[string]any{
			"resource":           string(res),
			"soft_limit":         soft,
			"hard_limit":         hard,
			"measurement_period": period.String(),
			"breach_action":      string(action),
		}
	}
	return []map[string]any{
		limit(sandbox.ResourceCPUPercent, 60, 90, 10*time.Second, sandbox.ActionThrottle),
		limit(sandbox.ResourceMemMB, 150, 250, 10*time.Second, sandbox.ActionTerminate),
		limit(sandbox.ResourceHandles, 500, 1000, 30*time.Second, sandbox.ActionWarn),
	}
}

// Validate checks the configuration for logical errors, collecting every
// violation found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validatePermissions()...)
	errs = append(errs, c.validateSandbox()...)
	errs = append(errs, c.validateSignature()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validatePaths() []error {
	var errs []error
	if c.Paths.AppDataDir == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: paths.app_data_dir must not be empty"))
	}
	if c.Paths.RegistryFile == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: paths.registry_file must not be empty"))
	}
	if c.Paths.PermissionFile == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: paths.permission_file must not be empty"))
	}
	return errs
}

func (c *Config) validatePermissions() []error {
	var errs []error

	validAudit := map[permission.AuditLevel]bool{
		permission.AuditStrict: true, permission.AuditNormal: true,
		permission.AuditRelaxed: true, permission.AuditDisabled: true,
	}
	if !validAudit[c.Permissions.AuditLevel] {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: permissions.audit_level must be one of [strict, normal, relaxed, disabled], got %q",
			c.Permissions.AuditLevel))
	}

	validPolicy := map[permission.PromptPolicy]bool{
		permission.PolicyAlwaysAsk: true, permission.PolicyAskOnce: true,
		permission.PolicyRiskBased: true, permission.PolicyAutoGrant: true,
		permission.PolicyAutoDeny: true,
	}
	if !validPolicy[c.Permissions.PromptPolicy] {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: permissions.prompt_policy must be one of [always_ask, ask_once, risk_based, auto_grant, auto_deny], got %q",
			c.Permissions.PromptPolicy))
	}

	return errs
}

func (c *Config) validateSandbox() []error {
	var errs []error

	if c.Sandbox.MonitoringInterval <= 0 {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
			"config: sandbox.monitoring_interval must be greater than 0"))
	}

	for i, limit := range c.Sandbox.DefaultLimits {
		if limit.Resource == "" {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: sandbox.default_limits[%d].resource must not be empty", i))
			continue
		}
		if limit.SoftLimit > 0 && limit.HardLimit > 0 && limit.SoftLimit >= limit.HardLimit {
			errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
				"config: sandbox.default_limits[%d] (%s) soft_limit %g must be less than hard_limit %g",
				i, limit.Resource, limit.SoftLimit, limit.HardLimit))
		}
	}

	return errs
}

func (c *Config) validateSignature() []error {
	var errs []error

	validTrust := map[signature.TrustLevel]bool{
		signature.TrustStrict: true, signature.TrustBasic: true, signature.TrustNone: true,
	}
	if !validTrust[c.Signature.TrustLevel] {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: signature.trust_level must be one of [strict, basic, none], got %q",
			c.Signature.TrustLevel))
	}

	if c.Signature.TrustedRootsDir == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue,
			"config: signature.trusted_roots_dir must not be empty"))
	}

	return errs
}

func (c *Config) validateStore() []error {
	var errs []error

	if c.Store.BaseURL == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: store.base_url must not be empty"))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: store.timeout must be greater than 0"))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "config: server.listen_addr must not be empty"))
		return errs
	}

	host, portStr, err := net.SplitHostPort(c.Server.ListenAddr)
	if err != nil {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: server.listen_addr must be a valid host:port address, got %q: %w", c.Server.ListenAddr, err))
		return errs
	}
	_ = host // an empty host (e.g. ":7420") is valid; it binds all interfaces

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: server.listen_addr port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"config: server.listen_addr port must be between 1 and 65535, got %d", port))
	}

	return errs
}
