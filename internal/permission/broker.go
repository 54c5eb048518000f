// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package permission

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// auditLogEscalationThreshold is the number of consecutive decision-store
// write failures after which the broker escalates its log level from Warn
// to Error.
const auditLogEscalationThreshold = 3

// DefaultPromptTimeout is applied when a Broker is constructed without an
// explicit timeout. A timed-out prompt is treated as a Deny.
const DefaultPromptTimeout = 60 * time.Second

// WellKnownRoots names the directories a Filesystem scope's paths may fall
// under without being flagged as out-of-policy, plus any additional
// host-configured allowed roots.
type WellKnownRoots struct {
	PluginData   string
	AppData      string
	Temp         string
	AllowedRoots []string
}

func (w WellKnownRoots) contains(path string) bool {
	candidates := append([]string{w.PluginData, w.AppData, w.Temp}, w.AllowedRoots...)
	clean := filepath.Clean(path)
	for _, root := range candidates {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Broker is the permission broker: it validates manifest-declared
// capabilities against a policy ceiling, solicits operator consent for
// anything undecided, and persists every decision.
type Broker struct {
	store      *DecisionStore
	prompter   Prompter
	policy     PromptPolicy
	auditLevel AuditLevel
	roots      WellKnownRoots
	timeout    time.Duration
	logger     *slog.Logger

	locks            sync.Map // pluginID -> *sync.Mutex
	writeFailStreak  atomic.Int64
}

// Option configures a Broker at construction.
type Option func(*Broker)

func WithPromptTimeout(d time.Duration) Option {
	return func(b *Broker) { b.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroker constructs a Broker over store, soliciting consent through
// prompter under the given policy/audit level/well-known-roots
// configuration.
func NewBroker(store *DecisionStore, prompter Prompter, policy PromptPolicy, auditLevel AuditLevel, roots WellKnownRoots, opts ...Option) *Broker {
	b := &Broker{
		store:      store,
		prompter:   prompter,
		policy:     policy,
		auditLevel: auditLevel,
		roots:      roots,
		timeout:    DefaultPromptTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) lockFor(pluginID string) *sync.Mutex {
	m, _ := b.locks.LoadOrStore(pluginID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Validate checks well-formedness of every declared capability and enforces
// the audit-level policy ceiling. Under AuditStrict, a high-risk capability
// is rejected outright rather than deferred to a consent prompt.
func (b *Broker) Validate(pluginID string, manifestPermissions []plugin.Capability) error {
	var problems []error

	for _, cap := range manifestPermissions {
		if err := b.validateWellFormed(cap); err != nil {
			problems = append(problems, err)
			continue
		}
		if b.auditLevel == AuditStrict && cap.IsHighRisk() {
			problems = append(problems, sigilerr.Errorf(sigilerr.CodePermissionPolicyReject,
				"plugin %s: capability %s exceeds the strict policy ceiling", pluginID, cap.Category))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) == 1 {
		return problems[0]
	}
	return sigilerr.Join(problems...)
}

func (b *Broker) validateWellFormed(cap plugin.Capability) error {
	if cap.Category != plugin.CategoryFilesystem {
		return nil
	}
	for _, p := range cap.Filesystem.Paths {
		if p == "*" {
			continue // wildcard is high-risk, not malformed; Validate's ceiling check handles it.
		}
		if !b.roots.contains(p) {
			return sigilerr.Errorf(sigilerr.CodePermissionInvalidScope,
				"filesystem path %q is outside every well-known or allowed root", p)
		}
	}
	return nil
}

// Request consults the decision store for each capability in caps; anything
// without a usable remembered decision is resolved per the broker's
// PromptPolicy, prompting the operator when the policy calls for it.
// Requests for the same plugin are serialized; requests for distinct
// plugins proceed concurrently.
func (b *Broker) Request(ctx context.Context, pluginID string, caps []plugin.Capability, reason string) (map[plugin.Category]Decision, error) {
	lock := b.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	result := make(map[plugin.Category]Decision, len(caps))
	var needPrompt []plugin.Capability

	for _, cap := range caps {
		if b.policy != PolicyAlwaysAsk {
			if rec, ok := b.store.Lookup(pluginID, cap.Category, now); ok {
				result[cap.Category] = rec.Decision
				continue
			}
		}

		switch b.policy {
		case PolicyAutoGrant:
			if err := b.decide(pluginID, cap, Grant, true, nil); err != nil {
				return nil, err
			}
			result[cap.Category] = Grant
		case PolicyAutoDeny:
			if err := b.decide(pluginID, cap, Deny, false, nil); err != nil {
				return nil, err
			}
			result[cap.Category] = Deny
		case PolicyRiskBased:
			if cap.IsHighRisk() {
				if err := b.decide(pluginID, cap, Deny, false, nil); err != nil {
					return nil, err
				}
				result[cap.Category] = Deny
			} else {
				if err := b.decide(pluginID, cap, Grant, true, nil); err != nil {
					return nil, err
				}
				result[cap.Category] = Grant
			}
		default: // PolicyAlwaysAsk, PolicyAskOnce
			needPrompt = append(needPrompt, cap)
		}
	}

	if len(needPrompt) == 0 {
		return result, nil
	}

	answers, err := b.prompt(ctx, pluginID, needPrompt, reason)
	for _, cap := range needPrompt {
		answer, ok := answers[cap.Category]
		decision := Deny
		remember := false
		if ok {
			decision = answer.Decision
			remember = answer.Remember
		}
		if err != nil && !ok {
			// Prompt failed or timed out: default to Deny, not remembered.
			decision, remember = Deny, false
		}
		if b.policy == PolicyAlwaysAsk {
			remember = false
		} else if ok && b.policy == PolicyAskOnce {
			remember = true
		}

		if perr := b.decide(pluginID, cap, decision, remember, nil); perr != nil {
			return nil, perr
		}
		result[cap.Category] = decision
	}

	return result, nil
}

func (b *Broker) prompt(ctx context.Context, pluginID string, caps []plugin.Capability, reason string) (map[plugin.Category]Answer, error) {
	if b.prompter == nil {
		return nil, sigilerr.New(sigilerr.CodePermissionPromptTimeout, "no consent prompter configured")
	}

	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	answers, err := b.prompter.Prompt(pctx, Request{
		PluginID:     pluginID,
		Capabilities: caps,
		Reason:       reason,
		Title:        "Plugin permission request",
		Description:  reason,
	})
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodePermissionPromptTimeout, "consent prompt did not complete")
	}
	return answers, nil
}

// decide persists a single capability decision and logs it, escalating to
// Error level after auditLogEscalationThreshold consecutive write failures.
func (b *Broker) decide(pluginID string, cap plugin.Capability, decision Decision, remember bool, expiresAt *time.Time) error {
	rec := DecisionRecord{
		PluginID:   pluginID,
		Capability: cap,
		Decision:   decision,
		Remember:   remember,
		GrantedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}

	if err := b.store.Put(rec); err != nil {
		streak := b.writeFailStreak.Add(1)
		attrs := []any{"plugin_id", pluginID, "capability", cap.Category, "decision", decision, "error", err}
		if streak >= auditLogEscalationThreshold {
			b.logger.Error("permission decision store write failed repeatedly", attrs...)
		} else {
			b.logger.Warn("permission decision store write failed", attrs...)
		}
		return err
	}

	b.writeFailStreak.Store(0)
	b.logger.Info("permission decision recorded", "plugin_id", pluginID, "capability", cap.Category, "decision", decision, "remember", remember)
	return nil
}

// IsGranted reports whether pluginID holds a non-expired Grant whose scope
// subsumes cap.
func (b *Broker) IsGranted(pluginID string, cap plugin.Capability) bool {
	for _, rec := range b.store.Grants(pluginID, time.Now()) {
		if rec.Capability.Subsumes(cap) {
			return true
		}
	}
	return false
}

// Grant administratively records a Grant decision, bypassing the prompt
// policy entirely.
func (b *Broker) Grant(pluginID string, cap plugin.Capability) error {
	lock := b.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()
	return b.decide(pluginID, cap, Grant, true, nil)
}

// Revoke removes the remembered decision for the capability's category, so
// the next Request re-evaluates it under the current prompt policy.
func (b *Broker) Revoke(pluginID string, cap plugin.Capability) error {
	lock := b.lockFor(pluginID)
	lock.Lock()
	defer lock.Unlock()
	return b.store.Delete(pluginID, cap.Category)
}

// List enumerates every decision recorded for pluginID.
func (b *Broker) List(pluginID string) []DecisionRecord {
	return b.store.List(pluginID)
}
