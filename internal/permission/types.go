// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package permission implements the broker that stands between a plugin's
// declared capabilities and the host: it validates a manifest's requested
// permissions against a policy ceiling, solicits operator consent for
// anything not already decided, and persists every decision so a restart
// does not re-prompt for something the operator already answered.
package permission

import (
	"context"
	"time"

	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// AuditLevel is the host-config policy ceiling consulted by Validate. It
// determines which high-risk capabilities are rejected outright versus
// merely requiring interactive consent at request time.
type AuditLevel string

const (
	AuditStrict   AuditLevel = "strict"
	AuditNormal   AuditLevel = "normal"
	AuditRelaxed  AuditLevel = "relaxed"
	AuditDisabled AuditLevel = "disabled"
)

// Decision is the outcome recorded against a single capability.
type Decision string

const (
	Grant Decision = "grant"
	Deny  Decision = "deny"
)

// PromptPolicy configures how Request solicits consent for capabilities
// with no remembered decision.
type PromptPolicy string

const (
	// PolicyAlwaysAsk never reuses a remembered decision; every Request
	// re-prompts, regardless of what the operator answered before.
	PolicyAlwaysAsk PromptPolicy = "always_ask"
	// PolicyAskOnce prompts once and remembers the answer by default.
	PolicyAskOnce PromptPolicy = "ask_once"
	// PolicyRiskBased auto-grants capabilities that are not flagged
	// high-risk and denies high-risk ones outright, with no prompt either
	// way.
	PolicyRiskBased PromptPolicy = "risk_based"
	// PolicyAutoGrant grants everything without prompting. Development use
	// only.
	PolicyAutoGrant PromptPolicy = "auto_grant"
	// PolicyAutoDeny denies everything without prompting. Security-test use
	// only.
	PolicyAutoDeny PromptPolicy = "auto_deny"
)

// DecisionRecord is the persisted outcome of one capability decision.
type DecisionRecord struct {
	PluginID   string             `json:"plugin_id"`
	Capability plugin.Capability  `json:"capability"`
	Decision   Decision           `json:"decision"`
	Remember   bool               `json:"remember"`
	GrantedAt  time.Time          `json:"granted_at"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
}

func (r DecisionRecord) expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Request is the payload handed to a Prompter when one or more capabilities
// have no remembered decision. Reason/Title/Description carry the original
// implementation's human-readable consent-prompt fields through (§12).
type Request struct {
	PluginID     string
	Capabilities []plugin.Capability
	Reason       string
	Title        string
	Description  string
}

// Answer is the operator's response for a single capability.
type Answer struct {
	Decision Decision
	Remember bool
}

// Prompter solicits operator consent. The CLI and server surfaces each
// supply their own implementation (a terminal prompt, a queued UI event);
// tests supply a scripted fake.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (map[plugin.Category]Answer, error)
}
