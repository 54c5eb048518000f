// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package permission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

type scriptedPrompter struct {
	answers map[plugin.Category]permission.Answer
	err     error
	calls   int
}

func (p *scriptedPrompter) Prompt(ctx context.Context, req permission.Request) (map[plugin.Category]permission.Answer, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[plugin.Category]permission.Answer, len(req.Capabilities))
	for _, cap := range req.Capabilities {
		if ans, ok := p.answers[cap.Category]; ok {
			out[cap.Category] = ans
		}
	}
	return out, nil
}

func newBroker(t *testing.T, prompter permission.Prompter, policy permission.PromptPolicy) *permission.Broker {
	t.Helper()
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)
	return permission.NewBroker(store, prompter, policy, permission.AuditNormal, permission.WellKnownRoots{
		PluginData: "plugin_data",
	})
}

func TestBrokerRequestAskOnceRemembersGrant(t *testing.T) {
	prompter := &scriptedPrompter{answers: map[plugin.Category]permission.Answer{
		plugin.CategoryUI: {Decision: permission.Grant, Remember: true},
	}}
	broker := newBroker(t, prompter, permission.PolicyAskOnce)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	decisions, err := broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "show notifications")
	require.NoError(t, err)
	assert.Equal(t, permission.Grant, decisions[plugin.CategoryUI])
	assert.Equal(t, 1, prompter.calls)

	// Second request should reuse the remembered decision, not re-prompt.
	decisions, err = broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "show notifications")
	require.NoError(t, err)
	assert.Equal(t, permission.Grant, decisions[plugin.CategoryUI])
	assert.Equal(t, 1, prompter.calls)
}

func TestBrokerRequestAlwaysAskNeverRemembers(t *testing.T) {
	prompter := &scriptedPrompter{answers: map[plugin.Category]permission.Answer{
		plugin.CategoryUI: {Decision: permission.Grant, Remember: true},
	}}
	broker := newBroker(t, prompter, permission.PolicyAlwaysAsk)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	_, err := broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "show notifications")
	require.NoError(t, err)
	_, err = broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "show notifications")
	require.NoError(t, err)
	assert.Equal(t, 2, prompter.calls)
}

func TestBrokerRequestTimeoutDefaultsToDeny(t *testing.T) {
	prompter := &scriptedPrompter{err: context.DeadlineExceeded}
	broker := newBroker(t, prompter, permission.PolicyAskOnce)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	decisions, err := broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "show notifications")
	require.NoError(t, err)
	assert.Equal(t, permission.Deny, decisions[plugin.CategoryUI])
}

func TestBrokerRequestRiskBasedAutoGrantsLowRisk(t *testing.T) {
	broker := newBroker(t, nil, permission.PolicyRiskBased)

	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	decisions, err := broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "")
	require.NoError(t, err)
	assert.Equal(t, permission.Grant, decisions[plugin.CategoryUI])
}

func TestBrokerRequestRiskBasedDeniesHighRiskWithoutPrompt(t *testing.T) {
	broker := newBroker(t, nil, permission.PolicyRiskBased)

	cap := plugin.NewNetworkCapability(plugin.NetworkScope{AllowedHosts: []string{"*"}})
	decisions, err := broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "")
	require.NoError(t, err)
	assert.Equal(t, permission.Deny, decisions[plugin.CategoryNetwork])
}

func TestBrokerRequestSerializesPerPlugin(t *testing.T) {
	prompter := &scriptedPrompter{answers: map[plugin.Category]permission.Answer{
		plugin.CategoryUI: {Decision: permission.Grant, Remember: true},
	}}
	broker := newBroker(t, prompter, permission.PolicyAskOnce)
	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})

	done := make(chan struct{})
	go func() {
		_, _ = broker.Request(context.Background(), "com.example.hello", []plugin.Capability{cap}, "")
		close(done)
	}()
	_, err := broker.Request(context.Background(), "com.example.other", []plugin.Capability{cap}, "")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request for unrelated plugin should not block on a concurrent request for another plugin")
	}
}

func TestBrokerIsGrantedRespectsSubsumption(t *testing.T) {
	broker := newBroker(t, nil, permission.PolicyAutoGrant)
	broad := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Write: true, Paths: []string{"*"}})
	require.NoError(t, broker.Grant("com.example.hello", broad))

	narrow := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Paths: []string{"plugin_data"}})
	assert.True(t, broker.IsGranted("com.example.hello", narrow))

	other := plugin.NewNetworkCapability(plugin.NetworkScope{AllowedHosts: []string{"example.com"}})
	assert.False(t, broker.IsGranted("com.example.hello", other))
}

func TestBrokerRevokeClearsDecision(t *testing.T) {
	broker := newBroker(t, nil, permission.PolicyAutoGrant)
	cap := plugin.NewUICapability(plugin.UIScope{Notifications: true})
	require.NoError(t, broker.Grant("com.example.hello", cap))
	assert.True(t, broker.IsGranted("com.example.hello", cap))

	require.NoError(t, broker.Revoke("com.example.hello", cap))
	assert.False(t, broker.IsGranted("com.example.hello", cap))
}

func TestBrokerValidateRejectsHighRiskUnderStrict(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)
	broker := permission.NewBroker(store, nil, permission.PolicyAskOnce, permission.AuditStrict, permission.WellKnownRoots{})

	cap := plugin.NewNetworkCapability(plugin.NetworkScope{AllowedHosts: []string{"*"}})
	err = broker.Validate("com.example.hello", []plugin.Capability{cap})
	require.Error(t, err)
	assert.True(t, sigilerr.IsUnauthorized(err) || sigilerr.IsInvalidInput(err) || sigilerr.HasCode(err, sigilerr.CodePermissionPolicyReject))
}

func TestBrokerValidateRejectsPathOutsideAllowedRoots(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)
	broker := permission.NewBroker(store, nil, permission.PolicyAskOnce, permission.AuditNormal, permission.WellKnownRoots{
		PluginData: "plugin_data",
	})

	cap := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Paths: []string{"/etc/shadow"}})
	err = broker.Validate("com.example.hello", []plugin.Capability{cap})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodePermissionInvalidScope))
}

func TestBrokerValidateAcceptsWellFormedCapability(t *testing.T) {
	store, err := permission.OpenDecisionStore(testStorePath(t))
	require.NoError(t, err)
	broker := permission.NewBroker(store, nil, permission.PolicyAskOnce, permission.AuditNormal, permission.WellKnownRoots{
		PluginData: "plugin_data",
	})

	cap := plugin.NewFilesystemCapability(plugin.FilesystemScope{Read: true, Paths: []string{"plugin_data/cache"}})
	assert.NoError(t, broker.Validate("com.example.hello", []plugin.Capability{cap}))
}
