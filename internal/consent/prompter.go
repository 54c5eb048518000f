// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package consent implements a terminal operator-consent prompt for the
// permission broker, for CLI and headless/dev operation. The real consent
// surface for an end user lives in the UI shell this repository excludes;
// this is the fallback the broker's Prompter interface needs to be usable
// on its own.
package consent

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// TerminalPrompter satisfies permission.Prompter by running a bubbletea
// program against the process's own terminal.
type TerminalPrompter struct {
	output io.Writer
}

// NewTerminalPrompter constructs a Prompter that reads/writes the
// process's controlling terminal.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

func (p *TerminalPrompter) Prompt(ctx context.Context, req permission.Request) (map[plugin.Category]permission.Answer, error) {
	if len(req.Capabilities) == 0 {
		return map[plugin.Category]permission.Answer{}, nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.output != nil {
		opts = append(opts, tea.WithOutput(p.output))
	}
	program := tea.NewProgram(newConsentModel(req), opts...)

	final, err := program.Run()
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodePermissionPromptTimeout,
			"running consent prompt for %s", req.PluginID)
	}

	model := final.(consentModel)
	if model.declined {
		return nil, sigilerr.Errorf(sigilerr.CodePermissionPromptTimeout,
			"operator cancelled the consent prompt for %s", req.PluginID)
	}
	return model.answers, nil
}
