// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package consent

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/permission"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	rememberStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// consentModel walks the operator through req.Capabilities one at a time,
// collecting a grant/deny answer (with an optional "remember" toggle) for
// each before quitting.
type consentModel struct {
	pluginID string
	caps     []plugin.Capability
	idx      int
	remember bool
	answers  map[plugin.Category]permission.Answer
	done     bool
	declined bool
}

func newConsentModel(req permission.Request) consentModel {
	return consentModel{
		pluginID: req.PluginID,
		caps:     req.Capabilities,
		remember: true,
		answers:  make(map[plugin.Category]permission.Answer, len(req.Capabilities)),
	}
}

func (m consentModel) Init() tea.Cmd { return nil }

func (m consentModel) current() plugin.Capability { return m.caps[m.idx] }

func (m consentModel) advance() (tea.Model, tea.Cmd) {
	m.idx++
	if m.idx >= len(m.caps) {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m consentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "y":
		m.answers[m.current().Category] = permission.Answer{Decision: permission.Grant, Remember: m.remember}
		return m.advance()
	case "n":
		m.answers[m.current().Category] = permission.Answer{Decision: permission.Deny, Remember: m.remember}
		return m.advance()
	case "r":
		m.remember = !m.remember
		return m, nil
	case "q", "ctrl+c", "esc":
		m.declined = true
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m consentModel) View() string {
	if m.done {
		return ""
	}

	c := m.current()
	var b strings.Builder

	b.WriteString(titleStyle.Render(" Plugin permission request ") + "\n\n")
	b.WriteString(promptStyle.Render(m.pluginID) + "\n")
	b.WriteString(dimStyle.Render("capability "+strconv.Itoa(m.idx+1)+" of "+strconv.Itoa(len(m.caps))) + "\n\n")
	b.WriteString(selectedStyle.Render(string(c.Category)) + ": " + describeScope(c) + "\n")
	if c.IsHighRisk() {
		b.WriteString(warnStyle.Render("  this capability is considered high-risk") + "\n")
	}

	remembered := "off"
	if m.remember {
		remembered = "on"
	}
	b.WriteString("\n" + rememberStyle.Render("remember decision: "+remembered) + " (r to toggle)\n")
	b.WriteString(dimStyle.Render("y grant  n deny  q cancel all remaining"))

	return b.String()
}
