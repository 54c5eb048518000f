// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package consent

import (
	"fmt"
	"strings"

	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// describeScope renders a capability's scope payload as the single line
// the consent prompt shows the operator underneath its category heading.
func describeScope(c plugin.Capability) string {
	switch c.Category {
	case plugin.CategoryFilesystem:
		var parts []string
		if c.Filesystem.Read {
			parts = append(parts, "read")
		}
		if c.Filesystem.Write {
			parts = append(parts, "write")
		}
		paths := "any path"
		if len(c.Filesystem.Paths) > 0 {
			paths = strings.Join(c.Filesystem.Paths, ", ")
		}
		return fmt.Sprintf("%s access to %s", strings.Join(parts, "+"), paths)

	case plugin.CategoryNetwork:
		if len(c.Network.AllowedHosts) == 0 {
			return "no hosts declared"
		}
		return "connect to " + strings.Join(c.Network.AllowedHosts, ", ")

	case plugin.CategoryUI:
		var parts []string
		if c.UI.Notifications {
			parts = append(parts, "notifications")
		}
		if c.UI.Windows {
			parts = append(parts, "windows")
		}
		if c.UI.Clipboard {
			parts = append(parts, "clipboard")
		}
		if len(parts) == 0 {
			return "no UI surfaces declared"
		}
		return strings.Join(parts, ", ")

	case plugin.CategorySystem:
		var parts []string
		if c.System.ReadInfo {
			parts = append(parts, "read system info")
		}
		if c.System.ExecCommand {
			parts = append(parts, "execute commands")
		}
		if len(parts) == 0 {
			return "no system access declared"
		}
		return strings.Join(parts, ", ")

	case plugin.CategoryInterprocess:
		var parts []string
		if c.Interprocess.Discover {
			parts = append(parts, "discover other plugins")
		}
		if len(c.Interprocess.Send) > 0 {
			parts = append(parts, "message "+strings.Join(c.Interprocess.Send, ", "))
		}
		if c.Interprocess.SharedData {
			parts = append(parts, "shared data region")
		}
		if len(parts) == 0 {
			return "no interprocess access declared"
		}
		return strings.Join(parts, ", ")

	default:
		return "unknown scope"
	}
}
