// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package plugin provides public types for plugin authors: the manifest
// schema embedded in an archive and the capability descriptors a plugin
// declares in it.
package plugin

import (
	"fmt"
)

// Version is an ordered semantic triple with strict total ordering.
type Version struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
	Patch int `yaml:"patch"`
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a "major.minor.patch" string, as returned by a
// plugin store's catalog API.
func ParseVersion(s string) (Version, error) {
	var v Version
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return Version{}, fmt.Errorf("parsing version %q: expected major.minor.patch", s)
	}
	return v, nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Manifest describes a plugin's identity, compatibility, and declared
// capabilities. It is loaded from the manifest document embedded in the
// plugin's archive.
type Manifest struct {
	ID          string       `yaml:"id"`
	Version     Version      `yaml:"version"`
	Entry       string       `yaml:"entry"`
	ApiVersion  Version      `yaml:"api_version"`
	Permissions []Capability `yaml:"permissions"`

	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Homepage    string `yaml:"homepage,omitempty"`
}

// Category is the closed set of capability categories a plugin may declare
// permissions under. This is a sum-type discriminant, not a bit flag: every
// Capability carries exactly one category and only that category's scope.
type Category string

const (
	CategoryFilesystem   Category = "filesystem"
	CategoryNetwork      Category = "network"
	CategoryUI           Category = "ui"
	CategorySystem       Category = "system"
	CategoryInterprocess Category = "interprocess"
)

// FilesystemScope is the scope payload for a Filesystem capability.
type FilesystemScope struct {
	Read  bool     `yaml:"read,omitempty"`
	Write bool     `yaml:"write,omitempty"`
	Paths []string `yaml:"paths,omitempty"`
}

// NetworkScope is the scope payload for a Network capability.
type NetworkScope struct {
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`
}

// UIScope is the scope payload for a UI capability.
type UIScope struct {
	Notifications bool `yaml:"notifications,omitempty"`
	Windows       bool `yaml:"windows,omitempty"`
	Clipboard     bool `yaml:"clipboard,omitempty"`
}

// SystemScope is the scope payload for a System capability.
type SystemScope struct {
	ReadInfo    bool `yaml:"read_info,omitempty"`
	ExecCommand bool `yaml:"exec_command,omitempty"`
}

// InterprocessScope is the scope payload for an Interprocess capability.
type InterprocessScope struct {
	Discover   bool     `yaml:"discover,omitempty"`
	Send       []string `yaml:"send,omitempty"`
	SharedData bool     `yaml:"shared_data,omitempty"`
}

// Capability is a tagged variant over the five permission categories. Only
// the field matching Category is populated; the others are the type's zero
// value. Construct one with the NewXCapability helpers rather than filling
// the struct directly, so a reader can see at a glance which scope is live.
type Capability struct {
	Category Category `yaml:"category"`

	Filesystem   FilesystemScope   `yaml:"filesystem,omitempty"`
	Network      NetworkScope      `yaml:"network,omitempty"`
	UI           UIScope           `yaml:"ui,omitempty"`
	System       SystemScope       `yaml:"system,omitempty"`
	Interprocess InterprocessScope `yaml:"interprocess,omitempty"`
}

func NewFilesystemCapability(scope FilesystemScope) Capability {
	return Capability{Category: CategoryFilesystem, Filesystem: scope}
}

func NewNetworkCapability(scope NetworkScope) Capability {
	return Capability{Category: CategoryNetwork, Network: scope}
}

func NewUICapability(scope UIScope) Capability {
	return Capability{Category: CategoryUI, UI: scope}
}

func NewSystemCapability(scope SystemScope) Capability {
	return Capability{Category: CategorySystem, System: scope}
}

func NewInterprocessCapability(scope InterprocessScope) Capability {
	return Capability{Category: CategoryInterprocess, Interprocess: scope}
}

// Subsumes reports whether c's scope is at least as broad as other's, for
// capabilities of the same category. Subsumption is monotone per category:
// a capability that grants more is always permitted wherever a narrower one
// would be. Capabilities of different categories never subsume each other.
func (c Capability) Subsumes(other Capability) bool {
	if c.Category != other.Category {
		return false
	}
	switch c.Category {
	case CategoryFilesystem:
		if other.Filesystem.Read && !c.Filesystem.Read {
			return false
		}
		if other.Filesystem.Write && !c.Filesystem.Write {
			return false
		}
		return pathsSubsume(c.Filesystem.Paths, other.Filesystem.Paths)
	case CategoryNetwork:
		return hostsSubsume(c.Network.AllowedHosts, other.Network.AllowedHosts)
	case CategoryUI:
		if other.UI.Notifications && !c.UI.Notifications {
			return false
		}
		if other.UI.Windows && !c.UI.Windows {
			return false
		}
		if other.UI.Clipboard && !c.UI.Clipboard {
			return false
		}
		return true
	case CategorySystem:
		if other.System.ReadInfo && !c.System.ReadInfo {
			return false
		}
		if other.System.ExecCommand && !c.System.ExecCommand {
			return false
		}
		return true
	case CategoryInterprocess:
		if other.Interprocess.Discover && !c.Interprocess.Discover {
			return false
		}
		if other.Interprocess.SharedData && !c.Interprocess.SharedData {
			return false
		}
		return idsSubsume(c.Interprocess.Send, other.Interprocess.Send)
	default:
		return false
	}
}

func pathsSubsume(broader, narrower []string) bool {
	for _, n := range narrower {
		if !containsPath(broader, n) {
			return false
		}
	}
	return true
}

func containsPath(set []string, want string) bool {
	for _, p := range set {
		if p == "*" || p == want {
			return true
		}
	}
	return false
}

func hostsSubsume(broader, narrower []string) bool {
	for _, n := range narrower {
		if !containsHost(broader, n) {
			return false
		}
	}
	return true
}

func containsHost(set []string, want string) bool {
	for _, h := range set {
		if h == "*" || h == want {
			return true
		}
	}
	return false
}

func idsSubsume(broader, narrower []string) bool {
	for _, n := range narrower {
		if !containsHost(broader, n) {
			return false
		}
	}
	return true
}

// IsHighRisk flags scope-broadness that raises a capability's risk tier:
// a filesystem path equal to the OS root, a network scope granting ANY_HOST,
// or a system scope with exec_command.
func (c Capability) IsHighRisk() bool {
	switch c.Category {
	case CategoryFilesystem:
		for _, p := range c.Filesystem.Paths {
			if isOSRoot(p) {
				return true
			}
		}
		return false
	case CategoryNetwork:
		for _, h := range c.Network.AllowedHosts {
			if h == "*" {
				return true
			}
		}
		return false
	case CategorySystem:
		return c.System.ExecCommand
	default:
		return false
	}
}

func isOSRoot(p string) bool {
	if p == "/" {
		return true
	}
	if len(p) == 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		return true
	}
	return false
}
