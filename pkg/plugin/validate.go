// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package plugin

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// idRe matches the manifest id grammar: reverse-DNS-flavored, lowercase,
// starting with an alphanumeric, 3-128 characters total.
var idRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,127}$`)

// validCategories enumerates the closed set of capability categories.
var validCategories = map[Category]bool{
	CategoryFilesystem:   true,
	CategoryNetwork:      true,
	CategoryUI:           true,
	CategorySystem:       true,
	CategoryInterprocess: true,
}

// Validate checks that the Manifest is structurally well-formed: required
// fields present, id grammar, entry path confined to the archive root, and
// every declared capability tagged with a recognized category. It does not
// check policy (that is the Permission Broker's job) or api compatibility
// against a specific host version (the caller supplies that separately via
// CheckAPICompatible, since the host's version isn't a property of the
// manifest itself).
func (m *Manifest) Validate() error {
	if err := m.validateID(); err != nil {
		return err
	}
	if err := m.validateEntry(); err != nil {
		return err
	}
	if err := m.validatePermissions(); err != nil {
		return err
	}
	return nil
}

func (m *Manifest) validateID() error {
	if m.ID == "" {
		return fmt.Errorf("manifest validation: id must not be empty")
	}
	if !idRe.MatchString(m.ID) {
		return fmt.Errorf("manifest validation: id %q does not match the required grammar", m.ID)
	}
	return nil
}

// validateEntry ensures entry is a relative path strictly inside the
// archive root: no absolute paths, no "..", no symbolic traversal via a
// cleaned path that escapes upward.
func (m *Manifest) validateEntry() error {
	if m.Entry == "" {
		return fmt.Errorf("manifest validation: entry must not be empty")
	}
	normalized := path.Clean(strings.ReplaceAll(m.Entry, `\`, `/`))
	if path.IsAbs(normalized) || (len(normalized) >= 2 && normalized[1] == ':') {
		return fmt.Errorf("manifest validation: entry %q must be a relative path", m.Entry)
	}
	if normalized == ".." || strings.HasPrefix(normalized, "../") {
		return fmt.Errorf("manifest validation: entry %q escapes the archive root", m.Entry)
	}
	return nil
}

func (m *Manifest) validatePermissions() error {
	for i, cap := range m.Permissions {
		if !validCategories[cap.Category] {
			return fmt.Errorf("manifest validation: permissions[%d]: unrecognized category %q", i, cap.Category)
		}
	}
	return nil
}

// CheckAPICompatible validates the manifest's declared api_version against
// the host's: major must match exactly, minor must not exceed the host's.
func (m *Manifest) CheckAPICompatible(hostMajor, hostMinor int) error {
	if m.ApiVersion.Major != hostMajor {
		return fmt.Errorf("manifest api_version major %d does not match host major %d", m.ApiVersion.Major, hostMajor)
	}
	if m.ApiVersion.Minor > hostMinor {
		return fmt.Errorf("manifest api_version minor %d exceeds host minor %d", m.ApiVersion.Minor, hostMinor)
	}
	return nil
}
