// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package loader

import (
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// InProcessHost is unavailable off Windows: the in-process tier links a
// native module directly into the host's address space via
// LoadLibrary/GetProcAddress, which has no equivalent in this build.
type InProcessHost struct{}

// StartInProcess always fails on non-Windows builds. The out-of-process
// tier (host.go) is the only supported tier here.
func StartInProcess(entryPath string, apiVersion plugin.Version, onLog func(level int32, message string), onRegister func(name string, fn uintptr)) (*InProcessHost, error) {
	return nil, sigilerr.New(sigilerr.CodeLinkFailed, "the in-process loader tier is only available on Windows")
}

// Teardown is a no-op; StartInProcess never succeeds on this build.
func (h *InProcessHost) Teardown() error {
	return nil
}
