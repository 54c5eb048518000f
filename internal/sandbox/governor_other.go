// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package sandbox

import sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"

// newBackend on non-Windows builds refuses every container: job objects
// have no equivalent here, and it is not a goal of this package to grow a
// second containment primitive for another OS.
func newBackend() backend { return unavailableBackend{} }

type unavailableBackend struct{}

func (unavailableBackend) createContainer(pid int) (containerHandle, error) {
	return nil, sigilerr.New(sigilerr.CodeContainerSetupFailure,
		"resource containment is only available on Windows")
}
