// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lifecycle

import (
	"context"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/loader"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// linkedModule is the engine's own view of a linked native module,
// narrowed to what enable()/disable() need regardless of which loader
// tier produced it. *loader.OutOfProcessHost already satisfies this
// directly; the in-process tier is adapted below because its Teardown
// takes no context and it has no separate process id.
type linkedModule interface {
	Teardown(ctx context.Context) error
	Pid() int
}

type inProcessAdapter struct {
	host *loader.InProcessHost
}

func (a *inProcessAdapter) Teardown(context.Context) error {
	return a.host.Teardown()
}

func (a *inProcessAdapter) Pid() int {
	// In-process modules run inside the host's own process; the governor
	// cannot place them in a separate job object, so there is no pid to
	// hand it. enableLocked skips sandbox containment when Pid is 0, so
	// this tier runs uncontained.
	return 0
}

// linkFunc is the seam enableLocked calls through; it defaults to
// defaultLink but tests substitute a fake so Enable/Disable can be
// exercised without spawning a real native module process — the same
// replaceable-collaborator shape the container engine uses for its
// commandRunner.
type linkFunc func(ctx context.Context, entryPath string, apiVersion plugin.Version) (linkedModule, error)

// defaultLink starts the native module for a prepared install at the
// engine's configured tier and runs its initializer.
func (e *Engine) defaultLink(ctx context.Context, entryPath string, apiVersion plugin.Version) (linkedModule, error) {
	switch e.tier {
	case loader.TierInProcess:
		host, err := loader.StartInProcess(entryPath, apiVersion, e.onModuleLog, e.onModuleRegister)
		if err != nil {
			return nil, err
		}
		return &inProcessAdapter{host: host}, nil
	default:
		host, err := loader.StartOutOfProcess(entryPath, e.sandboxCmd)
		if err != nil {
			return nil, err
		}
		if err := host.Init(ctx, apiVersion); err != nil {
			_ = host.Teardown(ctx)
			return nil, err
		}
		return host, nil
	}
}
