// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package loader

import (
	"context"
	"net/rpc"
	"os/exec"
	"slices"

	goplugin "github.com/hashicorp/go-plugin"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// The out-of-process tier speaks go-plugin's plain net/rpc transport rather
// than its gRPC transport: net/rpc needs no generated stubs, while gRPC
// would require regenerating protobuf code this environment cannot build.
const (
	protocolVersion = 1
	magicCookieKey  = "SIGIL_NATIVE_MODULE"
	magicCookieVal  = "sigil-native-module-v1"
)

func handshakeConfig() goplugin.HandshakeConfig {
	return goplugin.HandshakeConfig{
		ProtocolVersion:  protocolVersion,
		MagicCookieKey:   magicCookieKey,
		MagicCookieValue: magicCookieVal,
	}
}

// InitArgs/InitReply and TeardownArgs/TeardownReply are the net/rpc message
// shapes for the "module" service a native module process must expose:
// api_version in, a bare success/failure out. The richer opaque-pointer and
// callback-registration fields of the in-process C ABI have no meaning
// across an RPC boundary, where the child process owns its own state
// entirely.
type InitArgs struct {
	APIMajor, APIMinor, APIPatch int
}

type InitReply struct{}

type TeardownArgs struct{}

type TeardownReply struct{}

// moduleRPCPlugin adapts a native module child process to go-plugin's
// net/rpc dispense mechanism. The host never implements Server: it only
// ever dispenses the client stub for a module some other process serves.
type moduleRPCPlugin struct{}

func (moduleRPCPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return nil, sigilerr.New(sigilerr.CodeLinkFailed, "the host does not serve the native module side of this protocol")
}

func (moduleRPCPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcModule{client: c}, nil
}

type rpcModule struct {
	client *rpc.Client
}

func (m *rpcModule) init(apiVersion plugin.Version) error {
	return m.client.Call("Module.Init", InitArgs{
		APIMajor: apiVersion.Major, APIMinor: apiVersion.Minor, APIPatch: apiVersion.Patch,
	}, &InitReply{})
}

func (m *rpcModule) teardown() error {
	return m.client.Call("Module.Teardown", TeardownArgs{}, &TeardownReply{})
}

// OutOfProcessHost hosts a native module as a child process and speaks the
// net/rpc boundary to it. This is the target tier: the Sandbox Governor can
// place the child's process in a job container, and a crash in the module
// cannot take the host down with it.
type OutOfProcessHost struct {
	client *goplugin.Client
	cmd    *exec.Cmd
	module *rpcModule
}

// StartOutOfProcess launches entryPath (optionally wrapped by a sandboxCmd
// prefix, e.g. a restricted-token launcher) and establishes the net/rpc
// connection to its "module" service.
func StartOutOfProcess(entryPath string, sandboxCmd []string) (*OutOfProcessHost, error) {
	cmd := buildCommand(entryPath, sandboxCmd)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  handshakeConfig(),
		Plugins:          map[string]goplugin.Plugin{"module": &moduleRPCPlugin{}},
		Cmd:              cmd,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeLinkFailed, "establishing rpc connection to %s", entryPath)
	}

	raw, err := rpcClient.Dispense("module")
	if err != nil {
		client.Kill()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeLinkFailed, "dispensing native module stub for %s", entryPath)
	}

	mod, ok := raw.(*rpcModule)
	if !ok {
		client.Kill()
		return nil, sigilerr.Errorf(sigilerr.CodeLinkFailed, "native module stub for %s has unexpected type %T", entryPath, raw)
	}

	return &OutOfProcessHost{client: client, cmd: cmd, module: mod}, nil
}

func buildCommand(entryPath string, sandboxCmd []string) *exec.Cmd {
	if len(sandboxCmd) == 0 {
		return exec.Command(entryPath)
	}
	args := append(slices.Clone(sandboxCmd), entryPath)
	return exec.Command(args[0], args[1:]...)
}

// Init calls the module's Init over RPC.
func (h *OutOfProcessHost) Init(ctx context.Context, apiVersion plugin.Version) error {
	if err := h.module.init(apiVersion); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeInitFailed, "native module init failed")
	}
	return nil
}

// Teardown calls the module's Teardown over RPC, waiting no longer than
// ctx allows, then kills the child process and releases the plugin
// client's resources regardless of the RPC outcome — a module that fails
// or hangs during teardown must not block the host from reclaiming the
// process.
func (h *OutOfProcessHost) Teardown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- h.module.teardown() }()
	var rpcErr error
	select {
	case rpcErr = <-done:
	case <-ctx.Done():
		rpcErr = ctx.Err()
	}
	h.client.Kill()
	if rpcErr != nil {
		return sigilerr.Wrap(rpcErr, sigilerr.CodeTeardownTimeout, "native module teardown failed")
	}
	return nil
}

// Pid returns the child process's OS process id, for the Sandbox Governor
// to assign into a job container.
func (h *OutOfProcessHost) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
