// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package loader

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// hostContextABI mirrors the fixed-layout context record passed to
// plugin_init by pointer. Field order and width must never change without
// also bumping api_major, since existing compiled native modules read it by
// offset.
type hostContextABI struct {
	apiMajor, apiMinor, apiPatch uint32
	_                            uint32 // padding: align the following pointers on 8 bytes.
	hostOpaque                  uintptr
	pluginOpaque                uintptr
	registerCallback             uintptr
	logSink                      uintptr
}

// Return codes from plugin_init / plugin_teardown: negative values
// indicate specific failure kinds.
const (
	returnOK                  int32 = 0
	returnNullContext         int32 = -1
	returnAPIMismatch         int32 = -2
	returnCallbackRegFailed   int32 = -3
	returnAllocationFailed    int32 = -4
	returnUnspecified         int32 = -5
)

// InProcessHost loads a native module directly into the host process via
// LoadLibrary/GetProcAddress and calls its plugin_init/plugin_teardown
// exports with the fixed C ABI context. This is the degraded, dev-only
// tier: resource governance for a module loaded this way is best-effort,
// since there is no separate process for the Sandbox Governor to contain.
type InProcessHost struct {
	handle       windows.Handle
	initAddr     uintptr
	teardownAddr uintptr
	ctx          *hostContextABI
	logCallback  uintptr
	registerCallback uintptr
	onLog        func(level int32, message string)
	onRegister   func(name string, fn uintptr)
	keepAlive    []uintptr // callback trampolines must outlive the module.
}

// StartInProcess loads entryPath and calls plugin_init.
func StartInProcess(entryPath string, apiVersion plugin.Version, onLog func(level int32, message string), onRegister func(name string, fn uintptr)) (*InProcessHost, error) {
	handle, err := windows.LoadLibrary(entryPath)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeLinkFailed, "loading native module %s", entryPath)
	}

	initAddr, err := windows.GetProcAddress(handle, "plugin_init")
	if err != nil {
		windows.FreeLibrary(handle)
		return nil, sigilerr.Wrapf(err, sigilerr.CodeSymbolMissing, "resolving plugin_init in %s", entryPath)
	}
	teardownAddr, err := windows.GetProcAddress(handle, "plugin_teardown")
	if err != nil {
		windows.FreeLibrary(handle)
		return nil, sigilerr.Wrapf(err, sigilerr.CodeSymbolMissing, "resolving plugin_teardown in %s", entryPath)
	}

	h := &InProcessHost{
		handle:       handle,
		initAddr:     initAddr,
		teardownAddr: teardownAddr,
		onLog:        onLog,
		onRegister:   onRegister,
	}

	h.logCallback = syscall.NewCallback(h.logTrampoline)
	h.registerCallback = syscall.NewCallback(h.registerTrampoline)
	h.keepAlive = append(h.keepAlive, h.logCallback, h.registerCallback)

	h.ctx = &hostContextABI{
		apiMajor:         uint32(apiVersion.Major),
		apiMinor:         uint32(apiVersion.Minor),
		apiPatch:         uint32(apiVersion.Patch),
		registerCallback: h.registerCallback,
		logSink:          h.logCallback,
	}

	r1, _, _ := syscall.SyscallN(h.initAddr, uintptr(unsafe.Pointer(h.ctx)))
	if code := int32(r1); code != returnOK {
		windows.FreeLibrary(handle)
		return nil, sigilerr.Errorf(sigilerr.CodeInitFailed, "plugin_init in %s returned code %d", entryPath, code)
	}

	return h, nil
}

// logTrampoline is called from native code via the logSink function
// pointer; message is a null-terminated UTF-8 byte sequence owned by the
// caller for the duration of the call.
func (h *InProcessHost) logTrampoline(level int32, messagePtr uintptr) uintptr {
	if h.onLog != nil {
		h.onLog(level, readCString(messagePtr))
	}
	return 0
}

// registerTrampoline is called from native code via the registerCallback
// function pointer to subscribe a plugin-owned function to a named host
// event.
func (h *InProcessHost) registerTrampoline(namePtr uintptr, fn uintptr) uintptr {
	if h.onRegister != nil {
		h.onRegister(readCString(namePtr), fn)
	}
	return 0
}

func readCString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var buf []byte
	for i := uintptr(0); ; i++ {
		b := *(*byte)(unsafe.Pointer(ptr + i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

// Teardown calls plugin_teardown, nulls plugin_opaque, and releases the
// module handle. The caller is responsible for enforcing the teardown
// timeout (a SyscallN into a hung native module cannot itself be
// interrupted) by racing this against a deadline and escalating to
// sandbox-assisted termination of the whole host process tier only exists
// for the out-of-process tier; a hang here is a known limitation of the
// in-process dev-only mode.
func (h *InProcessHost) Teardown() error {
	r1, _, _ := syscall.SyscallN(h.teardownAddr, uintptr(unsafe.Pointer(h.ctx)))
	h.ctx.pluginOpaque = 0

	if err := windows.FreeLibrary(h.handle); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeTeardownTimeout, "releasing native module handle")
	}

	if code := int32(r1); code != returnOK {
		return sigilerr.Errorf(sigilerr.CodeTeardownTimeout, "plugin_teardown returned code %d", code)
	}
	return nil
}
