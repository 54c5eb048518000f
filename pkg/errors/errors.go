// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	// Archive & manifest (Module Loader).
	CodeArchiveMalformed          Code = "loader.archive.malformed"
	CodeArchivePathTraversal      Code = "loader.archive.path_traversal"
	CodeManifestInvalid           Code = "loader.manifest.invalid"
	CodeApiIncompatible           Code = "loader.manifest.api_incompatible"
	CodeLinkFailed                Code = "loader.link.failed"
	CodeSymbolMissing             Code = "loader.link.symbol_missing"
	CodeInitFailed                Code = "loader.init.failed"
	CodeTeardownTimeout           Code = "loader.teardown.timeout"

	// Signature verification.
	CodeSignatureInvalid   Code = "signature.verify.invalid"
	CodeSignatureUntrusted Code = "signature.verify.untrusted"
	CodeSignatureExpired   Code = "signature.verify.expired"
	CodeSignatureRevoked   Code = "signature.verify.revoked"

	// Permission broker.
	CodePermissionDenied        Code = "permission.check.denied"
	CodePermissionPromptTimeout Code = "permission.prompt.timeout"
	CodePermissionInvalidScope  Code = "permission.validate.invalid_scope"
	CodePermissionPolicyReject  Code = "permission.validate.policy_reject"

	// Resource governor.
	CodeResourceLimitExceeded Code = "governor.limit.exceeded"
	CodeResourceSampleFailure Code = "governor.sample.failure"
	CodeContainerSetupFailure Code = "governor.container.setup_failure"

	// Lifecycle engine & registry.
	CodeRegistryCorrupt        Code = "lifecycle.registry.corrupt"
	CodeRegistryWriteFailure   Code = "lifecycle.registry.write_failure"
	CodeLifecycleAlreadyExists Code = "lifecycle.install.already_installed"
	CodeLifecycleNotFound      Code = "lifecycle.plugin.not_found"
	CodeLifecycleAlreadyState  Code = "lifecycle.transition.already_in_state"
	CodeLifecycleInvalidState  Code = "lifecycle.transition.invalid_state"
	CodeLifecycleNoUpdate      Code = "lifecycle.update.no_update_available"

	// Cross-cutting I/O & network.
	CodeIoFailure      Code = "io.operation.failure"
	CodeNetworkFailure Code = "network.fetch.failure"
	CodeNetworkTimeout Code = "network.fetch.timeout"

	// Config.
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	// Server / CLI boundary.
	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"
	CodeServerNotImplemented   Code = "server.method.not_implemented"
	CodeServerValidationFailure Code = "server.request.validation_failure"

	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"

	// Secrets (trust-store tokens, plugin-declared secrets).
	CodeSecretInvalidInput  Code = "secret.request.invalid_input"
	CodeSecretNotFound      Code = "secret.lookup.not_found"
	CodeSecretStoreFailure  Code = "secret.store.failure"
	CodeSecretDeleteFailure Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldPlugin(value string) Attr {
	return Field("plugin_id", value)
}

func FieldVersion(value string) Attr {
	return Field("version", value)
}

func FieldCapability(value string) Attr {
	return Field("capability", value)
}

func FieldResource(value string) Attr {
	return Field("resource", value)
}

func FieldAction(value string) Attr {
	return Field("action", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	r := reason(CodeOf(err))
	return r == "conflict" || r == "already_installed" || r == "already_in_state" || r == "no_update_available"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	switch r {
	case "invalid", "invalid_input", "invalid_value", "invalid_format", "invalid_scope", "malformed", "path_traversal", "api_incompatible", "symbol_missing":
		return true
	default:
		return false
	}
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

func IsBudgetExceeded(err error) bool {
	r := reason(CodeOf(err))
	return r == "exceeded" || r == "budget_exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "network") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case HasCode(err, CodeServerNotImplemented):
		return http.StatusNotImplemented
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if reason(CodeOf(err)) == "forbidden" || reason(CodeOf(err)) == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
