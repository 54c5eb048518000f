// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// gatewayClient provides HTTP access to a running Sigil gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(path string, dest interface{}) error {
	return c.do(http.MethodGet, path, nil, dest)
}

// postJSON performs a POST request with a JSON-encoded body and decodes the
// JSON response into dest. body may be nil for endpoints that take no input.
func (c *gatewayClient) postJSON(path string, body, dest interface{}) error {
	return c.do(http.MethodPost, path, body, dest)
}

// putJSON performs a PUT request with a JSON-encoded body and decodes the
// JSON response into dest.
func (c *gatewayClient) putJSON(path string, body, dest interface{}) error {
	return c.do(http.MethodPut, path, body, dest)
}

// deleteJSON performs a DELETE request and decodes the JSON response into dest.
func (c *gatewayClient) deleteJSON(path string, dest interface{}) error {
	return c.do(http.MethodDelete, path, nil, dest)
}

func (c *gatewayClient) do(method, path string, body, dest interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "encoding request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return sigilerr.Wrapf(err, sigilerr.CodeCLIGatewayNotRunning, "gateway is not running (connection refused)")
		}
		return sigilerr.Wrapf(err, sigilerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeCLIRequestFailure, "reading response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if dest == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeCLIRequestFailure, "invalid response")
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

// formatErr renders err for terminal output, collapsing a gateway-not-running
// error to a friendlier one-liner instead of the wrapped chain.
func formatErr(addr string, err error) string {
	if sigilerr.HasCode(err, sigilerr.CodeCLIGatewayNotRunning) {
		return fmt.Sprintf("gateway at %s is not running (connection refused)", addr)
	}
	return err.Error()
}
