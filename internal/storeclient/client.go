// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storeclient is the plugin-store HTTP client: it downloads
// archives referenced by URL or store id and answers latest-version
// queries for check_for_updates. It implements lifecycle.Fetcher and
// lifecycle.UpdateChecker, the two collaborator interfaces the Lifecycle
// Engine defines for this boundary without depending on any particular
// store backend.
package storeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/lifecycle"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// Client fetches plugin archives over HTTP and queries a store catalog
// endpoint for version information.
type Client struct {
	httpClient *http.Client
	baseURL    string
	downloadTo string
	apiToken   string
}

// New constructs a Client. baseURL addresses the store's catalog API, used
// to resolve a store id to a download URL and to answer version queries.
// downloadDir is where fetched archives are staged before the engine
// extracts them; the caller owns cleaning it up between fetches, which the
// Fetch/cleanup contract below handles. apiToken, when non-empty, is sent
// as a bearer token on every catalog and download request; pass the
// resolved value of a store.api_token config entry, which may itself have
// come from a keyring:// URI.
func New(baseURL string, timeout time.Duration, downloadDir string, apiToken string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		downloadTo: downloadDir,
		apiToken:   apiToken,
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

var _ lifecycle.Fetcher = (*Client)(nil)
var _ lifecycle.UpdateChecker = (*Client)(nil)

// catalogEntry is the subset of a store catalog record this client cares
// about: where to download the archive from and its current version.
type catalogEntry struct {
	DownloadURL string `json:"download_url"`
	Version     string `json:"version"`
}

// Fetch resolves source to a local archive path, downloading from the
// store when source is a StoreID, or directly from source.Locator when it
// is a URL.
func (c *Client) Fetch(ctx context.Context, source lifecycle.Source) (string, func(), error) {
	url := source.Locator
	if source.Kind == registry.SourceStore {
		entry, err := c.catalogEntry(ctx, source.Locator)
		if err != nil {
			return "", nil, err
		}
		url = entry.DownloadURL
	}

	if err := os.MkdirAll(c.downloadTo, 0o755); err != nil {
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "creating download staging directory")
	}
	dest := filepath.Join(c.downloadTo, uuid.NewString()+".zip")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure, "building request for %s", url)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure, "fetching archive from %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, sigilerr.Errorf(sigilerr.CodeNetworkFailure,
			"fetching archive from %s: unexpected status %d", url, resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "staging downloaded archive")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "writing downloaded archive")
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", nil, sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "closing downloaded archive")
	}

	cleanup := func() { os.Remove(dest) }
	return dest, cleanup, nil
}

// LatestVersion queries the store catalog for storeID's current published
// version.
func (c *Client) LatestVersion(ctx context.Context, storeID string) (plugin.Version, error) {
	entry, err := c.catalogEntry(ctx, storeID)
	if err != nil {
		return plugin.Version{}, err
	}
	v, err := plugin.ParseVersion(entry.Version)
	if err != nil {
		return plugin.Version{}, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure,
			"parsing catalog version %q for %s", entry.Version, storeID)
	}
	return v, nil
}

func (c *Client) catalogEntry(ctx context.Context, storeID string) (catalogEntry, error) {
	url := fmt.Sprintf("%s/plugins/%s", c.baseURL, storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return catalogEntry{}, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure, "building catalog request for %s", storeID)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return catalogEntry{}, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure, "querying catalog for %s", storeID)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return catalogEntry{}, sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "store plugin %q not found", storeID)
	}
	if resp.StatusCode != http.StatusOK {
		return catalogEntry{}, sigilerr.Errorf(sigilerr.CodeNetworkFailure,
			"querying catalog for %s: unexpected status %d", storeID, resp.StatusCode)
	}

	var entry catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return catalogEntry{}, sigilerr.Wrapf(err, sigilerr.CodeNetworkFailure, "decoding catalog response for %s", storeID)
	}
	return entry, nil
}
