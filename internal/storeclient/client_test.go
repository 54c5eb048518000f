// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package storeclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunusgungor/tauri-windows-plugin-system/internal/registry"
	"github.com/yunusgungor/tauri-windows-plugin-system/internal/storeclient"
	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

func TestFetchFromStoreDownloadsCatalogResolvedURL(t *testing.T) {
	archiveBytes := []byte("fake archive contents")
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plugins/com.example.hello":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"download_url":"` + srv.URL + `/download.zip","version":"1.2.0"}`))
		case "/download.zip":
			_, _ = w.Write(archiveBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	downloadDir := t.TempDir()
	client := storeclient.New(srv.URL, 5*time.Second, downloadDir, "")

	path, cleanup, err := client.Fetch(context.Background(), registry.SourceDescriptor{
		Kind:    registry.SourceStore,
		Locator: "com.example.hello",
	})
	require.NoError(t, err)
	defer cleanup()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, archiveBytes, got)
	assert.Equal(t, downloadDir, filepath.Dir(path))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchFromURLBypassesCatalog(t *testing.T) {
	archiveBytes := []byte("direct archive")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archiveBytes)
	}))
	defer srv.Close()

	client := storeclient.New("http://unused.invalid", 5*time.Second, t.TempDir(), "")
	path, cleanup, err := client.Fetch(context.Background(), registry.SourceDescriptor{
		Kind:    registry.SourceURL,
		Locator: srv.URL,
	})
	require.NoError(t, err)
	defer cleanup()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, archiveBytes, got)
}

func TestLatestVersionParsesCatalogEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"download_url":"https://example.com/a.zip","version":"2.3.4"}`))
	}))
	defer srv.Close()

	client := storeclient.New(srv.URL, 5*time.Second, t.TempDir(), "")
	v, err := client.LatestVersion(context.Background(), "com.example.hello")
	require.NoError(t, err)
	assert.Equal(t, "2.3.4", v.String())
}

func TestLatestVersionNotFoundIsCodedNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := storeclient.New(srv.URL, 5*time.Second, t.TempDir(), "")
	_, err := client.LatestVersion(context.Background(), "com.example.missing")
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestCatalogAndDownloadRequestsCarryBearerToken(t *testing.T) {
	var gotCatalogAuth, gotDownloadAuth string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plugins/com.example.hello":
			gotCatalogAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"download_url":"` + srv.URL + `/download.zip","version":"1.0.0"}`))
		case "/download.zip":
			gotDownloadAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte("archive"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := storeclient.New(srv.URL, 5*time.Second, t.TempDir(), "s3cr3t")
	_, cleanup, err := client.Fetch(context.Background(), registry.SourceDescriptor{
		Kind:    registry.SourceStore,
		Locator: "com.example.hello",
	})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "Bearer s3cr3t", gotCatalogAuth)
	assert.Equal(t, "Bearer s3cr3t", gotDownloadAuth)
}
