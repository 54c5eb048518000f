// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
	"github.com/yunusgungor/tauri-windows-plugin-system/pkg/plugin"
)

// fileFormat is the on-disk shape of the decision store, matching the
// versioned-envelope-plus-map pattern used for small JSON-backed registries.
type fileFormat struct {
	Version     string                     `json:"version"`
	LastUpdated time.Time                  `json:"last_updated"`
	Decisions   []DecisionRecord           `json:"decisions"`
}

// DecisionStore is the durable, write-temp-rename-persisted table of
// permission decisions backing the broker. On a write failure the
// in-memory table is left exactly as it was before the call.
type DecisionStore struct {
	mu       sync.RWMutex
	path     string
	byPlugin map[string]map[plugin.Category]DecisionRecord
}

// OpenDecisionStore loads the decision store from path, creating an empty
// one if the file does not yet exist.
func OpenDecisionStore(path string) (*DecisionStore, error) {
	s := &DecisionStore{
		path:     path,
		byPlugin: make(map[string]map[plugin.Category]DecisionRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "reading permission decision store %s", path)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeConfigParseInvalidFormat, "parsing permission decision store %s", path)
	}

	for _, rec := range ff.Decisions {
		s.index(rec)
	}
	return s, nil
}

func (s *DecisionStore) index(rec DecisionRecord) {
	cats, ok := s.byPlugin[rec.PluginID]
	if !ok {
		cats = make(map[plugin.Category]DecisionRecord)
		s.byPlugin[rec.PluginID] = cats
	}
	cats[rec.Capability.Category] = rec
}

// Lookup returns the remembered decision for the capability's category, if
// any, along with whether a usable (non-expired, remembered) record exists.
func (s *DecisionStore) Lookup(pluginID string, cat plugin.Category, now time.Time) (DecisionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byPlugin[pluginID][cat]
	if !ok || !rec.Remember || rec.expired(now) {
		return DecisionRecord{}, false
	}
	return rec, true
}

// Grants returns every non-expired Grant decision recorded for pluginID,
// used by IsGranted's scope-subsumption check.
func (s *DecisionStore) Grants(pluginID string, now time.Time) []DecisionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DecisionRecord
	for _, rec := range s.byPlugin[pluginID] {
		if rec.Decision == Grant && !rec.expired(now) {
			out = append(out, rec)
		}
	}
	return out
}

// List returns every decision recorded for pluginID, remembered or not.
func (s *DecisionStore) List(pluginID string) []DecisionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cats := s.byPlugin[pluginID]
	out := make([]DecisionRecord, 0, len(cats))
	for _, rec := range cats {
		out = append(out, rec)
	}
	return out
}

// Put records a decision. The in-memory table is only mutated after the
// atomic file write succeeds.
func (s *DecisionStore) Put(rec DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.cloneLocked()
	snapshotIndex(snapshot, rec)

	if err := s.persistLocked(snapshot); err != nil {
		return err
	}

	s.byPlugin = snapshot
	return nil
}

// Delete removes the decision recorded for pluginID/category, if any.
func (s *DecisionStore) Delete(pluginID string, cat plugin.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.cloneLocked()
	if cats, ok := snapshot[pluginID]; ok {
		delete(cats, cat)
		if len(cats) == 0 {
			delete(snapshot, pluginID)
		}
	}

	if err := s.persistLocked(snapshot); err != nil {
		return err
	}

	s.byPlugin = snapshot
	return nil
}

func (s *DecisionStore) cloneLocked() map[string]map[plugin.Category]DecisionRecord {
	clone := make(map[string]map[plugin.Category]DecisionRecord, len(s.byPlugin))
	for pluginID, cats := range s.byPlugin {
		cloneCats := make(map[plugin.Category]DecisionRecord, len(cats))
		for cat, rec := range cats {
			cloneCats[cat] = rec
		}
		clone[pluginID] = cloneCats
	}
	return clone
}

func snapshotIndex(snapshot map[string]map[plugin.Category]DecisionRecord, rec DecisionRecord) {
	cats, ok := snapshot[rec.PluginID]
	if !ok {
		cats = make(map[plugin.Category]DecisionRecord)
		snapshot[rec.PluginID] = cats
	}
	cats[rec.Capability.Category] = rec
}

// persistLocked writes snapshot to disk via write-temp-then-rename, the same
// pattern the wider pack uses for small JSON-backed registries: write the
// full file under a sibling ".tmp" name, then atomically rename it into
// place so a crash mid-write never leaves a half-written decision file.
func (s *DecisionStore) persistLocked(snapshot map[string]map[plugin.Category]DecisionRecord) error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "creating directory for permission decision store %s", s.path)
		}
	}

	var decisions []DecisionRecord
	for _, cats := range snapshot {
		for _, rec := range cats {
			decisions = append(decisions, rec)
		}
	}

	ff := fileFormat{Version: "1", LastUpdated: time.Now().UTC(), Decisions: decisions}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "marshalling permission decision store %s", s.path)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "writing temporary permission decision store %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return sigilerr.Wrapf(err, sigilerr.CodeIoFailure, "renaming permission decision store into place at %s", s.path)
	}
	return nil
}
