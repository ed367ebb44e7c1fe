/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package settingsdoc wraps the process-wide SettingsDoc Automerge
// document described in spec.md §4.E: theme, default runtime, default
// python-env type, and per-env nested package lists. This is the
// daemon's one process-wide piece of mutable state besides the
// singleton lock (spec.md §9).
package settingsdoc

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/automerge/automerge-go"
)

// Doc is the settings document, guarded by a read-write lock exactly
// like notebookdoc.Doc (SPEC_FULL.md §5).
type Doc struct {
	mu sync.RWMutex
	am *automerge.Doc
}

// SyncedSettings is the aggregate read returned by GetAll.
type SyncedSettings struct {
	Theme                string              `json:"theme"`
	DefaultRuntime        string              `json:"default_runtime"`
	DefaultPythonEnvType  string              `json:"default_python_env_type"`
	Envs                  map[string][]string `json:"envs"` // env name -> default_packages
}

// New creates an empty settings document with sane defaults.
func New() *Doc {
	d := &Doc{am: automerge.New()}
	root := d.am.RootMap()
	must(root.Set("theme", "system"))
	must(root.Set("default_runtime", "python"))
	must(root.Set("default_python_env_type", "uv"))
	must(root.Set("envs", automerge.NewMap()))
	d.am.Commit("init")
	return d
}

// Load parses a previously-saved settings document binary.
func Load(data []byte) (*Doc, error) {
	am, err := automerge.Load(data)
	if err != nil {
		return nil, fmt.Errorf("settingsdoc: load: %w", err)
	}
	return &Doc{am: am}, nil
}

func must(err error) {
	if err != nil {
		panic("settingsdoc: unexpected automerge error: " + err.Error())
	}
}

func (d *Doc) root() *automerge.Map { return d.am.RootMap() }

// navigateMap walks segments[:len-1] as nested maps under root,
// creating maps as needed when create is true, and returns the map
// holding the final segment plus that segment's name.
func (d *Doc) navigateMap(segments []string, create bool) (*automerge.Map, string, bool) {
	m := d.root()
	for _, seg := range segments[:len(segments)-1] {
		v, err := m.Get(seg)
		if err != nil {
			if !create {
				return nil, "", false
			}
			must(m.Set(seg, automerge.NewMap()))
			v, err = m.Get(seg)
			must(err)
		}
		next, err := v.Map()
		if err != nil {
			if !create {
				return nil, "", false
			}
			must(m.Set(seg, automerge.NewMap()))
			v, _ = m.Get(seg)
			next, err = v.Map()
			must(err)
		}
		m = next
	}
	return m, segments[len(segments)-1], true
}

// Get reads a scalar value at a dotted key.
func (d *Doc) Get(dottedKey string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	segments, err := ParseKeyPath(dottedKey)
	if err != nil {
		return "", false
	}
	m, leaf, ok := d.navigateMap(segments, false)
	if !ok {
		return "", false
	}
	v, err := m.Get(leaf)
	if err != nil {
		return "", false
	}
	s, err := v.Str()
	if err != nil {
		return "", false
	}
	return s, true
}

// Put writes a scalar value at a dotted key, creating intermediate
// maps as needed.
func (d *Doc) Put(dottedKey, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	segments, err := ParseKeyPath(dottedKey)
	if err != nil {
		return err
	}
	m, leaf, _ := d.navigateMap(segments, true)
	must(m.Set(leaf, value))
	d.am.Commit(fmt.Sprintf("put %s", dottedKey))
	return nil
}

// GetList reads a list-valued key ("envs.uv.default_packages").
func (d *Doc) GetList(dottedKey string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	segments, err := ParseKeyPath(dottedKey)
	if err != nil {
		return nil, false
	}
	m, leaf, ok := d.navigateMap(segments, false)
	if !ok {
		return nil, false
	}
	v, err := m.Get(leaf)
	if err != nil {
		return nil, false
	}
	list, err := v.List()
	if err != nil {
		return nil, false
	}
	out := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		iv, err := list.Get(i)
		if err != nil {
			return nil, false
		}
		s, err := iv.Str()
		if err != nil {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// PutList writes a list-valued key, replacing any existing list.
func (d *Doc) PutList(dottedKey string, values []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	segments, err := ParseKeyPath(dottedKey)
	if err != nil {
		return err
	}
	m, leaf, _ := d.navigateMap(segments, true)
	must(m.Set(leaf, automerge.NewList()))
	v, err := m.Get(leaf)
	must(err)
	list, err := v.List()
	must(err)
	for _, val := range values {
		must(list.Append(val))
	}
	d.am.Commit(fmt.Sprintf("put_list %s", dottedKey))
	return nil
}

// GetAll returns the full settings aggregate.
func (d *Doc) GetAll() SyncedSettings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	theme, _ := d.getLocked("theme")
	runtime, _ := d.getLocked("default_runtime")
	envType, _ := d.getLocked("default_python_env_type")

	out := SyncedSettings{
		Theme:                theme,
		DefaultRuntime:       runtime,
		DefaultPythonEnvType: envType,
		Envs:                 map[string][]string{},
	}
	envsVal, err := d.root().Get("envs")
	if err == nil {
		if envsMap, err := envsVal.Map(); err == nil {
			for _, name := range envsMap.Keys() {
				if pkgs, ok := d.getListLocked(envsMap, name, "default_packages"); ok {
					out.Envs[name] = pkgs
				}
			}
		}
	}
	return out
}

func (d *Doc) getLocked(key string) (string, bool) {
	v, err := d.root().Get(key)
	if err != nil {
		return "", false
	}
	s, err := v.Str()
	if err != nil {
		return "", false
	}
	return s, true
}

func (d *Doc) getListLocked(parent *automerge.Map, key, listKey string) ([]string, bool) {
	v, err := parent.Get(key)
	if err != nil {
		return nil, false
	}
	m, err := v.Map()
	if err != nil {
		return nil, false
	}
	lv, err := m.Get(listKey)
	if err != nil {
		return nil, false
	}
	list, err := lv.List()
	if err != nil {
		return nil, false
	}
	out := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		iv, err := list.Get(i)
		if err != nil {
			return nil, false
		}
		s, err := iv.Str()
		if err != nil {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// Save serializes the document to its Automerge binary form.
func (d *Doc) Save() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.am.Save()
}

// Persist writes the Automerge binary to path, atomically.
func (d *Doc) Persist(path string) error {
	data := d.Save()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("settingsdoc: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("settingsdoc: rename into place %s: %w", path, err)
	}
	return nil
}

// LoadOrCreate implements the same corrupt-file quarantine lifecycle
// as notebookdoc.LoadOrCreate, applied to the singleton settings path.
func LoadOrCreate(path string) (*Doc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("settingsdoc: read %s: %w", path, err)
	}
	doc, err := Load(raw)
	if err != nil {
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("settingsdoc: quarantine %s after %v: %w", path, err, renameErr)
		}
		return New(), nil
	}
	return doc, nil
}

// PeerState and the sync methods mirror notebookdoc's, duplicated
// rather than shared generically because the two documents have
// unrelated schemas and spec.md treats them as separately-specified
// components that merely share "the same interface".
type PeerState struct {
	am *automerge.SyncState
}

func (d *Doc) NewPeerState() *PeerState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &PeerState{am: automerge.NewSyncState(d.am)}
}

func (d *Doc) GenerateSyncMessage(peer *PeerState) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, hasMsg := peer.am.GenerateMessage()
	if !hasMsg {
		return nil, false
	}
	return msg.Bytes(), true
}

func (d *Doc) ReceiveSyncMessage(peer *PeerState, raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, err := automerge.DecodeSyncMessage(raw)
	if err != nil {
		return fmt.Errorf("settingsdoc: decode sync message: %w", err)
	}
	if err := peer.am.ReceiveMessage(msg); err != nil {
		return fmt.Errorf("settingsdoc: apply sync message: %w", err)
	}
	return nil
}

// legacyCommaList splits the pre-nested-schema comma-separated
// package list format ("default_uv_packages": "numpy,pandas").
func legacyCommaList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MigrateLegacyFlatKeys moves default_uv_packages/default_conda_packages
// comma-separated strings, if present as JSON-mirror-sourced input,
// into the nested envs.<name>.default_packages lists (spec.md §3).
func (d *Doc) MigrateLegacyFlatKeys(flat map[string]string) {
	if v, ok := flat["default_uv_packages"]; ok {
		if pkgs := legacyCommaList(v); len(pkgs) > 0 {
			d.PutList("envs.uv.default_packages", pkgs)
		}
	}
	if v, ok := flat["default_conda_packages"]; ok {
		if pkgs := legacyCommaList(v); len(pkgs) > 0 {
			d.PutList("envs.conda.default_packages", pkgs)
		}
	}
}
