package settingsdoc

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonShape mirrors SyncedSettings for the on-disk JSON file, plus
// the legacy flat keys migrated on load (spec.md §4.E / §3).
type jsonShape struct {
	Theme                 string              `json:"theme,omitempty"`
	DefaultRuntime         string              `json:"default_runtime,omitempty"`
	DefaultPythonEnvType   string              `json:"default_python_env_type,omitempty"`
	Envs                   map[string]envShape `json:"envs,omitempty"`
	DefaultUvPackages      string              `json:"default_uv_packages,omitempty"`
	DefaultCondaPackages   string              `json:"default_conda_packages,omitempty"`
}

type envShape struct {
	DefaultPackages []string `json:"default_packages,omitempty"`
}

// MarshalJSON renders the current settings as the JSON mirror shape.
// Per spec.md §4.E the mirror is written only on explicit Save, never
// on every mutation (unlike the Automerge binary).
func (d *Doc) MarshalJSON() ([]byte, error) {
	all := d.GetAll()
	shape := jsonShape{
		Theme:                all.Theme,
		DefaultRuntime:       all.DefaultRuntime,
		DefaultPythonEnvType: all.DefaultPythonEnvType,
		Envs:                 map[string]envShape{},
	}
	for name, pkgs := range all.Envs {
		shape.Envs[name] = envShape{DefaultPackages: pkgs}
	}
	return json.MarshalIndent(shape, "", "  ")
}

// SaveJSONMirror writes the JSON mirror file, used only from the
// explicit "save" path (settings RPC / CLI), never from the watcher.
func (d *Doc) SaveJSONMirror(path string) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("settingsdoc: marshal json mirror: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("settingsdoc: write json mirror temp: %w", err)
	}
	return os.Rename(tmp, path)
}

// MigrateFromJSONIfNeeded implements the startup rule: "if a JSON
// mirror exists but no Automerge binary, migrate JSON -> Automerge."
func MigrateFromJSONIfNeeded(automergePath, jsonPath string) (*Doc, bool, error) {
	if _, err := os.Stat(automergePath); err == nil {
		doc, err := LoadOrCreate(automergePath)
		return doc, false, err
	}
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), false, nil
		}
		return nil, false, fmt.Errorf("settingsdoc: read json mirror %s: %w", jsonPath, err)
	}
	doc := New()
	changed, err := doc.ApplyJSONChanges(raw)
	if err != nil {
		return nil, false, fmt.Errorf("settingsdoc: migrate json mirror: %w", err)
	}
	return doc, changed, nil
}

// ApplyJSONChanges overwrites only the fields present in raw whose
// value differs from the current document, so the file watcher never
// re-triggers itself by writing back values it just read (spec.md
// §4.E). Returns whether anything actually changed.
func (d *Doc) ApplyJSONChanges(raw []byte) (bool, error) {
	var shape jsonShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return false, fmt.Errorf("settingsdoc: unmarshal json changes: %w", err)
	}
	changed := false

	applyScalar := func(key, newVal string) {
		if newVal == "" {
			return
		}
		if cur, ok := d.Get(key); !ok || cur != newVal {
			d.Put(key, newVal)
			changed = true
		}
	}
	applyScalar("theme", shape.Theme)
	applyScalar("default_runtime", shape.DefaultRuntime)
	applyScalar("default_python_env_type", shape.DefaultPythonEnvType)

	for name, env := range shape.Envs {
		key := fmt.Sprintf("envs.%s.default_packages", name)
		cur, ok := d.GetList(key)
		if !ok || !stringSlicesEqual(cur, env.DefaultPackages) {
			d.PutList(key, env.DefaultPackages)
			changed = true
		}
	}

	if shape.DefaultUvPackages != "" {
		pkgs := legacyCommaList(shape.DefaultUvPackages)
		cur, _ := d.GetList("envs.uv.default_packages")
		if !stringSlicesEqual(cur, pkgs) {
			d.PutList("envs.uv.default_packages", pkgs)
			changed = true
		}
	}
	if shape.DefaultCondaPackages != "" {
		pkgs := legacyCommaList(shape.DefaultCondaPackages)
		cur, _ := d.GetList("envs.conda.default_packages")
		if !stringSlicesEqual(cur, pkgs) {
			d.PutList("envs.conda.default_packages", pkgs)
			changed = true
		}
	}

	return changed, nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
