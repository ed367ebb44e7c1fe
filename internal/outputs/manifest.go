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

// Package outputs builds the content-addressed output manifests
// described in spec.md §4.C: large textual fields of a Jupyter output
// are replaced by inline-or-blob content-refs, and the resulting
// manifest is itself stored in the blob store.
package outputs

import (
	"encoding/json"
	"fmt"

	"github.com/launix-de/notebookd/internal/blobstore"
)

// DefaultInlineThreshold is used when a caller does not override it;
// see DESIGN.md's Open Question decision (4 KiB, matching spec.md's
// own worked examples).
const DefaultInlineThreshold = 4 * 1024

// ContentRef is either {"inline": "..."} or {"blob": "<hash>"}.
type ContentRef struct {
	Inline *string `json:"inline,omitempty"`
	Blob   *string `json:"blob,omitempty"`
}

func (r ContentRef) MarshalJSON() ([]byte, error) {
	if r.Inline != nil {
		return json.Marshal(struct {
			Inline string `json:"inline"`
		}{*r.Inline})
	}
	return json.Marshal(struct {
		Blob string `json:"blob"`
	}{*r.Blob})
}

// Transient mirrors nbformat's transient block, used to locate the
// output that a later update_display_data should replace.
type Transient struct {
	DisplayID string `json:"display_id,omitempty"`
}

// Manifest mirrors a Jupyter nbformat output, with textual fields
// replaced by ContentRef values.
type Manifest struct {
	OutputType string                 `json:"output_type"`
	Name       string                 `json:"name,omitempty"`       // stream
	Text       *ContentRef            `json:"text,omitempty"`       // stream
	Data       map[string]ContentRef  `json:"data,omitempty"`       // display_data, execute_result
	Metadata   map[string]json.RawMessage `json:"metadata,omitempty"`
	ExecutionCount *int               `json:"execution_count,omitempty"` // execute_result
	Ename      string                 `json:"ename,omitempty"` // error
	Evalue     string                 `json:"evalue,omitempty"`
	Traceback  []ContentRef           `json:"traceback,omitempty"`
	Transient  *Transient             `json:"transient,omitempty"`
}

// RawOutput is the uninterpreted nbformat-shaped value the caller
// passes in; its large textual fields get pushed through the
// inline-vs-blob pipeline.
type RawOutput struct {
	OutputType     string
	Name           string
	Text           string
	Data           map[string]json.RawMessage
	Metadata       map[string]json.RawMessage
	ExecutionCount *int
	Ename          string
	Evalue         string
	Traceback      []string
	Transient      *Transient
}

// Builder constructs manifests against a Store, applying a single
// inline threshold consistently.
type Builder struct {
	store     *blobstore.Store
	threshold int
}

func NewBuilder(store *blobstore.Store, inlineThreshold int) *Builder {
	if inlineThreshold <= 0 {
		inlineThreshold = DefaultInlineThreshold
	}
	return &Builder{store: store, threshold: inlineThreshold}
}

// refFor stores or inlines a textual field per the threshold rule:
// "if a field's serialized bytes <= inline threshold, store inline;
// otherwise write to blob store and store blob" (spec.md §3).
func (b *Builder) refFor(content string) (ContentRef, error) {
	if len(content) <= b.threshold {
		s := content
		return ContentRef{Inline: &s}, nil
	}
	hash, err := b.store.Put([]byte(content), "text/plain")
	if err != nil {
		return ContentRef{}, fmt.Errorf("outputs: store content-ref: %w", err)
	}
	return ContentRef{Blob: &hash}, nil
}

func (b *Builder) refForRaw(raw json.RawMessage) (ContentRef, error) {
	return b.refFor(string(raw))
}

// BuildManifest converts a RawOutput into a Manifest (content-refs
// substituted) and stores the serialized manifest in the blob store,
// returning its hash. Every nested blob ref is written before the
// manifest itself, satisfying the invariant in spec.md §3.
func (b *Builder) BuildManifest(raw RawOutput) (hash string, manifest Manifest, err error) {
	manifest = Manifest{
		OutputType:     raw.OutputType,
		Name:           raw.Name,
		Metadata:       raw.Metadata,
		ExecutionCount: raw.ExecutionCount,
		Ename:          raw.Ename,
		Evalue:         raw.Evalue,
		Transient:      raw.Transient,
	}

	if raw.OutputType == "stream" {
		ref, err := b.refFor(raw.Text)
		if err != nil {
			return "", Manifest{}, err
		}
		manifest.Text = &ref
	}

	if len(raw.Data) > 0 {
		manifest.Data = make(map[string]ContentRef, len(raw.Data))
		for mime, value := range raw.Data {
			ref, err := b.refForRaw(value)
			if err != nil {
				return "", Manifest{}, err
			}
			manifest.Data[mime] = ref
		}
	}

	if len(raw.Traceback) > 0 {
		manifest.Traceback = make([]ContentRef, 0, len(raw.Traceback))
		joined := ""
		for _, line := range raw.Traceback {
			joined += line + "\n"
		}
		// traceback is scored as a whole against the threshold
		// (spec.md §4.C: "traceback array when it would serialize
		// larger than threshold"): within it each line gets its own
		// inline ref, over it the joined traceback becomes one blob ref.
		if len(joined) <= b.threshold {
			for _, line := range raw.Traceback {
				s := line
				manifest.Traceback = append(manifest.Traceback, ContentRef{Inline: &s})
			}
		} else {
			hash, err := b.store.Put([]byte(joined), "text/plain")
			if err != nil {
				return "", Manifest{}, fmt.Errorf("outputs: store traceback: %w", err)
			}
			manifest.Traceback = append(manifest.Traceback, ContentRef{Blob: &hash})
		}
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return "", Manifest{}, fmt.Errorf("outputs: marshal manifest: %w", err)
	}
	hash, err = b.store.Put(payload, "application/json")
	if err != nil {
		return "", Manifest{}, fmt.Errorf("outputs: store manifest: %w", err)
	}
	return hash, manifest, nil
}

// LoadManifest fetches and decodes a manifest by hash.
func (b *Builder) LoadManifest(hash string) (Manifest, bool, error) {
	data, ok, err := b.store.Get(hash)
	if err != nil || !ok {
		return Manifest{}, ok, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, false, fmt.Errorf("outputs: unmarshal manifest %s: %w", hash, err)
	}
	return m, true, nil
}
