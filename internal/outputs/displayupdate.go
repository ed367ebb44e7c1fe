package outputs

import "encoding/json"

// DocOutputRef identifies one stored output hash at its position in a
// notebook document, the shape notebookdoc.OutputRef carries — mirrored
// here rather than imported so this package has no dependency on
// notebookdoc (spec.md §1 keeps the manifest builder a standalone
// component; kernel depends on it, not vice versa).
type DocOutputRef struct {
	CellID string
	Index  int
	Hash   string
}

// UpdateByDisplayID implements spec.md §4.C's update-by-display-id:
// scan every stored output hash, find the one whose manifest's
// transient.display_id matches, rebuild its data/metadata through the
// inline-vs-blob pipeline, store the new manifest, and report which
// (cellID, index) the caller should replace in the CRDT doc at the
// same position.
func (b *Builder) UpdateByDisplayID(displayID string, data map[string]json.RawMessage, metadata map[string]json.RawMessage, existing []DocOutputRef) (cellID string, index int, newHash string, found bool, err error) {
	for _, ref := range existing {
		manifest, ok, loadErr := b.LoadManifest(ref.Hash)
		if loadErr != nil {
			return "", 0, "", false, loadErr
		}
		if !ok || manifest.Transient == nil || manifest.Transient.DisplayID != displayID {
			continue
		}

		newData := make(map[string]ContentRef, len(data))
		for mime, value := range data {
			r, refErr := b.refForRaw(value)
			if refErr != nil {
				return "", 0, "", false, refErr
			}
			newData[mime] = r
		}
		manifest.Data = newData
		manifest.Metadata = metadata

		raw, marshalErr := json.Marshal(manifest)
		if marshalErr != nil {
			return "", 0, "", false, marshalErr
		}
		hash, putErr := b.store.Put(raw, "application/json")
		if putErr != nil {
			return "", 0, "", false, putErr
		}
		return ref.CellID, ref.Index, hash, true, nil
	}
	return "", 0, "", false, nil
}
