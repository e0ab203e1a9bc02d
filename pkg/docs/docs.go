// Package docs implements the documents modality: hierarchical JSON
// documents addressable by RFC 6901 JSON-Pointer paths, stored as one blob
// per key in the underlying engine. The write modes, including RFC
// 6902/7396 patch and merge, are applied by Apply in this file; see
// formats.go for BSON/MsgPack/primitive transcoding, and gather.go for the
// columnar analytics projection.
package docs

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/sjson"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
)

// Mode selects how a Write's Value is applied at Path.
type Mode int

const (
	ModeUpsert Mode = iota
	ModeUpdate
	ModeInsert
	ModePatch
	ModeMerge
)

// Write describes one document modification. Path is an RFC 6901
// JSON-Pointer, or "" for the whole document. Value's meaning depends on
// Mode: a JSON value for Upsert/Update/Insert, an RFC 6902 patch array for
// Patch, or an RFC 7396 merge document for Merge.
type Write struct {
	Key   kv.Key
	Path  string
	Mode  Mode
	Value []byte
}

// Store applies document operations against an Accessor (HEAD, snapshot,
// or transaction-buffered), per the shared modality plumbing.
type Store struct {
	Accessor   modality.Accessor
	Collection kv.Handle
}

var emptyDocument = []byte(`{}`)

// Apply runs a batch of writes, deduplicating fetches per key: for every
// distinct key touched, the current document is read once, every write
// targeting that key is applied in input order to an in-memory copy, and
// the result is written back once.
func (s *Store) Apply(writes []Write) error {
	order := make([]kv.Key, 0, len(writes))
	byKey := map[kv.Key][]Write{}
	for _, w := range writes {
		if _, seen := byKey[w.Key]; !seen {
			order = append(order, w.Key)
		}
		byKey[w.Key] = append(byKey[w.Key], w)
	}

	keys := append([]kv.Key(nil), order...)
	current, err := s.Accessor.Read(s.Collection, keys)
	if err != nil {
		return err
	}
	docByKey := make(map[kv.Key][]byte, len(current))
	for _, ent := range current {
		if ent.Present {
			docByKey[ent.Key] = ent.Value
		}
	}

	var out []kv.Write
	for _, key := range order {
		doc, existed := docByKey[key]
		for _, w := range byKey[key] {
			next, err := applyOne(doc, existed, w)
			if err != nil {
				return fmt.Errorf("ukv: key %d: %w", key, err)
			}
			doc = next
			existed = true
		}
		out = append(out, kv.Write{Key: key, Value: doc})
	}
	return s.Accessor.Write(s.Collection, out)
}

func applyOne(doc []byte, existed bool, w Write) ([]byte, error) {
	switch w.Mode {
	case ModeUpsert:
		if !existed && w.Path != "" {
			doc = emptyDocument
		}
		return setAtPath(doc, w.Path, w.Value)

	case ModeUpdate:
		if !existed {
			return nil, fmt.Errorf("ukv: args-combo: update requires an existing document")
		}
		if w.Path != "" && !existsAtPath(doc, w.Path) {
			return nil, fmt.Errorf("ukv: args-combo: update path %q does not exist", w.Path)
		}
		return setAtPath(doc, w.Path, w.Value)

	case ModeInsert:
		if existed && (w.Path == "" || existsAtPath(doc, w.Path)) {
			return nil, fmt.Errorf("ukv: args-combo: insert path %q already exists", w.Path)
		}
		if !existed && w.Path != "" {
			doc = emptyDocument
		}
		return setAtPath(doc, w.Path, w.Value)

	case ModePatch:
		if !existed {
			return nil, fmt.Errorf("ukv: args-combo: patch requires an existing document")
		}
		patch, err := jsonpatch.DecodePatch(w.Value)
		if err != nil {
			return nil, fmt.Errorf("ukv: argument-wrong: invalid json-patch: %w", err)
		}
		return patch.Apply(doc)

	case ModeMerge:
		if !existed {
			doc = emptyDocument
		}
		return jsonpatch.MergePatch(doc, w.Value)

	default:
		return nil, fmt.Errorf("ukv: argument-wrong: unknown document write mode %d", w.Mode)
	}
}

func setAtPath(doc []byte, path string, value []byte) ([]byte, error) {
	if path == "" {
		return value, nil
	}
	return sjson.SetRawBytes(doc, toGJSONPath(path), value)
}

func existsAtPath(doc []byte, path string) bool {
	if path == "" {
		return len(doc) > 0
	}
	return fieldAt(doc, path).Exists()
}
