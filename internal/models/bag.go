package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// SchemaVersion is written into every bag created by this build
const SchemaVersion = 1

const schemaVersionKey = "schemaVersion"

// Bag is a key/value extension record. Keys this build does not know about
// are kept verbatim so older and newer clients can share stored state.
type Bag struct {
	fields map[string]json.RawMessage
}

// NewBag returns a bag stamped with the current schema version
func NewBag() Bag {
	b := Bag{fields: map[string]json.RawMessage{}}
	_ = b.Set(schemaVersionKey, SchemaVersion)
	return b
}

// Version returns the schema version the bag was written with, 0 if unknown
func (b Bag) Version() int {
	var v int
	if ok, err := b.Get(schemaVersionKey, &v); !ok || err != nil {
		return 0
	}
	return v
}

// Get decodes key into v. It returns false when the key is absent.
func (b Bag) Get(key string, v any) (bool, error) {
	raw, ok := b.fields[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Set encodes v under key
func (b *Bag) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if b.fields == nil {
		b.fields = map[string]json.RawMessage{}
	}
	b.fields[key] = raw
	return nil
}

// Delete removes key
func (b *Bag) Delete(key string) {
	delete(b.fields, key)
}

// Has reports whether key is present
func (b Bag) Has(key string) bool {
	_, ok := b.fields[key]
	return ok
}

// Keys returns the stored keys in sorted order
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b.fields))
	for k := range b.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone copies the bag
func (b Bag) Clone() Bag {
	if b.fields == nil {
		return Bag{}
	}
	out := Bag{fields: make(map[string]json.RawMessage, len(b.fields))}
	for k, v := range b.fields {
		out.fields[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func (b Bag) MarshalJSON() ([]byte, error) {
	if b.fields == nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.fields)
}

func (b *Bag) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.fields = nil
		return nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for k, raw := range fields {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("compact %q: %w", k, err)
		}
		fields[k] = buf.Bytes()
	}
	b.fields = fields
	return nil
}

// jsonKeys lists the JSON field names of a struct type
func jsonKeys(v any) map[string]bool {
	t := reflect.TypeOf(v)
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
	return keys
}

// splitUnknown returns the members of the JSON object data whose keys are
// not in known. The result is empty when every key is known.
func splitUnknown(data []byte, known map[string]bool) (Bag, error) {
	var b Bag
	if err := b.UnmarshalJSON(data); err != nil {
		return Bag{}, err
	}
	for k := range b.fields {
		if known[k] {
			delete(b.fields, k)
		}
	}
	if len(b.fields) == 0 {
		return Bag{}, nil
	}
	return b, nil
}

// mergeUnknown adds the overflow members to the encoded object typed.
// Typed members win over overflow members with the same key.
func mergeUnknown(typed []byte, overflow Bag) ([]byte, error) {
	if len(overflow.fields) == 0 {
		return typed, nil
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(typed, &out); err != nil {
		return nil, err
	}
	for k, v := range overflow.fields {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

const (
	keyStatus           = "status"
	keyRematchRequested = "rematchReadyRequested"
	keyRematchReadyMap  = "rematchReadyMap"
	keyRematchSession   = "rematchSessionId"
	keyRematchOf        = "rematchOf"
)

// SavedState is the typed view over a draft's extension bag
type SavedState struct {
	Bag
}

// NewSavedState returns a fresh bag with the given status
func NewSavedState(status Status) SavedState {
	s := SavedState{Bag: NewBag()}
	s.SetStatus(status)
	return s
}

// Status defaults to in_progress for records written before the key existed
func (s SavedState) Status() Status {
	var st Status
	if ok, err := s.Get(keyStatus, &st); !ok || err != nil || st == "" {
		return StatusInProgress
	}
	return st
}

func (s *SavedState) SetStatus(st Status) {
	_ = s.Set(keyStatus, st)
}

func (s SavedState) RematchRequested() bool {
	var v bool
	_, _ = s.Get(keyRematchRequested, &v)
	return v
}

func (s *SavedState) SetRematchRequested(v bool) {
	_ = s.Set(keyRematchRequested, v)
}

// ReadyMap returns a copy of the rematch ready-up map
func (s SavedState) ReadyMap() map[string]bool {
	m := map[string]bool{}
	_, _ = s.Get(keyRematchReadyMap, &m)
	return m
}

func (s *SavedState) SetReadyMap(m map[string]bool) {
	_ = s.Set(keyRematchReadyMap, m)
}

// RematchSessionID is set on a finished session once its rematch was spawned
func (s SavedState) RematchSessionID() string {
	var id string
	_, _ = s.Get(keyRematchSession, &id)
	return id
}

func (s *SavedState) SetRematchSessionID(id string) {
	_ = s.Set(keyRematchSession, id)
}

// RematchOf points a spawned session back at the one it replaced
func (s SavedState) RematchOf() string {
	var id string
	_, _ = s.Get(keyRematchOf, &id)
	return id
}

func (s *SavedState) SetRematchOf(id string) {
	_ = s.Set(keyRematchOf, id)
}
