// Package session keeps the runner's durable key/value snapshot.
package session

import (
	"reflect"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Version of the persisted document.
const Version = 1

var (
	ErrVersion = errors.New("unsupported session version")
	ErrValue   = errors.New("unsupported session value")
)

// Session is an open attribute bag. Loading merges into it and never drops
// attributes that the loaded mapping does not mention. It is safe for
// concurrent use: strategies write from the feed goroutine while shutdown
// takes the snapshot.
type Session struct {
	mu    sync.RWMutex
	attrs map[string]any
}

func New() *Session {
	return &Session{attrs: make(map[string]any)}
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Set stores any value; structs are flattened to maps when persisted.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = v
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attrs)
}

func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load validates every value of m and merges m into the session. Nothing is
// merged when a value is rejected.
func (s *Session) Load(m map[string]any) error {
	for k, v := range m {
		if err := validate(v); err != nil {
			return errors.Wrapf(err, "attribute %s", k)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.attrs[k] = v
	}
	return nil
}

// Snapshot returns the attributes flattened to plain JSON kinds.
func (s *Session) Snapshot() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		fv, err := flatten(v)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %s", k)
		}
		out[k] = fv
	}
	return out, nil
}

// validate accepts the kinds a decoded document can contain.
func validate(v any) error {
	switch x := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case []any:
		for _, e := range x {
			if err := validate(e); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, e := range x {
			if err := validate(e); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Wrapf(ErrValue, "%T", v)
}

// flatten is the serializer's default hook: anything that is not already a
// plain kind goes through a JSON round trip, so attribute-bearing values end
// up as maps.
func flatten(v any) (any, error) {
	if validate(v) == nil {
		return v, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, errors.Wrapf(ErrValue, "%T", v)
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "flatten %T", v)
	}
	var out any
	if err := sonic.ConfigStd.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(err, "flatten %T", v)
	}
	return out, nil
}
