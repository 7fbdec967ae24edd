// Package settings persists the small free-form settings document that
// gates clearing/recording behavior in the statistics engine.
package settings

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Well-known keys. Any other key POSTed to /api/settings is preserved
// verbatim but has no behavioral effect on this process.
const (
	KeyAutoClearOnServerChange = "autoClearOnServerChange"
	KeyAutoClearOnTimeout      = "autoClearOnTimeout"
	KeyOnlyRecordEliteDummy    = "onlyRecordEliteDummy"
)

// Store wraps a viper instance for typed lookups of the well-known keys.
// Viper case-folds every key it holds, so the exact-case document a
// client POSTed or that gets written to disk is tracked separately in
// raw; v only ever backs Bool(). Reads and writes are serialized so
// that a POST /api/settings can't race a concurrent GET.
type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	raw  map[string]interface{}
	path string
}

// Open loads settings from path, creating it with defaults if missing.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetDefault(KeyAutoClearOnServerChange, true)
	v.SetDefault(KeyAutoClearOnTimeout, false)
	v.SetDefault(KeyOnlyRecordEliteDummy, false)

	raw := map[string]interface{}{
		KeyAutoClearOnServerChange: true,
		KeyAutoClearOnTimeout:      false,
		KeyOnlyRecordEliteDummy:    false,
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "parse settings file")
		}
	case os.IsNotExist(err):
		// file doesn't exist yet: write out the defaults so the on-disk
		// shape matches what GET /api/settings will report.
	default:
		return nil, errors.Wrap(err, "read settings file")
	}

	for k, val := range raw {
		v.Set(k, val)
	}

	s := &Store{v: v, raw: raw, path: path}

	if err := s.writeLocked(); err != nil {
		return nil, err
	}

	return s, nil
}

// All returns a snapshot of every setting, known and unknown alike, in
// the exact case it was last set or loaded under.
func (s *Store) All() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.raw))
	for k, val := range s.raw {
		out[k] = val
	}

	return out
}

// Bool returns a known boolean flag.
func (s *Store) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.v.GetBool(key)
}

// Merge applies updates on top of the current settings and persists the
// result. Keys not present in updates are left untouched; keys the
// process doesn't recognize are kept verbatim, exact case included
// (round-trip property).
func (s *Store) Merge(updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, val := range updates {
		s.raw[k] = val
		s.v.Set(k, val)
	}

	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.raw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write settings file")
	}

	return nil
}
