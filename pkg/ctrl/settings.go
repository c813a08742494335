package ctrl

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"sync"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

var errSave = errors.New("save settings")

// settings is the flat controller configuration, optionally backed by a file.
type settings struct {
	mu   sync.RWMutex
	path string
	flat map[string]any
	cfg  model.Config
}

func newSettings(path string) *settings {
	cfg := model.DefaultConfig()
	return &settings{path: path, flat: cfg.Flatten(), cfg: cfg}
}

// load replaces the defaults with the content of the settings file.
// A missing file is not an error.
func (s *settings) load() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	flat := maps.Clone(s.flat)
	if err := mergeValues(flat, values); err != nil {
		return false, fmt.Errorf("%s: %w", s.path, err)
	}
	cfg, err := model.ConfigFromFlat(flat)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.path, err)
	}
	s.flat, s.cfg = flat, cfg
	return true, nil
}

// apply merges values into the configuration and persists the result.
// Nothing is changed if a key is unknown, a value does not fit or the file
// cannot be written.
func (s *settings) apply(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flat := maps.Clone(s.flat)
	if err := mergeValues(flat, values); err != nil {
		return err
	}
	cfg, err := model.ConfigFromFlat(flat)
	if err != nil {
		return err
	}
	if err := s.save(flat); err != nil {
		return fmt.Errorf("%w: %w", errSave, err)
	}
	s.flat, s.cfg = flat, cfg
	return nil
}

func (s *settings) save(flat map[string]any) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *settings) config() model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *settings) values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.flat)
}

func (s *settings) gameMode() model.GameMode {
	return s.config().GameMode
}

// mergeValues copies values into flat. Numeric strings become ints,
// integral JSON numbers are stored as ints.
func mergeValues(flat, values map[string]any) error {
	for k, v := range values {
		if _, ok := flat[k]; !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownKey, k)
		}
		switch x := v.(type) {
		case string:
			if i, err := strconv.Atoi(x); err == nil {
				flat[k] = i
			} else {
				flat[k] = x
			}
		case float64:
			if x == float64(int64(x)) {
				flat[k] = int(x)
			} else {
				flat[k] = x
			}
		case json.Number:
			if i, err := x.Int64(); err == nil {
				flat[k] = int(i)
			} else {
				flat[k] = x.String()
			}
		default:
			flat[k] = v
		}
	}
	return nil
}
