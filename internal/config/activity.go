package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gateway-fm/activitybot/internal/eventlog"
	"github.com/gateway-fm/activitybot/pkg/types"
)

// MinAmount is the smallest HLS amount an operation may move (4 decimals).
const MinAmount = 0.0001

// ErrInvalidConfig is returned by Store.Update for a rejected edit.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultActivityConfig returns the built-in activity policy.
func DefaultActivityConfig() types.ActivityConfig {
	return types.ActivityConfig{
		BridgeRepetitions: 1,
		MinHlsBridge:      0.001,
		MaxHlsBridge:      0.004,
		StakeRepetitions:  1,
		MinHlsStake:       0.01,
		MaxHlsStake:       0.03,
	}
}

// ParseActivityConfig decodes a persisted config. A field that is missing,
// not a number, or not positive takes its default and is named in defaulted.
// A min/max pair with min above max is reset to its defaults.
func ParseActivityConfig(data []byte) (cfg types.ActivityConfig, defaulted []string, err error) {
	cfg = DefaultActivityConfig()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, nil, fmt.Errorf("decode activity config: %w", err)
	}

	reps := func(key string, dst *int) {
		v, ok := number(raw[key])
		if !ok || math.Floor(v) < 1 {
			defaulted = append(defaulted, key)
			return
		}
		*dst = int(math.Floor(v))
	}
	amount := func(key string, dst *float64) {
		v, ok := number(raw[key])
		if !ok || v < MinAmount {
			defaulted = append(defaulted, key)
			return
		}
		*dst = v
	}

	def := DefaultActivityConfig()
	reps("bridgeRepetitions", &cfg.BridgeRepetitions)
	amount("minHlsBridge", &cfg.MinHlsBridge)
	amount("maxHlsBridge", &cfg.MaxHlsBridge)
	reps("stakeRepetitions", &cfg.StakeRepetitions)
	amount("minHlsStake", &cfg.MinHlsStake)
	amount("maxHlsStake", &cfg.MaxHlsStake)

	if cfg.MinHlsBridge > cfg.MaxHlsBridge {
		cfg.MinHlsBridge, cfg.MaxHlsBridge = def.MinHlsBridge, def.MaxHlsBridge
		defaulted = append(defaulted, "minHlsBridge", "maxHlsBridge")
	}
	if cfg.MinHlsStake > cfg.MaxHlsStake {
		cfg.MinHlsStake, cfg.MaxHlsStake = def.MinHlsStake, def.MaxHlsStake
		defaulted = append(defaulted, "minHlsStake", "maxHlsStake")
	}
	return cfg, dedupe(defaulted), nil
}

// number accepts a JSON number or a numeric string.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ActivityPatch is a partial edit. Nil fields are left unchanged.
type ActivityPatch struct {
	BridgeRepetitions *float64 `json:"bridgeRepetitions,omitempty"`
	MinHlsBridge      *float64 `json:"minHlsBridge,omitempty"`
	MaxHlsBridge      *float64 `json:"maxHlsBridge,omitempty"`
	StakeRepetitions  *float64 `json:"stakeRepetitions,omitempty"`
	MinHlsStake       *float64 `json:"minHlsStake,omitempty"`
	MaxHlsStake       *float64 `json:"maxHlsStake,omitempty"`
}

// Store owns the activity config and its file. It is the only writer.
type Store struct {
	mu     sync.RWMutex
	path   string
	cfg    types.ActivityConfig
	logger *slog.Logger
}

// NewStore creates a store holding the defaults. Call Load to read the file.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, cfg: DefaultActivityConfig(), logger: logger}
}

// Load reads the file once. A missing file keeps the defaults; an unreadable
// or malformed one is logged and also keeps the defaults.
func (s *Store) Load() []string {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no config file found, using default settings", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		s.logger.Error("failed to load config", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}

	cfg, defaulted, err := ParseActivityConfig(data)
	if err != nil {
		s.logger.Error("failed to load config", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	if len(defaulted) > 0 {
		s.logger.Info("config fields defaulted",
			slog.String("path", s.path),
			slog.String("fields", strings.Join(defaulted, ",")),
		)
	}
	return defaulted
}

// Get returns a copy of the current config.
func (s *Store) Get() types.ActivityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update validates and applies p. A rejected edit leaves the config untouched.
// The file is rewritten only when a value actually changed.
func (s *Store) Update(p ActivityPatch) (types.ActivityConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if err := applyReps("bridgeRepetitions", p.BridgeRepetitions, &next.BridgeRepetitions); err != nil {
		return s.cfg, false, err
	}
	if err := applyReps("stakeRepetitions", p.StakeRepetitions, &next.StakeRepetitions); err != nil {
		return s.cfg, false, err
	}
	for _, f := range []struct {
		key string
		v   *float64
		dst *float64
	}{
		{"minHlsBridge", p.MinHlsBridge, &next.MinHlsBridge},
		{"maxHlsBridge", p.MaxHlsBridge, &next.MaxHlsBridge},
		{"minHlsStake", p.MinHlsStake, &next.MinHlsStake},
		{"maxHlsStake", p.MaxHlsStake, &next.MaxHlsStake},
	} {
		if err := applyAmount(f.key, f.v, f.dst); err != nil {
			return s.cfg, false, err
		}
	}

	if next.MinHlsBridge > next.MaxHlsBridge {
		return s.cfg, false, fmt.Errorf("%w: min HLS for bridge cannot be greater than max", ErrInvalidConfig)
	}
	if next.MinHlsStake > next.MaxHlsStake {
		return s.cfg, false, fmt.Errorf("%w: min HLS for stake cannot be greater than max", ErrInvalidConfig)
	}

	if next == s.cfg {
		return s.cfg, false, nil
	}
	if err := s.save(next); err != nil {
		s.logger.Error("failed to save config", slog.String("error", err.Error()))
		return s.cfg, false, err
	}
	s.cfg = next
	s.logger.Log(context.Background(), eventlog.LevelSuccess, "configuration saved",
		slog.Int("bridgeRepetitions", next.BridgeRepetitions),
		slog.String("bridgeRange", fmt.Sprintf("%g-%g", next.MinHlsBridge, next.MaxHlsBridge)),
		slog.Int("stakeRepetitions", next.StakeRepetitions),
		slog.String("stakeRange", fmt.Sprintf("%g-%g", next.MinHlsStake, next.MaxHlsStake)),
	)
	return next, true, nil
}

func applyReps(key string, v *float64, dst *int) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v <= 0 {
		return fmt.Errorf("%w: %s must be a positive number", ErrInvalidConfig, key)
	}
	n := math.Floor(*v)
	if n < 1 || n > math.MaxInt32 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, key)
	}
	*dst = int(n)
	return nil
}

func applyAmount(key string, v *float64, dst *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return fmt.Errorf("%w: %s must be a positive number", ErrInvalidConfig, key)
	}
	if *v < MinAmount {
		return fmt.Errorf("%w: %s must be at least %g", ErrInvalidConfig, key, MinAmount)
	}
	*dst = *v
	return nil
}

// save rewrites the whole file through a temp file and rename.
func (s *Store) save(cfg types.ActivityConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
