package config

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gateway-fm/activitybot/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

func TestParseActivityConfig(t *testing.T) {
	tests := []struct {
		name          string
		data          string
		want          types.ActivityConfig
		wantDefaulted []string
	}{
		{
			name: "all fields valid",
			data: `{"bridgeRepetitions":3,"minHlsBridge":0.002,"maxHlsBridge":0.005,"stakeRepetitions":2,"minHlsStake":0.02,"maxHlsStake":0.04}`,
			want: types.ActivityConfig{
				BridgeRepetitions: 3, MinHlsBridge: 0.002, MaxHlsBridge: 0.005,
				StakeRepetitions: 2, MinHlsStake: 0.02, MaxHlsStake: 0.04,
			},
		},
		{
			name:          "empty object",
			data:          `{}`,
			want:          DefaultActivityConfig(),
			wantDefaulted: []string{"bridgeRepetitions", "minHlsBridge", "maxHlsBridge", "stakeRepetitions", "minHlsStake", "maxHlsStake"},
		},
		{
			name: "non-numeric zero and negative values default",
			data: `{"bridgeRepetitions":"many","minHlsBridge":0,"maxHlsBridge":-1,"stakeRepetitions":"4","minHlsStake":0.01,"maxHlsStake":0.03}`,
			want: types.ActivityConfig{
				BridgeRepetitions: 1, MinHlsBridge: 0.001, MaxHlsBridge: 0.004,
				StakeRepetitions: 4, MinHlsStake: 0.01, MaxHlsStake: 0.03,
			},
			wantDefaulted: []string{"bridgeRepetitions", "minHlsBridge", "maxHlsBridge"},
		},
		{
			name: "fractional repetitions floored",
			data: `{"bridgeRepetitions":2.9,"minHlsBridge":0.001,"maxHlsBridge":0.004,"stakeRepetitions":1,"minHlsStake":0.01,"maxHlsStake":0.03}`,
			want: types.ActivityConfig{
				BridgeRepetitions: 2, MinHlsBridge: 0.001, MaxHlsBridge: 0.004,
				StakeRepetitions: 1, MinHlsStake: 0.01, MaxHlsStake: 0.03,
			},
		},
		{
			name: "inverted range reset",
			data: `{"bridgeRepetitions":1,"minHlsBridge":0.5,"maxHlsBridge":0.1,"stakeRepetitions":1,"minHlsStake":0.01,"maxHlsStake":0.03}`,
			want: DefaultActivityConfig(),
			wantDefaulted: []string{"minHlsBridge", "maxHlsBridge"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, defaulted, err := ParseActivityConfig([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseActivityConfig: %v", err)
			}
			if got != tt.want {
				t.Errorf("config = %+v, want %+v", got, tt.want)
			}
			if len(defaulted) != 0 || len(tt.wantDefaulted) != 0 {
				if !reflect.DeepEqual(defaulted, tt.wantDefaulted) {
					t.Errorf("defaulted = %v, want %v", defaulted, tt.wantDefaulted)
				}
			}
		})
	}
}

func TestParseActivityConfig_Malformed(t *testing.T) {
	got, _, err := ParseActivityConfig([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error")
	}
	if got != DefaultActivityConfig() {
		t.Errorf("malformed input should yield defaults, got %+v", got)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.json"), discardLogger())
	if defaulted := s.Load(); defaulted != nil {
		t.Errorf("defaulted = %v, want nil", defaulted)
	}
	if s.Get() != DefaultActivityConfig() {
		t.Errorf("Get() = %+v, want defaults", s.Get())
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path, discardLogger())

	cfg, changed, err := s.Update(ActivityPatch{BridgeRepetitions: ptr(3.7), MinHlsStake: ptr(0.02)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if cfg.BridgeRepetitions != 3 {
		t.Errorf("BridgeRepetitions = %d, want floored 3", cfg.BridgeRepetitions)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	var onDisk types.ActivityConfig
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decode saved file: %v", err)
	}
	if onDisk != cfg {
		t.Errorf("on disk = %+v, want %+v", onDisk, cfg)
	}

	reloaded := NewStore(path, discardLogger())
	reloaded.Load()
	if reloaded.Get() != cfg {
		t.Errorf("reloaded = %+v, want %+v", reloaded.Get(), cfg)
	}
}

func TestStore_UpdateUnchangedDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := NewStore(path, discardLogger())

	_, changed, err := s.Update(ActivityPatch{BridgeRepetitions: ptr(1)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed {
		t.Error("changed = true for an identical value")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written without a change: %v", err)
	}
}

func TestStore_UpdateRejects(t *testing.T) {
	tests := []struct {
		name  string
		patch ActivityPatch
	}{
		{"zero repetitions", ActivityPatch{StakeRepetitions: ptr(0)}},
		{"repetitions below one", ActivityPatch{BridgeRepetitions: ptr(0.5)}},
		{"negative amount", ActivityPatch{MaxHlsBridge: ptr(-1)}},
		{"amount below minimum", ActivityPatch{MinHlsBridge: ptr(0.00005)}},
		{"min above max bridge", ActivityPatch{MinHlsBridge: ptr(0.5), MaxHlsBridge: ptr(0.1)}},
		{"min above current max stake", ActivityPatch{MinHlsStake: ptr(0.05)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(filepath.Join(t.TempDir(), "config.json"), discardLogger())
			before := s.Get()

			_, changed, err := s.Update(tt.patch)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if changed {
				t.Error("changed = true on a rejected edit")
			}
			if s.Get() != before {
				t.Errorf("config mutated by rejected edit: %+v", s.Get())
			}
		})
	}
}

func TestTargets(t *testing.T) {
	if len(Destinations) != 4 {
		t.Errorf("destinations = %d, want 4", len(Destinations))
	}
	if len(Validators) != 2 {
		t.Errorf("validators = %d, want 2", len(Validators))
	}
}
