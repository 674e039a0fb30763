package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
)

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"mode":     "smd",
		"live":     true,
		"attempts": 3,
		"whole":    4.0,
		"half":     2.5,
		"backoff":  "250ms",
		"seconds":  2,
		"gain":     []any{1.0, 2, int64(3)},
		"scalar":   7,
		"names":    []any{"a", "b"},
		"mixed":    []any{"a", 1},
		"section":  map[string]any{"threshold": 0.5},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.String("mode", "idx"), "smd"},
		{"string missing", cfg.String("nope", "idx"), "idx"},
		{"string wrong type", cfg.String("attempts", "x"), "x"},
		{"bool", cfg.Bool("live", false), true},
		{"bool wrong type", cfg.Bool("mode", false), false},
		{"int", cfg.Int("attempts", 0), 3},
		{"int from whole float", cfg.Int("whole", 0), 4},
		{"int from fractional float", cfg.Int("half", -1), -1},
		{"float", cfg.Float("half", 0), 2.5},
		{"float from int", cfg.Float("attempts", 0), 3.0},
		{"duration string", cfg.Duration("backoff", time.Second), 250 * time.Millisecond},
		{"duration seconds", cfg.Duration("seconds", 0), 2 * time.Second},
		{"duration invalid", cfg.Duration("mode", time.Second), time.Second},
		{"float slice", cfg.FloatSlice("gain", nil), []float64{1, 2, 3}},
		{"float slice scalar", cfg.FloatSlice("scalar", nil), []float64{7}},
		{"float slice wrong", cfg.FloatSlice("names", []float64{0}), []float64{0}},
		{"string slice", cfg.StringSlice("names", nil), []string{"a", "b"}},
		{"string slice mixed", cfg.StringSlice("mixed", []string{"d"}), []string{"d"}},
		{"sub", cfg.Sub("section").Float("threshold", 0), 0.5},
		{"sub missing", cfg.Sub("nope").Len(), 0},
		{"any", cfg.Any("nope", "fallback"), "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.True(t, cfg.Has("mode"))
	assert.False(t, cfg.Has("nope"))
	assert.Equal(t, "attempts", cfg.Keys()[0])
}

func TestNew_Nil(t *testing.T) {
	cfg := config.New(nil)
	assert.NotNil(t, cfg.Raw())
	assert.Equal(t, 0, cfg.Len())
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("mode: smd\nretry_attempts: 2\ndetectors:\n  Ipm2:\n    gain: [1, 2]\n"), 0o600))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "smd", cfg.String("mode", ""))
	assert.Equal(t, 2, cfg.Int("retry_attempts", 0))
	assert.Equal(t, []float64{1, 2}, cfg.Sub("detectors").Sub("Ipm2").FloatSlice("gain", nil))

	jsonPath := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"live": true, "retry_backoff": "1s"}`), 0o600))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Bool("live", false))
	assert.Equal(t, time.Second, cfg.Duration("retry_backoff", 0))

	_, err = config.FromFile(filepath.Join(dir, "session.toml"))
	assert.Error(t, err)

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFromYAML_Invalid(t *testing.T) {
	_, err := config.FromYAML([]byte("mode: [\n"))
	assert.Error(t, err)

	_, err = config.FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    config.Format
		wantErr bool
	}{
		{"session.yaml", config.FormatYAML, false},
		{"settings.YML", config.FormatYAML, false},
		{"settings.json", config.FormatJSON, false},
		{"session.toml", 0, true},
		{"settings", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := config.FormatOf(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "json", config.FormatJSON.String())
}

func TestFromFile_Empty(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"settings.yaml", "settings.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
		cfg, err := config.FromFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, 0, cfg.Len(), name)
	}
}

func TestFromFile_ErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ipm2: [\n"), 0o600))
	_, err := config.FromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestFromYAML_NumericKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte("cspad:\n  roi:\n    3:\n      bounds: [[0, 4], [2, 8]]\n  flags:\n    162: XrayOff\n"))
	require.NoError(t, err)

	cspad := cfg.Sub("cspad")
	assert.Equal(t, "XrayOff", cspad.Sub("flags").String("162", ""))
	assert.True(t, cspad.Sub("roi").Sub("3").Has("bounds"))

	_, err = config.Parse([]byte(`{"cspad": {"roi": {"3": {}}}}`), config.FormatJSON)
	require.NoError(t, err)
}

func TestExpander(t *testing.T) {
	vars := map[string]any{"instrument": "xpp", "experiment": "xpptut15", "run": "0054"}

	got, err := config.NewExpander().Expand("${instrument}/${experiment}/scratch/nc/run${run}.db", vars)
	require.NoError(t, err)
	assert.Equal(t, "xpp/xpptut15/scratch/nc/run0054.db", got)

	assert.Equal(t, "run0054/$runs", config.Expand("run$run/$runs", vars))

	got, err = config.NewExpander(config.WithMissingAction(config.MissingEmpty)).Expand("a${nope}b", vars)
	require.NoError(t, err)
	assert.Equal(t, "ab", got)

	_, err = config.NewExpander(config.WithMissingAction(config.MissingError)).Expand("${a}/${b}", nil)
	var undefined *config.UndefinedVariableError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, []string{"a", "b"}, undefined.Names)
	assert.Equal(t, "undefined variables: a, b", err.Error())

	got, err = config.NewExpander(config.WithDollarStyle(false)).Expand("$run ${run}", vars)
	require.NoError(t, err)
	assert.Equal(t, "$run 0054", got)
}

func TestExpander_ExpandMap(t *testing.T) {
	out, err := config.NewExpander().ExpandMap(map[string]any{
		"settings_db": "/data/${experiment}/run${run}.db",
		"retries":     3,
		"nested":      map[string]any{"file": "${experiment}.yaml"},
	}, map[string]any{"experiment": "xpptut15", "run": "0054"})
	require.NoError(t, err)

	assert.Equal(t, "/data/xpptut15/run0054.db", out["settings_db"])
	assert.Equal(t, 3, out["retries"])
	assert.Equal(t, "xpptut15.yaml", out["nested"].(map[string]any)["file"])
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	w, err := config.Watch(path, config.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.False(t, w.Dirty())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))

	require.Eventually(t, func() bool { return w.Changes() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Dirty())
	assert.False(t, w.Dirty(), "Dirty clears the flag")
}

func TestWatch_MissingDir(t *testing.T) {
	_, err := config.Watch(filepath.Join(t.TempDir(), "nope", "settings.yaml"))
	assert.Error(t, err)
}
