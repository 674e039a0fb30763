package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
	"github.com/randalmurphal/datasource/pkg/datasource/configdata"
	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	"github.com/randalmurphal/datasource/pkg/datasource/detector"
	"github.com/randalmurphal/datasource/pkg/datasource/devconfig"
	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// open loads spec from opener and closes the DataSource with the test.
func open(t *testing.T, opener store.Opener, spec store.Spec, opts ...Option) *DataSource {
	t.Helper()
	ds, err := Open(context.Background(), opener, spec, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

// openIndexed opens the default run in idx mode.
func openIndexed(t *testing.T, opts ...Option) *DataSource {
	t.Helper()
	opener := memstore.NewOpener().Register(runStore(defaultSteps), store.ModeIndexed)
	return open(t, opener, testSpec, opts...)
}

func collect(t *testing.T, ds *DataSource) []int64 {
	t.Helper()
	var fiducials []int64
	for ev, err := range ds.Events(context.Background()) {
		require.NoError(t, err)
		fiducials = append(fiducials, ev.EventID().Fiducial)
	}
	return fiducials
}

func TestOpen_SmallData(t *testing.T) {
	st := runStore(defaultSteps)
	opener := memstore.NewOpener().Register(st, store.ModeSmallData, store.ModeIndexed)

	ds := open(t, opener, testSpec.WithMode(store.ModeSmallData))

	assert.Equal(t, store.ModeSmallData, ds.Spec().Mode)
	assert.Equal(t, []string{"EBeam", "ext", "foo"}, ds.Aliases())
	assert.NotEmpty(t, ds.SessionID())
	_, ok := ds.Cursor().(*cursor.StepChunked)
	assert.True(t, ok)

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, collect(t, ds))
	assert.Nil(t, ds.Current())
}

func TestOpen_FallsBackToIndexed(t *testing.T) {
	t.Run("no partition", func(t *testing.T) {
		smd := memstore.New(noPartitionConfig())
		opener := memstore.NewOpener().
			Register(smd, store.ModeSmallData).
			Register(runStore(defaultSteps), store.ModeIndexed)

		ds := open(t, opener, testSpec.WithMode(store.ModeSmallData))

		assert.Equal(t, store.ModeIndexed, ds.Spec().Mode)
		_, ok := ds.Cursor().(*cursor.Indexed)
		assert.True(t, ok)
		assert.Len(t, collect(t, ds), 6)

		_, err := smd.Events(context.Background())
		assert.ErrorIs(t, err, memstore.ErrClosed, "rejected store must be closed")
	})

	t.Run("open failure", func(t *testing.T) {
		opener := memstore.NewOpener().
			Register(runStore(defaultSteps), store.ModeIndexed).
			FailNext(store.ModeSmallData, errors.New("no small data"))

		ds := open(t, opener, testSpec.WithMode(store.ModeSmallData))

		assert.Equal(t, store.ModeIndexed, ds.Spec().Mode)
		assert.Equal(t, 1, opener.Opens(store.ModeSmallData))
	})
}

func TestOpen_NothingLoadable(t *testing.T) {
	opener := memstore.NewOpener()

	_, err := Open(context.Background(), opener, testSpec.WithMode(store.ModeSmallData), WithLogger(quietLogger()))

	var loadErr *dserrors.ConfigLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Len(t, loadErr.Attempts, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, opener.Opens(store.ModeSmallData))
	assert.Equal(t, 1, opener.Opens(store.ModeIndexed))
}

func TestOpen_LiveRetry(t *testing.T) {
	liveSpec := store.Spec{Mode: store.ModeLive, Server: "xpp"}

	t.Run("transient failures are retried", func(t *testing.T) {
		temp := &dserrors.StoreError{Op: "open", Source: "shmem", Temporary: true, Err: errors.New("server not up")}
		opener := memstore.NewOpener().
			Register(liveStore(), store.ModeLive).
			FailNext(store.ModeLive, temp, temp)

		ds := open(t, opener, liveSpec, WithRetry(3, time.Millisecond))

		assert.Equal(t, 3, opener.Opens(store.ModeLive))
		assert.True(t, ds.Spec().Live())
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		opener := memstore.NewOpener().
			Register(liveStore(), store.ModeLive).
			FailNext(store.ModeLive, &dserrors.StoreError{Op: "open", Source: "shmem", Err: errors.New("refused")})

		_, err := Open(context.Background(), opener, liveSpec,
			WithLogger(quietLogger()), WithRetry(3, time.Millisecond))

		var loadErr *dserrors.ConfigLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, 1, opener.Opens(store.ModeLive))
	})
}

func TestExternalAliasGroup(t *testing.T) {
	ds := openIndexed(t)
	entry, ok := ds.Config().Alias("ext")
	require.True(t, ok)
	assert.Equal(t, configdata.GroupControls, entry.Group)

	live := open(t, memstore.NewOpener().Register(liveStore(), store.ModeLive), store.Spec{Mode: store.ModeLive})
	entry, ok = live.Config().Alias("ext")
	require.True(t, ok)
	assert.Equal(t, configdata.GroupMonitored, entry.Group)
}

func TestLive(t *testing.T) {
	st := liveStore()
	ds := open(t, memstore.NewOpener().Register(st, store.ModeLive), store.Spec{Mode: store.ModeLive})
	ctx := context.Background()

	_, err := ds.Next(ctx)
	require.NoError(t, err)

	t.Run("seek unsupported", func(t *testing.T) {
		_, err := ds.Seek(ctx, cursor.AtIndex(0))
		var unsupported *dserrors.UnsupportedOperationError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, int64(0), ds.Current().EventID().Fiducial)
	})

	t.Run("configuration follows the stream", func(t *testing.T) {
		st.SetConfig(memstore.NewContainer().
			Put(procSrc, partitionRecord(ipimbSrc, ebeamSrc)).
			Put(procSrc, aliasRecord(ipimbSrc, "bar")))

		ev, err := ds.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), ev.EventID().Fiducial)
		assert.Equal(t, []string{"EBeam", "bar"}, ds.Aliases())

		_, err = ds.Detector("foo")
		assert.ErrorIs(t, err, ErrUnknownAlias)
	})

	t.Run("scan unsupported", func(t *testing.T) {
		_, err := ds.Scan(ctx)
		var unsupported *dserrors.UnsupportedOperationError
		assert.ErrorAs(t, err, &unsupported)
	})
}

func TestScan(t *testing.T) {
	st := runStore(defaultSteps)
	opener := memstore.NewOpener().Register(st, store.ModeSmallData, store.ModeIndexed)
	ds := open(t, opener, testSpec.WithMode(store.ModeSmallData))
	ctx := context.Background()

	_, err := ds.Next(ctx)
	require.NoError(t, err)

	steps, err := ds.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	for i, s := range steps {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, 3, s.Events)
		require.Len(t, s.Controls, 1)
		assert.Equal(t, "xpp:motor", s.Controls[0].Name)
		assert.InDelta(t, 1.5*float64(i), s.Controls[0].Value, 1e-9)
		require.Len(t, s.Monitors, 1)
		assert.Equal(t, PV{Name: "xpp:temp", Low: 1, High: 2}, s.Monitors[0])
	}
	assert.Equal(t, []int{0, 2}, []int{steps[0].First, steps[0].Last})
	assert.Equal(t, []int{3, 5}, []int{steps[1].First, steps[1].Last})
	assert.Equal(t, "step 1: xpp:motor=1.5 events=3 [3, 5]", steps[1].String())

	ev, err := ds.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.EventID().Fiducial, "scan must not move the cursor")

	t.Run("indexed runs have no steps", func(t *testing.T) {
		_, err := openIndexed(t).Scan(ctx)
		var unsupported *dserrors.UnsupportedOperationError
		assert.ErrorAs(t, err, &unsupported)
	})
}

func TestSeek_SmallDataResumes(t *testing.T) {
	st := runStore(defaultSteps)
	ds := open(t, memstore.NewOpener().Register(st, store.ModeSmallData, store.ModeIndexed),
		testSpec.WithMode(store.ModeSmallData))
	ctx := context.Background()

	for range 4 {
		_, err := ds.Next(ctx)
		require.NoError(t, err)
	}

	stepConfig := ds.Config()

	// Seeking into step 0 keeps the configuration of the step being walked.
	ev, err := ds.Seek(ctx, cursor.AtIndex(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev.EventID().Fiducial)
	assert.Same(t, ev, ds.Current())
	assert.Same(t, stepConfig, ds.Config())

	ev, err = ds.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.EventID().Fiducial)
	assert.Same(t, stepConfig, ds.Config())

	_, err = ds.Seek(ctx, cursor.AtTime(eventTime(99)))
	var unsupported *dserrors.UnsupportedOperationError
	assert.ErrorAs(t, err, &unsupported)
	assert.Equal(t, int64(4), ds.Current().EventID().Fiducial)
}

func TestEvent_Codes(t *testing.T) {
	ds := openIndexed(t, WithCodeFlags(map[string][]int{"A": {40}}))
	ctx := context.Background()

	var flags []bool
	for ev, err := range ds.Events(ctx) {
		require.NoError(t, err)
		flags = append(flags, ev.Flags()["A"])
		if len(flags) == 3 {
			break
		}
	}
	assert.Equal(t, []bool{true, false, true}, flags)

	ev := ds.Current()
	require.NotNil(t, ev)
	assert.Equal(t, []int{40, 162}, ev.EventCodes())
	assert.True(t, ev.Present(40, 162))
	assert.False(t, ev.Present(40, -162))
	assert.Equal(t, map[string]bool{"XrayOff": true, "XrayOn": false}, ev.CodeFlags(DefaultCodeFlags))
	assert.Equal(t, "1002.000000000/2 A", ev.String())
}

func TestEvent_Attrs(t *testing.T) {
	ds := openIndexed(t)
	ev, err := ds.Next(context.Background())
	require.NoError(t, err)

	id, ok := ev.EventAttr("EventId")
	require.True(t, ok)
	assert.Equal(t, eventTime(0), id)

	ts, ok := ev.EventAttr("timestamp")
	require.True(t, ok)
	assert.Equal(t, time.Unix(1000, 0).UTC(), ts)

	codes, ok := ev.EventAttr("Evr")
	require.True(t, ok)
	assert.Equal(t, []int{40}, codes)

	on, ok := ev.EventAttr("XrayOn")
	require.True(t, ok)
	assert.Equal(t, true, on)

	_, ok = ev.EventAttr("L3T")
	assert.False(t, ok, "event carries no L3T record")

	assert.True(t, ev.Has(ipimbSrc))
	assert.Contains(t, ev.Sources(), ebeamSrc)

	d, err := ds.Detector("foo")
	require.NoError(t, err)
	v, err := d.Get("EventId")
	require.NoError(t, err)
	assert.Equal(t, eventTime(0), v)
}

func TestEvent_L3T(t *testing.T) {
	ev := makeEvent(0, evt{codes: []int{40}})
	ev.Put(procSrc, memstore.NewRecord("L3T.DataV1").Set("accept", 1))
	st := memstore.New(runConfig(0)).AddEvents(ev)
	ds := open(t, memstore.NewOpener().Register(st, store.ModeIndexed), testSpec)

	e, err := ds.Next(context.Background())
	require.NoError(t, err)
	accept, ok := e.L3T()
	assert.True(t, ok)
	assert.True(t, accept)

	match, err := ds.Match("L3T")
	require.NoError(t, err)
	assert.True(t, match)
}

func TestNextWith(t *testing.T) {
	ds := openIndexed(t)
	ctx := context.Background()

	var got []int64
	for {
		ev, err := ds.NextWith(ctx, "foo")
		if errors.Is(err, dserrors.ErrExhausted) {
			break
		}
		require.NoError(t, err)
		got = append(got, ev.EventID().Fiducial)
	}
	assert.Equal(t, []int64{0, 2, 3, 5}, got)

	_, err := ds.NextWith(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownAlias)
}

func TestNextMatching(t *testing.T) {
	ds := openIndexed(t)
	ctx := context.Background()
	expr := "EBeam.ebeamCharge > 0.5 and Evr.present_40"

	var got []int64
	for {
		ev, err := ds.NextMatching(ctx, expr)
		if errors.Is(err, dserrors.ErrExhausted) {
			break
		}
		require.NoError(t, err)
		got = append(got, ev.EventID().Fiducial)
	}
	assert.Equal(t, []int64{2, 3}, got)
}

func TestMatch(t *testing.T) {
	ds := openIndexed(t)

	_, err := ds.Match("XrayOn")
	assert.ErrorIs(t, err, ErrNotPositioned)

	_, err = ds.Next(context.Background())
	require.NoError(t, err)

	tests := []struct {
		expr string
		want bool
	}{
		{"XrayOn", true},
		{"not XrayOff", true},
		{"foo.channel0Volts == 0.25", true},
		{"EBeam.ebeamCharge < 0.1", false},
		{"Evr.present_41", false},
		{"foo.missing", false},
		{"nope.channel0Volts", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ds.Match(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetector(t *testing.T) {
	ds := openIndexed(t)
	ctx := context.Background()

	d, err := ds.Detector("foo")
	require.NoError(t, err)
	assert.Equal(t, ipimbSrc, d.Source())

	again, err := ds.Detector("foo")
	require.NoError(t, err)
	assert.Same(t, d, again)

	s, err := ds.Settings("foo")
	require.NoError(t, err)
	s.Parameter["gain"] = 2.5

	for i, want := range []any{0.25, nil} {
		_, err := ds.Next(ctx)
		require.NoError(t, err)
		v, ok := d.Value("channel0Volts")
		if want == nil {
			assert.False(t, ok, "event %d has no ipimb", i)
			continue
		}
		assert.True(t, ok)
		assert.Equal(t, want, v)
	}

	v, err := d.Get("gain")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	_, err = ds.Detector("nope")
	assert.ErrorIs(t, err, ErrUnknownAlias)
	_, err = ds.Settings("nope")
	assert.ErrorIs(t, err, ErrUnknownAlias)
}

func TestDetector_RebuiltOnStep(t *testing.T) {
	st := runStore(defaultSteps)
	ds := open(t, memstore.NewOpener().Register(st, store.ModeSmallData, store.ModeIndexed),
		testSpec.WithMode(store.ModeSmallData))
	ctx := context.Background()

	_, err := ds.Next(ctx)
	require.NoError(t, err)
	first, err := ds.Detector("foo")
	require.NoError(t, err)
	s, err := ds.Settings("foo")
	require.NoError(t, err)
	s.Parameter["kept"] = "yes"

	for range 3 {
		_, err := ds.Next(ctx)
		require.NoError(t, err)
	}
	second, err := ds.Detector("foo")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	v, err := second.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestShowInfo(t *testing.T) {
	ds := openIndexed(t)
	rows := ds.ShowInfo()
	require.NotEmpty(t, rows)
	assert.Equal(t, "Data source: exp=xpptut15:run=54:idx", rows[0])

	_, err := ds.Next(context.Background())
	require.NoError(t, err)
	rows = ds.ShowInfo()
	assert.Contains(t, rows[1], "Event 1000.000000000/0")
}

func TestSettings_Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "${experiment}", "run${run}.db")
	ctx := context.Background()

	first := openIndexed(t, WithSettingsDB(path))
	s, err := first.Settings("foo")
	require.NoError(t, err)
	s.Parameter["gain"] = 2.0
	s.Peak["top"] = detector.Peak{Attr: "channel0Volts", Method: detector.PeakMax}
	s.Property["volatile"] = func(*detector.Detector) (any, error) { return 1, nil }
	require.NoError(t, first.SaveSettings())
	require.NoError(t, first.Close())

	_, err = os.Stat(filepath.Join(filepath.Dir(filepath.Dir(path)), "xpptut15", "run0054.db"))
	require.NoError(t, err)

	second := openIndexed(t, WithSettingsDB(path))
	s, err = second.Settings("foo")
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Parameter["gain"])
	assert.Equal(t, detector.PeakMax, s.Peak["top"].Method)
	assert.NotContains(t, s.Property, "volatile")

	_, err = second.Next(ctx)
	require.NoError(t, err)
	d, err := second.Detector("foo")
	require.NoError(t, err)
	v, err := d.Get("gain")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestSettings_Errors(t *testing.T) {
	ds := openIndexed(t)
	assert.ErrorIs(t, ds.SaveSettings(), ErrNoSettingsStore)
	_, err := ds.LoadSettings()
	assert.ErrorIs(t, err, ErrNoSettingsStore)

	mem := devconfig.NewMemoryStore()
	ds = openIndexed(t, WithSettingsStore(mem))
	err = ds.SaveSettings("foo", "nope")
	var settingsErr *SettingsError
	require.ErrorAs(t, err, &settingsErr)
	assert.Equal(t, "nope", settingsErr.Alias)
	assert.ErrorIs(t, err, ErrUnknownAlias)

	infos, err := mem.List(testSpec.RunKey())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "foo", infos[0].Alias)
}

func writeSettingsFile(t *testing.T, path string, scale int) {
	t.Helper()
	doc := fmt.Sprintf("foo:\n  parameter:\n    scale: %d\nnope:\n  parameter:\n    scale: 1\n", scale)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettingsFile(t, path, 3)

	ds := openIndexed(t, WithSettingsFile(path))
	s, err := ds.Settings("foo")
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Parameter["scale"])
	assert.Nil(t, ds.watcher, "only live sessions watch the file")

	t.Run("missing file", func(t *testing.T) {
		ds := openIndexed(t, WithSettingsFile(filepath.Join(t.TempDir(), "absent.yaml")))
		s, err := ds.Settings("foo")
		require.NoError(t, err)
		assert.True(t, s.Empty())
	})
}

func TestSettings_LiveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettingsFile(t, path, 3)

	ds := open(t, memstore.NewOpener().Register(liveStore(), store.ModeLive), store.Spec{Mode: store.ModeLive},
		WithSettingsFile(path), WithWatchDebounce(10*time.Millisecond))
	require.NotNil(t, ds.watcher)
	ctx := context.Background()

	_, err := ds.Next(ctx)
	require.NoError(t, err)

	writeSettingsFile(t, path, 5)
	require.Eventually(t, func() bool { return ds.watcher.Changes() > 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = ds.Next(ctx)
	require.NoError(t, err)
	s, err := ds.Settings("foo")
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Parameter["scale"])
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.New(map[string]any{
		"mode":           "smd",
		"settings_db":    "",
		"retry_attempts": 2,
		"retry_backoff":  "250ms",
		"metrics":        true,
	})
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	require.NotNil(t, o.mode)
	assert.Equal(t, store.ModeSmallData, *o.mode)
	assert.Equal(t, ":memory:", o.settingsDB)
	assert.Equal(t, 2, o.retryAttempts)
	assert.Equal(t, 250*time.Millisecond, o.retryBackoff)
	assert.True(t, o.metrics)
	assert.False(t, o.tracing)

	_, err = OptionsFromConfig(config.New(map[string]any{"mode": "tape"}))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	st := runStore(defaultSteps)
	ds, err := Open(context.Background(), memstore.NewOpener().Register(st, store.ModeIndexed), testSpec,
		WithLogger(quietLogger()), WithSettingsDB(""))
	require.NoError(t, err)

	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	_, err = ds.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ds.Seek(context.Background(), cursor.AtIndex(0))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.Runs(context.Background())
	assert.ErrorIs(t, err, memstore.ErrClosed)
}
