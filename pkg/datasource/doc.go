// Package datasource browses recorded and live experiment event data.
//
// A DataSource opens one run through a store.Opener, resolves its
// configuration into aliases, and walks events with a cursor suited to the
// access mode:
//
//   - idx: random access through the run's time index.
//   - smd: step-chunked small data, with an idx companion for seeking.
//   - live: a forward-only shared-memory stream.
//
// Each alias is served by a detector.Detector that reads the current event
// through the cursor's per-event cache.
//
// # Basic Usage
//
//	ds, err := datasource.Open(ctx, opener, store.Spec{
//	    Experiment: "xpptut15",
//	    Run:        54,
//	    Mode:       store.ModeSmallData,
//	})
//	if err != nil {
//	    return err
//	}
//	defer ds.Close()
//
//	for ev, err := range ds.Events(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    cam, _ := ds.Detector("cam")
//	    total, _ := cam.Get("image_count")
//	    fmt.Println(ev.EventID(), total)
//	}
//
// # Selection
//
// NextWith skips to the next event carrying an alias. NextMatching skips to
// the next event satisfying a selection expression such as
//
//	"EBeam.ebeamCharge > 0.1 and Evr.present_40"
//
// # Settings
//
// User-defined detector attributes persist per run and alias through a
// devconfig.Store (WithSettingsDB). A YAML or JSON settings file
// (WithSettingsFile) is loaded at open and, in live mode, reloaded before
// the next event whenever it changes.
//
// # Observability
//
// Logging uses log/slog (WithLogger). OpenTelemetry metrics and tracing
// are off by default and enabled with WithMetrics and WithTracing.
package datasource
