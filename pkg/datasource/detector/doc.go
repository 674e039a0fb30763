// Package detector provides the per-alias facade over the current event.
//
// A Detector answers attribute lookups by trying, in order, the raw records
// of its source, the calibrated view, then the user-defined attributes of
// its Settings (parameters, properties, counts, histograms, regions of
// interest, peaks and projections) and finally event-level metadata.
//
//	s := detector.NewSettings()
//	s.Count["image_count"] = detector.Count{Attr: "image", Gain: 1}
//	d := detector.New("cam", source, cur.Cache(), s)
//	total, err := d.Get("image_count")
//
// Reductions are computed at most once per event. Settings, except
// properties, serialize to JSON so they can be saved per run.
package detector
