// Package cursor provides the event cursors behind a data source: one
// "next event" state machine over three access modes.
//
// Every cursor moves Unpositioned → Positioned → Exhausted. Next advances
// by one event; Seek jumps to an index or a time tuple and is available
// from any state.
//
//   - Indexed walks the time index of each run in turn.
//   - Live pulls from a stream and cannot seek.
//   - StepChunked walks steps and the events inside each step. Seeks go
//     through an indexed companion, and the first plain Next after one or
//     more seeks resumes from where step iteration left off.
//
// Each cursor owns a Cache holding everything derived from the current
// event. The cache is reset on every successful Next or Seek, before the
// call returns.
//
// Basic usage:
//
//	c := cursor.NewIndexed(runs, cursor.WithTable(table))
//	for ev, err := range cursor.Events(ctx, c) {
//	    if err != nil {
//	        return err
//	    }
//	    sv, ok := c.Cache().Source("DetInfo(XppSb3.0:Ipimb.0)")
//	    ...
//	}
package cursor
