// Package record turns opaque store records into browsable attribute trees.
//
// Three views build on each other:
//
//   - View wraps one record. Fields are resolved lazily, once each, through
//     an ordered chain of decoding steps chosen by the field's schema entry.
//     Resolution never fails: a field whose every step fails resolves to the
//     last raw value seen, and the failed steps are kept in the Resolution.
//   - ListView wraps a sequence of same-typed records and vectorizes each
//     field across the sequence. Nested record fields are spliced in as
//     "field_child".
//   - SourceView joins every record type present for one source into one
//     attribute namespace. Types are visited in sorted type-key order and
//     the first type defining an attribute owns it.
//
// Snapshot groups a whole container by source and hands out SourceViews on
// demand. A Snapshot belongs to one event or configuration snapshot and is
// discarded with it.
package record
