// Package configdata resolves the alias, partition, readout-group and
// trigger-timing tables of a run from its configuration records.
//
// Resolution runs in fixed steps:
//
//  1. Group the snapshot's records by source.
//  2. Read the single Partition record: its sources and their readout
//     groups. Without one, every BldInfo/DetInfo source becomes a group-0
//     alias named after the source.
//  3. Overlay the Alias records. Aliased sources outside the partition get
//     GroupControls, or GroupMonitored in a live session.
//  4. Derive an alias for every source still unnamed.
//  5. Decode the trigger configuration: event codes, output maps and pulse
//     timing, then fan the timing out to sources through the IO channels
//     and give each readout group its first readout code.
//
// Missing records are noted on the Config and skipped. Two Partition
// records or two IO configuration records are a malformed configuration.
package configdata
