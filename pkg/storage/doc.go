// Package storage persists turnout definitions.
//
// Definitions (name, event pair, user order) are stored as JSON with
// event IDs in dotted-hex form, the same convention as nodeid.txt.
// Runtime state - position, timestamps, pending flags - is transient
// and never written. Saves are atomic: the file is written to a
// temporary name in the same directory and renamed into place.
//
// The package also imports turnouts from a JMRI layout file
// (OpenLCB/Olcb turnout manager entries), honoring each entry's
// inverted flag and skipping event IDs already present.
package storage
