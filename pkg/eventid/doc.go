// Package eventid provides parsing and formatting of LCC event and
// node identifiers.
//
// Event IDs are 64-bit values carried on the bus. They are written by
// convention as eight dotted-hex bytes ("05.01.01.01.22.60.00.00"),
// the same convention JMRI and the nodeid.txt file use. Plain hex
// without dots is accepted on input.
//
// Node IDs are 48-bit values written as six dotted-hex bytes
// ("05.01.01.01.9F.60").
package eventid
