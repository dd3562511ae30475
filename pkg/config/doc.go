// Package config loads and validates the panel configuration.
//
// Configuration lives in a YAML file. A missing file yields the
// defaults, so a panel runs out of the box and the file only needs to
// name the settings that differ.
//
// The panel's LCC node ID is kept in its own small text file, dotted
// hex ("05.01.01.01.9F.60") or plain hex. When the file is missing a
// default is written so the ID can be edited in place.
package config
