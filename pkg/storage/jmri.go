package storage

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// JMRI layout file structure. Only the turnout manager sections are
// read; everything else in the layout file is ignored.
type jmriLayout struct {
	XMLName  xml.Name      `xml:"layout-config"`
	Managers []jmriManager `xml:"turnouts"`
}

type jmriManager struct {
	Class    string        `xml:"class,attr"`
	Turnouts []jmriTurnout `xml:"turnout"`
}

type jmriTurnout struct {
	Inverted   bool   `xml:"inverted,attr"`
	SystemName string `xml:"systemName"`
	UserName   string `xml:"userName"`
}

// ImportJMRI reads turnouts from a JMRI layout file and returns the
// definitions not already present in existing (comparing both event
// IDs in either polarity). A missing file yields an empty list.
//
// JMRI encodes the event pair in the systemName, "MT<ev1>;<ev2>":
// without inversion ev1 commands closed/normal and ev2 thrown/reverse;
// the inverted attribute swaps the sense.
func ImportJMRI(path string, existing []turnout.Definition) ([]turnout.Definition, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var layout jmriLayout
	if err := xml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Prefer the OpenLCB turnout manager; a layout may also carry
	// internal or DCC turnout managers whose names are not event pairs.
	managers := make([]jmriManager, 0, len(layout.Managers))
	for _, m := range layout.Managers {
		if strings.Contains(m.Class, "Olcb") || strings.Contains(m.Class, "openlcb") {
			managers = append(managers, m)
		}
	}
	if len(managers) == 0 {
		managers = layout.Managers
	}

	known := append([]turnout.Definition(nil), existing...)
	var imported []turnout.Definition

	for _, m := range managers {
		for _, jt := range m.Turnouts {
			ev1, ev2, err := parseJMRISystemName(jt.SystemName)
			if err != nil {
				continue
			}

			evNormal, evReverse := ev1, ev2
			if jt.Inverted {
				evNormal, evReverse = ev2, ev1
			}

			if eventsCollide(known, evNormal, evReverse) {
				continue
			}

			name := strings.TrimSpace(jt.UserName)
			if name == "" {
				name = fmt.Sprintf("JMRI Turnout %d", len(imported)+1)
			}

			def := turnout.Definition{
				Name:         name,
				EventNormal:  evNormal,
				EventReverse: evReverse,
				UserOrder:    uint16(len(known)),
			}
			imported = append(imported, def)
			known = append(known, def)
		}
	}

	return imported, nil
}

// parseJMRISystemName splits "MT<ev1>;<ev2>" into its two event IDs.
func parseJMRISystemName(sysName string) (ev1, ev2 eventid.EventID, err error) {
	s := strings.TrimSpace(sysName)
	s = strings.TrimPrefix(s, "MT")

	first, second, ok := strings.Cut(s, ";")
	if !ok {
		return 0, 0, fmt.Errorf("system name %q: missing event separator", sysName)
	}

	ev1, err = eventid.ParseEventID(first)
	if err != nil {
		return 0, 0, err
	}
	ev2, err = eventid.ParseEventID(second)
	if err != nil {
		return 0, 0, err
	}
	return ev1, ev2, nil
}

// eventsCollide reports whether either candidate event ID is already
// used by any definition, in either polarity.
func eventsCollide(defs []turnout.Definition, evN, evR eventid.EventID) bool {
	for i := range defs {
		d := &defs[i]
		if d.EventNormal == evN || d.EventReverse == evN ||
			d.EventNormal == evR || d.EventReverse == evR {
			return true
		}
	}
	return false
}
