package config

import (
	"fmt"
	"os"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

// DefaultNodeID is used when no node ID file exists. Replace it with
// an ID from your own range before putting a panel on a shared layout.
const DefaultNodeID = eventid.NodeID(0x050101019F60)

// LoadNodeID reads the panel's node ID from the given file. When the
// file is missing, a default file is created and DefaultNodeID is
// returned so the ID can be edited in place.
func LoadNodeID(path string) (eventid.NodeID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if werr := writeDefaultNodeIDFile(path); werr != nil {
				return 0, werr
			}
			return DefaultNodeID, nil
		}
		return 0, fmt.Errorf("read node ID file: %w", err)
	}

	id, err := eventid.ParseNodeID(string(data))
	if err != nil {
		return 0, fmt.Errorf("node ID file %s: %w", path, err)
	}
	return id, nil
}

func writeDefaultNodeIDFile(path string) error {
	content := DefaultNodeID.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("create node ID file: %w", err)
	}
	return nil
}
