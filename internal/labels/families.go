package labels

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FamilyTable maps normalized DGA labels ("family:source") to integer
// family ids. It is a static collaborator input, consulted only under
// the multiclass policy.
type FamilyTable map[string]int

// LoadFamilies reads a family table from a YAML file of the form:
//
//	dga:conficker: 1
//	dga:cryptolocker: 2
func LoadFamilies(path string) (FamilyTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labels: read family table %s: %w", path, err)
	}
	var table FamilyTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("labels: parse family table %s: %w", path, err)
	}
	return table, nil
}
