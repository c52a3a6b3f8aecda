package sdata

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SchemaFile is the YAML form of a schema used by local connections
// that have no database to introspect:
//
//	type: postgres
//	tables:
//	  - name: users
//	    primary_key: [id]
//	    columns:
//	      - { name: id, type: integer }
//	      - { name: name, type: text }
//	seed:
//	  users:
//	    - { id: 1, name: Alice }
type SchemaFile struct {
	Type   string                              `yaml:"type"`
	Tables []DBTable                           `yaml:"tables"`
	Seed   map[string][]map[string]interface{} `yaml:"seed,omitempty"`
}

// ParseSchema decodes a YAML schema file
func ParseSchema(b []byte) (*SchemaFile, error) {
	var sf SchemaFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if len(sf.Tables) == 0 {
		return nil, fmt.Errorf("schema: no tables defined")
	}
	return &sf, nil
}

// Schema builds the DBSchema described by the file
func (sf *SchemaFile) Schema(dbType string) (*DBSchema, error) {
	if sf.Type != "" {
		dbType = sf.Type
	}
	return NewDBSchema(dbType, sf.Tables)
}
