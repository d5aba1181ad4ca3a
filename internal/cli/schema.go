package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canonical/nestql"
)

// LoadSchema reads table declarations from a YAML file of the form
//
//	tables:
//	  students:
//	    id: uuid
//	    name: string
//	    age: number
//
// Column order is declaration order, which fixes the column order of the
// emitted SQL, so the file is walked as a yaml.Node tree rather than
// decoded into Go maps.
func LoadSchema(path string) ([]nestql.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSchema(data)
}

func parseSchema(data []byte) ([]nestql.Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse schema: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("cannot parse schema: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("cannot parse schema: top level must be a mapping")
	}

	var tablesNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "tables" {
			tablesNode = root.Content[i+1]
		}
	}
	if tablesNode == nil {
		return nil, fmt.Errorf("cannot parse schema: no tables mapping")
	}
	if tablesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("cannot parse schema: tables must be a mapping")
	}

	var tables []nestql.Table
	for i := 0; i+1 < len(tablesNode.Content); i += 2 {
		name := tablesNode.Content[i].Value
		colsNode := tablesNode.Content[i+1]
		if colsNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("cannot parse schema: table %q must be a mapping of column to type", name)
		}
		var cols []nestql.Column
		for j := 0; j+1 < len(colsNode.Content); j += 2 {
			colName := colsNode.Content[j].Value
			tag := colsNode.Content[j+1].Value
			ct, err := nestql.ParseColumnType(tag)
			if err != nil {
				return nil, fmt.Errorf("cannot parse schema: table %q, column %q: %w", name, colName, err)
			}
			cols = append(cols, nestql.Col(colName, ct))
		}
		t := nestql.DeclareTable(name, cols...)
		if _, err := t.TypeOf(); err != nil {
			return nil, fmt.Errorf("cannot parse schema: %w", err)
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("cannot parse schema: no tables declared")
	}
	return tables, nil
}
