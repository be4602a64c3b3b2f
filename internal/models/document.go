package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Document is the versioned model definition consumed from the editor or
// persistence layer. It is the pipeline's sole input contract and is
// validated against the embedded JSON Schema before flattening begins.
type Document struct {
	Version        int              `json:"version"`
	Metadata       DocumentMetadata `json:"metadata"`
	Sheets         []*Sheet         `json:"sheets"`
	GlobalSettings GlobalSettings   `json:"globalSettings"`
}

// DocumentMetadata carries the model name and description.
type DocumentMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// GlobalSettings holds simulation-wide settings.
type GlobalSettings struct {
	Timestep float64 `json:"timestep,omitempty"`
}

// ModelParser parses and validates model definition documents.
type ModelParser struct {
	schema *jsonschema.Schema
}

// NewModelParser creates a parser with the document schema compiled.
func NewModelParser() *ModelParser {
	compiler := jsonschema.NewCompiler()
	url := "mem://schemas/model-document.json"
	if err := compiler.AddResource(url, strings.NewReader(documentSchema())); err != nil {
		panic(fmt.Sprintf("failed to register model document schema: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("failed to compile model document schema: %v", err))
	}
	return &ModelParser{schema: schema}
}

// Parse validates a JSON model document and builds the in-memory model.
// Malformed documents are rejected here, before any pipeline stage runs.
func (p *ModelParser) Parse(data []byte) (*Model, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return p.parseRaw(raw)
}

// ParseYAML validates a YAML model document and builds the in-memory model.
// The document is normalized to JSON-compatible structures first so the same
// schema applies.
func (p *ModelParser) ParseYAML(data []byte) (*Model, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %v", err)
	}
	// Round-trip through JSON to normalize numeric and map types.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize YAML document: %v", err)
	}
	var jsonRaw interface{}
	if err := json.Unmarshal(normalized, &jsonRaw); err != nil {
		return nil, fmt.Errorf("failed to normalize YAML document: %v", err)
	}
	return p.parseRaw(jsonRaw)
}

func (p *ModelParser) parseRaw(raw interface{}) (*Model, error) {
	if err := p.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("model document failed schema validation: %v", err)
	}

	// Re-encode and decode into the typed document.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode document: %v", err)
	}
	var doc Document
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %v", err)
	}

	return p.buildModel(&doc)
}

// buildModel converts a validated document into a Model, decoding nested
// subsystem sheets out of their parameter bags.
func (p *ModelParser) buildModel(doc *Document) (*Model, error) {
	model := NewModel(doc.Metadata.Name)
	model.Description = doc.Metadata.Description
	if doc.GlobalSettings.Timestep > 0 {
		model.Timestep = doc.GlobalSettings.Timestep
	}

	for _, sheet := range doc.Sheets {
		if err := p.prepareSheet(sheet); err != nil {
			return nil, err
		}
		model.AddSheet(sheet)
	}
	return model, nil
}

// prepareSheet validates kinds and recursively decodes subsystem sheets.
func (p *ModelParser) prepareSheet(sheet *Sheet) error {
	if sheet.ID == "" || sheet.Name == "" {
		return fmt.Errorf("sheet is missing id or name")
	}
	for _, block := range sheet.Blocks {
		if !IsValidKind(block.Kind) {
			return fmt.Errorf("block %s has unknown kind %q", block.ID, block.Kind)
		}
		if block.Kind != KindSubsystem {
			continue
		}
		nested, err := decodeNestedSheets(block)
		if err != nil {
			return fmt.Errorf("subsystem %s: %v", block.Name, err)
		}
		block.Sheets = nested
		for _, inner := range nested {
			if err := p.prepareSheet(inner); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeNestedSheets extracts a subsystem's "sheets" parameter into typed
// sheets.
func decodeNestedSheets(block *Block) ([]*Sheet, error) {
	raw, ok := block.Parameters["sheets"]
	if !ok {
		return nil, fmt.Errorf("subsystem declares no sheets parameter")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode sheets: %v", err)
	}
	var sheets []*Sheet
	if err := json.Unmarshal(data, &sheets); err != nil {
		return nil, fmt.Errorf("malformed sheets parameter: %v", err)
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("subsystem has an empty sheet list")
	}
	return sheets, nil
}

// documentSchema returns the JSON Schema for model documents. Nested
// subsystem sheets live inside free-form parameter bags and are validated
// structurally during model building instead.
func documentSchema() string {
	kinds := make([]string, len(AllKinds))
	for i, k := range AllKinds {
		kinds[i] = fmt.Sprintf("%q", string(k))
	}
	return fmt.Sprintf(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "sheets"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "metadata": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "description": {"type": "string"}
      }
    },
    "sheets": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/sheet"}
    },
    "globalSettings": {
      "type": "object",
      "properties": {
        "timestep": {"type": "number", "exclusiveMinimum": 0}
      }
    }
  },
  "$defs": {
    "sheet": {
      "type": "object",
      "required": ["id", "name", "blocks", "connections"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "blocks": {"type": "array", "items": {"$ref": "#/$defs/block"}},
        "connections": {"type": "array", "items": {"$ref": "#/$defs/connection"}},
        "extents": {
          "type": "object",
          "properties": {
            "width": {"type": "number", "exclusiveMinimum": 0},
            "height": {"type": "number", "exclusiveMinimum": 0}
          }
        }
      }
    },
    "block": {
      "type": "object",
      "required": ["id", "kind", "name"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "kind": {"enum": [%s]},
        "name": {"type": "string", "minLength": 1},
        "parameters": {"type": "object"}
      }
    },
    "connection": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": {"type": "string"},
        "source": {"$ref": "#/$defs/endpoint"},
        "target": {"$ref": "#/$defs/endpoint"}
      }
    },
    "endpoint": {
      "type": "object",
      "required": ["blockId", "port"],
      "properties": {
        "blockId": {"type": "string", "minLength": 1},
        "port": {"type": "integer", "minimum": -1}
      }
    }
  }
}`, strings.Join(kinds, ", "))
}
