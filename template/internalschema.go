package template

import (
	"fmt"
	"sync"
)

// The internal schema is the self-describing schema user schemas are
// validated against: it defines what a schema document may contain
// (definitions keyed by name, each one of the seven definition shapes).
// It is populated programmatically once per process and then validated
// using itself, so a bug in the bootstrap fails fast at first use.

var (
	internalOnce   sync.Once
	internalSchema *Schema
	internalErr    error
)

// InternalSchema returns the process-wide internal schema singleton.
func InternalSchema() (*Schema, error) {
	internalOnce.Do(func() {
		internalSchema, internalErr = buildInternalSchema()
	})
	return internalSchema, internalErr
}

func buildInternalSchema() (*Schema, error) {
	s := NewSchema("template-schema")
	add := func(name string, def *Definition) {
		def.Name = name
		s.Definitions[name] = def
	}

	// scalar building blocks
	add("null", &Definition{Kind: DefNull})
	add("boolean", &Definition{Kind: DefBoolean})
	add("number", &Definition{Kind: DefNumber})
	add("string", &Definition{Kind: DefString})
	add("non-empty-string", &Definition{Kind: DefString, String: StringConstraints{RequireNonEmpty: true}})
	add("sequence-of-non-empty-string", &Definition{Kind: DefSequence, ItemType: "non-empty-string"})

	// an unconstrained value (used by the empty {} payload of null/boolean/
	// number definitions, which tolerates any future option keys)
	add("any", &Definition{Kind: DefOneOf, OneOf: []string{
		"null", "boolean", "number", "string", "sequence-of-any", "mapping-of-any",
	}})
	add("sequence-of-any", &Definition{Kind: DefSequence, ItemType: "any"})
	add("mapping-of-any", &Definition{Kind: DefMapping, LooseKey: "string", LooseValue: "any", HasLoose: true})

	// document root
	add("template-schema", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "version", Type: "non-empty-string"},
		{Name: "definitions", Type: "definitions"},
	}})
	add("definitions", &Definition{Kind: DefMapping, LooseKey: "non-empty-string", LooseValue: "definition", HasLoose: true})
	add("definition", &Definition{Kind: DefOneOf, OneOf: []string{
		"null-definition", "boolean-definition", "number-definition",
		"string-definition", "sequence-definition", "mapping-definition",
		"one-of-definition",
	}})

	// the seven definition shapes, disambiguated by their payload property;
	// "context" lists the named contexts and "functions" the function
	// names embedded expressions may use at positions of that type
	add("null-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "null", Type: "definition-payload"},
	}})
	add("boolean-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "boolean", Type: "definition-payload"},
	}})
	add("number-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "number", Type: "definition-payload"},
	}})
	add("string-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "string", Type: "string-definition-payload"},
	}})
	add("sequence-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "sequence", Type: "sequence-definition-properties"},
	}})
	add("mapping-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "mapping", Type: "mapping-definition-payload"},
	}})
	add("one-of-definition", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "context", Type: "sequence-of-non-empty-string"},
		{Name: "functions", Type: "sequence-of-non-empty-string"},
		{Name: "one-of", Type: "sequence-of-non-empty-string"},
	}})

	// a definition payload may be an empty mapping or simply omitted
	// (YAML renders "boolean:" with no value as null)
	add("definition-payload", &Definition{Kind: DefOneOf, OneOf: []string{"null", "empty-properties"}})
	add("string-definition-payload", &Definition{Kind: DefOneOf, OneOf: []string{"null", "string-definition-properties"}})
	add("mapping-definition-payload", &Definition{Kind: DefOneOf, OneOf: []string{"null", "mapping-definition-properties"}})
	add("empty-properties", &Definition{Kind: DefMapping, LooseKey: "non-empty-string", LooseValue: "any", HasLoose: true})
	add("string-definition-properties", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "constant", Type: "string"},
		{Name: "ignore-case", Type: "boolean"},
		{Name: "require-non-empty", Type: "boolean"},
	}})
	add("sequence-definition-properties", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "item-type", Type: "non-empty-string", Required: true},
	}})
	add("mapping-definition-properties", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "properties", Type: "properties"},
		{Name: "loose-key-type", Type: "non-empty-string"},
		{Name: "loose-value-type", Type: "non-empty-string"},
	}})
	add("properties", &Definition{Kind: DefMapping, LooseKey: "non-empty-string", LooseValue: "property-value", HasLoose: true})
	add("property-value", &Definition{Kind: DefOneOf, OneOf: []string{
		"non-empty-string", "property-value-mapping",
	}})
	add("property-value-mapping", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "type", Type: "non-empty-string", Required: true},
		{Name: "required", Type: "boolean"},
	}})

	// validate using itself
	for name, def := range s.Definitions {
		if err := s.Validate(def, name); err != nil {
			return nil, fmt.Errorf("template: internal schema bootstrap: %w", err)
		}
	}
	return s, nil
}
