package template

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonpointer"
)

// DefaultSchemaMaxBytes bounds the memory charged while reading a user
// schema document. Schemas are authored, not attacker-controlled, but the
// loader still runs them through the same accounting as templates.
const DefaultSchemaMaxBytes = 10 << 20

// LoadSchema reads a user schema document from src, validates it against
// the internal schema, constructs the Definition objects, and
// cross-validates every definition. Malformed schemas are raised
// immediately — there is no local recovery for a bad schema.
func LoadSchema(src EventSource, fileID string) (*Schema, error) {
	internal, err := InternalSchema()
	if err != nil {
		return nil, err
	}
	ctx := NewReaderContext(internal, DefaultSchemaMaxBytes, 0)
	root, err := ReadTemplate(ctx, "template-schema", src, fileID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Errors.Check(); err != nil {
		return nil, err
	}

	s := NewSchema("")
	for _, p := range root.Pairs() {
		switch strings.ToLower(keyString(p.Key)) {
		case "version":
			s.Version = p.Value.StringValue()
		case "definitions":
			if err := loadDefinitions(s, p.Value); err != nil {
				return nil, err
			}
		}
	}
	for name, def := range s.Definitions {
		if err := s.Validate(def, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func keyString(tok *Token) string {
	if tok == nil {
		return ""
	}
	return tok.StringValue()
}

func loadDefinitions(s *Schema, tok *Token) error {
	for _, p := range tok.Pairs() {
		name := keyString(p.Key)
		def, err := loadDefinition(name, p.Value)
		if err != nil {
			return err
		}
		s.Definitions[name] = def
	}
	return nil
}

// loadDefinition converts one definition token into a Definition,
// dispatching on which payload property the mapping carries. Error
// locations are rendered as JSON pointers into the schema document.
func loadDefinition(name string, tok *Token) (*Definition, error) {
	def := &Definition{Name: name}
	seenPayload := false
	for _, p := range tok.Pairs() {
		key := strings.ToLower(keyString(p.Key))
		loc := "#" + jsonpointer.Format("definitions", name, key)
		switch key {
		case "context":
			def.ReaderContext = stringItems(p.Value)
		case "functions":
			def.EvaluatorContext = stringItems(p.Value)
		case "null", "boolean", "number":
			seenPayload = true
			switch key {
			case "null":
				def.Kind = DefNull
			case "boolean":
				def.Kind = DefBoolean
			case "number":
				def.Kind = DefNumber
			}
		case "string":
			seenPayload = true
			def.Kind = DefString
			if err := loadStringConstraints(def, p.Value, loc); err != nil {
				return nil, err
			}
		case "sequence":
			seenPayload = true
			def.Kind = DefSequence
			for _, sp := range p.Value.Pairs() {
				if strings.EqualFold(keyString(sp.Key), "item-type") {
					def.ItemType = sp.Value.StringValue()
				}
			}
		case "mapping":
			seenPayload = true
			def.Kind = DefMapping
			if err := loadMappingShape(def, p.Value, loc); err != nil {
				return nil, err
			}
		case "one-of":
			seenPayload = true
			def.Kind = DefOneOf
			def.OneOf = stringItems(p.Value)
		default:
			return nil, fmt.Errorf("template: schema definition %q has an unexpected key %q (%s)", name, key, loc)
		}
	}
	if !seenPayload {
		loc := "#" + jsonpointer.Format("definitions", name)
		return nil, fmt.Errorf("template: schema definition %q does not declare a type (%s)", name, loc)
	}
	return def, nil
}

func loadStringConstraints(def *Definition, tok *Token, loc string) error {
	for _, p := range tok.Pairs() {
		switch strings.ToLower(keyString(p.Key)) {
		case "constant":
			def.String.Constant = p.Value.StringValue()
			def.String.HasConstant = true
		case "ignore-case":
			def.String.IgnoreCase = p.Value.BoolValue()
		case "require-non-empty":
			def.String.RequireNonEmpty = p.Value.BoolValue()
		}
	}
	if def.String.HasConstant && def.String.RequireNonEmpty {
		return fmt.Errorf("template: 'constant' and 'require-non-empty' are mutually exclusive (%s)", loc)
	}
	return nil
}

func loadMappingShape(def *Definition, tok *Token, loc string) error {
	for _, p := range tok.Pairs() {
		switch strings.ToLower(keyString(p.Key)) {
		case "properties":
			for _, pp := range p.Value.Pairs() {
				prop, err := loadProperty(keyString(pp.Key), pp.Value, loc)
				if err != nil {
					return err
				}
				def.Properties = append(def.Properties, prop)
			}
		case "loose-key-type":
			def.LooseKey = p.Value.StringValue()
			def.HasLoose = true
		case "loose-value-type":
			def.LooseValue = p.Value.StringValue()
			def.HasLoose = true
		}
	}
	return nil
}

// loadProperty accepts either the short form (a bare type name) or the
// long form (a mapping with 'type' and optional 'required').
func loadProperty(name string, tok *Token, loc string) (Property, error) {
	prop := Property{Name: name}
	switch tok.Kind {
	case KindString:
		prop.Type = tok.StringValue()
	case KindMapping:
		for _, p := range tok.Pairs() {
			switch strings.ToLower(keyString(p.Key)) {
			case "type":
				prop.Type = p.Value.StringValue()
			case "required":
				prop.Required = p.Value.BoolValue()
			}
		}
	default:
		return Property{}, fmt.Errorf("template: property %q must be a type name or a mapping (%s)", name, loc)
	}
	if prop.Type == "" {
		return Property{}, fmt.Errorf("template: property %q does not declare a type (%s)", name, loc)
	}
	return prop, nil
}

func stringItems(tok *Token) []string {
	var out []string
	for _, item := range tok.Items() {
		out = append(out, item.StringValue())
	}
	return out
}
