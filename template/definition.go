package template

import (
	"fmt"
	"strings"
)

// DefinitionKind discriminates the seven schema-definition variants:
// Null, Boolean, Number, String, Sequence, Mapping, OneOf.
type DefinitionKind int

const (
	DefNull DefinitionKind = iota
	DefBoolean
	DefNumber
	DefString
	DefSequence
	DefMapping
	DefOneOf
)

func (k DefinitionKind) String() string {
	switch k {
	case DefNull:
		return "null"
	case DefBoolean:
		return "boolean"
	case DefNumber:
		return "number"
	case DefString:
		return "string"
	case DefSequence:
		return "sequence"
	case DefMapping:
		return "mapping"
	case DefOneOf:
		return "one-of"
	default:
		return "unknown"
	}
}

// StringConstraints carries a string definition's scalar predicates:
// Constant XOR RequireNonEmpty, plus an independent IgnoreCase flag.
type StringConstraints struct {
	Constant        string
	HasConstant     bool
	IgnoreCase      bool
	RequireNonEmpty bool
}

// Property is one named entry of a mapping definition: the referenced
// definition name and whether the key is required.
type Property struct {
	Name     string
	Type     string
	Required bool
}

// Definition is a closed sum type: exactly the fields relevant to Kind
// are meaningful. Every definition additionally carries its own
// reader/evaluator context, the named contexts and function signatures
// its embedded expressions may use.
type Definition struct {
	Name string
	Kind DefinitionKind

	// DefString
	String StringConstraints

	// DefSequence
	ItemType string

	// DefMapping
	Properties []Property // ordered; required+optional typed properties
	LooseKey   string     // definition name for loose keys, "" if none
	LooseValue string     // definition name for loose values, "" if none
	HasLoose   bool

	// DefOneOf
	OneOf []string // ordered list of referenced definition names

	ReaderContext    []string // allowed named contexts for ${{ }} at this position
	EvaluatorContext []string // allowed function names for ${{ }} at this position

	// anyShape marks the synthetic "any" definition the reader uses for
	// values paired with expression keys: every shape is accepted and
	// children inherit the same definition.
	anyShape bool
}

// AnyDefinition builds the synthetic accept-anything definition used
// where a schema position places no constraint on shape (e.g. the value
// paired with an expression key). The given contexts flow down to every
// nested value.
func AnyDefinition(readerContext, evaluatorContext []string) *Definition {
	return &Definition{anyShape: true, ReaderContext: readerContext, EvaluatorContext: evaluatorContext}
}

// AllowsExpressions reports whether this definition's position permits an
// embedded "${{ ... }}" expression at all.
func (d *Definition) AllowsExpressions() bool {
	return d != nil && (len(d.ReaderContext) > 0 || len(d.EvaluatorContext) > 0)
}

// Schema is a named table of Definitions plus the name of the root
// definition new documents are read against.
type Schema struct {
	RootType    string
	Version     string
	Definitions map[string]*Definition
}

// NewSchema creates an empty, named-root schema ready to receive
// definitions from the loader.
func NewSchema(rootType string) *Schema {
	return &Schema{RootType: rootType, Definitions: map[string]*Definition{}}
}

// Lookup resolves a definition name, or (nil, false) if undeclared.
func (s *Schema) Lookup(name string) (*Definition, bool) {
	d, ok := s.Definitions[name]
	return d, ok
}

// GetScalarDefinitions returns every Null/Boolean/Number/String
// definition reachable from def, expanding exactly one level of OneOf.
func (s *Schema) GetScalarDefinitions(def *Definition) []*Definition {
	return s.getDefinitionsWhere(def, func(d *Definition) bool {
		switch d.Kind {
		case DefNull, DefBoolean, DefNumber, DefString:
			return true
		default:
			return false
		}
	})
}

// GetDefinitionsOfType returns every definition of the given kind
// reachable from def, expanding exactly one level of OneOf.
func (s *Schema) GetDefinitionsOfType(def *Definition, kind DefinitionKind) []*Definition {
	return s.getDefinitionsWhere(def, func(d *Definition) bool { return d.Kind == kind })
}

func (s *Schema) getDefinitionsWhere(def *Definition, pred func(*Definition) bool) []*Definition {
	if def == nil {
		return nil
	}
	var out []*Definition
	if def.Kind == DefOneOf {
		for _, name := range def.OneOf {
			if d, ok := s.Definitions[name]; ok && pred(d) {
				out = append(out, d)
			}
		}
		return out
	}
	if pred(def) {
		out = append(out, def)
	}
	return out
}

// MatchPropertyAndFilter is the core disambiguation mechanism: given
// the mapping definitions still under consideration and a property
// name encountered while reading, it returns that property's declared
// type (if any candidate declares it) and a new slice holding only the
// candidates that declare it; a candidate with only a loose key/value is
// not kept.
func MatchPropertyAndFilter(candidates []*Definition, name string) (typeName string, newCandidates []*Definition) {
	var kept []*Definition
	for _, c := range candidates {
		if t, ok := propertyType(c, name); ok {
			if typeName == "" {
				typeName = t
			}
			kept = append(kept, c)
		}
	}
	return typeName, kept
}

func propertyType(d *Definition, name string) (string, bool) {
	for _, p := range d.Properties {
		if strings.EqualFold(p.Name, name) {
			return p.Type, true
		}
	}
	return "", false
}

// Validate cross-checks def against the rest of the schema: sequence
// itemType exists, mapping looseKey/looseValue are paired,
// property types reference real definitions, and one-of cross-definition
// disambiguation constraints hold. name is def's own name, used only for
// error messages.
func (s *Schema) Validate(def *Definition, name string) error {
	switch def.Kind {
	case DefSequence:
		if def.ItemType != "" {
			if _, ok := s.Definitions[def.ItemType]; !ok {
				return fmt.Errorf("template: schema %q: sequence itemType %q is not defined", name, def.ItemType)
			}
		}
	case DefMapping:
		if len(def.Properties) == 0 && !def.HasLoose {
			return fmt.Errorf("template: schema %q: mapping must define properties or loose key/value", name)
		}
		if def.HasLoose && (def.LooseKey == "" || def.LooseValue == "") {
			return fmt.Errorf("template: schema %q: loose key and loose value must both be defined", name)
		}
		if def.HasLoose {
			if _, ok := s.Definitions[def.LooseKey]; !ok {
				return fmt.Errorf("template: schema %q: looseKey %q is not defined", name, def.LooseKey)
			}
			if _, ok := s.Definitions[def.LooseValue]; !ok {
				return fmt.Errorf("template: schema %q: looseValue %q is not defined", name, def.LooseValue)
			}
		}
		for _, p := range def.Properties {
			if _, ok := s.Definitions[p.Type]; !ok {
				return fmt.Errorf("template: schema %q: property %q references undefined type %q", name, p.Name, p.Type)
			}
		}
	case DefString:
		if def.String.HasConstant && def.String.RequireNonEmpty {
			return fmt.Errorf("template: schema %q: constant and requireNonEmpty are mutually exclusive", name)
		}
	case DefOneOf:
		return s.validateOneOf(def, name)
	}
	return nil
}

func (s *Schema) validateOneOf(def *Definition, name string) error {
	seen := map[string]bool{}
	var nullCount, boolCount, numberCount, seqCount, stringArrayCount, looseCount int
	var mappingNames [][]string
	for _, ref := range def.OneOf {
		if seen[ref] {
			return fmt.Errorf("template: schema %q: one-of lists %q more than once", name, ref)
		}
		seen[ref] = true
		d, ok := s.Definitions[ref]
		if !ok {
			return fmt.Errorf("template: schema %q: one-of references undefined type %q", name, ref)
		}
		switch d.Kind {
		case DefNull:
			nullCount++
		case DefBoolean:
			boolCount++
		case DefNumber:
			numberCount++
		case DefSequence:
			seqCount++
			if s.itemIsUnconstrainedString(d) {
				stringArrayCount++
			}
		case DefMapping:
			if len(d.ReaderContext) > 0 || len(d.EvaluatorContext) > 0 {
				return fmt.Errorf("template: schema %q: one-of member %q may not define its own reader context", name, ref)
			}
			if d.HasLoose {
				looseCount++
			}
			names := make([]string, 0, len(d.Properties))
			for _, p := range d.Properties {
				names = append(names, p.Name)
			}
			mappingNames = append(mappingNames, names)
		}
	}
	// A loose-keyed mapping swallows every property name, so it can only
	// participate when it is the sole mapping member.
	if looseCount > 0 && len(mappingNames) > 1 {
		return fmt.Errorf("template: schema %q: a one-of with multiple mappings may not include a loose-keyed mapping", name)
	}
	if nullCount > 1 {
		return fmt.Errorf("template: schema %q: one-of may contain at most one null member", name)
	}
	if boolCount > 1 {
		return fmt.Errorf("template: schema %q: one-of may contain at most one boolean member", name)
	}
	if numberCount > 1 {
		return fmt.Errorf("template: schema %q: one-of may contain at most one number member", name)
	}
	if seqCount > 1 {
		return fmt.Errorf("template: schema %q: one-of may contain at most one sequence member", name)
	}
	if stringArrayCount > 1 {
		return fmt.Errorf("template: schema %q: one-of may contain at most one array-of-strings member without a constant", name)
	}
	// Mappings in a one-of must disambiguate by property name: no two may
	// share every property name they declare, else matchPropertyAndFilter
	// can never narrow to one candidate.
	for i := 0; i < len(mappingNames); i++ {
		for j := i + 1; j < len(mappingNames); j++ {
			if sameNameSet(mappingNames[i], mappingNames[j]) {
				return fmt.Errorf("template: schema %q: one-of mapping members must declare distinguishing properties", name)
			}
		}
	}
	return nil
}

func (s *Schema) itemIsUnconstrainedString(d *Definition) bool {
	if d.ItemType == "" {
		return false
	}
	item, ok := s.Definitions[d.ItemType]
	return ok && item.Kind == DefString && !item.String.HasConstant
}

func sameNameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, n := range a {
		set[n] = true
	}
	for _, n := range b {
		if !set[n] {
			return false
		}
	}
	return true
}
