package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipelineSchema is the schema most reader tests run against: a root
// mapping with a typed steps sequence and a loose variables mapping,
// with the parameters context allowed on expression-bearing positions.
func pipelineSchema(t *testing.T) *Schema {
	t.Helper()
	s := NewSchema("pipeline")
	add := func(name string, def *Definition) {
		def.Name = name
		s.Definitions[name] = def
	}
	add("string", &Definition{Kind: DefString})
	add("non-empty-string", &Definition{Kind: DefString, String: StringConstraints{RequireNonEmpty: true}})
	add("number", &Definition{Kind: DefNumber})
	add("scalar", &Definition{Kind: DefOneOf, OneOf: []string{"string", "number", "boolean-def"}})
	add("boolean-def", &Definition{Kind: DefBoolean})
	add("pipeline", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "name", Type: "string"},
		{Name: "steps", Type: "steps"},
		{Name: "variables", Type: "variables"},
	}})
	add("steps", &Definition{Kind: DefSequence, ItemType: "step", ReaderContext: []string{"parameters"}})
	add("step", &Definition{Kind: DefMapping, Properties: []Property{
		{Name: "script", Type: "expr-string", Required: true},
	}, ReaderContext: []string{"parameters"}})
	add("expr-string", &Definition{Kind: DefString,
		ReaderContext: []string{"parameters"}, EvaluatorContext: []string{"coalesce"}})
	add("variables", &Definition{Kind: DefMapping,
		LooseKey: "non-empty-string", LooseValue: "expr-string",
		ReaderContext: []string{"parameters"}, HasLoose: true})
	for name, def := range s.Definitions {
		require.NoError(t, s.Validate(def, name))
	}
	return s
}

func readYAML(t *testing.T, schema *Schema, rootType, doc string) (*Token, *ReaderContext) {
	t.Helper()
	src, err := NewYAMLObjectSource("test.yml", []byte(doc))
	require.NoError(t, err)
	ctx := NewReaderContext(schema, 0, 0)
	tok, err := ReadTemplate(ctx, rootType, src, "test.yml")
	require.NoError(t, err)
	return tok, ctx
}

func TestReadTemplateWellKnownProperties(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline", "name: ci\nsteps:\n  - script: build\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	require.Equal(t, KindMapping, tok.Kind)
	require.Len(t, tok.Pairs(), 2)
	assert.Equal(t, "name", tok.Pairs()[0].Key.StringValue())
	assert.Equal(t, "ci", tok.Pairs()[0].Value.StringValue())
	steps := tok.Pairs()[1].Value
	require.Equal(t, KindSequence, steps.Kind)
	require.Len(t, steps.Items(), 1)
}

func TestReadTemplateUnexpectedProperty(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "bogus: 1\n")
	require.False(t, ctx.Errors.Empty())
	assert.Contains(t, ctx.Errors.Errors()[0].Message, "unexpected value 'bogus'")
}

func TestReadTemplateRequiredPropertyMissing(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "steps:\n  - name: oops\n")
	var found bool
	for _, e := range ctx.Errors.Errors() {
		if e.Code == "required_property_missing" {
			found = true
		}
	}
	assert.True(t, found, "errors: %v", ctx.Errors.Errors())
}

func TestReadTemplateDuplicateKey(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "name: a\nNAME: b\n")
	require.False(t, ctx.Errors.Empty())
	assert.Contains(t, ctx.Errors.Errors()[0].Message, "'NAME' is already defined")
}

func TestReadTemplateNumberCoercesAtStringPosition(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline", "name: 123\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	v := tok.Pairs()[0].Value
	require.Equal(t, KindString, v.Kind)
	assert.Equal(t, "123", v.StringValue())
}

func TestReadTemplateSequenceNotExpected(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "name:\n  - a\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "sequence_not_expected", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateWholeValueExpression(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"steps:\n  - ${{ parameters.extra }}\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	steps := tok.Pairs()[0].Value
	require.Len(t, steps.Items(), 1)
	item := steps.Items()[0]
	assert.Equal(t, KindBasicExpression, item.Kind)
	assert.Equal(t, "parameters.extra", item.ExpressionBody())
}

func TestReadTemplateExpressionNotAllowed(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "name: ${{ parameters.x }}\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "expression_not_allowed", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateLiteralExpressionCollapses(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  greeting: ${{ 'hello' }}\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	vars := tok.Pairs()[0].Value
	require.Len(t, vars.Pairs(), 1)
	v := vars.Pairs()[0].Value
	assert.Equal(t, KindString, v.Kind)
	assert.Equal(t, "hello", v.StringValue())
}

func TestReadTemplateMultiSegmentRewritesToFormat(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  msg: a-${{ parameters.x }}-b\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	v := tok.Pairs()[0].Value.Pairs()[0].Value
	require.Equal(t, KindBasicExpression, v.Kind)
	assert.Equal(t, "format('a-{0}-b', parameters.x)", v.ExpressionBody())
}

func TestReadTemplateFormatRewriteEscapesBraces(t *testing.T) {
	tok, _ := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  msg: \"{x}'${{ parameters.x }}\"\n")
	v := tok.Pairs()[0].Value.Pairs()[0].Value
	require.Equal(t, KindBasicExpression, v.Kind)
	assert.Equal(t, "format('{{x}}''{0}', parameters.x)", v.ExpressionBody())
}

func TestReadTemplateInsertDirective(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: '1'\n  ${{ insert }}: ${{ parameters.extra }}\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	vars := tok.Pairs()[0].Value
	require.Len(t, vars.Pairs(), 2)
	assert.Equal(t, KindInsertExpression, vars.Pairs()[1].Key.Kind)
}

func TestReadTemplateEmbeddedInsertRejected(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: x${{ insert }}y\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "directive_not_allowed", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateInvalidExpressionSyntax(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: ${{ parameters.. }}\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "invalid_expression_syntax", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateSchemaDeclaredFunctionAllowed(t *testing.T) {
	tok, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: ${{ coalesce(parameters.x, 'y') }}\n")
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	v := tok.Pairs()[0].Value.Pairs()[0].Value
	assert.Equal(t, KindBasicExpression, v.Kind)
}

func TestReadTemplateUndeclaredFunctionRejected(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: ${{ mystery(1) }}\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "invalid_expression_syntax", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateUnknownContextRejected(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline",
		"variables:\n  a: ${{ nope.x }}\n")
	require.False(t, ctx.Errors.Empty())
	assert.Equal(t, "invalid_expression_syntax", ctx.Errors.Errors()[0].Code)
}

func TestReadTemplateStringConstantValidation(t *testing.T) {
	s := NewSchema("root")
	s.Definitions["root"] = &Definition{Name: "root", Kind: DefString,
		String: StringConstraints{Constant: "fixed", HasConstant: true}}
	require.NoError(t, s.Validate(s.Definitions["root"], "root"))

	_, ctx := readYAML(t, s, "root", "other\n")
	require.False(t, ctx.Errors.Empty())
	assert.Contains(t, ctx.Errors.Errors()[0].Message, "unexpected value 'other'")

	_, ctx = readYAML(t, s, "root", "fixed\n")
	assert.True(t, ctx.Errors.Empty())
}

func TestReadTemplatePositionPrefixOnErrors(t *testing.T) {
	_, ctx := readYAML(t, pipelineSchema(t), "pipeline", "bogus: 1\n")
	require.False(t, ctx.Errors.Empty())
	assert.Contains(t, ctx.Errors.Errors()[0].Message, "test.yml (Line: 1, Col: 1) ")
}

func TestMatchPropertyAndFilterNarrowsCandidates(t *testing.T) {
	a := &Definition{Kind: DefMapping, Properties: []Property{{Name: "run", Type: "string"}}}
	b := &Definition{Kind: DefMapping, Properties: []Property{{Name: "uses", Type: "string"}}}
	typeName, kept := MatchPropertyAndFilter([]*Definition{a, b}, "run")
	assert.Equal(t, "string", typeName)
	require.Len(t, kept, 1)
	assert.Same(t, a, kept[0])
}

func TestValidateOneOfRejectsIndistinguishableMappings(t *testing.T) {
	s := NewSchema("root")
	s.Definitions["string"] = &Definition{Kind: DefString}
	s.Definitions["m1"] = &Definition{Kind: DefMapping, Properties: []Property{{Name: "x", Type: "string"}}}
	s.Definitions["m2"] = &Definition{Kind: DefMapping, Properties: []Property{{Name: "x", Type: "string"}}}
	oneOf := &Definition{Kind: DefOneOf, OneOf: []string{"m1", "m2"}}
	s.Definitions["root"] = oneOf
	assert.Error(t, s.Validate(oneOf, "root"))
}

func TestValidateOneOfRejectsDuplicateScalarKinds(t *testing.T) {
	s := NewSchema("root")
	s.Definitions["n1"] = &Definition{Kind: DefNumber}
	s.Definitions["n2"] = &Definition{Kind: DefNumber}
	oneOf := &Definition{Kind: DefOneOf, OneOf: []string{"n1", "n2"}}
	s.Definitions["root"] = oneOf
	assert.Error(t, s.Validate(oneOf, "root"))
}

func TestValidateMappingRequiresPropertiesOrLoose(t *testing.T) {
	s := NewSchema("root")
	def := &Definition{Kind: DefMapping}
	s.Definitions["root"] = def
	assert.Error(t, s.Validate(def, "root"))
}
