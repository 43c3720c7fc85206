package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoSchema = `
version: v1
definitions:
  pipeline:
    mapping:
      properties:
        name: string
        steps:
          type: steps
          required: true
  steps:
    context: [parameters]
    functions: [coalesce]
    sequence:
      item-type: step
  step:
    context: [parameters]
    mapping:
      loose-key-type: non-empty-string
      loose-value-type: string
  string:
    string: {}
  non-empty-string:
    string:
      require-non-empty: true
  scalar:
    one-of: [string, number-def]
  number-def:
    number: {}
`

func loadYAMLSchema(t *testing.T, doc string) (*Schema, error) {
	t.Helper()
	src, err := NewYAMLObjectSource("schema.yml", []byte(doc))
	require.NoError(t, err)
	return LoadSchema(src, "schema.yml")
}

func TestInternalSchemaBootstraps(t *testing.T) {
	s, err := InternalSchema()
	require.NoError(t, err)
	_, ok := s.Lookup("template-schema")
	assert.True(t, ok)
	_, ok = s.Lookup("definition")
	assert.True(t, ok)
}

func TestLoadSchema(t *testing.T) {
	s, err := loadYAMLSchema(t, demoSchema)
	require.NoError(t, err)
	assert.Equal(t, "v1", s.Version)

	pipeline, ok := s.Lookup("pipeline")
	require.True(t, ok)
	assert.Equal(t, DefMapping, pipeline.Kind)
	require.Len(t, pipeline.Properties, 2)
	assert.Equal(t, "name", pipeline.Properties[0].Name)
	assert.False(t, pipeline.Properties[0].Required)
	assert.Equal(t, "steps", pipeline.Properties[1].Name)
	assert.True(t, pipeline.Properties[1].Required)

	steps, _ := s.Lookup("steps")
	assert.Equal(t, DefSequence, steps.Kind)
	assert.Equal(t, "step", steps.ItemType)
	assert.Equal(t, []string{"parameters"}, steps.ReaderContext)
	assert.Equal(t, []string{"coalesce"}, steps.EvaluatorContext)

	step, _ := s.Lookup("step")
	assert.Equal(t, DefMapping, step.Kind)
	assert.True(t, step.HasLoose)
	assert.Equal(t, "non-empty-string", step.LooseKey)

	nes, _ := s.Lookup("non-empty-string")
	assert.True(t, nes.String.RequireNonEmpty)

	scalar, _ := s.Lookup("scalar")
	assert.Equal(t, DefOneOf, scalar.Kind)
	assert.Equal(t, []string{"string", "number-def"}, scalar.OneOf)
}

func TestLoadSchemaRoundTripsThroughReader(t *testing.T) {
	s, err := loadYAMLSchema(t, demoSchema)
	require.NoError(t, err)

	doc := "name: ci\nsteps:\n  - run: echo hi\n"
	src, err := NewYAMLObjectSource("p.yml", []byte(doc))
	require.NoError(t, err)
	ctx := NewReaderContext(s, 0, 0)
	tok, err := ReadTemplate(ctx, "pipeline", src, "p.yml")
	require.NoError(t, err)
	assert.True(t, ctx.Errors.Empty(), "unexpected: %v", ctx.Errors.Errors())
	assert.Equal(t, KindMapping, tok.Kind)
}

func TestLoadSchemaUndefinedReferenceFails(t *testing.T) {
	_, err := loadYAMLSchema(t, `
definitions:
  broken:
    sequence:
      item-type: does-not-exist
`)
	assert.Error(t, err)
}

func TestLoadSchemaMissingPayloadFails(t *testing.T) {
	_, err := loadYAMLSchema(t, `
definitions:
  broken:
    context: [parameters]
`)
	assert.Error(t, err)
}

func TestLoadSchemaExpressionsRejected(t *testing.T) {
	_, err := loadYAMLSchema(t, `
definitions:
  sneaky:
    string:
      constant: ${{ parameters.x }}
`)
	assert.Error(t, err)
}

func TestLoadSchemaConstantAndRequireNonEmptyExclusive(t *testing.T) {
	_, err := loadYAMLSchema(t, `
definitions:
  broken:
    string:
      constant: x
      require-non-empty: true
`)
	assert.Error(t, err)
}
