package main

import (
	"sync"

	"github.com/ericsciple/actions-yaml/template"
)

// The workflow schema is the built-in schema workflow files are read
// against: a root mapping of well-known keys, a jobs table, and steps.
// Expression contexts: every job, the steps sequence and every
// expression-string position accept github, needs, strategy and matrix
// (the same set for every job); the keys of env and strategy mappings
// accept github only; the root mapping and other positions accept none.

var (
	workflowOnce   sync.Once
	workflowSchema *template.Schema
	workflowErr    error
)

func getWorkflowSchema() (*template.Schema, error) {
	workflowOnce.Do(func() {
		workflowSchema, workflowErr = buildWorkflowSchema()
	})
	return workflowSchema, workflowErr
}

func buildWorkflowSchema() (*template.Schema, error) {
	s := template.NewSchema("workflow-root")
	add := func(name string, def *template.Definition) {
		def.Name = name
		s.Definitions[name] = def
	}

	add("null", &template.Definition{Kind: template.DefNull})
	add("boolean", &template.Definition{Kind: template.DefBoolean})
	add("number", &template.Definition{Kind: template.DefNumber})
	add("string", &template.Definition{Kind: template.DefString})
	add("non-empty-string", &template.Definition{Kind: template.DefString,
		String: template.StringConstraints{RequireNonEmpty: true}})

	add("any", &template.Definition{Kind: template.DefOneOf, OneOf: []string{
		"null", "boolean", "number", "string", "sequence-of-any", "mapping-of-any",
	}})
	add("sequence-of-any", &template.Definition{Kind: template.DefSequence, ItemType: "any"})
	add("mapping-of-any", &template.Definition{Kind: template.DefMapping,
		LooseKey: "string", LooseValue: "any", HasLoose: true})

	githubContext := []string{"github"}
	jobContext := []string{"github", "needs", "strategy", "matrix"}

	add("workflow-root", &template.Definition{Kind: template.DefMapping, Properties: []template.Property{
		{Name: "name", Type: "string"},
		{Name: "on", Type: "any"},
		{Name: "env", Type: "env-mapping"},
		{Name: "jobs", Type: "jobs", Required: true},
	}})
	add("env-mapping", &template.Definition{Kind: template.DefMapping,
		LooseKey: "non-empty-string", LooseValue: "expression-string", ReaderContext: githubContext, HasLoose: true})
	add("expression-string", &template.Definition{Kind: template.DefString, ReaderContext: jobContext})
	add("jobs", &template.Definition{Kind: template.DefMapping,
		LooseKey: "non-empty-string", LooseValue: "job", HasLoose: true})
	add("job", &template.Definition{Kind: template.DefMapping, Properties: []template.Property{
		{Name: "name", Type: "expression-string"},
		{Name: "runs-on", Type: "expression-string", Required: true},
		{Name: "needs", Type: "any"},
		{Name: "if", Type: "expression-string"},
		{Name: "strategy", Type: "strategy"},
		{Name: "env", Type: "env-mapping"},
		{Name: "steps", Type: "steps"},
	}, ReaderContext: jobContext})
	add("strategy", &template.Definition{Kind: template.DefMapping,
		LooseKey: "non-empty-string", LooseValue: "any", ReaderContext: githubContext, HasLoose: true})
	add("steps", &template.Definition{Kind: template.DefSequence, ItemType: "step", ReaderContext: jobContext})
	add("step", &template.Definition{Kind: template.DefOneOf, OneOf: []string{"run-step", "uses-step"}})
	add("run-step", &template.Definition{Kind: template.DefMapping, Properties: []template.Property{
		{Name: "name", Type: "expression-string"},
		{Name: "id", Type: "non-empty-string"},
		{Name: "if", Type: "expression-string"},
		{Name: "run", Type: "expression-string", Required: true},
		{Name: "env", Type: "env-mapping"},
		{Name: "shell", Type: "non-empty-string"},
		{Name: "working-directory", Type: "expression-string"},
	}})
	add("uses-step", &template.Definition{Kind: template.DefMapping, Properties: []template.Property{
		{Name: "name", Type: "expression-string"},
		{Name: "id", Type: "non-empty-string"},
		{Name: "if", Type: "expression-string"},
		{Name: "uses", Type: "non-empty-string", Required: true},
		{Name: "with", Type: "with-mapping"},
		{Name: "env", Type: "env-mapping"},
	}})
	add("with-mapping", &template.Definition{Kind: template.DefMapping,
		LooseKey: "non-empty-string", LooseValue: "expression-string", HasLoose: true})

	for name, def := range s.Definitions {
		if err := s.Validate(def, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}
