// Package actionsyaml parses and evaluates workflow templates: YAML/JSON
// documents whose values may embed ${{ ... }} expressions. The expression
// language, the schema-validating template reader, and the just-in-time
// unraveler live in the expression and template sub-packages; every
// allocation they make is accounted by the resource package so a template
// can be processed with a hard memory and depth budget.
package actionsyaml

import (
	"embed"

	"github.com/kaptinlin/go-i18n"
)

// locales holds the message catalogs for this module's diagnostic codes:
// every template.ValidationError and expression.EvalError Code (e.g.
// duplicate_key, expression_not_allowed, format_unsupported_specifier)
// has an entry in locales/en.json, with a partial zh-Hans translation.
//
//go:embed locales/*.json
var locales embed.FS

// I18n returns the bundle the diagnostic Localize methods consume.
// English is the default locale; an unknown locale falls back to it.
func I18n() (*i18n.I18n, error) {
	bundle := i18n.NewBundle(
		i18n.WithDefaultLocale("en"),
		i18n.WithLocales("en", "zh-Hans"),
	)
	if err := bundle.LoadFS(locales, "locales/*.json"); err != nil {
		return nil, err
	}
	return bundle, nil
}
