// Package mapping compiles a ResourceConfig's JQ-like expressions once per
// resync and evaluates them against raw records, producing validated
// entity.Entity values or a per-record MappingError (internal/errors), per
// §4.1.
package mapping

import (
	"strings"

	"github.com/itchyny/gojq"

	"github.com/port-labs/ocean-core/internal/entity"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// Compiled is the pre-built form of a ResourceConfig: one compiled gojq
// program per expression field, built once per resync (or once per webhook
// event) and reused across every raw record of that kind.
type Compiled struct {
	Kind string

	selector     *gojq.Code
	itemsToParse *gojq.Code // nil if not configured
	identifier   *gojq.Code
	title        *gojq.Code // nil if not configured
	blueprint    *gojq.Code
	properties   map[string]*gojq.Code
	relations    map[string]*gojq.Code
}

// Compile builds the Compiled form of rc. A syntactically invalid
// expression anywhere in rc fails the whole compile with a ConfigError, per
// §4.1 ("Compilation fails with ConfigError if an expression is
// syntactically invalid").
func Compile(rc entity.ResourceConfig) (*Compiled, error) {
	c := &Compiled{Kind: rc.Kind, properties: map[string]*gojq.Code{}, relations: map[string]*gojq.Code{}}

	var err error
	query := rc.Selector.Query
	if query == "" {
		query = "true"
	}
	if c.selector, err = compileExpr(query); err != nil {
		return nil, oceanerrors.ConfigErrorf("kind %q: compiling selector.query: %w", rc.Kind, err)
	}

	if rc.Port.ItemsToParse != "" {
		if c.itemsToParse, err = compileExpr(rc.Port.ItemsToParse); err != nil {
			return nil, oceanerrors.ConfigErrorf("kind %q: compiling items_to_parse: %w", rc.Kind, err)
		}
	}

	if c.identifier, err = compileExpr(rc.Port.Entity.Identifier); err != nil {
		return nil, oceanerrors.ConfigErrorf("kind %q: compiling identifier: %w", rc.Kind, err)
	}

	if rc.Port.Entity.Title != "" {
		if c.title, err = compileExpr(rc.Port.Entity.Title); err != nil {
			return nil, oceanerrors.ConfigErrorf("kind %q: compiling title: %w", rc.Kind, err)
		}
	}

	if c.blueprint, err = compileBlueprint(rc.Port.Entity.Blueprint); err != nil {
		return nil, oceanerrors.ConfigErrorf("kind %q: compiling blueprint: %w", rc.Kind, err)
	}

	for name, expr := range rc.Port.Entity.Properties {
		code, err := compileExpr(expr)
		if err != nil {
			return nil, oceanerrors.ConfigErrorf("kind %q: compiling property %q: %w", rc.Kind, name, err)
		}
		c.properties[name] = code
	}

	for name, expr := range rc.Port.Entity.Relations {
		code, err := compileExpr(expr)
		if err != nil {
			return nil, oceanerrors.ConfigErrorf("kind %q: compiling relation %q: %w", rc.Kind, name, err)
		}
		c.relations[name] = code
	}

	return c, nil
}

func compileExpr(expr string) (*gojq.Code, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(q)
}

// compileBlueprint implements the "fixed string or expression" contract for
// ResourceConfig.port.entity.mappings.blueprint: a value containing none of
// JQ's metacharacters is treated as a literal blueprint id and compiled as
// the equivalent constant expression; anything else is compiled as a JQ
// expression yielding the blueprint id.
func compileBlueprint(value string) (*gojq.Code, error) {
	if literal, ok := LiteralBlueprint(value); ok {
		q, err := gojq.Parse(strconvQuote(literal))
		if err != nil {
			return nil, err
		}
		return gojq.Compile(q)
	}
	return compileExpr(value)
}

// LiteralBlueprint reports whether value is a fixed blueprint id rather than
// a JQ expression, per the "fixed string or expression" contract on
// ResourceConfig.port.entity.mappings.blueprint. Callers that need to know a
// kind's blueprint(s) without evaluating a record (e.g. the resync delete
// phase's catalog search) use this to recover the literal id when one was
// configured.
func LiteralBlueprint(value string) (string, bool) {
	if value == "" || strings.ContainsAny(value, ".|()[]$\"") {
		return "", false
	}
	return value, true
}

// strconvQuote builds a JQ string literal for value without pulling in the
// strconv-escaping edge cases a hand user-supplied blueprint id will never
// exercise (literal blueprint ids are identifiers, not arbitrary strings).
func strconvQuote(value string) string {
	var b strings.Builder
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(value, `"`, `\"`))
	b.WriteByte('"')
	return b.String()
}
