package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/spf13/cast"

	"github.com/port-labs/ocean-core/internal/entity"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
)

// Result is the output of evaluating one batch of raw records: the
// successfully produced entities and the mapping failures encountered
// along the way. Per §4.1, mapping failures never abort the batch.
type Result struct {
	Entities []entity.Entity
	Failures []oceanerrors.MappingError
}

// EvaluateBatch runs c against every raw record in batch, in order, per
// §4.1's evaluation steps 1-7.
func EvaluateBatch(c *Compiled, batch []any) Result {
	var res Result
	for i, record := range batch {
		units, err := expand(c, record, i)
		if err != nil {
			res.Failures = append(res.Failures, *err)
			continue
		}
		for _, unit := range units {
			ent, err := evalUnit(c, unit, i)
			if err != nil {
				res.Failures = append(res.Failures, *err)
				continue
			}
			res.Entities = append(res.Entities, *ent)
		}
	}
	return res
}

// expand applies the selector (step 1) and, if configured, items_to_parse
// (step 2), returning the list of units ("as if the record were expanded")
// that each independently produce one entity.
func expand(c *Compiled, record any, position int) ([]any, *oceanerrors.MappingError) {
	keep, err := runBool(c.selector, record)
	if err != nil {
		mErr := oceanerrors.NewMappingError(c.Kind, "selector.query", position, err)
		return nil, &mErr
	}
	if !keep {
		return nil, nil
	}

	if c.itemsToParse == nil {
		return []any{record}, nil
	}

	raw, err := runFirst(c.itemsToParse, record)
	if err != nil {
		mErr := oceanerrors.NewMappingError(c.Kind, "items_to_parse", position, err)
		return nil, &mErr
	}
	items, ok := raw.([]any)
	if !ok {
		mErr := oceanerrors.NewMappingError(c.Kind, "items_to_parse", position,
			fmt.Errorf("expected an array, got %T", raw))
		return nil, &mErr
	}

	units := make([]any, len(items))
	for i, item := range items {
		units[i] = withAmbientItem(record, item)
	}
	return units, nil
}

// withAmbientItem implements "set an ambient .item = s" from §4.1 step 2: s
// becomes addressable as .item while the rest of the original record
// remains addressable as before, when the record is itself an object.
func withAmbientItem(record, item any) any {
	if m, ok := record.(map[string]any); ok {
		combined := make(map[string]any, len(m)+1)
		for k, v := range m {
			combined[k] = v
		}
		combined["item"] = item
		return combined
	}
	return map[string]any{"item": item, "record": record}
}

// evalUnit runs steps 3-7 of §4.1 against one unit (either the original
// record or one element produced by items_to_parse).
func evalUnit(c *Compiled, unit any, position int) (*entity.Entity, *oceanerrors.MappingError) {
	identifier, err := runString(c.identifier, unit)
	if err != nil {
		mErr := oceanerrors.NewMappingError(c.Kind, "identifier", position, err)
		return nil, &mErr
	}

	blueprint, err := runString(c.blueprint, unit)
	if err != nil {
		mErr := oceanerrors.NewMappingError(c.Kind, "blueprint", position, err)
		return nil, &mErr
	}

	ent := entity.Entity{
		Identifier: identifier,
		Blueprint:  blueprint,
		Properties: map[string]any{},
		Relations:  map[string]any{},
	}

	if c.title != nil {
		title, err := runFirst(c.title, unit)
		if err != nil {
			mErr := oceanerrors.NewMappingError(c.Kind, "title", position, err)
			return nil, &mErr
		}
		if title != nil {
			ent.Title = cast.ToString(title)
		}
	}

	for name, code := range c.properties {
		value, err := runFirst(code, unit)
		if err != nil {
			mErr := oceanerrors.NewMappingError(c.Kind, "properties."+name, position, err)
			return nil, &mErr
		}
		if value == nil {
			continue // null is permitted and maps to absent, per §4.1 step 5
		}
		if !isJSONSerializable(value) {
			mErr := oceanerrors.NewMappingError(c.Kind, "properties."+name, position,
				fmt.Errorf("result is not JSON-serializable: %v", value))
			return nil, &mErr
		}
		ent.Properties[name] = value
	}

	for name, code := range c.relations {
		value, err := runFirst(code, unit)
		if err != nil {
			mErr := oceanerrors.NewMappingError(c.Kind, "relations."+name, position, err)
			return nil, &mErr
		}
		resolved, err := resolveRelation(value)
		if err != nil {
			mErr := oceanerrors.NewMappingError(c.Kind, "relations."+name, position, err)
			return nil, &mErr
		}
		if resolved != nil {
			ent.Relations[name] = resolved
		}
	}

	return &ent, nil
}

// resolveRelation implements §4.1 step 6: a string yields a single
// identifier, an array yields many, null yields absent, anything else
// fails the entity.
func resolveRelation(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []any:
		ids := make([]string, len(v))
		for i, raw := range v {
			s, err := cast.ToStringE(raw)
			if err != nil {
				return nil, fmt.Errorf("relation array element %d is not an identifier: %w", i, err)
			}
			ids[i] = s
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("relation result must be a string or array of strings, got %T", value)
	}
}

func isJSONSerializable(v any) bool {
	_, err := json.Marshal(v)
	return err == nil
}

// runFirst runs code against input and returns its first yielded value.
// gojq surfaces evaluation failures (e.g. indexing a non-object) as an
// error value from the iterator rather than a Go error, so both paths are
// checked.
func runFirst(code *gojq.Code, input any) (any, error) {
	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}

func runBool(code *gojq.Code, input any) (bool, error) {
	v, err := runFirst(code, input)
	if err != nil {
		return false, err
	}
	return isTruthy(v), nil
}

// isTruthy mirrors JQ's own truthiness: everything is truthy except false
// and null.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// runString runs code and requires a non-empty string result, coercing
// scalar results (numbers, booleans) the way real-world raw records often
// carry numeric identifiers. A null or otherwise unconvertible result is a
// MappingError-worthy failure, surfaced as a plain error here and wrapped
// by the caller with the failing field's name.
func runString(code *gojq.Code, input any) (string, error) {
	v, err := runFirst(code, input)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("expected a non-empty string, got null")
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("expected a non-empty string: %w", err)
	}
	if s == "" {
		return "", fmt.Errorf("expected a non-empty string, got empty string")
	}
	return s, nil
}
