package runtime

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aretw0/stanza/internal/expr"
	"github.com/aretw0/stanza/internal/path"
	"github.com/aretw0/stanza/pkg/domain"
)

// applyForm validates every submitted field before writing any of them.
// A snapshot taken up front makes the write phase atomic as well: a write
// rejected by the type system rolls the whole submission back.
func (r *Runner) applyForm(form *domain.FormBlock, values map[string]any) error {
	coerced := make(map[string]domain.Value, len(form.Fields))
	var failures []domain.FieldError

	for _, field := range form.Fields {
		raw, present := values[field.Name]
		if !present || raw == nil {
			if field.Required {
				failures = append(failures, domain.FieldError{Field: field.Name, Reason: "value is required"})
			}
			continue
		}
		v, err := coerceField(field, raw)
		if err != nil {
			failures = append(failures, domain.FieldError{Field: field.Name, Reason: err.Error()})
			continue
		}
		if field.Required && isEmpty(v) {
			failures = append(failures, domain.FieldError{Field: field.Name, Reason: "value is required"})
			continue
		}
		coerced[field.Name] = v
	}
	if len(failures) > 0 {
		return &domain.ValidationError{Fields: failures}
	}

	snap, err := r.store.Snapshot()
	if err != nil {
		return err
	}
	for _, field := range form.Fields {
		v, ok := coerced[field.Name]
		if !ok {
			continue
		}
		target, err := path.Parse(field.Target)
		if err != nil {
			continue // rejected at compile time
		}
		if err := r.store.SetPath(target, v); err != nil {
			if restoreErr := r.store.Restore(snap); restoreErr != nil {
				return restoreErr
			}
			return &domain.ValidationError{Fields: []domain.FieldError{
				{Field: field.Name, Reason: err.Error()},
			}}
		}
	}
	return nil
}

func coerceField(field domain.FormField, raw any) (domain.Value, error) {
	switch field.Type {
	case domain.FieldText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected text, got %T", raw)
		}
		return domain.String(s), nil

	case domain.FieldNumber:
		switch n := raw.(type) {
		case float64:
			return domain.Number(n), nil
		case float32:
			return domain.Number(n), nil
		case int:
			return domain.Number(n), nil
		case int64:
			return domain.Number(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("bad number %q", n)
			}
			return domain.Number(f), nil
		default:
			return nil, fmt.Errorf("expected a number, got %T", raw)
		}

	case domain.FieldToggle:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected true or false, got %T", raw)
		}
		return domain.Bool(b), nil

	case domain.FieldChoice:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected one option, got %T", raw)
		}
		if !slices.Contains(field.Options, s) {
			return nil, fmt.Errorf("%q is not one of the options", s)
		}
		return domain.String(s), nil

	case domain.FieldCheckbox:
		selected, err := stringList(raw)
		if err != nil {
			return nil, err
		}
		out := make(domain.Array, 0, len(selected))
		for _, s := range selected {
			if !slices.Contains(field.Options, s) {
				return nil, fmt.Errorf("%q is not one of the options", s)
			}
			out = append(out, domain.String(s))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown field type %q", field.Type)
}

func stringList(raw any) ([]string, error) {
	switch list := raw.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected option names, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of options, got %T", raw)
	}
}

func isEmpty(v domain.Value) bool {
	switch val := v.(type) {
	case domain.String:
		return val == ""
	case domain.Array:
		return len(val) == 0
	case domain.Null:
		return true
	}
	return false
}

// applyChoice checks the guard and applies the choice's mutations as one
// atomic unit: if any mutation fails, none of them sticks. Returns the
// choice's navigation target.
func (r *Runner) applyChoice(nav *domain.NavBlock, label string) (string, error) {
	var choice *domain.NavChoice
	for i := range nav.Choices {
		if nav.Choices[i].Label == label {
			choice = &nav.Choices[i]
			break
		}
	}
	if choice == nil {
		return "", fmt.Errorf("unknown choice %q", label)
	}
	if choice.Guard != "" {
		compiled, err := expr.Compile(choice.Guard)
		if err != nil {
			return "", &domain.AuthoringError{Reason: err.Error()}
		}
		if !compiled.Eval(r.store) {
			return "", fmt.Errorf("choice %q is not available", label)
		}
	}

	if len(choice.Mutations) == 0 {
		return choice.Target, nil
	}
	snap, err := r.store.Snapshot()
	if err != nil {
		return "", err
	}
	for _, mut := range choice.Mutations {
		if err := r.applyMutation(mut); err != nil {
			if restoreErr := r.store.Restore(snap); restoreErr != nil {
				return "", restoreErr
			}
			return "", err
		}
	}
	return choice.Target, nil
}
