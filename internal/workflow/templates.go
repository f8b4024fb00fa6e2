package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/shawcc/trumpsword/internal/domain"
)

//go:embed templates.cue
var builtinSource string

// Definition is a template as declared in CUE, before it has an ID.
type Definition struct {
	Type            domain.EventType
	Name            string
	Nodes           []string
	TransitionRules json.RawMessage
}

// TemplateError reports a malformed template document.
type TemplateError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *TemplateError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var builtinTemplates = sync.OnceValues(func() ([]Definition, error) {
	return CompileTemplates("templates.cue", builtinSource)
})

// BuiltinTemplates returns the embedded template definitions in taxonomy order.
func BuiltinTemplates() ([]Definition, error) {
	return builtinTemplates()
}

// CompileTemplates compiles a CUE document with a top-level "templates"
// struct keyed by event type. Every key must be a known event type and every
// template must be concrete.
func CompileTemplates(filename, src string) ([]Definition, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := root.LookupPath(cue.ParsePath("templates"))
	if !v.Exists() {
		return nil, &TemplateError{Field: "templates", Message: "templates is required", Pos: root.Pos()}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []Definition
	for iter.Next() {
		typ := domain.EventType(iter.Selector().Unquoted())
		if !typ.Valid() {
			return nil, &TemplateError{
				Field:   "templates." + string(typ),
				Message: "unknown event type",
				Pos:     iter.Value().Pos(),
			}
		}

		var decoded struct {
			Name            string         `json:"name"`
			Nodes           []string       `json:"nodes"`
			TransitionRules map[string]any `json:"transition_rules"`
		}
		if err := iter.Value().Decode(&decoded); err != nil {
			return nil, formatCUEError(err)
		}
		if decoded.TransitionRules == nil {
			decoded.TransitionRules = map[string]any{}
		}
		rules, err := json.Marshal(decoded.TransitionRules)
		if err != nil {
			return nil, fmt.Errorf("templates.%s: transition_rules: %w", typ, err)
		}

		defs = append(defs, Definition{
			Type:            typ,
			Name:            decoded.Name,
			Nodes:           decoded.Nodes,
			TransitionRules: rules,
		})
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return typeOrder(defs[i].Type) < typeOrder(defs[j].Type)
	})
	return defs, nil
}

func typeOrder(t domain.EventType) int {
	for i, known := range domain.EventTypes {
		if t == known {
			return i
		}
	}
	return len(domain.EventTypes)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &TemplateError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
