package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/AllenInstitute/ephys-analysis-tools/internal/version"
)

//go:embed definitions.cue
var definitionsCUE string

//go:embed schemas.cue
var defaultSchemasCUE []byte

// Load error codes (S001-S099)
const (
	ErrCodeRead       = "S001" // schema file unreadable
	ErrCodeCUE        = "S002" // CUE syntax or constraint failure
	ErrCodeDecode     = "S003" // value does not decode into a spec
	ErrCodeBadPattern = "S004" // regex does not compile
	ErrCodeBadVersion = "S005" // min_version unparseable
)

// LoadError reports a problem in schema configuration.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type cueRegex struct {
	Pattern     string `json:"pattern"`
	FailMessage string `json:"fail_message"`
}

type cueField struct {
	Type      string    `json:"type"`
	Required  bool      `json:"required"`
	Allowed   []string  `json:"allowed"`
	Regex     *cueRegex `json:"regex"`
	MinLength int       `json:"minlength"`
}

type cueSpec struct {
	Kind       string              `json:"kind"`
	MinVersion string              `json:"min_version"`
	Strict     bool                `json:"strict"`
	Fields     map[string]cueField `json:"fields"`
}

// Default returns a registry built from the embedded JEM schemas.
func Default() (*Registry, error) {
	return Load("schemas.cue", defaultSchemasCUE)
}

// LoadFile builds a registry from a CUE file on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Message: fmt.Sprintf("reading schema file: %v", err)}
	}
	return Load(path, data)
}

// Load compiles CUE source, checks it against the #Schema definition and
// returns the resulting registry. Every entry under the top-level
// "schema" struct becomes one Spec named by its label.
func Load(filename string, src []byte) (*Registry, error) {
	ctx := cuecontext.New()

	defs := ctx.CompileString(definitionsCUE, cue.Filename("definitions.cue"))
	if err := defs.Err(); err != nil {
		return nil, convertCUEError(err)
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, convertCUEError(err)
	}

	merged := defs.Unify(data)
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEError(err)
	}

	reg := NewRegistry()

	schemasVal := merged.LookupPath(cue.ParsePath("schema"))
	if !schemasVal.Exists() {
		return reg, nil
	}

	iter, err := schemasVal.Fields()
	if err != nil {
		return nil, convertCUEError(err)
	}
	for iter.Next() {
		spec, err := compileSpec(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		reg.Add(spec)
	}

	return reg, nil
}

// compileSpec decodes one schema entry.
func compileSpec(name string, v cue.Value) (*Spec, error) {
	var raw cueSpec
	if err := v.Decode(&raw); err != nil {
		return nil, &LoadError{
			Code:    ErrCodeDecode,
			Message: fmt.Sprintf("schema %s: %v", name, err),
			Pos:     v.Pos(),
		}
	}

	minVersion, err := version.Parse(raw.MinVersion)
	if err != nil {
		return nil, &LoadError{
			Code:    ErrCodeBadVersion,
			Message: fmt.Sprintf("schema %s: %v", name, err),
			Pos:     v.Pos(),
		}
	}

	spec := &Spec{
		Name:       name,
		Kind:       Kind(raw.Kind),
		MinVersion: minVersion,
		Strict:     raw.Strict,
		Fields:     make(map[string]FieldSpec, len(raw.Fields)),
	}

	for fieldName, f := range raw.Fields {
		fs := FieldSpec{
			Name:      fieldName,
			Type:      FieldType(f.Type),
			Required:  f.Required,
			Allowed:   f.Allowed,
			MinLength: f.MinLength,
		}
		if fs.Type == "" {
			fs.Type = TypeAny
		}
		if f.Regex != nil {
			p, err := NewPattern(f.Regex.Pattern, f.Regex.FailMessage)
			if err != nil {
				return nil, &LoadError{
					Code:    ErrCodeBadPattern,
					Message: fmt.Sprintf("schema %s field %s: %v", name, fieldName, err),
					Pos:     v.LookupPath(cue.MakePath(cue.Str("fields"), cue.Str(fieldName))).Pos(),
				}
			}
			fs.Regex = p
		}
		spec.Fields[fieldName] = fs
	}

	return spec, nil
}

// convertCUEError keeps the first CUE error and its position.
func convertCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeCUE, Message: err.Error()}
	}
	first := errs[0]
	loadErr := &LoadError{Code: ErrCodeCUE, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}
