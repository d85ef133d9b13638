package esrt

// Validator is the abstract schema-validation capability referenced
// throughout the spec: given a value, it reports whether the value
// conforms and, if not, a machine-readable explanation. The concrete
// validation machinery (JSON Schema, struct tags, a hand-rolled DSL, ...)
// is an external collaborator and out of scope for this module.
type Validator interface {
	Validate(v any) (ok bool, explain any)
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(v any) (bool, any)

func (f ValidatorFunc) Validate(v any) (bool, any) { return f(v) }

// NoopValidator accepts every value. Useful for aggregates, commands, or
// events that intentionally skip shape validation.
var NoopValidator Validator = ValidatorFunc(func(any) (bool, any) { return true, nil })
