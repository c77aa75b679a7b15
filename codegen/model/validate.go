package model

import (
	"errors"
	"fmt"
)

// ResolutionError is a reference to a shape the model does not declare.
// It is fatal: generation for the service must abort and emit nothing.
type ResolutionError struct {
	// Referencer describes the referencing site, e.g.
	// "operation CreateWidget input" or "shape WidgetList member".
	Referencer string
	// Shape is the missing shape name.
	Shape string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s references undefined shape %q", e.Referencer, e.Shape)
}

// IsResolutionError reports whether err is (or wraps) a missing shape
// reference.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// Validate checks that every shape reference in the model resolves to a
// declared shape: operation inputs, outputs and errors, structure members,
// list members, and map keys and values. The first dangling reference is
// returned as a *ResolutionError.
func (a *API) Validate() error {
	for _, name := range a.Operations.Keys() {
		op, _ := a.Operations.Get(name)
		if op == nil {
			continue
		}
		if err := a.checkRef(op.Input, fmt.Sprintf("operation %s input", name)); err != nil {
			return err
		}
		if err := a.checkRef(op.Output, fmt.Sprintf("operation %s output", name)); err != nil {
			return err
		}
		for i := range op.Errors {
			if err := a.checkRef(&op.Errors[i], fmt.Sprintf("operation %s error", name)); err != nil {
				return err
			}
		}
	}

	for _, name := range a.Shapes.Keys() {
		shape, _ := a.Shapes.Get(name)
		if shape == nil {
			continue
		}
		switch shape.Type {
		case "structure":
			for _, member := range shape.Members.Keys() {
				ref, _ := shape.Members.Get(member)
				site := fmt.Sprintf("shape %s member %s", name, member)
				if err := a.checkRef(ref, site); err != nil {
					return err
				}
			}
		case "list":
			if err := a.checkRef(shape.Member, fmt.Sprintf("shape %s member", name)); err != nil {
				return err
			}
		case "map":
			if err := a.checkRef(shape.Key, fmt.Sprintf("shape %s key", name)); err != nil {
				return err
			}
			if err := a.checkRef(shape.Value, fmt.Sprintf("shape %s value", name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *API) checkRef(ref *ShapeRef, site string) error {
	if ref == nil || ref.Shape == "" {
		return nil
	}
	if a.Shape(ref.Shape) == nil {
		return &ResolutionError{Referencer: site, Shape: ref.Shape}
	}
	return nil
}
