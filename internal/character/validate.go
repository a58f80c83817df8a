package character

import (
	"errors"
	"fmt"
)

// Validate checks a [Character] for required fields.
//
// Rules:
//   - Name must be non-empty.
//   - Every element of the detail tree must have a name.
func Validate(c Character) error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	errs = append(errs, validateElement(c.Detail, "detail")...)

	return errors.Join(errs...)
}

func validateElement(e *Element, path string) []error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("%s: name must not be empty", path))
	}
	for i, c := range e.Children {
		errs = append(errs, validateElement(c, fmt.Sprintf("%s.children[%d]", path, i))...)
	}
	return errs
}
