// internal/browser/dom/errors.go
package dom

import (
	"errors"
	"fmt"
)

// ErrDetached is returned when a mutation targets a node that is no longer
// part of the document.
var ErrDetached = errors.New("node is not attached to the document")

// ElementNotFoundError is a specific, typed error for when a selector does not match any element.
type ElementNotFoundError struct {
	Selector string
}

// Error implements the error interface by formatting the message on the fly.
func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found matching selector '%s'", e.Selector)
}

// NewElementNotFoundError creates a new ElementNotFoundError.
func NewElementNotFoundError(selector string) *ElementNotFoundError {
	return &ElementNotFoundError{
		Selector: selector,
	}
}
