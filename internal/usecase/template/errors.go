package template

import "errors"

var (
	// ErrInactiveTemplate is returned by Resolve for a template that exists but is deactivated.
	ErrInactiveTemplate = errors.New("template is inactive")
)
