// Package template renders {{variable}} placeholders and manages the
// template catalogue.
package template

import (
	"fmt"
	"strings"

	"notify-dispatch/internal/domain/entity"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Rendered is the output of rendering one template for one notification.
type Rendered struct {
	Subject *string
	Body    string
}

// Render substitutes every {{key}} token in src with vars[key], falling back to
// defaults[key]. Tokens found in neither map are left untouched. Whitespace
// inside the delimiters is ignored.
//
// An unclosed "{{", an empty key or a nested "{{" inside a token returns a
// *entity.TemplateRenderError. A stray "}}" outside a token is literal text.
func Render(src string, vars, defaults map[string]any) (string, error) {
	return render(src, vars, defaults, true)
}

// RenderText renders free text that is not a catalogue template. It never
// fails: malformed tokens are kept as literal text and well-formed ones are
// still substituted, so "Use {{ in {{lang}}" with lang=Go yields "Use {{ in Go".
func RenderText(src string, vars map[string]any) string {
	out, _ := render(src, vars, nil, false)
	return out
}

func render(src string, vars, defaults map[string]any, strict bool) (string, error) {
	if !strings.Contains(src, openDelim) {
		return src, nil
	}

	var b strings.Builder
	b.Grow(len(src))

	pos := 0
	for {
		start := strings.Index(src[pos:], openDelim)
		if start < 0 {
			b.WriteString(src[pos:])
			return b.String(), nil
		}
		start += pos
		b.WriteString(src[pos:start])

		inner := start + len(openDelim)
		end := strings.Index(src[inner:], closeDelim)
		if end < 0 {
			if strict {
				return "", &entity.TemplateRenderError{Position: start, Reason: "unclosed placeholder"}
			}
			b.WriteString(src[start:])
			return b.String(), nil
		}
		end += inner

		raw := src[inner:end]
		if nested := strings.Index(raw, openDelim); nested >= 0 {
			if strict {
				return "", &entity.TemplateRenderError{Position: start, Reason: "nested placeholder"}
			}
			// the inner "{{" may still open a valid token
			b.WriteString(src[start : inner+nested])
			pos = inner + nested
			continue
		}
		key := strings.TrimSpace(raw)
		if key == "" {
			if strict {
				return "", &entity.TemplateRenderError{Position: start, Reason: "empty placeholder"}
			}
			b.WriteString(src[start : end+len(closeDelim)])
			pos = end + len(closeDelim)
			continue
		}

		if v, ok := lookup(key, vars, defaults); ok {
			b.WriteString(v)
		} else {
			b.WriteString(src[start : end+len(closeDelim)])
		}
		pos = end + len(closeDelim)
	}
}

// RenderSubject renders an optional subject line. A nil subject yields nil.
func RenderSubject(subject *string, vars, defaults map[string]any) (*string, error) {
	if subject == nil {
		return nil, nil
	}
	out, err := Render(*subject, vars, defaults)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	return &out, nil
}

// RenderTemplate renders subject and body of t, using t.Defaults as fallback values.
func RenderTemplate(t entity.NotificationTemplate, vars map[string]any) (Rendered, error) {
	subject, err := RenderSubject(t.Subject, vars, t.Defaults)
	if err != nil {
		return Rendered{}, err
	}
	body, err := Render(t.Body, vars, t.Defaults)
	if err != nil {
		return Rendered{}, fmt.Errorf("body: %w", err)
	}
	return Rendered{Subject: subject, Body: body}, nil
}

func lookup(key string, vars, defaults map[string]any) (string, bool) {
	if v, ok := vars[key]; ok {
		return format(v), true
	}
	if v, ok := defaults[key]; ok {
		return format(v), true
	}
	return "", false
}

func format(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
