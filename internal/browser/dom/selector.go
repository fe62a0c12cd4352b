// internal/browser/dom/selector.go
package dom

import (
	"fmt"
	"strings"
)

// TranslateSelector converts the CSS subset used by the editor into XPath.
//
// Supported: tag names, *, #id, .class, [attr], [attr=value] (value optionally
// quoted), the descendant combinator (whitespace) and the child combinator (>).
// Anything that already looks like XPath is returned unchanged.
func TranslateSelector(css string) (string, error) {
	css = strings.TrimSpace(css)
	if css == "" {
		return "", fmt.Errorf("empty selector")
	}
	if strings.HasPrefix(css, "/") || strings.HasPrefix(css, "./") || strings.HasPrefix(css, "(") {
		return css, nil
	}

	var xpath strings.Builder
	axis := "//"
	p := &selectorScanner{src: css}

	for {
		p.skipSpace()
		if p.done() {
			break
		}
		if p.peek() == '>' {
			p.pos++
			axis = "/"
			continue
		}

		step, err := p.compound()
		if err != nil {
			return "", fmt.Errorf("invalid selector %q: %w", css, err)
		}
		xpath.WriteString(axis)
		xpath.WriteString(step)
		axis = "//"
	}

	if xpath.Len() == 0 {
		return "", fmt.Errorf("invalid selector %q", css)
	}
	return xpath.String(), nil
}

type selectorScanner struct {
	src string
	pos int
}

func (s *selectorScanner) done() bool { return s.pos >= len(s.src) }
func (s *selectorScanner) peek() byte { return s.src[s.pos] }

func (s *selectorScanner) skipSpace() {
	for !s.done() && (s.peek() == ' ' || s.peek() == '\t' || s.peek() == '\n') {
		s.pos++
	}
}

// ident reads a name made of letters, digits, '-' and '_'.
func (s *selectorScanner) ident() string {
	start := s.pos
	for !s.done() {
		c := s.peek()
		if c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			s.pos++
			continue
		}
		break
	}
	return s.src[start:s.pos]
}

// compound parses one tag/id/class/attribute group up to the next combinator.
func (s *selectorScanner) compound() (string, error) {
	tag := "*"
	var predicates []string

	if !s.done() && s.peek() == '*' {
		s.pos++
	} else if name := s.ident(); name != "" {
		tag = strings.ToLower(name)
	}

	for !s.done() {
		switch s.peek() {
		case '#':
			s.pos++
			id := s.ident()
			if id == "" {
				return "", fmt.Errorf("empty id at offset %d", s.pos)
			}
			predicates = append(predicates, fmt.Sprintf("@id='%s'", id))
		case '.':
			s.pos++
			class := s.ident()
			if class == "" {
				return "", fmt.Errorf("empty class at offset %d", s.pos)
			}
			predicates = append(predicates, fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", class))
		case '[':
			pred, err := s.attribute()
			if err != nil {
				return "", err
			}
			predicates = append(predicates, pred)
		case ' ', '\t', '\n', '>':
			return step(tag, predicates), nil
		default:
			return "", fmt.Errorf("unexpected %q at offset %d", s.peek(), s.pos)
		}
	}
	return step(tag, predicates), nil
}

func (s *selectorScanner) attribute() (string, error) {
	s.pos++ // '['
	s.skipSpace()
	name := s.ident()
	if name == "" {
		return "", fmt.Errorf("empty attribute name at offset %d", s.pos)
	}
	s.skipSpace()
	if s.done() {
		return "", fmt.Errorf("unterminated attribute selector")
	}
	if s.peek() == ']' {
		s.pos++
		return "@" + name, nil
	}
	if s.peek() != '=' {
		return "", fmt.Errorf("unsupported attribute operator at offset %d", s.pos)
	}
	s.pos++
	s.skipSpace()

	var value string
	if !s.done() && (s.peek() == '"' || s.peek() == '\'') {
		quote := s.peek()
		s.pos++
		end := strings.IndexByte(s.src[s.pos:], quote)
		if end < 0 {
			return "", fmt.Errorf("unterminated attribute value")
		}
		value = s.src[s.pos : s.pos+end]
		s.pos += end + 1
	} else {
		value = s.ident()
	}
	s.skipSpace()
	if s.done() || s.peek() != ']' {
		return "", fmt.Errorf("unterminated attribute selector")
	}
	s.pos++

	literal, err := xpathLiteral(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s=%s", name, literal), nil
}

func step(tag string, predicates []string) string {
	if len(predicates) == 0 {
		return tag
	}
	return tag + "[" + strings.Join(predicates, " and ") + "]"
}

// xpathLiteral quotes a string for XPath 1.0, which has no escape sequences.
func xpathLiteral(v string) (string, error) {
	switch {
	case !strings.Contains(v, "'"):
		return "'" + v + "'", nil
	case !strings.Contains(v, `"`):
		return `"` + v + `"`, nil
	default:
		return "", fmt.Errorf("attribute value %q mixes both quote kinds", v)
	}
}
