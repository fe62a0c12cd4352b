package schemas

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML mirrors the JSON wire shape so file-backed stores stay readable.
func (a Action) MarshalYAML() (interface{}, error) {
	if _, ok := knownActionKinds[a.Kind]; !ok {
		return nil, fmt.Errorf("cannot encode action: unknown kind %q", a.Kind)
	}
	switch a.Kind {
	case ActionKeyboardPress:
		keys := a.Keys
		if keys == nil {
			keys = []string{}
		}
		return map[string][]string{string(a.Kind): keys}, nil
	case ActionBrowserOpen:
		return map[string]string{string(a.Kind): a.URL}, nil
	default:
		return string(a.Kind), nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		kind, err := ParseActionKind(node.Value)
		if err != nil {
			return err
		}
		if kind.HasPayload() {
			return fmt.Errorf("line %d: action %q requires a payload", node.Line, kind)
		}
		*a = Action{Kind: kind}
		return nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: expected a single-entry mapping for action", node.Line)
		}
		kind, err := ParseActionKind(node.Content[0].Value)
		if err != nil {
			return err
		}
		payload := node.Content[1]
		switch kind {
		case ActionKeyboardPress:
			var keys []string
			if err := payload.Decode(&keys); err != nil {
				return fmt.Errorf("line %d: cannot decode %s payload: %w", payload.Line, kind, err)
			}
			*a = KeyboardPress(keys...)
		case ActionBrowserOpen:
			var url string
			if err := payload.Decode(&url); err != nil {
				return fmt.Errorf("line %d: cannot decode %s payload: %w", payload.Line, kind, err)
			}
			*a = BrowserOpen(url)
		default:
			return fmt.Errorf("line %d: action %q does not take a payload", node.Line, kind)
		}
		return nil

	default:
		return fmt.Errorf("line %d: unsupported yaml node for action", node.Line)
	}
}
