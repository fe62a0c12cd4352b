package schemas

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Action Kinds --

// ActionKind names what a bind does when its trigger fires.
type ActionKind string

const (
	ActionMediaSwitchDevice ActionKind = "MediaSwitchDevice"
	ActionMediaPlayPause    ActionKind = "MediaPlayPause"
	ActionMediaNextTrack    ActionKind = "MediaNextTrack"
	ActionMediaPrevTrack    ActionKind = "MediaPrevTrack"
	ActionMediaStop         ActionKind = "MediaStop"
	ActionMediaMuteUnmute   ActionKind = "MediaMuteUnmute"
	ActionMediaVolumeUp     ActionKind = "MediaVolumeUp"
	ActionMediaVolumeDown   ActionKind = "MediaVolumeDown"

	// ActionKeyboardPress carries an ordered list of key names.
	ActionKeyboardPress ActionKind = "KeyboardPress"

	ActionMouseOnOff      ActionKind = "MouseOnOff"
	ActionMouseLeft       ActionKind = "MouseLeft"
	ActionMouseRight      ActionKind = "MouseRight"
	ActionMouseUp         ActionKind = "MouseUp"
	ActionMouseDown       ActionKind = "MouseDown"
	ActionMouseClick      ActionKind = "MouseClick"
	ActionMouseScrollUp   ActionKind = "MouseScrollUp"
	ActionMouseScrollDown ActionKind = "MouseScrollDown"

	// ActionBrowserOpen carries a single string, usually a URL.
	ActionBrowserOpen           ActionKind = "BrowserOpen"
	ActionBrowserOpenNewTab     ActionKind = "BrowserOpenNewTab"
	ActionBrowserReopenTab      ActionKind = "BrowserReopenTab"
	ActionBrowserSwitchTab      ActionKind = "BrowserSwitchTab"
	ActionBrowserCloseTab       ActionKind = "BrowserCloseTab"
	ActionBrowserHistoryBack    ActionKind = "BrowserHistoryBack"
	ActionBrowserHistoryForward ActionKind = "BrowserHistoryForward"
	ActionBrowserBookmarkPage   ActionKind = "BrowserBookmarkPage"
	ActionBrowserZoomIn         ActionKind = "BrowserZoomIn"
	ActionBrowserZoomOut        ActionKind = "BrowserZoomOut"

	ActionWindowsExit      ActionKind = "WindowsExit"
	ActionWindowsSleep     ActionKind = "WindowsSleep"
	ActionWindowsPowerOff  ActionKind = "WindowsPowerOff"
	ActionWindowsSwitchTab ActionKind = "WindowsSwitchTab"
)

// allActionKinds is in display order: the payload-carrying kinds come first.
var allActionKinds = []ActionKind{
	ActionKeyboardPress,
	ActionBrowserOpen,

	ActionMediaSwitchDevice,
	ActionMediaPlayPause,
	ActionMediaNextTrack,
	ActionMediaPrevTrack,
	ActionMediaStop,
	ActionMediaMuteUnmute,
	ActionMediaVolumeUp,
	ActionMediaVolumeDown,

	ActionMouseOnOff,
	ActionMouseLeft,
	ActionMouseRight,
	ActionMouseUp,
	ActionMouseDown,
	ActionMouseClick,
	ActionMouseScrollUp,
	ActionMouseScrollDown,

	ActionBrowserOpenNewTab,
	ActionBrowserReopenTab,
	ActionBrowserSwitchTab,
	ActionBrowserCloseTab,
	ActionBrowserHistoryBack,
	ActionBrowserHistoryForward,
	ActionBrowserBookmarkPage,
	ActionBrowserZoomIn,
	ActionBrowserZoomOut,

	ActionWindowsExit,
	ActionWindowsSleep,
	ActionWindowsPowerOff,
	ActionWindowsSwitchTab,
}

var knownActionKinds = func() map[ActionKind]struct{} {
	m := make(map[ActionKind]struct{}, len(allActionKinds))
	for _, k := range allActionKinds {
		m[k] = struct{}{}
	}
	return m
}()

// AllActionKinds returns every known action kind in display order.
func AllActionKinds() []ActionKind {
	out := make([]ActionKind, len(allActionKinds))
	copy(out, allActionKinds)
	return out
}

// ParseActionKind validates a kind name.
func ParseActionKind(name string) (ActionKind, error) {
	k := ActionKind(name)
	if _, ok := knownActionKinds[k]; !ok {
		return "", fmt.Errorf("unknown action kind %q", name)
	}
	return k, nil
}

// HasPayload reports whether the kind carries data on the wire.
func (k ActionKind) HasPayload() bool {
	return k == ActionKeyboardPress || k == ActionBrowserOpen
}

// -- Action --

// Action is the tagged union stored on a bind.
//
// On the wire a payload kind is a single-entry object keyed by the kind
// ({"KeyboardPress":["Ctrl","C"]}, {"BrowserOpen":"https://..."}) and every
// other kind is the bare kind string ("MediaStop").
type Action struct {
	Kind ActionKind
	// Keys is set for ActionKeyboardPress.
	Keys []string
	// URL is set for ActionBrowserOpen.
	URL string
}

// KeyboardPress builds a key-sequence action.
func KeyboardPress(keys ...string) Action {
	if keys == nil {
		keys = []string{}
	}
	return Action{Kind: ActionKeyboardPress, Keys: keys}
}

// BrowserOpen builds a URL action.
func BrowserOpen(url string) Action {
	return Action{Kind: ActionBrowserOpen, URL: url}
}

// Simple builds an action for a payload-less kind.
func Simple(kind ActionKind) Action {
	return Action{Kind: kind}
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	if _, ok := knownActionKinds[a.Kind]; !ok {
		return nil, fmt.Errorf("cannot encode action: unknown kind %q", a.Kind)
	}
	switch a.Kind {
	case ActionKeyboardPress:
		keys := a.Keys
		if keys == nil {
			keys = []string{}
		}
		return jsonAPI.Marshal(map[string][]string{string(a.Kind): keys})
	case ActionBrowserOpen:
		return jsonAPI.Marshal(map[string]string{string(a.Kind): a.URL})
	default:
		return jsonAPI.Marshal(string(a.Kind))
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("cannot decode action: empty input")
	}

	if data[0] == '"' {
		var name string
		if err := jsonAPI.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("cannot decode action kind: %w", err)
		}
		kind, err := ParseActionKind(name)
		if err != nil {
			return err
		}
		if kind.HasPayload() {
			return fmt.Errorf("action %q requires a payload", kind)
		}
		*a = Action{Kind: kind}
		return nil
	}

	var tagged map[string]jsoniter.RawMessage
	if err := jsonAPI.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("cannot decode action: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("cannot decode action: expected a single-entry object, got %d entries", len(tagged))
	}

	for name, raw := range tagged {
		kind, err := ParseActionKind(name)
		if err != nil {
			return err
		}
		switch kind {
		case ActionKeyboardPress:
			var keys []string
			if err := jsonAPI.Unmarshal(raw, &keys); err != nil {
				return fmt.Errorf("cannot decode %s payload: %w", kind, err)
			}
			*a = KeyboardPress(keys...)
		case ActionBrowserOpen:
			var url string
			if err := jsonAPI.Unmarshal(raw, &url); err != nil {
				return fmt.Errorf("cannot decode %s payload: %w", kind, err)
			}
			*a = BrowserOpen(url)
		default:
			return fmt.Errorf("action %q does not take a payload", kind)
		}
	}
	return nil
}

// String renders the kind name, matching how the action is shown in the editor.
func (a Action) String() string {
	return string(a.Kind)
}

// -- Binds --

// Default values for a freshly created bind.
const (
	DefaultBindCode   = "FFFFFF"
	DefaultBindAction = ActionMediaPlayPause
)

// Bind maps a captured trigger code to an action.
type Bind struct {
	ID     string `json:"id" yaml:"id"`
	Code   string `json:"code" yaml:"code"`
	Action Action `json:"action" yaml:"action"`
	Repeat bool   `json:"repeat" yaml:"repeat"`
}

// BindUpdate is the update_bind request. Optional fields that are nil leave
// the stored value unchanged.
type BindUpdate struct {
	ID     string  `json:"id"`
	Code   *string `json:"code,omitempty"`
	Action Action  `json:"action"`
	Repeat *bool   `json:"repeat,omitempty"`
}

// Apply merges the update into b. The id is never changed.
func (u BindUpdate) Apply(b Bind) Bind {
	if u.Code != nil {
		b.Code = *u.Code
	}
	b.Action = u.Action
	if u.Repeat != nil {
		b.Repeat = *u.Repeat
	}
	return b
}

// PressedCode is the payload of the pressed-code event.
type PressedCode struct {
	Code string `json:"code"`
}

// EventPressedCode is the name of the event carrying a freshly captured trigger code.
const EventPressedCode = "pressed-code"

// BindTrigger is the payload of a bind-triggered bus message: a captured code
// matched Bind. Repeating is set when the match came from the repeat code.
type BindTrigger struct {
	Bind      Bind `json:"bind"`
	Repeating bool `json:"repeating"`
}
