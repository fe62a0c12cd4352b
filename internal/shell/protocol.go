// Package shell carries editor requests and capture events between the bind
// host and editor shells over a websocket.
package shell

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/bindpad/api/schemas"
	"github.com/xkilldash9x/bindpad/internal/bus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EnvelopeType tells requests, results and pushed events apart.
type EnvelopeType string

const (
	TypeInvoke EnvelopeType = "invoke"
	TypeResult EnvelopeType = "result"
	TypeEvent  EnvelopeType = "event"
)

// Commands a shell may invoke on the host.
const (
	CmdGetBinds   = "get_binds"
	CmdAddBind    = "add_bind"
	CmdUpdateBind = "update_bind"
	CmdRemoveBind = "remove_bind"
)

// ErrClosed is returned for calls on a closed client or for calls still
// waiting when the connection drops.
var ErrClosed = errors.New("shell connection closed")

// Envelope is one websocket text frame.
//
//	{"id":"..","type":"invoke","cmd":"update_bind","args":{"data":{..}}}
//	{"id":"..","type":"result","ok":true,"data":".."}
//	{"type":"event","event":"pressed-code","data":{"code":"0x1"}}
type Envelope struct {
	ID    string              `json:"id,omitempty"`
	Type  EnvelopeType        `json:"type"`
	Cmd   string              `json:"cmd,omitempty"`
	Args  jsoniter.RawMessage `json:"args,omitempty"`
	OK    bool                `json:"ok,omitempty"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
	Event string              `json:"event,omitempty"`
}

// UpdateArgs are the arguments of update_bind.
type UpdateArgs struct {
	Data schemas.BindUpdate `json:"data"`
}

// RemoveArgs are the arguments of remove_bind.
type RemoveArgs struct {
	ID string `json:"id"`
}

// RemoteError is a failure reported by the host for one request.
type RemoteError struct {
	Cmd     string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed on host: %s", e.Cmd, e.Message)
}

func resultOK(id string, data interface{}) (Envelope, error) {
	env := Envelope{ID: id, Type: TypeResult, OK: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to encode %s result: %w", id, err)
		}
		env.Data = raw
	}
	return env, nil
}

func resultErr(id string, err error) Envelope {
	return Envelope{ID: id, Type: TypeResult, Error: err.Error()}
}

// eventEnvelope encodes a bus message for the wire. Only payload types the
// shell knows about are forwarded.
func eventEnvelope(msg bus.Message) (Envelope, bool, error) {
	switch msg.Payload.(type) {
	case schemas.PressedCode, *schemas.PressedCode, schemas.BindTrigger, *schemas.BindTrigger:
	default:
		return Envelope{}, false, nil
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return Envelope{}, false, fmt.Errorf("failed to encode %s event: %w", msg.Type, err)
	}
	return Envelope{Type: TypeEvent, Event: string(msg.Type), Data: raw}, true, nil
}

// decodeEvent turns a pushed event back into a bus payload.
func decodeEvent(env Envelope) (bus.MessageType, interface{}, error) {
	switch bus.MessageType(env.Event) {
	case bus.TypePressedCode:
		var p schemas.PressedCode
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, fmt.Errorf("bad %s event: %w", env.Event, err)
		}
		return bus.TypePressedCode, p, nil
	case bus.TypeBindTriggered:
		var p schemas.BindTrigger
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return "", nil, fmt.Errorf("bad %s event: %w", env.Event, err)
		}
		return bus.TypeBindTriggered, p, nil
	default:
		return "", nil, fmt.Errorf("unknown event %q", env.Event)
	}
}
