package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// DecodeError reports a frame that is not a usable envelope.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding envelope: %s", e.Reason)
}

// wire is the flat object every envelope is written as. Fields absent from a
// given type are omitted; verbatim fields use RawMessage so a missing value
// is written as null.
type wire struct {
	Type         Type    `json:"type"`
	Token        string  `json:"token,omitempty"`
	Name         string  `json:"name,omitempty"`
	Status       string  `json:"status,omitempty"`
	Message      *string `json:"message,omitempty"`
	Player       string  `json:"player,omitempty"`
	Command      *string `json:"command,omitempty"`
	OriginalType *string `json:"original_type,omitempty"`
	Content      any     `json:"content,omitempty"`
	Timestamp    any     `json:"timestamp,omitempty"`
}

func raw(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("null")
	}
	return m
}

// Encode serializes env as a single JSON object.
func Encode(env Envelope) ([]byte, error) {
	w := wire{Type: env.Type()}

	switch e := env.(type) {
	case *Auth:
		w.Token = e.Token
		w.Name = e.Name
	case *AuthResponse:
		w.Status = e.Status
		w.Message = &e.Message
	case *Ping:
		w.Timestamp = raw(e.Timestamp)
	case *Pong:
		w.Timestamp = raw(e.Timestamp)
	case *Echo:
		w.Content = raw(e.Content)
		w.Timestamp = raw(e.Timestamp)
	case *EchoResponse:
		w.Content = raw(e.Content)
		w.Timestamp = raw(e.Timestamp)
	case *MinecraftChat:
		w.Player = e.Player
		w.Content = e.Content
	case *PlayerJoin:
		w.Player = e.Player
	case *PlayerQuit:
		w.Player = e.Player
	case *Broadcast:
		w.Content = e.Content
		w.Timestamp = e.Timestamp
	case *MinecraftCommand:
		w.Command = &e.Command
		w.Timestamp = e.Timestamp
	case *MessageResponse:
		w.Status = e.Status
		w.OriginalType = &e.OriginalType
	case *Error:
		w.Message = &e.Message
	case *Unknown:
		if len(e.Raw) > 0 {
			return e.Raw, nil
		}
	default:
		return nil, fmt.Errorf("encoding envelope: unsupported type %T", env)
	}

	return json.Marshal(w)
}

// Decode parses one frame. It fails with *DecodeError when data is not a JSON
// object carrying a string "type"; unrecognized types decode as *Unknown.
func Decode(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Reason: "invalid JSON"}
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &DecodeError{Reason: "frame is not a JSON object"}
	}

	kind := root.Get("type")
	if kind.Type != gjson.String {
		return nil, &DecodeError{Reason: "missing type discriminant"}
	}

	switch t := Type(kind.Str); t {
	case TypeAuth:
		return &Auth{Token: str(root, "token"), Name: text(root, "name", "")}, nil
	case TypeAuthResponse:
		return &AuthResponse{Status: text(root, "status", ""), Message: text(root, "message", "")}, nil
	case TypePing:
		return &Ping{Timestamp: verbatim(root, "timestamp")}, nil
	case TypePong:
		return &Pong{Timestamp: verbatim(root, "timestamp")}, nil
	case TypeEcho:
		return &Echo{Content: verbatim(root, "content"), Timestamp: verbatim(root, "timestamp")}, nil
	case TypeEchoResponse:
		return &EchoResponse{Content: verbatim(root, "content"), Timestamp: verbatim(root, "timestamp")}, nil
	case TypeMinecraftChat:
		return &MinecraftChat{
			Player:  text(root, "player", UnknownPlayer),
			Content: text(root, "content", ""),
		}, nil
	case TypePlayerJoin:
		return &PlayerJoin{Player: text(root, "player", UnknownPlayer)}, nil
	case TypePlayerQuit:
		return &PlayerQuit{Player: text(root, "player", UnknownPlayer)}, nil
	case TypeBroadcast:
		return &Broadcast{Content: text(root, "content", ""), Timestamp: root.Get("timestamp").Float()}, nil
	case TypeMinecraftCommand:
		return &MinecraftCommand{Command: text(root, "command", ""), Timestamp: root.Get("timestamp").Float()}, nil
	case TypeMessageResponse:
		return &MessageResponse{Status: text(root, "status", ""), OriginalType: text(root, "original_type", "")}, nil
	case TypeError:
		return &Error{Message: text(root, "message", "")}, nil
	default:
		return &Unknown{Kind: t, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// text returns the field as a string. Absent or null fields yield def;
// non-string values are rendered in their JSON form.
func text(root gjson.Result, key, def string) string {
	v := root.Get(key)
	switch v.Type {
	case gjson.Null:
		return def
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}

// str returns the field only when it is a JSON string.
func str(root gjson.Result, key string) string {
	if v := root.Get(key); v.Type == gjson.String {
		return v.Str
	}
	return ""
}

func verbatim(root gjson.Result, key string) json.RawMessage {
	v := root.Get(key)
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}
