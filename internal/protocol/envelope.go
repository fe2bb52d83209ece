// Package protocol defines the JSON envelopes exchanged between the bridge and
// game-side clients, one Go type per message tag.
package protocol

import "encoding/json"

// Type is the value of an envelope's "type" discriminant.
type Type string

// Recognized envelope types.
const (
	TypeAuth             Type = "auth"
	TypeAuthResponse     Type = "auth_response"
	TypePing             Type = "ping"
	TypePong             Type = "pong"
	TypeEcho             Type = "echo"
	TypeEchoResponse     Type = "echo_response"
	TypeMinecraftChat    Type = "minecraft_chat"
	TypePlayerJoin       Type = "player_join"
	TypePlayerQuit       Type = "player_quit"
	TypeBroadcast        Type = "broadcast"
	TypeMinecraftCommand Type = "minecraft_command"
	TypeMessageResponse  Type = "message_response"
	TypeError            Type = "error"
)

// Status values carried by auth_response and message_response.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusReceived = "received"
)

// Envelope is one protocol message. The set of implementations is closed;
// anything the codec does not recognize decodes as *Unknown.
type Envelope interface {
	Type() Type
	envelope()
}

// Auth is the first frame a game-side client must send.
// Name optionally labels the game server for targeted dispatch.
type Auth struct {
	Token string
	Name  string
}

// AuthResponse answers an Auth frame.
type AuthResponse struct {
	Status  string
	Message string
}

// Ping carries an opaque timestamp that is echoed back verbatim.
type Ping struct {
	Timestamp json.RawMessage
}

// Pong answers a Ping.
type Pong struct {
	Timestamp json.RawMessage
}

// Echo asks the bridge to send Content and Timestamp straight back.
type Echo struct {
	Content   json.RawMessage
	Timestamp json.RawMessage
}

// EchoResponse answers an Echo.
type EchoResponse struct {
	Content   json.RawMessage
	Timestamp json.RawMessage
}

// MinecraftChat is a chat line spoken in game.
type MinecraftChat struct {
	Player  string
	Content string
}

// PlayerJoin reports a player entering the game server.
type PlayerJoin struct {
	Player string
}

// PlayerQuit reports a player leaving the game server.
type PlayerQuit struct {
	Player string
}

// Broadcast carries chat-originated text to the game side.
type Broadcast struct {
	Content   string
	Timestamp float64
}

// MinecraftCommand asks the game server to execute Command.
type MinecraftCommand struct {
	Command   string
	Timestamp float64
}

// MessageResponse acknowledges a frame the bridge has no handler for.
type MessageResponse struct {
	Status       string
	OriginalType string
}

// Error reports a protocol problem back to the game side.
type Error struct {
	Message string
}

// Unknown is any well-formed envelope whose type the bridge does not handle.
type Unknown struct {
	Kind Type
	Raw  json.RawMessage
}

func (*Auth) Type() Type             { return TypeAuth }
func (*AuthResponse) Type() Type     { return TypeAuthResponse }
func (*Ping) Type() Type             { return TypePing }
func (*Pong) Type() Type             { return TypePong }
func (*Echo) Type() Type             { return TypeEcho }
func (*EchoResponse) Type() Type     { return TypeEchoResponse }
func (*MinecraftChat) Type() Type    { return TypeMinecraftChat }
func (*PlayerJoin) Type() Type       { return TypePlayerJoin }
func (*PlayerQuit) Type() Type       { return TypePlayerQuit }
func (*Broadcast) Type() Type        { return TypeBroadcast }
func (*MinecraftCommand) Type() Type { return TypeMinecraftCommand }
func (*MessageResponse) Type() Type  { return TypeMessageResponse }
func (*Error) Type() Type            { return TypeError }
func (u *Unknown) Type() Type        { return u.Kind }

func (*Auth) envelope()             {}
func (*AuthResponse) envelope()     {}
func (*Ping) envelope()             {}
func (*Pong) envelope()             {}
func (*Echo) envelope()             {}
func (*EchoResponse) envelope()     {}
func (*MinecraftChat) envelope()    {}
func (*PlayerJoin) envelope()       {}
func (*PlayerQuit) envelope()       {}
func (*Broadcast) envelope()        {}
func (*MinecraftCommand) envelope() {}
func (*MessageResponse) envelope()  {}
func (*Error) envelope()            {}
func (*Unknown) envelope()          {}

// UnknownPlayer is substituted by Decode when a game-side event has no player field.
const UnknownPlayer = "Unknown"
