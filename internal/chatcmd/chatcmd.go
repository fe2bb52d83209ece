// Package chatcmd implements the chat-side commands that reach the game
// servers: /mcqlink relays a chat message and /mccmd runs a server command.
package chatcmd

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Command names, without the leading slash.
const (
	CommandLink = "mcqlink"
	CommandExec = "mccmd"
)

// User-visible replies.
const (
	ReplyLinkUsage    = "命令格式错误！正确用法:/mcqlink <消息>"
	ReplyExecUsage    = "命令格式错误！正确用法:/mccmd <命令>"
	ReplyLinkSent     = "消息已发送到Minecraft服务器！"
	ReplyExecSent     = "已发送Minecraft命令: "
	ReplyNotRunning   = "WebSocket服务器未启动"
	ReplyNoServers    = "没有连接的Minecraft服务器，指令发送失败"
	ReplyNotPermitted = "权限不足"
)

const (
	commandPrefix      = "/"
	targetPrefix       = "@"
	maxCommandNameSize = 32
)

// Dispatcher delivers text to the connected game servers.
type Dispatcher interface {
	Broadcast(ctx context.Context, text string)
	BroadcastTo(ctx context.Context, name, text string)
	SendCommand(ctx context.Context, command string) bool
	SendCommandTo(ctx context.Context, name, command string) bool
}

// Status reports whether the game-side listener is accepting connections.
type Status interface {
	Running() bool
}

// Message is one chat message addressed to the bot.
type Message struct {
	// UserID identifies the sender on the chat platform.
	UserID string
	// Sender is the display name shown to players in game.
	Sender string
	Text   string
}

// Handler parses chat messages and runs the commands they name.
type Handler struct {
	status     Status
	dispatcher Dispatcher
	admins     []string
	logger     *zap.Logger
}

// New creates a Handler. Only users listed in admins may run /mccmd.
func New(status Status, dispatcher Dispatcher, admins []string, logger *zap.Logger) *Handler {
	return &Handler{
		status:     status,
		dispatcher: dispatcher,
		admins:     slices.Clone(admins),
		logger:     logger.With(zap.String("component", "chatcmd")),
	}
}

// Handle runs the command in msg and returns the reply for the sender.
// handled is false when msg is not one of the bridge's commands.
func (h *Handler) Handle(ctx context.Context, msg Message) (reply string, handled bool) {
	name, args, ok := parse(msg.Text)
	if !ok {
		return "", false
	}

	switch name {
	case CommandLink:
		return h.link(ctx, msg, args), true
	case CommandExec:
		return h.exec(ctx, msg, args), true
	default:
		return "", false
	}
}

func (h *Handler) link(ctx context.Context, msg Message, args string) string {
	target, text := splitTarget(args)
	if strings.TrimSpace(text) == "" {
		return ReplyLinkUsage
	}
	if !h.running() {
		return ReplyNotRunning
	}

	line := msg.Sender + ": " + text
	h.logger.Info("relaying chat to game",
		zap.String("user_id", msg.UserID),
		zap.String("server", target),
	)
	if target != "" {
		h.dispatcher.BroadcastTo(ctx, target, line)
	} else {
		h.dispatcher.Broadcast(ctx, line)
	}
	return ReplyLinkSent
}

func (h *Handler) exec(ctx context.Context, msg Message, args string) string {
	if !h.isAdmin(msg.UserID) {
		h.logger.Warn("command refused, sender is not an admin", zap.String("user_id", msg.UserID))
		return ReplyNotPermitted
	}

	target, command := splitTarget(args)
	command = strings.TrimSpace(command)
	if command == "" {
		return ReplyExecUsage
	}
	if !h.running() {
		return ReplyNotRunning
	}

	h.logger.Info("sending game command",
		zap.String("user_id", msg.UserID),
		zap.String("server", target),
		zap.String("command", command),
	)

	var ok bool
	if target != "" {
		ok = h.dispatcher.SendCommandTo(ctx, target, command)
	} else {
		ok = h.dispatcher.SendCommand(ctx, command)
	}
	if !ok {
		return ReplyNoServers
	}
	return ReplyExecSent + command
}

func (h *Handler) running() bool {
	return h.status != nil && h.dispatcher != nil && h.status.Running()
}

func (h *Handler) isAdmin(userID string) bool {
	return userID != "" && slices.Contains(h.admins, userID)
}

// parse splits "/name rest" into the lower-cased name and everything after
// the first space. Text after the first space is kept verbatim.
func parse(text string) (name, args string, ok bool) {
	text = strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(text, commandPrefix) {
		return "", "", false
	}
	text = strings.TrimRight(strings.TrimPrefix(text, commandPrefix), "\r\n")

	name, args, _ = strings.Cut(text, " ")
	if name == "" || len(name) > maxCommandNameSize {
		return "", "", false
	}
	return strings.ToLower(name), args, true
}

// splitTarget peels an optional "@server" label off the front of args.
func splitTarget(args string) (target, rest string) {
	trimmed := strings.TrimLeft(args, " ")
	if !strings.HasPrefix(trimmed, targetPrefix) {
		return "", args
	}
	label, rest, _ := strings.Cut(strings.TrimPrefix(trimmed, targetPrefix), " ")
	if label == "" {
		return "", args
	}
	return label, rest
}
