package onebot

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/chatcmd"
)

const (
	maxBodySize     = 1 << 20
	signatureHeader = "X-Signature"
	signaturePrefix = "sha1="
)

// CommandHandler answers chat commands.
type CommandHandler interface {
	Handle(ctx context.Context, msg chatcmd.Message) (reply string, handled bool)
}

// EventHandler receives OneBot HTTP-post events. Message events are passed to
// the command handler and its reply is returned as a quick operation.
type EventHandler struct {
	commands CommandHandler
	secret   []byte
	logger   *zap.Logger
}

// NewEventHandler creates a handler. When secret is non-empty every request
// must carry a matching X-Signature header.
func NewEventHandler(commands CommandHandler, secret string, logger *zap.Logger) *EventHandler {
	h := &EventHandler{
		commands: commands,
		logger:   logger.With(zap.String("component", "onebot_events")),
	}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

type quickReply struct {
	Reply    string `json:"reply"`
	AtSender bool   `json:"at_sender"`
}

func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if !h.verify(r.Header.Get(signatureHeader), body) {
		h.logger.Warn("rejected event with bad signature", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !gjson.ValidBytes(body) {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	msg, ok := parseMessageEvent(gjson.ParseBytes(body))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	reply, handled := h.commands.Handle(r.Context(), msg)
	if !handled || reply == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(quickReply{Reply: reply}); err != nil {
		h.logger.Error("error writing quick reply", zap.Error(err))
	}
}

func (h *EventHandler) verify(header string, body []byte) bool {
	if h.secret == nil {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	return hmac.Equal(got, Sign(h.secret, body))
}

// Sign computes the HMAC-SHA1 OneBot uses for X-Signature.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// parseMessageEvent extracts the command-relevant parts of a group or
// private message event.
func parseMessageEvent(event gjson.Result) (chatcmd.Message, bool) {
	if event.Get("post_type").String() != "message" {
		return chatcmd.Message{}, false
	}
	switch MessageType(event.Get("message_type").String()) {
	case MessageGroup, MessagePrivate:
	default:
		return chatcmd.Message{}, false
	}

	text := event.Get("raw_message").String()
	if text == "" {
		if m := event.Get("message"); m.Type == gjson.String {
			text = m.Str
		}
	}

	userID := event.Get("user_id").String()
	name := firstNonEmpty(
		event.Get("sender.card").String(),
		event.Get("sender.nickname").String(),
		userID,
	)

	return chatcmd.Message{UserID: userID, Sender: name, Text: text}, true
}
