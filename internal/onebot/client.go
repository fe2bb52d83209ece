// Package onebot talks to a OneBot v11 implementation over HTTP: it sends
// messages through the HTTP API and receives message events posted back to
// the bridge.
package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/config"
)

// MessageType is the OneBot conversation kind.
type MessageType string

// Conversation kinds supported by send_msg.
const (
	MessageGroup   MessageType = "group"
	MessagePrivate MessageType = "private"
)

// ErrInvalidDestination is returned for destination strings that do not
// name a group or private conversation.
var ErrInvalidDestination = errors.New("invalid destination")

// Destination is a parsed chat conversation identifier.
type Destination struct {
	Type MessageType
	ID   int64
}

// ParseDestination accepts "group:<id>", "private:<id>" and the session form
// "<platform>:GroupMessage:<id>" / "<platform>:FriendMessage:<id>".
func ParseDestination(s string) (Destination, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")

	var kind, id string
	switch len(parts) {
	case 2:
		kind, id = parts[0], parts[1]
	case 3:
		kind, id = parts[1], parts[2]
	default:
		return Destination{}, fmt.Errorf("%w %q", ErrInvalidDestination, s)
	}

	var d Destination
	switch strings.ToLower(kind) {
	case "group", "groupmessage":
		d.Type = MessageGroup
	case "private", "friend", "friendmessage":
		d.Type = MessagePrivate
	default:
		return Destination{}, fmt.Errorf("%w %q: unknown conversation kind %q", ErrInvalidDestination, s, kind)
	}

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Destination{}, fmt.Errorf("%w %q: bad conversation id", ErrInvalidDestination, s)
	}
	d.ID = n
	return d, nil
}

// APIError is a failed OneBot API call.
type APIError struct {
	HTTPStatus int
	Status     string
	Retcode    int64
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onebot api: http %d status=%q retcode=%d %s", e.HTTPStatus, e.Status, e.Retcode, e.Message)
}

// Client calls the OneBot HTTP API. It implements relay.Sender.
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
	logger      *zap.Logger
}

// NewClient creates a client for cfg.APIURL.
func NewClient(cfg config.OneBotConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With(zap.String("component", "onebot")),
	}
}

type sendMsgRequest struct {
	MessageType MessageType `json:"message_type"`
	UserID      int64       `json:"user_id,omitempty"`
	GroupID     int64       `json:"group_id,omitempty"`
	Message     string      `json:"message"`
	AutoEscape  bool        `json:"auto_escape"`
}

// Send delivers text to destination through send_msg.
func (c *Client) Send(ctx context.Context, destination, text string) error {
	_, err := c.SendMessage(ctx, destination, text)
	return err
}

// SendMessage is Send returning the message id the implementation assigned.
func (c *Client) SendMessage(ctx context.Context, destination, text string) (int64, error) {
	dest, err := ParseDestination(destination)
	if err != nil {
		return 0, err
	}

	req := sendMsgRequest{MessageType: dest.Type, Message: text, AutoEscape: true}
	if dest.Type == MessageGroup {
		req.GroupID = dest.ID
	} else {
		req.UserID = dest.ID
	}

	data, err := c.call(ctx, "send_msg", req)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(data, "data.message_id").Int(), nil
}

// call posts params to the named action and returns the response body once
// the implementation reports success.
func (c *Client) call(ctx context.Context, action string, params any) ([]byte, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	result := gjson.ParseBytes(data)
	status := result.Get("status").String()
	retcode := result.Get("retcode").Int()
	if resp.StatusCode != http.StatusOK || status == "failed" || retcode != 0 {
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Status:     status,
			Retcode:    retcode,
			Message:    firstNonEmpty(result.Get("wording").String(), result.Get("msg").String()),
		}
	}

	c.logger.Debug("onebot call succeeded", zap.String("action", action))
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
