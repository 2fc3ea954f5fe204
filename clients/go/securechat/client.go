// Package securechat is a Go client for the SecureChat API. Sends are
// optimistic: the compose payload moves through an explicit state
// machine and a failed send stays in the outbox, recoverable via
// Resend, never silently lost.
package securechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/kestrelvaluation/securechat/internal/chat"
	"github.com/kestrelvaluation/securechat/internal/models"
)

// Client talks to a SecureChat server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	outbox  *chat.Outbox
}

// New creates a client for baseURL authenticating with the given bearer
// token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		outbox:  chat.NewOutbox(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("securechat: %s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// retrying wraps do with bounded exponential backoff for idempotent
// calls.
func (c *Client) retrying(ctx context.Context, method, path string, body, out interface{}) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		return c.do(ctx, method, path, body, out)
	}, policy)
}

// ResolveDirectRoom resolves or creates the direct room with a peer.
func (c *Client) ResolveDirectRoom(ctx context.Context, peerID, peerName string) (*models.Room, error) {
	var room models.Room
	err := c.retrying(ctx, http.MethodPost, "/rooms/direct",
		map[string]string{"peer_id": peerID, "peer_name": peerName}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ResolveCaseRoom resolves or creates the room bound to a case.
func (c *Client) ResolveCaseRoom(ctx context.Context, caseID, caseName string) (*models.Room, error) {
	var room models.Room
	err := c.retrying(ctx, http.MethodPost, "/rooms/case",
		map[string]string{"case_id": caseID, "case_name": caseName}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Rooms lists the caller's rooms, most recent activity first.
func (c *Client) Rooms(ctx context.Context) ([]models.Room, error) {
	var out struct {
		Rooms []models.Room `json:"rooms"`
	}
	if err := c.retrying(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// Messages fetches a room's recent window, order key ascending.
func (c *Client) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.retrying(ctx, http.MethodGet, "/rooms/"+roomID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// OpenRoom acknowledges the room's window for the caller.
func (c *Client) OpenRoom(ctx context.Context, roomID string) error {
	return c.retrying(ctx, http.MethodPost, "/rooms/"+roomID+"/open", nil, nil)
}

// Heartbeat records presence activity. Call on the server's heartbeat
// interval while the session is active.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/presence/heartbeat", nil, nil)
}

// SignOut best-effort marks the caller offline.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/presence/offline", nil, nil)
}

type sendRequest struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	SurveyID string `json:"survey_id,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

// SendText appends a text message. On failure the payload is retained
// in the outbox under the returned tag; Resend is the only retry path.
func (c *Client) SendText(ctx context.Context, roomID, text, replyTo string) (tag string, msg *models.Message, err error) {
	compose := chat.Compose{Type: models.MessageTypeText, Text: text, ReplyToID: replyTo}
	return c.send(ctx, roomID, compose)
}

// SendImage appends an image message referencing an uploaded URL.
func (c *Client) SendImage(ctx context.Context, roomID, mediaURL string) (tag string, msg *models.Message, err error) {
	compose := chat.Compose{Type: models.MessageTypeImage, MediaURL: mediaURL}
	return c.send(ctx, roomID, compose)
}

func (c *Client) send(ctx context.Context, roomID string, compose chat.Compose) (string, *models.Message, error) {
	tag := ulid.Make().String()
	pending := chat.NewPendingSend(roomID, compose)
	c.outbox.Put(tag, pending)

	if err := pending.Begin(); err != nil {
		return tag, nil, err
	}

	msg, err := c.postMessage(ctx, roomID, compose)
	if err != nil {
		_ = pending.Fail(err)
		return tag, nil, err
	}

	_ = pending.Succeed()
	c.outbox.Remove(tag)
	return tag, msg, nil
}

// Resend retries a failed send. It is the sole transition out of the
// failed state; succeeding removes the entry from the outbox.
func (c *Client) Resend(ctx context.Context, tag string) (*models.Message, error) {
	pending := c.outbox.Get(tag)
	if pending == nil {
		return nil, fmt.Errorf("securechat: no pending send %q", tag)
	}
	if err := pending.Retry(); err != nil {
		return nil, err
	}

	msg, err := c.postMessage(ctx, pending.RoomID(), pending.Compose())
	if err != nil {
		_ = pending.Fail(err)
		return nil, err
	}

	_ = pending.Succeed()
	c.outbox.Remove(tag)
	return msg, nil
}

// FailedSends lists the tags of sends awaiting an explicit resend.
func (c *Client) FailedSends() []string {
	return c.outbox.Failed()
}

func (c *Client) postMessage(ctx context.Context, roomID string, compose chat.Compose) (*models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/messages", sendRequest{
		Type:     string(compose.Type),
		Text:     compose.Text,
		MediaURL: compose.MediaURL,
		SurveyID: compose.SurveyID,
		ReplyTo:  compose.ReplyToID,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
