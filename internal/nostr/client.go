package nostr

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
)

const (
	// CallTimeout is the hard wall-clock deadline for one request/response
	// round trip. Some wallets never answer; the client must not wait for
	// a reply that may never come.
	CallTimeout = 30 * time.Second

	// responseLookback widens the subscription window to tolerate clock
	// skew between us and the relay.
	responseLookback = 60 * time.Second
)

// Response is the decrypted wallet reply.
type Response struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ResponseError  `json:"error,omitempty"`
}

// ResponseError is an explicit error returned by the wallet.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client performs single-shot request/response calls against a wallet over
// its relay. Each call opens a socket, subscribes, publishes one request,
// awaits one reply and tears everything down; no connection survives a call.
type Client struct {
	conn   *Connection
	dialer *websocket.Dialer
}

// NewClient creates a client bound to a parsed connection.
func NewClient(conn *Connection) *Client {
	return &Client{conn: conn, dialer: websocket.DefaultDialer}
}

// Call encrypts {method, params}, publishes it as a signed request event and
// waits for the wallet's response. The subscription is opened before the
// request is sent so a fast reply cannot race the subscribe.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(struct {
		Method string      `json:"method"`
		Params interface{} `json:"params"`
	}{Method: method, Params: params})
	if err != nil {
		return nil, newError(KindProtocol, "marshal request: %v", err)
	}

	encrypted, err := Encrypt(string(body), c.conn.SharedKey())
	if err != nil {
		return nil, newError(KindProtocol, "encrypt request: %v", err)
	}

	event := &Event{
		PubKey:    c.conn.ClientPubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      KindWalletRequest,
		Tags:      [][]string{{"p", c.conn.WalletPubKey}},
		Content:   encrypted,
	}
	if err := event.Sign(c.conn.Secret); err != nil {
		return nil, newError(KindProtocol, "sign request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(ctx, c.conn.RelayURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindTimeout, "dial relay %s: deadline exceeded", c.conn.RelayURL)
		}
		return nil, newError(KindTransport, "dial relay %s: %v", c.conn.RelayURL, err)
	}
	defer ws.Close()

	deadline, _ := ctx.Deadline()
	_ = ws.SetReadDeadline(deadline)
	_ = ws.SetWriteDeadline(deadline)

	subID := "zf-" + event.ID[:12]
	defer func() {
		// Explicit teardown on every path.
		_ = ws.WriteJSON([]interface{}{"CLOSE", subID})
	}()

	// Subscribe to responses p-tagged to us before publishing the request.
	filter := map[string]interface{}{
		"kinds": []int{KindWalletResponse},
		"#p":    []string{c.conn.ClientPubKey},
		"since": time.Now().Add(-responseLookback).Unix(),
	}
	if err := ws.WriteJSON([]interface{}{"REQ", subID, filter}); err != nil {
		return nil, newError(KindTransport, "subscribe: %v", err)
	}

	if err := ws.WriteJSON([]interface{}{"EVENT", event}); err != nil {
		return nil, newError(KindTransport, "publish request: %v", err)
	}

	logger.Debug("wallet request published",
		zap.String("method", method),
		zap.String("event_id", shortID(event.ID)))

	return c.awaitResponse(ctx, ws, method, event.ID)
}

// awaitResponse reads relay frames until a decryptable response to requestID
// arrives or the deadline expires.
func (c *Client) awaitResponse(ctx context.Context, ws *websocket.Conn, method, requestID string) (json.RawMessage, error) {
	for {
		var frame []json.RawMessage
		if err := ws.ReadJSON(&frame); err != nil {
			if isTimeoutErr(ctx, err) {
				return nil, newError(KindTimeout, "no response to %s within %s", method, CallTimeout)
			}
			return nil, newError(KindTransport, "read relay message: %v", err)
		}
		if len(frame) < 2 {
			continue
		}

		var frameType string
		if err := json.Unmarshal(frame[0], &frameType); err != nil {
			continue
		}

		switch frameType {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var event Event
			if err := json.Unmarshal(frame[2], &event); err != nil {
				continue
			}
			resp, ok := c.matchResponse(&event, requestID)
			if !ok {
				continue
			}
			if resp.Error != nil {
				return nil, &Error{Kind: KindProtocol, Code: resp.Error.Code, Message: resp.Error.Message}
			}
			if resp.ResultType != method {
				return nil, newError(KindProtocol, "unexpected result type %q for %s", resp.ResultType, method)
			}
			return resp.Result, nil

		case "OK":
			// ["OK", event_id, accepted, reason]
			if len(frame) >= 3 {
				var accepted bool
				_ = json.Unmarshal(frame[2], &accepted)
				if !accepted {
					reason := ""
					if len(frame) >= 4 {
						_ = json.Unmarshal(frame[3], &reason)
					}
					return nil, newError(KindTransport, "relay rejected request: %s", reason)
				}
			}

		case "EOSE", "NOTICE":
			// EOSE marks the end of stored events; NOTICE is relay chatter.

		default:
		}
	}
}

// matchResponse decrypts an incoming event if it is the wallet's reply to
// requestID.
func (c *Client) matchResponse(event *Event, requestID string) (*Response, bool) {
	if event.Kind != KindWalletResponse || event.PubKey != c.conn.WalletPubKey {
		return nil, false
	}
	// Wallets e-tag the request they answer; ignore replies to other calls.
	if ref := event.TagValue("e"); ref != "" && ref != requestID {
		return nil, false
	}

	decrypted, err := Decrypt(event.Content, c.conn.SharedKey())
	if err != nil {
		logger.Warn("undecryptable wallet response",
			zap.String("event_id", shortID(event.ID)), zap.Error(err))
		return nil, false
	}

	var resp Response
	if err := json.Unmarshal([]byte(decrypted), &resp); err != nil {
		logger.Warn("unparseable wallet response",
			zap.String("event_id", shortID(event.ID)), zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func isTimeoutErr(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// shortID truncates an id/pubkey to 12 chars for logging.
func shortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
