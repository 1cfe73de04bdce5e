package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	errs "github.com/alexjbarnes/relaydeck/internal/errors"
	"github.com/tidwall/gjson"
)

// TokenSource supplies the bearer token for each request. The token is
// read per request so a refreshed token takes effect without a restart.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() string { return string(s) }

// Client talks to the automation and messaging REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// NewClient creates an API client for baseURL with the given http.Client.
// If httpClient is nil, http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokens:     tokens,
	}
}

// do sends a request with an optional JSON body and returns the raw
// response body. A 401 maps to ErrAuthRequired, any other non-2xx status
// or transport failure to ErrRequest.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request to %s: %v", errs.ErrRequest, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", errs.ErrRequest, endpoint, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s %s returned 401", errs.ErrAuthRequired, method, endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := apiErrorMessage(respBody); msg != "" {
			return nil, fmt.Errorf("%w: %s %s (%d): %s", errs.ErrRequest, method, endpoint, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("%w: %s %s returned status %d", errs.ErrRequest, method, endpoint, resp.StatusCode)
	}

	// Some endpoints report failures as 2xx with an error body.
	if msg := apiErrorMessage(respBody); msg != "" {
		return nil, fmt.Errorf("%w: %s %s: %s", errs.ErrRequest, method, endpoint, msg)
	}

	return respBody, nil
}

// apiErrorMessage extracts an error description from a response body,
// or returns "" when the body does not describe a failure.
func apiErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return ""
	}
	if e := doc.Get("error"); e.Type == gjson.String && e.Str != "" {
		return e.Str
	}
	failed := doc.Get("status").Str == "error" || doc.Get("success").Type == gjson.False
	if failed {
		if m := doc.Get("message").Str; m != "" {
			return m
		}
		return "request rejected"
	}
	return ""
}

// locateArray finds the first array in body at the root or one of the
// given paths.
func locateArray(body []byte, paths ...string) (gjson.Result, bool) {
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		return doc, true
	}
	for _, p := range paths {
		if v := doc.Get(p); v.IsArray() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// ListAutomations returns every automation visible to the token.
func (c *Client) ListAutomations(ctx context.Context) ([]Automation, error) {
	body, err := c.do(ctx, http.MethodGet, "/automations", nil)
	if err != nil {
		return nil, fmt.Errorf("listing automations: %w", err)
	}

	arr, ok := locateArray(body, "data.automations", "automations", "data")
	if !ok {
		return nil, fmt.Errorf("listing automations: %w: no automation array", errs.ErrParse)
	}

	return decodeRows(arr, decodeAutomation), nil
}

// PauseAutomation pauses a running or scheduled automation.
func (c *Client) PauseAutomation(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodPost, "/automations/"+url.PathEscape(id)+"/pause", nil); err != nil {
		return fmt.Errorf("pausing automation %s: %w", id, err)
	}
	return nil
}

// ResumeAutomation resumes a paused automation.
func (c *Client) ResumeAutomation(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodPost, "/automations/"+url.PathEscape(id)+"/resume", nil); err != nil {
		return fmt.Errorf("resuming automation %s: %w", id, err)
	}
	return nil
}

// DeleteAutomation removes an automation.
func (c *Client) DeleteAutomation(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/automations/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("deleting automation %s: %w", id, err)
	}
	return nil
}

// ListConversations returns one page of conversations, most recent first
// as ordered by the API.
func (c *Client) ListConversations(ctx context.Context, req ListConversationsRequest) ([]ConversationSummary, error) {
	body, err := c.do(ctx, http.MethodPost, "/messages", req)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	arr, ok := locateArray(body, "conversations", "data.conversations", "data")
	if !ok {
		return nil, fmt.Errorf("listing conversations: %w: no conversation array", errs.ErrParse)
	}

	return decodeRows(arr, decodeConversation), nil
}

// FetchMessages returns the raw messages of a conversation in API order.
func (c *Client) FetchMessages(ctx context.Context, req FetchMessagesRequest) ([]RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/messages/conversation", req)
	if err != nil {
		return nil, fmt.Errorf("fetching messages for %s: %w", req.ConversationID, err)
	}

	arr, ok := locateArray(body, "messages", "data.messages", "data")
	if !ok {
		return nil, fmt.Errorf("fetching messages for %s: %w: no message array", req.ConversationID, errs.ErrParse)
	}

	var out []RawMessage
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, RawMessage(v.Raw))
		return true
	})

	return out, nil
}

// SendMessage sends text and returns the server-confirmed message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SentMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/messages/send", req)
	if err != nil {
		return nil, fmt.Errorf("sending message to %s: %w", req.TargetID, err)
	}

	doc := gjson.ParseBytes(body)
	for _, p := range []string{"message", "data.message", "data"} {
		if v := doc.Get(p); v.IsObject() {
			doc = v
			break
		}
	}

	if !doc.IsObject() {
		return nil, fmt.Errorf("sending message to %s: %w: no message object", req.TargetID, errs.ErrParse)
	}

	sent := decodeSentMessage(doc)
	return &sent, nil
}
