package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/wordrush/internal/game"
)

// HTTPClient talks to the Authority Service over its HTTP/JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewHTTPClient creates a client for the authority API at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

// SetHeader sets a header sent with every request (e.g. authorization).
func (c *HTTPClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the per-request timeout.
func (c *HTTPClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// apiError is the authority's error body shape.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Conflict responses carry an error code that may classify the
		// failure as a benign race.
		var apiErr apiError
		if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr == nil && apiErr.Code != "" {
			if benign := BenignFromCode(apiErr.Code, apiErr.Message); benign != nil {
				return nil, benign
			}
			return nil, fmt.Errorf("authority returned %s: %s (status %d)", apiErr.Code, apiErr.Message, resp.StatusCode)
		}
		return nil, fmt.Errorf("authority returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, out interface{}) error {
	data, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	data, err := c.makeRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// GetServerTime implements Client.
func (c *HTTPClient) GetServerTime(ctx context.Context) (time.Time, error) {
	var resp struct {
		ServerTime time.Time `json:"server_time"`
	}
	if err := c.get(ctx, "/api/time", &resp); err != nil {
		return time.Time{}, fmt.Errorf("get server time: %w", err)
	}
	return resp.ServerTime, nil
}

// GetRoomState implements Client.
func (c *HTTPClient) GetRoomState(ctx context.Context, roomID uuid.UUID) (*RoomState, error) {
	var state RoomState
	if err := c.get(ctx, fmt.Sprintf("/api/rooms/%s/state", roomID), &state); err != nil {
		return nil, fmt.Errorf("get room state: %w", err)
	}
	return &state, nil
}

// StartGame implements Client.
func (c *HTTPClient) StartGame(ctx context.Context, roomID uuid.UUID) (*game.Game, error) {
	var resp struct {
		Game *game.Game `json:"game"`
	}
	if err := c.post(ctx, fmt.Sprintf("/api/rooms/%s/start", roomID), nil, &resp); err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	return resp.Game, nil
}

// SubmitWord implements Client.
func (c *HTTPClient) SubmitWord(ctx context.Context, req SubmitWordRequest) (*SubmitWordResult, error) {
	var result SubmitWordResult
	if err := c.post(ctx, fmt.Sprintf("/api/rooms/%s/submit", req.RoomID), req, &result); err != nil {
		if IsBenign(err) {
			return nil, err
		}
		return nil, fmt.Errorf("submit word: %w", err)
	}
	return &result, nil
}

// HandleTimeout implements Client.
func (c *HTTPClient) HandleTimeout(ctx context.Context, roomID, playerID uuid.UUID) (*TimeoutResult, error) {
	req := struct {
		PlayerID uuid.UUID `json:"player_id"`
	}{PlayerID: playerID}

	var result TimeoutResult
	if err := c.post(ctx, fmt.Sprintf("/api/rooms/%s/timeout", roomID), req, &result); err != nil {
		if IsBenign(err) {
			return nil, err
		}
		return nil, fmt.Errorf("handle timeout: %w", err)
	}
	return &result, nil
}
