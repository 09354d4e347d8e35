package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotmic/internal/domain"
)

const (
	sessionsPath = "/agent/sessions"
	chatPath     = "/agent/chat/"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Client talks to the conversation server's history endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type storedTurn struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

func (t storedTurn) entry() domain.TranscriptEntry {
	text := t.Text
	if text == "" {
		parts := make([]string, 0, len(t.Parts))
		for _, part := range t.Parts {
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
		text = strings.Join(parts, "")
	}

	role := domain.RoleAgent
	if t.Role == "user" {
		role = domain.RoleUser
	}
	return domain.TranscriptEntry{Role: role, Text: text}
}

// Load returns the stored transcript of sessionID in order.
func (c *Client) Load(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, chatPath+url.PathEscape(sessionID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrSessionNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var turns []storedTurn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", sessionID, err)
	}

	entries := make([]domain.TranscriptEntry, 0, len(turns))
	for _, turn := range turns {
		entry := turn.entry()
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		entries = append(entries, entry)
	}
	c.logger.Debug("history loaded",
		zap.String("sessionID", sessionID),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func (c *Client) Delete(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, chatPath+url.PathEscape(sessionID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrSessionNotFound
	}
	return checkStatus(resp)
}

// List returns the ids of every session the server has history for.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, sessionsPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("history base url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status)
	}
	return fmt.Errorf("%s %s: %s: %s", resp.Request.Method, resp.Request.URL.Path, resp.Status, msg)
}
