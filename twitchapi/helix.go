// Package twitchapi contains the credential resolver and the clients for the
// two Twitch read surfaces (Helix REST and the anonymous query endpoint),
// normalizing both into the Channel/Clip shapes, plus the synthetic generator
// the demo path degrades to.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultHelixURL = "https://api.twitch.tv/helix"

// defaultRequestTimeout bounds each upstream call; the source never specified
// one, which left a dead stream hanging the whole cycle.
const defaultRequestTimeout = 10 * time.Second

// Client performs authenticated reads against the Helix surface.
type Client struct {
	TokenSource *TokenSource
	BaseURL     string // defaults to the Helix endpoint
	HTTPClient  *http.Client
	Timeout     time.Duration // per-request bound, defaults to 10s
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultHelixURL
}

func (c *Client) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Name identifies this source in logs and metrics.
func (c *Client) Name() string { return "helix" }

// TopChannels lists the most-viewed live streams, optionally filtered by category.
func (c *Client) TopChannels(ctx context.Context, first int, gameID string) ([]Channel, error) {
	if first <= 0 {
		first = 20
	}
	ctx, cancel := c.reqCtx(ctx)
	defer cancel()
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("first", fmt.Sprintf("%d", first))
	if gameID != "" {
		q.Set("game_id", gameID)
	}
	req.URL.RawQuery = q.Encode()
	c.setHeaders(req, tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, upstreamErr("streams request", err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamErr("streams request", statusOf(resp))
	}
	var body struct {
		Data []struct {
			UserID      string `json:"user_id"`
			UserName    string `json:"user_name"`
			GameID      string `json:"game_id"`
			GameName    string `json:"game_name"`
			ViewerCount int    `json:"viewer_count"`
			StartedAt   string `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, upstreamErr("streams decode", err)
	}
	out := make([]Channel, 0, len(body.Data))
	for _, s := range body.Data {
		started, _ := time.Parse(time.RFC3339, s.StartedAt)
		out = append(out, Channel{
			ID:          s.UserID,
			DisplayName: s.UserName,
			ViewerCount: s.ViewerCount,
			GameID:      s.GameID,
			GameName:    s.GameName,
			StartedAt:   started,
		})
	}
	return out, nil
}

// RecentClips lists a broadcaster's clips created since the start of local
// today, retrying once with a rolling 24h window when today yields nothing.
func (c *Client) RecentClips(ctx context.Context, broadcasterID string, first int) ([]Clip, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	if first <= 0 {
		first = 5
	}
	now := time.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	clips, err := c.clipsSince(ctx, broadcasterID, first, startOfToday)
	if err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return c.clipsSince(ctx, broadcasterID, first, now.Add(-24*time.Hour))
	}
	return clips, nil
}

func (c *Client) clipsSince(ctx context.Context, broadcasterID string, first int, since time.Time) ([]Clip, error) {
	ctx, cancel := c.reqCtx(ctx)
	defer cancel()
	tok, err := c.TokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/clips", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", broadcasterID)
	q.Set("first", fmt.Sprintf("%d", first))
	q.Set("started_at", since.UTC().Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()
	c.setHeaders(req, tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, upstreamErr("clips request", err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamErr("clips request", statusOf(resp))
	}
	var body struct {
		Data []struct {
			ID              string  `json:"id"`
			Title           string  `json:"title"`
			URL             string  `json:"url"`
			EmbedURL        string  `json:"embed_url"`
			BroadcasterName string  `json:"broadcaster_name"`
			GameID          string  `json:"game_id"`
			ViewCount       int     `json:"view_count"`
			CreatedAt       string  `json:"created_at"`
			ThumbnailURL    string  `json:"thumbnail_url"`
			Duration        float64 `json:"duration"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, upstreamErr("clips decode", err)
	}
	out := make([]Clip, 0, len(body.Data))
	for _, cl := range body.Data {
		created, _ := time.Parse(time.RFC3339, cl.CreatedAt)
		out = append(out, Clip{
			ID:              cl.ID,
			Title:           cl.Title,
			BroadcasterName: cl.BroadcasterName,
			URL:             cl.URL,
			EmbedURL:        cl.EmbedURL,
			ThumbnailURL:    cl.ThumbnailURL,
			ViewCount:       cl.ViewCount,
			CreatedAt:       created,
			GameID:          cl.GameID,
		})
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request, tok string) {
	req.Header.Set("Client-Id", c.TokenSource.Identity().ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
}

func statusOf(resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
