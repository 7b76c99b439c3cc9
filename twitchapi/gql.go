package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultGQLURL = "https://gql.twitch.tv/gql"

// Persisted query signatures for the anonymous surface. These are fixed,
// pre-registered hashes; the endpoint rejects ad hoc query text without them.
const (
	gqlBrowseStreamsOp   = "BrowsePage_Popular"
	gqlBrowseStreamsHash = "b32fa28ffd43e370b42de7d9e6e3b8a7ca310035fdbb83932150443d6b693e4d"
	gqlClipsCardsOp      = "ClipsCards__User"
	gqlClipsCardsHash    = "b73ad2bfaecfd30a9e6c28fada15bd97032c83ec77a0440766a56fe0bd632777"
)

// GQLClient reads through the anonymous persisted-query surface. Some public
// reads are only exposed here for callers without real credentials; requests
// carry the client id but no bearer token.
type GQLClient struct {
	ClientID   string
	URL        string // defaults to the public query endpoint
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (g *GQLClient) http() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

func (g *GQLClient) url() string {
	if g.URL != "" {
		return g.URL
	}
	return defaultGQLURL
}

// Name identifies this source in logs and metrics.
func (g *GQLClient) Name() string { return "gql" }

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    gqlExtensions  `json:"extensions"`
}

type gqlExtensions struct {
	PersistedQuery gqlPersistedQuery `json:"persistedQuery"`
}

type gqlPersistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

func (g *GQLClient) post(ctx context.Context, op, hash string, vars map[string]any, out any) error {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(gqlRequest{
		OperationName: op,
		Variables:     vars,
		Extensions:    gqlExtensions{PersistedQuery: gqlPersistedQuery{Version: 1, SHA256Hash: hash}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-ID", g.ClientID)
	resp, err := g.http().Do(req)
	if err != nil {
		return upstreamErr("gql "+op, err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return upstreamErr("gql "+op, statusOf(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstreamErr("gql "+op+" decode", err)
	}
	return nil
}

// TopChannels lists popular live streams via the anonymous surface. The nested
// response is extracted field by field into the normalized Channel shape.
func (g *GQLClient) TopChannels(ctx context.Context, first int, gameID string) ([]Channel, error) {
	if first <= 0 {
		first = 20
	}
	vars := map[string]any{"limit": first, "platformType": "all"}
	if gameID != "" {
		vars["gameID"] = gameID
	}
	var body struct {
		Data struct {
			Streams struct {
				Edges []struct {
					Node struct {
						ViewersCount int    `json:"viewersCount"`
						CreatedAt    string `json:"createdAt"`
						Broadcaster  struct {
							ID          string `json:"id"`
							DisplayName string `json:"displayName"`
						} `json:"broadcaster"`
						Game struct {
							ID          string `json:"id"`
							DisplayName string `json:"displayName"`
						} `json:"game"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"streams"`
		} `json:"data"`
	}
	if err := g.post(ctx, gqlBrowseStreamsOp, gqlBrowseStreamsHash, vars, &body); err != nil {
		return nil, err
	}
	edges := body.Data.Streams.Edges
	out := make([]Channel, 0, len(edges))
	for _, e := range edges {
		started, _ := time.Parse(time.RFC3339, e.Node.CreatedAt)
		out = append(out, Channel{
			ID:          e.Node.Broadcaster.ID,
			DisplayName: e.Node.Broadcaster.DisplayName,
			ViewerCount: e.Node.ViewersCount,
			GameID:      e.Node.Game.ID,
			GameName:    e.Node.Game.DisplayName,
			StartedAt:   started,
		})
	}
	return out, nil
}

// RecentClips lists a broadcaster's clips from the last day via the anonymous surface.
func (g *GQLClient) RecentClips(ctx context.Context, broadcasterID string, first int) ([]Clip, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	if first <= 0 {
		first = 5
	}
	vars := map[string]any{
		"id":       broadcasterID,
		"limit":    first,
		"criteria": map[string]any{"filter": "LAST_DAY"},
	}
	var body struct {
		Data struct {
			User struct {
				Clips struct {
					Edges []struct {
						Node struct {
							ID           string `json:"id"`
							Slug         string `json:"slug"`
							Title        string `json:"title"`
							URL          string `json:"url"`
							EmbedURL     string `json:"embedURL"`
							ThumbnailURL string `json:"thumbnailURL"`
							ViewCount    int    `json:"viewCount"`
							CreatedAt    string `json:"createdAt"`
							Broadcaster  struct {
								DisplayName string `json:"displayName"`
							} `json:"broadcaster"`
							Game struct {
								ID          string `json:"id"`
								DisplayName string `json:"displayName"`
							} `json:"game"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"clips"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := g.post(ctx, gqlClipsCardsOp, gqlClipsCardsHash, vars, &body); err != nil {
		return nil, err
	}
	edges := body.Data.User.Clips.Edges
	out := make([]Clip, 0, len(edges))
	for _, e := range edges {
		created, _ := time.Parse(time.RFC3339, e.Node.CreatedAt)
		id := e.Node.ID
		if id == "" {
			id = e.Node.Slug
		}
		out = append(out, Clip{
			ID:              id,
			Title:           e.Node.Title,
			BroadcasterName: e.Node.Broadcaster.DisplayName,
			URL:             e.Node.URL,
			EmbedURL:        e.Node.EmbedURL,
			ThumbnailURL:    e.Node.ThumbnailURL,
			ViewCount:       e.Node.ViewCount,
			CreatedAt:       created,
			GameID:          e.Node.Game.ID,
			GameName:        e.Node.Game.DisplayName,
		})
	}
	return out, nil
}
