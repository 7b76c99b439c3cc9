package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func builtinTokens() *TokenSource {
	return NewTokenSource(Identity{Kind: IdentityBuiltIn, ClientID: BuiltInClientID})
}

func TestClient_TopChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams" {
			t.Errorf("path = %s, want /streams", r.URL.Path)
		}
		if got := r.URL.Query().Get("first"); got != "20" {
			t.Errorf("first = %s, want 20", got)
		}
		if got := r.URL.Query().Get("game_id"); got != "509658" {
			t.Errorf("game_id = %s, want 509658", got)
		}
		if got := r.Header.Get("Client-Id"); got != BuiltInClientID {
			t.Errorf("Client-Id = %s, want %s", got, BuiltInClientID)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer demo-app-token" {
			t.Errorf("Authorization = %s, want Bearer demo-app-token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"user_id":"123","user_name":"StreamerOne","game_id":"509658","game_name":"Just Chatting","viewer_count":42000,"started_at":"2026-08-31T10:00:00Z"},
			{"user_id":"456","user_name":"StreamerTwo","game_id":"509658","game_name":"Just Chatting","viewer_count":17000,"started_at":"2026-08-31T11:30:00Z"}
		]}`)
	}))
	defer server.Close()

	c := &Client{TokenSource: builtinTokens(), BaseURL: server.URL}
	channels, err := c.TopChannels(context.Background(), 20, "509658")
	if err != nil {
		t.Fatalf("TopChannels() error = %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("len(channels) = %d, want 2", len(channels))
	}
	first := channels[0]
	if first.ID != "123" || first.DisplayName != "StreamerOne" || first.ViewerCount != 42000 {
		t.Errorf("channel = %+v, want id=123 name=StreamerOne viewers=42000", first)
	}
	if first.GameName != "Just Chatting" {
		t.Errorf("GameName = %s, want Just Chatting", first.GameName)
	}
	if first.StartedAt.IsZero() {
		t.Error("StartedAt should be parsed")
	}
}

func TestClient_TopChannelsOmitsEmptyGameID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["game_id"]; ok {
			t.Error("game_id param should be omitted when empty")
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	c := &Client{TokenSource: builtinTokens(), BaseURL: server.URL}
	if _, err := c.TopChannels(context.Background(), 10, ""); err != nil {
		t.Fatalf("TopChannels() error = %v", err)
	}
}

func TestClient_TopChannelsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`)
	}))
	defer server.Close()

	c := &Client{TokenSource: builtinTokens(), BaseURL: server.URL}
	_, err := c.TopChannels(context.Background(), 20, "")
	if err == nil {
		t.Fatal("TopChannels() with 401 should return error")
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("error = %v, want wrapped StatusError 401", err)
	}
	if !IsAuthRejection(err) {
		t.Errorf("IsAuthRejection(%v) = false, want true", err)
	}
}

func TestClient_RecentClipsToday(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if r.URL.Path != "/clips" {
			t.Errorf("path = %s, want /clips", r.URL.Path)
		}
		if got := r.URL.Query().Get("broadcaster_id"); got != "123" {
			t.Errorf("broadcaster_id = %s, want 123", got)
		}
		created := time.Now().Add(-30 * time.Minute).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `{"data":[
			{"id":"ClipOne","title":"wild play","url":"https://clips.twitch.tv/ClipOne","embed_url":"https://clips.twitch.tv/embed?clip=ClipOne","broadcaster_name":"StreamerOne","game_id":"509658","view_count":900,"created_at":"%s","thumbnail_url":"https://example.com/thumb.jpg"}
		]}`, created)
	}))
	defer server.Close()

	c := &Client{TokenSource: builtinTokens(), BaseURL: server.URL}
	clips, err := c.RecentClips(context.Background(), "123", 5)
	if err != nil {
		t.Fatalf("RecentClips() error = %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 API call when today has clips, got %d", callCount)
	}
	if len(clips) != 1 {
		t.Fatalf("len(clips) = %d, want 1", len(clips))
	}
	cl := clips[0]
	if cl.ID != "ClipOne" || cl.Title != "wild play" || cl.ViewCount != 900 {
		t.Errorf("clip = %+v, want id=ClipOne title=wild play views=900", cl)
	}
	if cl.BroadcasterName != "StreamerOne" {
		t.Errorf("BroadcasterName = %s, want StreamerOne", cl.BroadcasterName)
	}
}

func TestClient_RecentClipsFallsBackTo24h(t *testing.T) {
	var windows []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, err := time.Parse(time.RFC3339, r.URL.Query().Get("started_at"))
		if err != nil {
			t.Errorf("started_at parse error = %v", err)
		}
		windows = append(windows, since)
		if len(windows) == 1 {
			// Nothing from today
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"OldClip","title":"yesterday","url":"u","broadcaster_name":"S","view_count":10,"created_at":"2026-08-30T23:00:00Z"}]}`)
	}))
	defer server.Close()

	c := &Client{TokenSource: builtinTokens(), BaseURL: server.URL}
	clips, err := c.RecentClips(context.Background(), "123", 5)
	if err != nil {
		t.Fatalf("RecentClips() error = %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 API calls (today + 24h retry), got %d", len(windows))
	}
	if !windows[1].Before(windows[0]) {
		t.Errorf("retry window %v should start before today window %v", windows[1], windows[0])
	}
	if len(clips) != 1 || clips[0].ID != "OldClip" {
		t.Errorf("clips = %+v, want the 24h-window clip", clips)
	}
}

func TestClient_RecentClipsEmptyBroadcaster(t *testing.T) {
	c := &Client{TokenSource: builtinTokens()}
	if _, err := c.RecentClips(context.Background(), "", 5); err == nil {
		t.Error("RecentClips() with empty broadcaster should return error")
	}
}
