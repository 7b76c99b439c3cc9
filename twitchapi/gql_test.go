package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGQLClient_TopChannels(t *testing.T) {
	var req gqlRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Client-ID"); got != BuiltInClientID {
			t.Errorf("Client-ID = %s, want %s", got, BuiltInClientID)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %s, want none on the anonymous surface", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request decode error = %v", err)
		}
		fmt.Fprint(w, `{"data":{"streams":{"edges":[
			{"node":{"viewersCount":55000,"createdAt":"2026-08-31T09:00:00Z","broadcaster":{"id":"123","displayName":"StreamerOne"},"game":{"id":"509658","displayName":"Just Chatting"}}}
		]}}}`)
	}))
	defer server.Close()

	g := &GQLClient{ClientID: BuiltInClientID, URL: server.URL}
	channels, err := g.TopChannels(context.Background(), 20, "")
	if err != nil {
		t.Fatalf("TopChannels() error = %v", err)
	}

	if req.OperationName != gqlBrowseStreamsOp {
		t.Errorf("operationName = %s, want %s", req.OperationName, gqlBrowseStreamsOp)
	}
	if req.Extensions.PersistedQuery.Version != 1 {
		t.Errorf("persistedQuery.version = %d, want 1", req.Extensions.PersistedQuery.Version)
	}
	if req.Extensions.PersistedQuery.SHA256Hash != gqlBrowseStreamsHash {
		t.Errorf("persistedQuery.sha256Hash = %s, want %s", req.Extensions.PersistedQuery.SHA256Hash, gqlBrowseStreamsHash)
	}
	if _, ok := req.Variables["gameID"]; ok {
		t.Error("gameID variable should be omitted when unset")
	}

	if len(channels) != 1 {
		t.Fatalf("len(channels) = %d, want 1", len(channels))
	}
	ch := channels[0]
	if ch.ID != "123" || ch.DisplayName != "StreamerOne" || ch.ViewerCount != 55000 {
		t.Errorf("channel = %+v, want id=123 name=StreamerOne viewers=55000", ch)
	}
	if ch.GameID != "509658" || ch.GameName != "Just Chatting" {
		t.Errorf("channel game = %s/%s, want 509658/Just Chatting", ch.GameID, ch.GameName)
	}
}

func TestGQLClient_RecentClips(t *testing.T) {
	var req gqlRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request decode error = %v", err)
		}
		fmt.Fprint(w, `{"data":{"user":{"clips":{"edges":[
			{"node":{"id":"","slug":"FunnyClipSlug","title":"the flick","url":"https://clips.twitch.tv/FunnyClipSlug","embedURL":"https://clips.twitch.tv/embed?clip=FunnyClipSlug","thumbnailURL":"https://example.com/t.jpg","viewCount":321,"createdAt":"2026-08-31T08:00:00Z","broadcaster":{"displayName":"StreamerOne"},"game":{"id":"516575","displayName":"VALORANT"}}}
		]}}}}`)
	}))
	defer server.Close()

	g := &GQLClient{ClientID: BuiltInClientID, URL: server.URL}
	clips, err := g.RecentClips(context.Background(), "123", 5)
	if err != nil {
		t.Fatalf("RecentClips() error = %v", err)
	}

	if req.OperationName != gqlClipsCardsOp {
		t.Errorf("operationName = %s, want %s", req.OperationName, gqlClipsCardsOp)
	}
	if req.Extensions.PersistedQuery.SHA256Hash != gqlClipsCardsHash {
		t.Errorf("persistedQuery.sha256Hash = %s, want %s", req.Extensions.PersistedQuery.SHA256Hash, gqlClipsCardsHash)
	}
	if got := req.Variables["id"]; got != "123" {
		t.Errorf("variables.id = %v, want 123", got)
	}

	if len(clips) != 1 {
		t.Fatalf("len(clips) = %d, want 1", len(clips))
	}
	cl := clips[0]
	if cl.ID != "FunnyClipSlug" {
		t.Errorf("ID = %s, want slug fallback FunnyClipSlug", cl.ID)
	}
	if cl.Title != "the flick" || cl.ViewCount != 321 || cl.BroadcasterName != "StreamerOne" {
		t.Errorf("clip = %+v, want title/views/broadcaster extracted", cl)
	}
	if cl.GameName != "VALORANT" {
		t.Errorf("GameName = %s, want VALORANT", cl.GameName)
	}
}

func TestGQLClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := &GQLClient{ClientID: BuiltInClientID, URL: server.URL}
	_, err := g.TopChannels(context.Background(), 20, "")
	if err == nil {
		t.Fatal("TopChannels() with 503 should return error")
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if IsAuthRejection(err) {
		t.Errorf("IsAuthRejection(%v) = true for an outage, want false", err)
	}
}

func TestGQLClient_RecentClipsEmptyBroadcaster(t *testing.T) {
	g := &GQLClient{ClientID: BuiltInClientID}
	if _, err := g.RecentClips(context.Background(), "", 5); err == nil {
		t.Error("RecentClips() with empty broadcaster should return error")
	}
}
