package twitchapi

import "time"

// Channel is the normalized live-broadcast shape shared by the Helix and
// anonymous query surfaces (and the synthetic generator).
type Channel struct {
	ID          string
	DisplayName string
	ViewerCount int
	GameID      string
	GameName    string
	StartedAt   time.Time
}

// Clip is the normalized highlight shape. GameID/GameName are filled from the
// owning channel when the upstream response omits them.
type Clip struct {
	ID              string
	Title           string
	BroadcasterName string
	URL             string
	EmbedURL        string
	ThumbnailURL    string
	ViewCount       int
	CreatedAt       time.Time
	GameID          string
	GameName        string
}
