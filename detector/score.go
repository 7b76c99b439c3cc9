// Package detector implements the viral-moment pipeline: scoring, the
// detection orchestrator with its ordered data-source ladder, and the
// monitoring loop the display layer drives.
package detector

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/onnwee/clipradar/twitchapi"
)

// Scoring constants. Weights and normalization denominators are fixed, not
// configuration: the formula is the product contract.
const (
	viewerWeight    = 0.7
	chatWeight      = 0.3
	viewerNormDenom = 100_000
	chatNormDenom   = 200
)

// Chat activity simulation bounds: uniform in [30, 180).
const (
	chatActivityMin  = 30
	chatActivitySpan = 150
)

// Tier buckets moments for display coloring only; ranking ignores it.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Score computes the normalized virality score for one candidate pair.
// Monotonically non-decreasing in both inputs.
func Score(viewerCount, chatActivity int) float64 {
	return viewerWeight*(float64(viewerCount)/viewerNormDenom) +
		chatWeight*(float64(chatActivity)/chatNormDenom)
}

// FormatScore renders a score as a whole percentage, e.g. "73%".
func FormatScore(score float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(score*100)))
}

// ScoreTier buckets a score for display.
func ScoreTier(score float64) Tier {
	switch {
	case score >= 0.5:
		return TierHigh
	case score >= 0.3:
		return TierMedium
	default:
		return TierLow
	}
}

// ChatActivityFunc supplies the chat-rate sample for one candidate. Real chat
// metering is out of scope; the default draws from a seeded PRNG so a real
// provider (or a deterministic test stub) can be swapped in.
type ChatActivityFunc func() int

// DefaultChatActivity returns the simulated source. seed=0 seeds from time.
func DefaultChatActivity(seed uint64) ChatActivityFunc {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() int {
		return chatActivityMin + rng.IntN(chatActivitySpan)
	}
}

// Moment is the ranked output unit handed to the display layer.
type Moment struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	StreamerName  string    `json:"streamerName"`
	ViewerCount   int       `json:"viewerCount"`
	ChatActivity  int       `json:"chatActivity"`
	ViralScore    float64   `json:"viralScore"`
	ClipViewCount int       `json:"clipViewCount"`
	ClipURL       string    `json:"clipUrl"`
	EmbedURL      string    `json:"embedUrl,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	Timestamp     time.Time `json:"timestamp"`
	GameID        string    `json:"gameId,omitempty"`
	GameName      string    `json:"gameName,omitempty"`
}

// newMoment scores one (channel, clip) pair. Viewer count comes from the
// owning channel, not the clip's own view counter; category fields fall back
// to the channel's when the clip record omits them.
func newMoment(ch twitchapi.Channel, cl twitchapi.Clip, chatActivity int) Moment {
	gameID, gameName := cl.GameID, cl.GameName
	if gameID == "" {
		gameID = ch.GameID
	}
	if gameName == "" {
		gameName = ch.GameName
	}
	return Moment{
		ID:            cl.ID,
		Title:         cl.Title,
		StreamerName:  cl.BroadcasterName,
		ViewerCount:   ch.ViewerCount,
		ChatActivity:  chatActivity,
		ViralScore:    Score(ch.ViewerCount, chatActivity),
		ClipViewCount: cl.ViewCount,
		ClipURL:       cl.URL,
		EmbedURL:      cl.EmbedURL,
		ThumbnailURL:  cl.ThumbnailURL,
		Timestamp:     cl.CreatedAt,
		GameID:        gameID,
		GameName:      gameName,
	}
}

// rankMoments orders moments in place: clips from the local calendar today
// always rank before older ones, then by score descending. Stable sort.
func rankMoments(ms []Moment, now time.Time) {
	sort.SliceStable(ms, func(i, j int) bool {
		ti, tj := sameLocalDay(ms[i].Timestamp, now), sameLocalDay(ms[j].Timestamp, now)
		if ti != tj {
			return ti
		}
		return ms[i].ViralScore > ms[j].ViralScore
	})
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
