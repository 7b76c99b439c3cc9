package twitchapi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Synthetic id prefixes. Downstream code detects "is this demo data" purely by
// inspecting these prefixes, so live Twitch ids must never collide with them.
const (
	SyntheticChannelPrefix = "demo-"
	SyntheticClipPrefix    = "mock-"
)

// IsSynthetic reports whether an id belongs to generated demo data.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticClipPrefix) || strings.HasPrefix(id, SyntheticChannelPrefix)
}

// categorySamples drives the generator per category; inline conditionals on
// category ids turn into rows here.
type categorySamples struct {
	gameID    string
	gameName  string
	streamers []string
	titles    []string
}

var sampleCategories = []categorySamples{
	{
		gameID:   "509658",
		gameName: "Just Chatting",
		streamers: []string{
			"PixelPundit", "LateNightLena", "CouchCommentary", "TheDailyGrind",
			"RamblingRita", "HotTakeHarbor", "StreamsideChat", "MorningMuse",
		},
		titles: []string{
			"reacting to the wildest clips of the week",
			"story time gone completely off the rails",
			"chat decides my opinions for an hour",
			"unexpected guest appearance mid-stream",
		},
	},
	{
		gameID:   "26936",
		gameName: "Music",
		streamers: []string{
			"LoFiLarkspur", "SynthSorceress", "BasslineBarnaby", "AcousticAtlas",
			"MidnightMaestro", "VelvetVerse",
		},
		titles: []string{
			"improvised loop goes unexpectedly hard",
			"crowd request turns into a full jam",
			"string snaps at the worst possible moment",
			"first live performance of an unreleased track",
		},
	},
	{
		gameID:   "516575",
		gameName: "VALORANT",
		streamers: []string{
			"ClutchCascade", "AceAnomaly", "FlickFactory", "SmokeSignalSam",
			"PeekPressure", "WhiffWizard",
		},
		titles: []string{
			"1v5 clutch with two hp remaining",
			"the flick that broke the lobby",
			"economy round upset nobody saw coming",
			"overtime thriller decided by one pixel",
		},
	},
}

// samplesFor returns the category row matching gameID, or a pseudo-random
// default bucket when the filter is absent or unknown.
func samplesFor(gameID string, rng *rand.Rand) categorySamples {
	for _, cs := range sampleCategories {
		if cs.gameID == gameID {
			return cs
		}
	}
	return sampleCategories[rng.IntN(len(sampleCategories))]
}

// SyntheticSource generates internally consistent demo channels and clips.
// It is the terminal rung of the data-source ladder and never fails. The rng
// is injectable so tests can pin the output.
type SyntheticSource struct {
	Rand *rand.Rand

	mu       sync.Mutex
	channels map[string]Channel // id -> generated channel, for clip consistency
}

// NewSyntheticSource returns a generator seeded from seed (0 seeds from time).
func NewSyntheticSource(seed uint64) *SyntheticSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SyntheticSource{
		Rand:     rand.New(rand.NewPCG(seed, seed>>1)),
		channels: make(map[string]Channel),
	}
}

// Name identifies this source in logs and metrics.
func (s *SyntheticSource) Name() string { return "synthetic" }

// TopChannels generates n plausible live channels, honoring the category filter.
func (s *SyntheticSource) TopChannels(_ context.Context, first int, gameID string) ([]Channel, error) {
	if first <= 0 {
		first = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make([]Channel, 0, first)
	for i := 0; i < first; i++ {
		cs := samplesFor(gameID, s.Rand)
		name := cs.streamers[i%len(cs.streamers)]
		id := fmt.Sprintf("%s%s-%d", SyntheticChannelPrefix, strings.ToLower(name), i)
		ch := Channel{
			ID:          id,
			DisplayName: name,
			ViewerCount: 5000 + s.Rand.IntN(75000),
			GameID:      cs.gameID,
			GameName:    cs.gameName,
			StartedAt:   now.Add(-time.Duration(10+s.Rand.IntN(290)) * time.Minute),
		}
		s.channels[id] = ch
		out = append(out, ch)
	}
	return out, nil
}

// RecentClips generates clips whose broadcaster matches the generated channel.
func (s *SyntheticSource) RecentClips(_ context.Context, channelID string, first int) ([]Clip, error) {
	if first <= 0 {
		first = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		// Clips requested for a channel this source never produced; rebuild a
		// consistent one from the id so the pair still lines up.
		ch = s.channelFromID(channelID)
		s.channels[channelID] = ch
	}
	cs := samplesFor(ch.GameID, s.Rand)
	now := time.Now()
	out := make([]Clip, 0, first)
	for i := 0; i < first; i++ {
		slug := fmt.Sprintf("%s%s-%06d", SyntheticClipPrefix, strings.ToLower(ch.DisplayName), s.Rand.IntN(1000000))
		// Bias toward today; the rest spread over the trailing week.
		var created time.Time
		if s.Rand.IntN(100) < 60 {
			created = now.Add(-time.Duration(1+s.Rand.IntN(600)) * time.Minute)
		} else {
			created = now.Add(-time.Duration(24+s.Rand.IntN(6*24)) * time.Hour)
		}
		out = append(out, Clip{
			ID:              slug,
			Title:           cs.titles[s.Rand.IntN(len(cs.titles))],
			BroadcasterName: ch.DisplayName,
			URL:             "https://clips.twitch.tv/" + slug,
			EmbedURL:        "https://clips.twitch.tv/embed?clip=" + slug,
			ThumbnailURL:    fmt.Sprintf("https://clips-media-assets2.twitch.tv/%s-preview-480x272.jpg", slug),
			ViewCount:       40 + s.Rand.IntN(2460),
			CreatedAt:       created,
			GameID:          ch.GameID,
			GameName:        ch.GameName,
		})
	}
	return out, nil
}

func (s *SyntheticSource) channelFromID(id string) Channel {
	name := strings.TrimPrefix(id, SyntheticChannelPrefix)
	if i := strings.LastIndex(name, "-"); i > 0 {
		name = name[:i]
	}
	cs := samplesFor("", s.Rand)
	return Channel{
		ID:          id,
		DisplayName: name,
		ViewerCount: 5000 + s.Rand.IntN(75000),
		GameID:      cs.gameID,
		GameName:    cs.gameName,
		StartedAt:   time.Now().Add(-time.Hour),
	}
}
