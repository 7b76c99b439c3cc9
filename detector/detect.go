package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/clipradar/settings"
	"github.com/onnwee/clipradar/telemetry"
	"github.com/onnwee/clipradar/twitchapi"
)

// How many channels to fan out over and how many moments survive ranking.
const (
	topChannelCount = 20
	maxMoments      = 10
)

// Source is one rung of the data-source ladder. The orchestrator tries rungs
// in order and stops at the first that yields candidate pairs, which keeps the
// fallback policy inspectable instead of buried in nested error handling.
type Source interface {
	Name() string
	TopChannels(ctx context.Context, first int, gameID string) ([]twitchapi.Channel, error)
	RecentClips(ctx context.Context, channelID string, first int) ([]twitchapi.Clip, error)
}

// Options controls one detection cycle.
type Options struct {
	ForceSynthetic bool
	GameID         string
}

// Result is the outcome of one cycle.
type Result struct {
	Moments            []Moment  `json:"moments"`
	UsingSyntheticData bool      `json:"usingSyntheticData"`
	DetectedAt         time.Time `json:"detectedAt"`
}

// Detector orchestrates one detection cycle: resolve identity, pick the
// source ladder, fan out, score, rank, truncate.
type Detector struct {
	Store  settings.Store
	Tokens *twitchapi.TokenSource

	// The three ladder rungs. Live is the authenticated REST surface, Anon
	// the tokenless query surface, Synthetic the terminal generator.
	Live      Source
	Anon      Source
	Synthetic Source

	ChatActivity    ChatActivityFunc
	ClipsPerChannel int
}

// New wires a detector from a settings store with the default sources.
// requestTimeout bounds each upstream call (zero uses the client default).
func New(store settings.Store, requestTimeout time.Duration) *Detector {
	tokens := twitchapi.NewTokenSource(twitchapi.Identity{Kind: twitchapi.IdentityBuiltIn, ClientID: twitchapi.BuiltInClientID})
	return &Detector{
		Store:           store,
		Tokens:          tokens,
		Live:            &twitchapi.Client{TokenSource: tokens, Timeout: requestTimeout},
		Anon:            &twitchapi.GQLClient{ClientID: twitchapi.BuiltInClientID, Timeout: requestTimeout},
		Synthetic:       twitchapi.NewSyntheticSource(0),
		ChatActivity:    DefaultChatActivity(0),
		ClipsPerChannel: 5,
	}
}

// Detect runs one detection cycle. For the built-in identity every failure
// degrades down the ladder and the caller always gets a populated result; for
// user-supplied credentials failures propagate so misconfiguration is never
// masked by demo data.
func (d *Detector) Detect(ctx context.Context, opts Options) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "detector", "detect")
	defer span.End()
	if telemetry.DetectCycles != nil {
		telemetry.DetectCycles.Inc()
	}
	start := time.Now()
	defer func() {
		if telemetry.DetectDuration != nil {
			telemetry.DetectDuration.Observe(time.Since(start).Seconds())
		}
	}()

	identity, err := twitchapi.ResolveIdentity(ctx, d.Store)
	if err != nil {
		telemetry.RecordError(span, err)
		if telemetry.DetectFailures != nil {
			telemetry.DetectFailures.Inc()
		}
		return Result{}, err
	}
	// Keep the token cache aligned with the resolved identity; a settings
	// save between cycles must not reuse a stale-credential token.
	if d.Tokens.Identity() != identity {
		d.Tokens.SetIdentity(identity)
	}

	log := telemetry.LoggerWithCorr(ctx)
	for _, src := range d.ladder(identity, opts) {
		moments, err := d.detectVia(ctx, src, opts.GameID)
		if err != nil {
			authRejected := twitchapi.IsAuthRejection(err)
			telemetry.RecordUpstreamFailure(src.Name(), authRejected)
			if !identity.BuiltIn() {
				telemetry.RecordError(span, err)
				if telemetry.DetectFailures != nil {
					telemetry.DetectFailures.Inc()
				}
				return Result{}, err
			}
			log.Warn("source failed, trying next", slog.String("source", src.Name()), slog.Any("err", err))
			continue
		}
		if len(moments) == 0 {
			// Technically succeeded but nothing usable; same dual policy.
			if !identity.BuiltIn() {
				err := fmt.Errorf("%w: no clips found", twitchapi.ErrUpstreamUnavailable)
				telemetry.RecordError(span, err)
				if telemetry.DetectFailures != nil {
					telemetry.DetectFailures.Inc()
				}
				return Result{}, err
			}
			log.Info("source yielded no clips, trying next", slog.String("source", src.Name()))
			continue
		}

		res := Result{
			Moments:            moments,
			UsingSyntheticData: twitchapi.IsSynthetic(moments[0].ID),
			DetectedAt:         time.Now(),
		}
		d.record(res, src.Name())
		telemetry.SetSpanSuccess(span)
		return res, nil
	}

	// Ladder exhausted. Only reachable for the built-in identity when even the
	// synthetic rung was excluded (ForceSynthetic ladders always terminate).
	err = fmt.Errorf("%w: all sources exhausted", twitchapi.ErrUpstreamUnavailable)
	telemetry.RecordError(span, err)
	if telemetry.DetectFailures != nil {
		telemetry.DetectFailures.Inc()
	}
	return Result{}, err
}

// ladder returns the ordered source list for this cycle. User-supplied
// credentials get exactly one rung: their failures must surface, not degrade.
func (d *Detector) ladder(identity twitchapi.Identity, opts Options) []Source {
	if opts.ForceSynthetic {
		return compactSources(d.Synthetic)
	}
	if identity.BuiltIn() {
		return compactSources(d.Live, d.Anon, d.Synthetic)
	}
	return compactSources(d.Live)
}

func compactSources(srcs ...Source) []Source {
	out := srcs[:0]
	for _, s := range srcs {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// detectVia runs the fan-out pipeline against one source.
func (d *Detector) detectVia(ctx context.Context, src Source, gameID string) ([]Moment, error) {
	channels, err := src.TopChannels(ctx, topChannelCount, gameID)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, nil
	}

	perChannel := d.ClipsPerChannel
	if perChannel <= 0 {
		perChannel = 5
	}

	// Fire-all, await-all. A channel whose clip fetch fails contributes an
	// empty slice; one dead channel never sinks the batch.
	clipsByChannel := make([][]twitchapi.Clip, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, channelID string) {
			defer wg.Done()
			clips, err := src.RecentClips(ctx, channelID, perChannel)
			if err != nil {
				telemetry.LoggerWithCorr(ctx).Debug("clip fetch failed",
					slog.String("source", src.Name()),
					slog.String("channel_id", channelID),
					slog.Any("err", err))
				return
			}
			clipsByChannel[i] = clips
		}(i, ch.ID)
	}
	wg.Wait()

	moments := make([]Moment, 0, len(channels)*perChannel)
	for i, ch := range channels {
		for _, cl := range clipsByChannel[i] {
			moments = append(moments, newMoment(ch, cl, d.ChatActivity()))
		}
	}
	if len(moments) == 0 {
		return nil, nil
	}

	rankMoments(moments, time.Now())
	if len(moments) > maxMoments {
		moments = moments[:maxMoments]
	}
	return moments, nil
}

func (d *Detector) record(res Result, sourceName string) {
	if telemetry.MomentsGauge != nil {
		telemetry.MomentsGauge.Set(float64(len(res.Moments)))
	}
	if telemetry.SyntheticModeGauge != nil {
		if res.UsingSyntheticData {
			telemetry.SyntheticModeGauge.Set(1)
		} else {
			telemetry.SyntheticModeGauge.Set(0)
		}
	}
	if res.UsingSyntheticData && telemetry.SyntheticFallbacks != nil {
		telemetry.SyntheticFallbacks.Inc()
	}
	slog.Debug("detection cycle complete",
		slog.String("source", sourceName),
		slog.Int("moments", len(res.Moments)),
		slog.Bool("synthetic", res.UsingSyntheticData))
}
