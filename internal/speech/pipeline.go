// Package speech reads assistant replies aloud. A reply is split into
// sentences that are synthesized one after another and played in order,
// the next sentence being synthesized while the current one plays.
package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/carlos-ai/carlos/internal/audio"
	"github.com/carlos-ai/carlos/internal/cache"
	"github.com/carlos-ai/carlos/internal/queue"
	"github.com/carlos-ai/carlos/internal/sentence"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/carlos-ai/carlos/internal/tts"
	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
)

// maxSuggestions bounds the "did you mean" list of an unknown voice.
const maxSuggestions = 3

// State is what the pipeline is currently doing.
type State int32

const (
	StateIdle State = iota
	StateSynthesizing
	StatePlaying
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Synthesizer turns text into encoded audio. *tts.Client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) ([]byte, error)
	Voices(ctx context.Context) ([]string, error)
}

// Settings are the voice parameters sent with every request.
type Settings struct {
	Voice    string
	Language string
	Speed    float64
	Pitch    float64
	Volume   float64
}

// Stats counts what the pipeline has done since it was created.
type Stats struct {
	Utterances int64
	Chunks     int64
	CacheHits  int64
	Failures   int64
}

// Options configures a Pipeline.
type Options struct {
	Synthesizer Synthesizer

	// Player is nil when no audio device could be opened.
	Player audio.Player

	// Cache is optional.
	Cache *cache.Cache

	// Available reports whether the TTS server can be reached. Nil means
	// always.
	Available func(ctx context.Context) bool

	Parser    *sentence.Parser
	Settings  Settings
	Lookahead int
	Muted     bool
	Logger    *log.Logger
}

// Pipeline synthesizes and plays speech. Its methods are safe for
// concurrent use.
type Pipeline struct {
	synth     Synthesizer
	player    audio.Player
	cache     *cache.Cache
	available func(ctx context.Context) bool
	parser    *sentence.Parser
	lookahead int
	logger    *log.Logger

	muted atomic.Bool
	state atomic.Int32

	mu       sync.RWMutex
	settings Settings

	// opMu serializes Speak, Stop and Close.
	opMu   sync.Mutex
	queue  *queue.Queue[tts.Request]
	cancel context.CancelFunc
	done   chan struct{}

	utterances atomic.Int64
	chunks     atomic.Int64
	cacheHits  atomic.Int64
	failures   atomic.Int64
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		synth:     opts.Synthesizer,
		player:    opts.Player,
		cache:     opts.Cache,
		available: opts.Available,
		parser:    opts.Parser,
		lookahead: opts.Lookahead,
		logger:    opts.Logger,
		settings:  opts.Settings,
		queue:     queue.New[tts.Request](0),
	}
	if p.parser == nil {
		p.parser = sentence.New()
	}
	if p.lookahead < 1 {
		p.lookahead = 1
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	p.muted.Store(opts.Muted)
	if p.player != nil {
		p.player.SetVolume(opts.Settings.Volume)
	}
	return p
}

// Speak reads text aloud in the background, interrupting anything still
// being spoken. It reports false when speech is unavailable; the reason is
// logged. Muted speech and text with nothing to say count as success.
func (p *Pipeline) Speak(text string) bool {
	if p.muted.Load() {
		return true
	}
	chunks := p.parser.Chunks(text)
	if len(chunks) == 0 {
		return true
	}
	if p.player == nil || p.synth == nil {
		p.logger.Warn("Speech is unavailable: no audio output")
		return false
	}
	if p.available != nil && !p.available(context.Background()) {
		p.logger.Warn("Speech is unavailable: TTS server is not reachable")
		return false
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.stopLocked()

	settings := p.Settings()
	reqs := make([]tts.Request, len(chunks))
	for i, c := range chunks {
		reqs[i] = tts.Request{
			Text:     c,
			Voice:    settings.Voice,
			Language: settings.Language,
			Speed:    settings.Speed,
			Pitch:    settings.Pitch,
		}
	}
	// A synthesis call left over from a stopped utterance must not take
	// this one's sentences.
	q := queue.New[tts.Request](0)
	if err := q.EnqueueBatch(reqs); err != nil {
		p.logger.Warn("Could not queue speech", "err", err)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.queue = q
	p.cancel = cancel
	p.done = make(chan struct{})
	p.utterances.Add(1)
	p.state.Store(int32(StateSynthesizing))
	go p.run(ctx, cancel, q, p.done)
	return true
}

// Stop cancels synthesis and playback and discards queued sentences. No
// audio plays once it returns. Stopping an idle pipeline does nothing.
func (p *Pipeline) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLocked()
}

func (p *Pipeline) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.state.Store(int32(StateCancelled))
	p.cancel()
	if n := p.queue.Clear(); n > 0 {
		p.logger.Debug("Discarded queued speech", "chunks", n)
	}
	<-p.done
	p.cancel, p.done = nil, nil
	p.state.Store(int32(StateIdle))
}

// Wait blocks until the current speech finishes or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.opMu.Lock()
	done := p.done
	p.opMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type synthesized struct {
	text string
	clip audio.Clip
}

// run plays clips in order while produce synthesizes ahead of it. Once ctx
// is cancelled it returns without waiting for a synthesis call still in
// flight; produce drops that result.
func (p *Pipeline) run(ctx context.Context, cancel context.CancelFunc, q *queue.Queue[tts.Request], done chan struct{}) {
	defer close(done)
	defer cancel()
	defer func() {
		if ctx.Err() == nil || State(p.state.Load()) != StateCancelled {
			p.state.Store(int32(StateIdle))
		}
	}()

	ready := make(chan synthesized, p.lookahead)
	go p.produce(ctx, q, ready)

	for {
		var item synthesized
		select {
		case <-ctx.Done():
			return
		case next, ok := <-ready:
			if !ok {
				return
			}
			item = next
		}
		if ctx.Err() != nil {
			return
		}

		p.state.Store(int32(StatePlaying))
		p.logger.Debug("Speaking", "text", item.text, "duration", item.clip.Duration())
		pb, err := p.player.Play(ctx, item.clip)
		if err != nil {
			p.failures.Add(1)
			p.logger.Warn("Playback failed", "err", err)
			return
		}
		select {
		case <-pb.Done():
		case <-ctx.Done():
			pb.Stop()
		}
		if err := pb.Err(); err != nil {
			p.failures.Add(1)
			p.logger.Warn("Playback failed", "err", err)
			return
		}
		if ctx.Err() == nil {
			p.chunks.Add(1)
			p.state.Store(int32(StateSynthesizing))
		}
	}
}

// produce synthesizes queued requests until the queue is empty or ctx is
// cancelled. A sentence that fails to decode is skipped. When the server
// stops answering the rest of the utterance is dropped; what was already
// synthesized still plays.
func (p *Pipeline) produce(ctx context.Context, q *queue.Queue[tts.Request], ready chan<- synthesized) {
	defer close(ready)

	for ctx.Err() == nil {
		req, ok := q.TryDequeue()
		if !ok {
			return
		}

		data, err := p.synthesize(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.failures.Add(1)
			p.logger.Warn("Speech synthesis failed", "err", err)
			if errors.Is(err, service.ErrUnavailable) || errors.Is(err, service.ErrTimeout) {
				q.Clear()
				return
			}
			continue
		}

		clip, err := audio.Decode(data)
		if err != nil {
			p.failures.Add(1)
			p.logger.Warn("Could not decode synthesized audio", "err", err, "bytes", len(data))
			continue
		}

		select {
		case ready <- synthesized{text: req.Text, clip: clip}:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if p.cache == nil {
		return p.synth.Synthesize(ctx, req)
	}
	key := cache.Key(req.Text, req.Voice, req.Language, req.Speed, req.Pitch)
	if data, ok := p.cache.Get(key); ok {
		p.cacheHits.Add(1)
		return data, nil
	}
	data, err := p.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, data)
	return data, nil
}

// Mute silences future calls to Speak. Speech already playing continues.
func (p *Pipeline) Mute() { p.muted.Store(true) }

// Unmute re-enables speech.
func (p *Pipeline) Unmute() { p.muted.Store(false) }

// Muted reports whether speech is muted.
func (p *Pipeline) Muted() bool { return p.muted.Load() }

// State returns what the pipeline is currently doing.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Utterances: p.utterances.Load(),
		Chunks:     p.chunks.Load(),
		CacheHits:  p.cacheHits.Load(),
		Failures:   p.failures.Load(),
	}
}

// Settings returns the current voice settings.
func (p *Pipeline) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Voice returns the current voice name.
func (p *Pipeline) Voice() string {
	return p.Settings().Voice
}

// SetSettings changes speed, pitch and volume for future sentences. The
// volume also applies to audio already playing.
func (p *Pipeline) SetSettings(speed, pitch, volume float64) {
	p.mu.Lock()
	p.settings.Speed = speed
	p.settings.Pitch = pitch
	p.settings.Volume = volume
	p.mu.Unlock()

	if p.player != nil {
		p.player.SetVolume(volume)
	}
}

// Voices lists the voices offered by the TTS server.
func (p *Pipeline) Voices(ctx context.Context) ([]string, error) {
	if p.synth == nil {
		return nil, service.Unavailable(service.NameTTS, "speech is disabled", nil)
	}
	return p.synth.Voices(ctx)
}

// SetVoice selects the voice matching name, ignoring case, and stores the
// server's spelling of it. An unknown name leaves the voice unchanged and
// returns an *InvalidVoiceError.
func (p *Pipeline) SetVoice(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	voices, err := p.Voices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		if strings.EqualFold(v, name) {
			p.mu.Lock()
			p.settings.Voice = v
			p.mu.Unlock()
			p.logger.Debug("Voice changed", "voice", v)
			return nil
		}
	}
	return &InvalidVoiceError{Name: name, Suggestions: suggest(name, voices)}
}

func suggest(name string, voices []string) []string {
	var out []string
	for _, m := range fuzzy.Find(strings.ToLower(name), voices) {
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// Close stops speech and releases the audio device.
func (p *Pipeline) Close() error {
	p.Stop()
	var errs []error
	if p.player != nil {
		errs = append(errs, p.player.Close())
	}
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	return errors.Join(errs...)
}
