// Package session holds the single-session state behind the dashboard:
// the browse path stack, the playback queue with its cursor, and the
// latest device snapshots. All mutation is serialized behind one mutex;
// network calls happen outside the lock and their results are checked
// against a navigation generation tag before being applied, so a response
// that arrives after the user navigated away is discarded.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// advanceSettle is how long an in-flight queue advance suppresses further
// idle-driven advances while the device catches up to the new track.
const advanceSettle = 2 * time.Second

// Node is one entry of a browse or search result page.
type Node struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsContainer bool   `json:"is_container"`
	ResURL      string `json:"res_url,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArt    string `json:"album_art,omitempty"`
}

// Crumb is one breadcrumb entry on the path stack.
type Crumb struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Track is one playback-queue entry.
type Track struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Metadata string `json:"metadata,omitempty"`
}

// DeviceState mirrors the device's zone state.
type DeviceState struct {
	Power         bool   `json:"power"`
	Source        string `json:"source"`
	VolumePercent int    `json:"volume_percent"`
	Mute          bool   `json:"mute"`
}

// NowPlaying is the current-track snapshot. A nil *NowPlaying means idle.
type NowPlaying struct {
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtURL     string `json:"art_url,omitempty"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitDepth   int    `json:"bit_depth,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Lossless   bool   `json:"lossless"`
	Source     string `json:"source,omitempty"`
}

// Browser lists and searches a media server.
type Browser interface {
	Browse(ctx context.Context, location, objectID string, startIndex int) ([]Node, int, error)
	Search(ctx context.Context, location, query string) ([]Node, error)
}

// Player starts playback of a stream URL on the device at host.
type Player interface {
	PlayURL(ctx context.Context, host, url, metadata string) error
}

// Prefs persists the two strings that survive a session.
type Prefs interface {
	LastDeviceHost() (string, error)
	SetLastDeviceHost(host string) error
	LastServerLocation() (string, error)
	SetLastServerLocation(location string) error
}

// Session owns all single-session state.
type Session struct {
	mu      sync.Mutex
	log     *zap.Logger
	browser Browser
	player  Player
	prefs   Prefs

	deviceHost string
	lastServer string

	mode        Mode
	location    string
	stack       []Crumb
	query       string
	items       []Node
	total       int
	emptyFolder bool
	gen         uint64

	queue        []Track
	cursor       int
	advancing    bool
	advanceTimer *time.Timer

	state *DeviceState
	now   *NowPlaying
}

// New creates a session, restoring the persisted device host and server
// location when prefs is non-nil.
func New(browser Browser, player Player, prefs Prefs, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		log:     logger,
		browser: browser,
		player:  player,
		prefs:   prefs,
		mode:    ModeServerList,
		cursor:  -1,
	}
	if prefs != nil {
		if host, err := prefs.LastDeviceHost(); err == nil && host != "" {
			s.deviceHost = host
		}
		if loc, err := prefs.LastServerLocation(); err == nil && loc != "" {
			s.lastServer = loc
		}
	}
	return s
}

// DeviceHost returns the currently selected device host ("" when none).
func (s *Session) DeviceHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceHost
}

// SelectDevice selects a device host and persists it. The previous
// device's snapshots are dropped.
func (s *Session) SelectDevice(host string) {
	s.mu.Lock()
	changed := host != s.deviceHost
	s.deviceHost = host
	if changed {
		s.state = nil
		s.now = nil
	}
	s.mu.Unlock()

	if s.prefs != nil && host != "" {
		if err := s.prefs.SetLastDeviceHost(host); err != nil {
			s.log.Warn("persisting device host failed", zap.Error(err))
		}
	}
}

// Snapshot returns the latest device state and now-playing snapshots.
// Either may be nil.
func (s *Session) Snapshot() (*DeviceState, *NowPlaying) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.now
}

// ApplyPoll stores the poll results (replacing snapshots wholesale) and
// runs one queue-advance evaluation when the device is idle. Called once
// per poll tick.
func (s *Session) ApplyPoll(ctx context.Context, state *DeviceState, now *NowPlaying) {
	s.mu.Lock()
	s.state = state
	s.now = now
	idle := now == nil
	if !idle {
		// The device is playing; any pending advance has landed.
		s.clearAdvanceLocked()
	}
	shouldAdvance := idle && s.cursor >= 0 && !s.advancing
	s.mu.Unlock()

	if shouldAdvance {
		if err := s.Advance(ctx); err != nil {
			s.log.Warn("queue advance failed", zap.Error(err))
		}
	}
}

// Enqueue appends a track to the queue without touching the cursor.
func (s *Session) Enqueue(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, t)
	s.log.Info("track enqueued", zap.String("title", t.Title), zap.Int("queue_len", len(s.queue)))
}

// PlayAll replaces the queue with the given tracks, sets the cursor to the
// first and starts it as a queue-driven play.
func (s *Session) PlayAll(ctx context.Context, tracks []Track) error {
	if len(tracks) == 0 {
		return errNoPlayableTracks
	}

	s.mu.Lock()
	s.queue = append([]Track(nil), tracks...)
	s.cursor = 0
	// Guard the window between the play request and the device actually
	// reporting playback, or the next idle poll would skip the first track.
	s.beginAdvanceLocked()
	first := s.queue[0]
	host := s.deviceHost
	s.mu.Unlock()

	s.log.Info("queue replaced", zap.Int("tracks", len(tracks)), zap.String("first", first.Title))
	return s.playTrack(ctx, host, first, true)
}

// PlayFolder plays every playable track loaded for the current folder.
func (s *Session) PlayFolder(ctx context.Context) error {
	s.mu.Lock()
	tracks := s.playableTracksLocked()
	s.mu.Unlock()
	return s.PlayAll(ctx, tracks)
}

// PlayImmediate abandons the queue and plays one track directly.
func (s *Session) PlayImmediate(ctx context.Context, t Track) error {
	s.mu.Lock()
	s.queue = nil
	s.cursor = -1
	s.clearAdvanceLocked()
	host := s.deviceHost
	s.mu.Unlock()

	return s.playTrack(ctx, host, t, false)
}

// Advance moves the cursor to the next queued track and plays it. At the
// last track the queue is cleared instead. A no-op while an advance is
// already in flight or when no queue is active.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	if s.cursor < 0 || len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.advancing {
		s.mu.Unlock()
		return nil
	}
	if s.cursor >= len(s.queue)-1 {
		s.queue = nil
		s.cursor = -1
		s.mu.Unlock()
		s.log.Info("queue finished")
		return nil
	}
	s.cursor++
	next := s.queue[s.cursor]
	s.beginAdvanceLocked()
	host := s.deviceHost
	pos := s.cursor
	total := len(s.queue)
	s.mu.Unlock()

	s.log.Info("queue advanced",
		zap.Int("position", pos+1),
		zap.Int("of", total),
		zap.String("title", next.Title))
	return s.playTrack(ctx, host, next, true)
}

// Queue returns a copy of the queue and the cursor position.
func (s *Session) Queue() ([]Track, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.queue...), s.cursor
}

func (s *Session) playTrack(ctx context.Context, host string, t Track, queueDriven bool) error {
	err := s.player.PlayURL(ctx, host, t.URL, t.Metadata)
	if err != nil {
		s.log.Warn("play request failed",
			zap.String("url", t.URL),
			zap.Bool("queue_driven", queueDriven),
			zap.Error(err))
		return err
	}
	return nil
}

// beginAdvanceLocked marks an advance in flight and arms the settle timer
// that releases the flag if no poll tick confirms playback first.
func (s *Session) beginAdvanceLocked() {
	s.advancing = true
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
	}
	s.advanceTimer = time.AfterFunc(advanceSettle, func() {
		s.mu.Lock()
		s.advancing = false
		s.mu.Unlock()
	})
}

func (s *Session) clearAdvanceLocked() {
	s.advancing = false
	if s.advanceTimer != nil {
		s.advanceTimer.Stop()
		s.advanceTimer = nil
	}
}

// playableTracksLocked aggregates the loaded folder's playable leaves.
// Folder aggregation only exists while browsing; search results and the
// server list never form a play-all set.
func (s *Session) playableTracksLocked() []Track {
	if s.mode != ModeBrowsing {
		return nil
	}
	var tracks []Track
	for _, n := range s.items {
		if n.IsContainer || n.ResURL == "" {
			continue
		}
		tracks = append(tracks, Track{URL: n.ResURL, Title: n.Title})
	}
	return tracks
}
