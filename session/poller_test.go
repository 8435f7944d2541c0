package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeSource struct {
	mu    sync.Mutex
	state *DeviceState
	now   *NowPlaying
	err   error
	calls int
}

func (f *fakeSource) State(ctx context.Context, host string) (*DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeSource) NowPlaying(ctx context.Context, host string) (*NowPlaying, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.now, nil
}

func (f *fakeSource) setPlaying(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = &NowPlaying{Title: title}
}

func (f *fakeSource) setIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = nil
}

func TestTickWithoutDeviceSkipsPolling(t *testing.T) {
	s := New(nil, &fakePlayer{}, nil, nil)
	src := &fakeSource{}
	p := NewPoller(s, src, 0, nil)

	p.Tick(context.Background())

	if src.calls != 0 {
		t.Errorf("source polled %d times, want 0 with no device", src.calls)
	}
}

func TestTickStoresSnapshots(t *testing.T) {
	s := New(nil, &fakePlayer{}, nil, nil)
	s.SelectDevice("192.168.1.50")
	src := &fakeSource{
		state: &DeviceState{Power: true, Source: "MEDIA_PLAYER", VolumePercent: 40},
		now:   &NowPlaying{Title: "One", Artist: "Someone"},
	}
	p := NewPoller(s, src, 0, nil)

	p.Tick(context.Background())

	state, now := s.Snapshot()
	if state == nil || !state.Power || state.VolumePercent != 40 {
		t.Errorf("state = %+v", state)
	}
	if now == nil || now.Title != "One" {
		t.Errorf("now = %+v", now)
	}
}

func TestTickFailureYieldsIdleSnapshot(t *testing.T) {
	s := New(nil, &fakePlayer{}, nil, nil)
	s.SelectDevice("192.168.1.50")
	src := &fakeSource{err: errors.New("connection refused")}
	p := NewPoller(s, src, 0, nil)

	p.Tick(context.Background())

	state, now := s.Snapshot()
	if state != nil || now != nil {
		t.Errorf("state=%+v now=%+v, want both nil on poll failure", state, now)
	}
}

func TestTicksDriveQueueAdvance(t *testing.T) {
	player := &fakePlayer{}
	s := New(nil, player, nil, nil)
	s.SelectDevice("192.168.1.50")
	src := &fakeSource{state: &DeviceState{Power: true}}
	p := NewPoller(s, src, 0, nil)

	tracks := []Track{
		{URL: "http://nas/1.flac", Title: "One"},
		{URL: "http://nas/2.flac", Title: "Two"},
	}
	if err := s.PlayAll(context.Background(), tracks); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}

	src.setPlaying("One")
	p.Tick(context.Background())
	src.setIdle()
	p.Tick(context.Background())

	_, cursor := s.Queue()
	if cursor != 1 {
		t.Errorf("cursor = %d, want 1 after the idle tick", cursor)
	}
	if got := player.played(); len(got) != 2 || got[1] != "http://nas/2.flac" {
		t.Errorf("played = %v", got)
	}
}
