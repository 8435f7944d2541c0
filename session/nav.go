package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Mode is the navigation state.
type Mode int

const (
	ModeServerList Mode = iota
	ModeBrowsing
	ModeSearching
)

func (m Mode) String() string {
	switch m {
	case ModeBrowsing:
		return "browsing"
	case ModeSearching:
		return "searching"
	default:
		return "server-list"
	}
}

// RootObjectID is the ContentDirectory root container.
const RootObjectID = "0"

var (
	errNoPlayableTracks = errors.New("no playable tracks")

	// ErrNoServer is returned when a browse or search is attempted with
	// no media server selected.
	ErrNoServer = errors.New("no media server selected")
)

// navSnapshot captures the navigation fields that roll back when a
// listing request fails.
type navSnapshot struct {
	mode     Mode
	location string
	stack    []Crumb
	query    string
}

func (s *Session) navSnapshotLocked() navSnapshot {
	return navSnapshot{
		mode:     s.mode,
		location: s.location,
		stack:    append([]Crumb(nil), s.stack...),
		query:    s.query,
	}
}

func (s *Session) restoreNavLocked(snap navSnapshot) {
	s.mode = snap.mode
	s.location = snap.location
	s.stack = snap.stack
	s.query = snap.query
}

// EnterServerList drops the browse state and returns to the server list.
// Discovery itself is the caller's concern.
func (s *Session) EnterServerList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterServerListLocked()
}

func (s *Session) enterServerListLocked() {
	s.mode = ModeServerList
	s.stack = nil
	s.query = ""
	s.items = nil
	s.total = 0
	s.emptyFolder = false
	s.gen++
}

// Browse navigates into a container on a media server and loads its first
// page. Browsing the node already on top of the stack refreshes it
// instead of growing the stack.
func (s *Session) Browse(ctx context.Context, location, nodeID, title string) error {
	if location == "" {
		return ErrNoServer
	}
	if nodeID == "" {
		nodeID = RootObjectID
	}

	s.mu.Lock()
	snap := s.navSnapshotLocked()
	if location != s.location {
		// Switching servers: the old breadcrumb is meaningless.
		s.location = location
		s.stack = nil
	}
	s.mode = ModeBrowsing
	s.query = ""
	if len(s.stack) == 0 || s.stack[len(s.stack)-1].ID != nodeID {
		s.stack = append(s.stack, Crumb{ID: nodeID, Title: title})
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if s.prefs != nil && location != snap.location {
		if err := s.prefs.SetLastServerLocation(location); err != nil {
			s.log.Warn("persisting server location failed", zap.Error(err))
		}
	}

	items, total, err := s.browser.Browse(ctx, location, nodeID, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Superseded by a newer navigation; drop this response.
		return nil
	}
	if err != nil {
		s.restoreNavLocked(snap)
		return err
	}
	s.lastServer = location
	s.items = items
	s.total = total
	s.emptyFolder = len(items) == 0
	return nil
}

// LoadMore appends the next page for the current folder. The affordance
// rule (total > rendered) is the caller's to respect; calling past the
// end simply appends nothing.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeBrowsing {
		s.mu.Unlock()
		return fmt.Errorf("load more outside of browsing")
	}
	location := s.location
	nodeID := RootObjectID
	if len(s.stack) > 0 {
		nodeID = s.stack[len(s.stack)-1].ID
	}
	offset := len(s.items)
	gen := s.gen
	s.mu.Unlock()

	items, total, err := s.browser.Browse(ctx, location, nodeID, offset)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	if err != nil {
		return err
	}
	if len(s.items) != offset {
		// A concurrent append landed first; this page would duplicate it.
		return nil
	}
	s.items = append(s.items, items...)
	s.total = total
	return nil
}

// Back pops the current folder and re-browses its parent. With one or
// fewer entries on the stack it returns to the server list instead; the
// returned bool is true in that case so the caller can re-run discovery.
func (s *Session) Back(ctx context.Context) (toServerList bool, err error) {
	s.mu.Lock()
	if len(s.stack) <= 1 {
		s.enterServerListLocked()
		s.mu.Unlock()
		return true, nil
	}
	snap := s.navSnapshotLocked()
	s.stack = s.stack[:len(s.stack)-1]
	target := s.stack[len(s.stack)-1]
	s.mode = ModeBrowsing
	s.query = ""
	s.gen++
	gen := s.gen
	location := s.location
	s.mu.Unlock()

	items, total, browseErr := s.browser.Browse(ctx, location, target.ID, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, nil
	}
	if browseErr != nil {
		s.restoreNavLocked(snap)
		return false, browseErr
	}
	s.items = items
	s.total = total
	s.emptyFolder = len(items) == 0
	return false, nil
}

// Search switches to search mode and loads one page of results for the
// query. Search results are single-page: no append pagination.
func (s *Session) Search(ctx context.Context, query string) error {
	s.mu.Lock()
	if s.location == "" {
		s.mu.Unlock()
		return ErrNoServer
	}
	snap := s.navSnapshotLocked()
	s.mode = ModeSearching
	s.query = query
	s.gen++
	gen := s.gen
	location := s.location
	s.mu.Unlock()

	results, err := s.browser.Search(ctx, location, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	if err != nil {
		s.restoreNavLocked(snap)
		return err
	}
	s.items = results
	s.total = len(results)
	s.emptyFolder = false
	return nil
}

// ClearSearch leaves search mode, restoring the folder on top of the path
// stack, or the server list when the stack is empty.
func (s *Session) ClearSearch(ctx context.Context) (toServerList bool, err error) {
	s.mu.Lock()
	if len(s.stack) == 0 {
		s.enterServerListLocked()
		s.mu.Unlock()
		return true, nil
	}
	snap := s.navSnapshotLocked()
	target := s.stack[len(s.stack)-1]
	s.mode = ModeBrowsing
	s.query = ""
	s.gen++
	gen := s.gen
	location := s.location
	s.mu.Unlock()

	items, total, browseErr := s.browser.Browse(ctx, location, target.ID, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, nil
	}
	if browseErr != nil {
		s.restoreNavLocked(snap)
		return false, browseErr
	}
	s.items = items
	s.total = total
	s.emptyFolder = len(items) == 0
	return false, nil
}
