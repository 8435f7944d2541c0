package session

import "fmt"

// View is the render-ready snapshot of the navigation state.
type View struct {
	Mode       string  `json:"mode"`
	Location   string  `json:"location,omitempty"`
	LastServer string  `json:"last_server,omitempty"`
	Breadcrumb []Crumb `json:"breadcrumb"`
	Query      string  `json:"query,omitempty"`
	Items      []Node  `json:"items"`
	Total      int     `json:"total"`

	EmptyFolder bool `json:"empty_folder"`
	NoResults   bool `json:"no_results"`

	LoadMore      bool   `json:"load_more"`
	LoadMoreLabel string `json:"load_more_label,omitempty"`

	PlayAllCount int    `json:"play_all_count"`
	PlayAllLabel string `json:"play_all_label,omitempty"`
}

// View returns the current navigation view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Mode:        s.mode.String(),
		Location:    s.location,
		LastServer:  s.lastServer,
		Breadcrumb:  append([]Crumb(nil), s.stack...),
		Query:       s.query,
		Items:       append([]Node(nil), s.items...),
		Total:       s.total,
		EmptyFolder: s.mode == ModeBrowsing && s.emptyFolder,
		NoResults:   s.mode == ModeSearching && len(s.items) == 0,
	}

	if s.mode == ModeBrowsing && s.total > len(s.items) {
		v.LoadMore = true
		v.LoadMoreLabel = fmt.Sprintf("Load More (%d / %d)", len(s.items), s.total)
	}

	playable := len(s.playableTracksLocked())
	v.PlayAllCount = playable
	if playable > 1 {
		v.PlayAllLabel = fmt.Sprintf("Play All (%d)", playable)
	}

	return v
}
