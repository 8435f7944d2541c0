package bridge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"streammagic/discovery"
	"streammagic/session"
)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) scanTimeout(r *http.Request) time.Duration {
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return s.cfg.Discovery.Timeout
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := discovery.ListDevices(r.Context(), s.scanTimeout(r), s.log)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Prime the renderer-location cache so play requests skip the rescan.
	if s.store != nil {
		for _, d := range devices {
			if err := s.store.SetDeviceLocation(d.Host, d.Location); err != nil {
				s.log.Warn("caching device location failed", zap.Error(err))
			}
		}
	}
	if devices == nil {
		devices = []discovery.Device{}
	}
	writeJSON(w, devices)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := discovery.ListMediaServers(r.Context(), s.scanTimeout(r), s.log)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if servers == nil {
		servers = []discovery.Device{}
	}
	writeJSON(w, servers)
}

func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Host string `json:"host"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Host == "" {
		http.Error(w, "missing host", http.StatusBadRequest)
		return
	}
	s.session.SelectDevice(body.Host)
	writeJSON(w, map[string]string{"host": body.Host})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, _ := s.session.Snapshot()
	writeJSON(w, map[string]any{"state": state})
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	_, now := s.session.Snapshot()
	writeJSON(w, map[string]any{"now_playing": now})
}

func (s *Server) deviceHost(w http.ResponseWriter) (string, bool) {
	host := s.session.DeviceHost()
	if host == "" {
		http.Error(w, "no device selected; scan for devices first", http.StatusBadRequest)
		return "", false
	}
	return host, true
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percent int `json:"percent"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).SetVolume(r.Context(), body.Percent); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]int{"percent": body.Percent})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mute bool `json:"mute"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).SetMute(r.Context(), body.Mute); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]bool{"mute": body.Mute})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var body struct {
		On bool `json:"on"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).SetPower(r.Context(), body.On); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]bool{"on": body.On})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SourceID string `json:"source_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).SetSource(r.Context(), body.SourceID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]string{"source": body.SourceID})
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).ControlPlayback(r.Context(), body.Action); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]string{"action": body.Action})
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Preset int `json:"preset"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	host, ok := s.deviceHost(w)
	if !ok {
		return
	}
	if err := s.devices.Client(host).PlayPreset(r.Context(), body.Preset); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]int{"preset": body.Preset})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string `json:"location"`
		ID       string `json:"id"`
		Title    string `json:"title"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	location := body.Location
	if location == "" {
		location = s.session.View().Location
	}
	if err := s.session.Browse(r.Context(), location, body.ID, body.Title); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, s.session.View())
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	if err := s.session.LoadMore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, s.session.View())
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	toServerList, err := s.session.Back(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{
		"to_server_list": toServerList,
		"view":           s.session.View(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}
	if err := s.session.Search(r.Context(), body.Query); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, s.session.View())
}

func (s *Server) handleClearSearch(w http.ResponseWriter, r *http.Request) {
	toServerList, err := s.session.ClearSearch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]any{
		"to_server_list": toServerList,
		"view":           s.session.View(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.View())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	tracks, cursor := s.session.Queue()
	writeJSON(w, map[string]any{"tracks": tracks, "cursor": cursor})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var track session.Track
	if !decodeBody(w, r, &track) {
		return
	}
	if track.URL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	s.session.Enqueue(track)
	tracks, cursor := s.session.Queue()
	writeJSON(w, map[string]any{"tracks": tracks, "cursor": cursor})
}

func (s *Server) handlePlayAll(w http.ResponseWriter, r *http.Request) {
	if err := s.session.PlayFolder(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tracks, cursor := s.session.Queue()
	writeJSON(w, map[string]any{"tracks": tracks, "cursor": cursor})
}

func (s *Server) handlePlayImmediate(w http.ResponseWriter, r *http.Request) {
	var track session.Track
	if !decodeBody(w, r, &track) {
		return
	}
	if track.URL == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	if err := s.session.PlayImmediate(r.Context(), track); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]string{"playing": track.URL})
}
