package client

// Info describes the device itself.
type Info struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	UnitID     string `json:"unit_id"`
	APIVersion string `json:"api_version"`
}

// State is the zone state snapshot.
type State struct {
	Power         bool   `json:"power"`
	Source        string `json:"source"`
	VolumePercent int    `json:"volume_percent"`
	Mute          bool   `json:"mute"`
}

// Source is one selectable input.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayState is the playback snapshot. Metadata is nil when idle.
type PlayState struct {
	State    string    `json:"state"`
	Position int       `json:"position"`
	Metadata *Metadata `json:"metadata"`
}

// Metadata describes the current track.
type Metadata struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtURL     string `json:"art_url"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
	Bitrate    int    `json:"bitrate"`
	Lossless   bool   `json:"lossless"`
	Source     string `json:"source"`
	Duration   int    `json:"duration"`
}

// Idle reports whether the snapshot carries no active track.
func (p *PlayState) Idle() bool {
	return p == nil || p.Metadata == nil
}
