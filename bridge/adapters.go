package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"streammagic/client"
	"streammagic/discovery"
	"streammagic/dlna"
	"streammagic/session"
	"streammagic/store"
)

// Devices caches one control client per device host, the way the session
// reuses media-server clients per location.
type Devices struct {
	mu      sync.Mutex
	clients map[string]*client.Client
	log     *zap.Logger
}

func NewDevices(logger *zap.Logger) *Devices {
	return &Devices{
		clients: make(map[string]*client.Client),
		log:     logger,
	}
}

// Client returns the control client for host, creating it on first use.
func (d *Devices) Client(host string) *client.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[host]; ok {
		return c
	}
	c := client.New(host, d.log)
	d.clients[host] = c
	return c
}

// State implements session.StateSource.
func (d *Devices) State(ctx context.Context, host string) (*session.DeviceState, error) {
	st, err := d.Client(host).GetState(ctx)
	if err != nil {
		return nil, err
	}
	return &session.DeviceState{
		Power:         st.Power,
		Source:        st.Source,
		VolumePercent: st.VolumePercent,
		Mute:          st.Mute,
	}, nil
}

// NowPlaying implements session.StateSource. A playing device yields a
// snapshot; an idle one yields nil.
func (d *Devices) NowPlaying(ctx context.Context, host string) (*session.NowPlaying, error) {
	ps, err := d.Client(host).GetNowPlaying(ctx)
	if err != nil {
		return nil, err
	}
	if ps.Idle() {
		return nil, nil
	}
	m := ps.Metadata
	return &session.NowPlaying{
		Title:      m.Title,
		Artist:     m.Artist,
		Album:      m.Album,
		ArtURL:     m.ArtURL,
		Codec:      m.Codec,
		SampleRate: m.SampleRate,
		BitDepth:   m.BitDepth,
		Bitrate:    m.Bitrate,
		Lossless:   m.Lossless,
		Source:     m.Source,
	}, nil
}

// mediaBrowser adapts the DLNA registry to session.Browser.
type mediaBrowser struct {
	registry *dlna.Registry
}

func (b *mediaBrowser) Browse(ctx context.Context, location, objectID string, startIndex int) ([]session.Node, int, error) {
	items, total, err := b.registry.Browse(ctx, location, objectID, startIndex)
	if err != nil {
		return nil, 0, err
	}
	return toNodes(items), total, nil
}

func (b *mediaBrowser) Search(ctx context.Context, location, query string) ([]session.Node, error) {
	items, err := b.registry.Search(ctx, location, query)
	if err != nil {
		return nil, err
	}
	return toNodes(items), nil
}

func toNodes(items []dlna.Item) []session.Node {
	nodes := make([]session.Node, len(items))
	for i, item := range items {
		nodes[i] = session.Node{
			ID:          item.ID,
			Title:       item.Title,
			IsContainer: item.IsContainer,
			ResURL:      item.ResURL,
			Artist:      item.Artist,
			Album:       item.Album,
			AlbumArt:    item.AlbumArt,
		}
	}
	return nodes
}

// renderer implements session.Player: it resolves the device's UPnP
// description URL (store cache first, then a short rescan) and drives the
// AVTransport service.
type renderer struct {
	registry *dlna.Registry
	store    *store.Store
	scanWait time.Duration
	log      *zap.Logger
}

func newRenderer(registry *dlna.Registry, st *store.Store, logger *zap.Logger) *renderer {
	return &renderer{
		registry: registry,
		store:    st,
		scanWait: 2 * time.Second,
		log:      logger,
	}
}

func (r *renderer) PlayURL(ctx context.Context, host, url, metadata string) error {
	if host == "" {
		return client.ErrNoHost
	}

	location, err := r.resolveLocation(ctx, host)
	if err != nil {
		return err
	}

	return r.registry.PlayURL(ctx, location, url, metadata)
}

func (r *renderer) resolveLocation(ctx context.Context, host string) (string, error) {
	if r.store != nil {
		if location, ok, err := r.store.DeviceLocation(host); err == nil && ok {
			return location, nil
		}
	}

	devices, err := discovery.ListDevices(ctx, r.scanWait, r.log)
	if err != nil {
		return "", fmt.Errorf("resolving renderer for %s: %w", host, err)
	}
	for _, d := range devices {
		if d.Host == host {
			if r.store != nil {
				if err := r.store.SetDeviceLocation(host, d.Location); err != nil {
					r.log.Warn("caching device location failed", zap.Error(err))
				}
			}
			return d.Location, nil
		}
	}
	return "", fmt.Errorf("no UPnP service found for %s; is it on this network?", host)
}
