// The streammagic MCP server exposes Cambridge Audio StreamMagic device
// control and DLNA media-server browsing as MCP tools over stdio.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"streammagic/client"
	"streammagic/config"
	"streammagic/dlna"
	"streammagic/logging"
	"streammagic/store"
)

// Shared state for the MCP server session.
var (
	cfg      *config.Config
	logger   *zap.Logger
	registry *dlna.Registry
	st       *store.Store

	deviceClientsMu sync.Mutex
	deviceClients   = make(map[string]*client.Client)
)

// deviceClient returns a cached control client for host.
func deviceClient(host string) *client.Client {
	deviceClientsMu.Lock()
	defer deviceClientsMu.Unlock()
	if c, ok := deviceClients[host]; ok {
		return c
	}
	c := client.New(host, logger)
	deviceClients[host] = c
	return c
}

// resolveHost picks the device host: explicit tool argument, then the
// configured/env default.
func resolveHost(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if cfg.Device.Host != "" {
		return cfg.Device.Host, nil
	}
	return "", fmt.Errorf("host must be provided or set in %s", config.EnvHost)
}

func main() {
	var err error
	cfg, err = config.Load(os.Getenv("STREAMMAGIC_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err = logging.InitLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry = dlna.NewRegistry(logger)

	st, err = store.Open(cfg.Store.Path)
	if err != nil {
		// The store only backs the two persisted prefs and the renderer
		// location cache; the tools still work without it.
		logger.Warn("session store unavailable", zap.Error(err))
		st = nil
	} else {
		defer st.Close()
	}

	mcpServer := server.NewMCPServer(
		"streammagic",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	registerDeviceTools(mcpServer)
	registerMediaTools(mcpServer)
	registerResources(mcpServer)

	logger.Info("starting MCP server",
		zap.String("default_host", cfg.Device.Host),
		zap.Bool("store", st != nil))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func registerDeviceTools(s *server.MCPServer) {
	hostDesc := mcp.Description("The IP address of the device. Optional if " + config.EnvHost + " is set.")

	s.AddTool(mcp.NewTool("get_info",
		mcp.WithDescription("Get device information (model, name, API version, etc.)."),
		mcp.WithString("host", hostDesc),
	), getInfoHandler)

	s.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get current state (power, source, volume, etc.)."),
		mcp.WithString("host", hostDesc),
	), getStateHandler)

	s.AddTool(mcp.NewTool("get_now_playing",
		mcp.WithDescription("Get current playback details (artist, track, album, art URL)."),
		mcp.WithString("host", hostDesc),
	), getNowPlayingHandler)

	s.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("Get a list of available input sources."),
		mcp.WithString("host", hostDesc),
	), listSourcesHandler)

	s.AddTool(mcp.NewTool("set_power",
		mcp.WithDescription("Turn the device on or off (network standby)."),
		mcp.WithBoolean("power",
			mcp.Required(),
			mcp.Description("True to turn ON, false to set to NETWORK standby."),
		),
		mcp.WithString("host", hostDesc),
	), setPowerHandler)

	s.AddTool(mcp.NewTool("set_volume",
		mcp.WithDescription("Set volume level (0-100)."),
		mcp.WithNumber("level",
			mcp.Required(),
			mcp.Description("Volume level between 0 and 100."),
		),
		mcp.WithString("host", hostDesc),
	), setVolumeHandler)

	s.AddTool(mcp.NewTool("set_mute",
		mcp.WithDescription("Mute or unmute the device."),
		mcp.WithBoolean("mute",
			mcp.Required(),
			mcp.Description("True to mute, false to unmute."),
		),
		mcp.WithString("host", hostDesc),
	), setMuteHandler)

	s.AddTool(mcp.NewTool("control_playback",
		mcp.WithDescription("Control playback (play, pause, stop, next, previous)."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of 'play', 'pause', 'stop', 'play_pause', 'next', 'previous'."),
		),
		mcp.WithString("host", hostDesc),
	), controlPlaybackHandler)

	s.AddTool(mcp.NewTool("set_source",
		mcp.WithDescription("Switch input source. Use list_sources to see available IDs."),
		mcp.WithString("source_id",
			mcp.Required(),
			mcp.Description("The ID of the source to switch to (e.g. 'AIRPLAY', 'CAST', 'SPDIF')."),
		),
		mcp.WithString("host", hostDesc),
	), setSourceHandler)

	s.AddTool(mcp.NewTool("play_preset",
		mcp.WithDescription("Recall a stored preset."),
		mcp.WithNumber("preset_number",
			mcp.Required(),
			mcp.Description("The preset number (1-99 usually)."),
		),
		mcp.WithString("host", hostDesc),
	), playPresetHandler)
}

func registerMediaTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("discover_devices",
		mcp.WithDescription("Scan the network for StreamMagic devices. Returns a JSON list of discovered devices."),
		mcp.WithNumber("timeout",
			mcp.Description("Scan duration in seconds (default 3)."),
		),
	), discoverDevicesHandler)

	s.AddTool(mcp.NewTool("discover_media_servers",
		mcp.WithDescription("Scan the network for DLNA media servers. Returns a JSON list of discovered servers."),
		mcp.WithNumber("timeout",
			mcp.Description("Scan duration in seconds (default 3)."),
		),
	), discoverMediaServersHandler)

	s.AddTool(mcp.NewTool("browse_media_server",
		mcp.WithDescription("Browse a DLNA media server container. Returns a JSON object with 'items' and 'total'."),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("The URL location of the media server (from discovery)."),
		),
		mcp.WithString("object_id",
			mcp.Description("The ID of the container to browse (default \"0\" for root)."),
		),
		mcp.WithNumber("start_index",
			mcp.Description("The starting index for pagination."),
		),
	), browseMediaServerHandler)

	s.AddTool(mcp.NewTool("search_media_server",
		mcp.WithDescription("Search for media on a DLNA media server by title, artist or album."),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("The URL location of the media server."),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search term."),
		),
	), searchMediaServerHandler)

	s.AddTool(mcp.NewTool("play_stream_url",
		mcp.WithDescription("Play a stream URL (e.g. from a DLNA server) on the Cambridge Audio device."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the media resource to play."),
		),
		mcp.WithString("metadata",
			mcp.Description("Optional DIDL-Lite metadata for the item (improves display on device)."),
		),
		mcp.WithString("host", mcp.Description("The IP address of the Cambridge Audio device.")),
	), playStreamURLHandler)
}

func registerResources(s *server.MCPServer) {
	s.AddResource(mcp.NewResource(
		"streammagic://prefs/device",
		"Last Device",
		mcp.WithResourceDescription("The last-selected StreamMagic device host."),
		mcp.WithMIMEType("application/json"),
	), lastDeviceHandler)

	s.AddResource(mcp.NewResource(
		"streammagic://prefs/server",
		"Last Media Server",
		mcp.WithResourceDescription("The last-used DLNA media-server location."),
		mcp.WithMIMEType("application/json"),
	), lastServerHandler)

	s.AddResource(mcp.NewResource(
		"streammagic://devices/locations",
		"Known Device Locations",
		mcp.WithResourceDescription("Cached UPnP description URLs per device host."),
		mcp.WithMIMEType("application/json"),
	), deviceLocationsHandler)
}
