package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"streammagic/discovery"
)

// textResult marshals v as indented JSON into a tool result.
func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func getInfoHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := deviceClient(host).GetInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get info from %s: %v", host, err)), nil
	}
	return textResult(info)
}

func getStateHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := deviceClient(host).GetState(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get state from %s: %v", host, err)), nil
	}
	return textResult(state)
}

func getNowPlayingHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ps, err := deviceClient(host).GetNowPlaying(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get now playing from %s: %v", host, err)), nil
	}
	return textResult(ps)
}

func listSourcesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sources, err := deviceClient(host).ListSources(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sources on %s: %v", host, err)), nil
	}
	return textResult(sources)
}

func setPowerHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	power, err := request.RequireBool("power")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid power parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).SetPower(ctx, power); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set power on %s: %v", host, err)), nil
	}
	if power {
		return mcp.NewToolResultText("Powered On"), nil
	}
	return mcp.NewToolResultText("Powered Off (Network Standby)"), nil
}

func setVolumeHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, err := request.RequireInt("level")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid level parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).SetVolume(ctx, level); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set volume on %s: %v", host, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Volume set to %d", level)), nil
}

func setMuteHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mute, err := request.RequireBool("mute")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid mute parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).SetMute(ctx, mute); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set mute on %s: %v", host, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Mute set to %t", mute)), nil
}

func controlPlaybackHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid action parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).ControlPlayback(ctx, action); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Playback control failed on %s: %v", host, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Executed %s", action)), nil
}

func setSourceHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceID, err := request.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid source_id parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).SetSource(ctx, sourceID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set source on %s: %v", host, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Source set to %s", sourceID)), nil
}

func playPresetHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preset, err := request.RequireInt("preset_number")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid preset_number parameter: %v", err)), nil
	}
	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := deviceClient(host).PlayPreset(ctx, preset); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to recall preset on %s: %v", host, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recalled preset %d", preset)), nil
}

func scanTimeout(request mcp.CallToolRequest) time.Duration {
	secs := request.GetInt("timeout", 3)
	if secs <= 0 {
		secs = 3
	}
	return time.Duration(secs) * time.Second
}

func discoverDevicesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := discovery.ListDevices(ctx, scanTimeout(request), logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Discovery failed: %v", err)), nil
	}

	// Remember where each renderer lives so play_stream_url can skip the
	// rescan later.
	if st != nil {
		for _, d := range devices {
			if err := st.SetDeviceLocation(d.Host, d.Location); err != nil {
				logger.Warn("caching device location failed", zap.Error(err))
			}
		}
	}

	if devices == nil {
		devices = []discovery.Device{}
	}
	return textResult(devices)
}

func discoverMediaServersHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	servers, err := discovery.ListMediaServers(ctx, scanTimeout(request), logger)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Discovery failed: %v", err)), nil
	}
	if servers == nil {
		servers = []discovery.Device{}
	}
	return textResult(servers)
}

func browseMediaServerHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := request.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid location parameter: %v", err)), nil
	}
	objectID := request.GetString("object_id", "0")
	startIndex := request.GetInt("start_index", 0)

	items, total, err := registry.Browse(ctx, location, objectID, startIndex)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Browse failed on %s: %v", location, err)), nil
	}

	if st != nil {
		if err := st.SetLastServerLocation(location); err != nil {
			logger.Warn("persisting server location failed", zap.Error(err))
		}
	}

	return textResult(map[string]any{
		"items": items,
		"total": total,
	})
}

func searchMediaServerHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	location, err := request.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid location parameter: %v", err)), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid query parameter: %v", err)), nil
	}

	items, err := registry.Search(ctx, location, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Search failed on %s: %v", location, err)), nil
	}
	return textResult(items)
}

func playStreamURLHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid url parameter: %v", err)), nil
	}
	metadata := request.GetString("metadata", "")

	host, err := resolveHost(request.GetString("host", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	location, err := resolveRendererLocation(ctx, host)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := registry.PlayURL(ctx, location, url, metadata); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Playback failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Playing %s", url)), nil
}

// resolveRendererLocation finds the UPnP description URL for a device
// host: the store cache first, then a short rescan.
func resolveRendererLocation(ctx context.Context, host string) (string, error) {
	if st != nil {
		if location, ok, err := st.DeviceLocation(host); err == nil && ok {
			return location, nil
		}
	}

	devices, err := discovery.ListDevices(ctx, 2*time.Second, logger)
	if err != nil {
		return "", fmt.Errorf("could not scan for UPnP service of %s: %v", host, err)
	}
	for _, d := range devices {
		if d.Host == host {
			if st != nil {
				if err := st.SetDeviceLocation(host, d.Location); err != nil {
					logger.Warn("caching device location failed", zap.Error(err))
				}
			}
			return d.Location, nil
		}
	}
	return "", fmt.Errorf("could not find UPnP service for %s; ensure it is on the same network", host)
}

// Resource handlers.

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func lastDeviceHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	host := ""
	if st != nil {
		if h, err := st.LastDeviceHost(); err == nil {
			host = h
		}
	}
	if host == "" {
		host = cfg.Device.Host
	}
	return jsonResource(request.Params.URI, map[string]string{"host": host})
}

func lastServerHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	location := ""
	if st != nil {
		if l, err := st.LastServerLocation(); err == nil {
			location = l
		}
	}
	return jsonResource(request.Params.URI, map[string]string{"location": location})
}

func deviceLocationsHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	locations := []map[string]string{}
	if st != nil {
		known, err := st.DeviceLocations()
		if err != nil {
			return nil, fmt.Errorf("failed to read device locations: %w", err)
		}
		for _, d := range known {
			locations = append(locations, map[string]string{
				"host":     d.Host,
				"location": d.Location,
			})
		}
	}
	return jsonResource(request.Params.URI, locations)
}
