// Package discovery performs time-bounded SSDP scans for StreamMagic
// renderers and DLNA media servers.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ssdpAddr = "239.255.255.250:1900"

	// SSDP search targets.
	TargetMediaRenderer = "urn:schemas-upnp-org:device:MediaRenderer:1"
	TargetMediaServer   = "urn:schemas-upnp-org:device:MediaServer:1"
)

// Device is one SSDP respondent.
type Device struct {
	Host     string `json:"host"`
	Location string `json:"location"`
	USN      string `json:"usn"`
	Server   string `json:"server"`
	Model    string `json:"model"`
	Name     string `json:"name"`
}

// ListDevices scans for MediaRenderer devices (StreamMagic units announce
// as renderers) for at most timeout.
func ListDevices(ctx context.Context, timeout time.Duration, logger *zap.Logger) ([]Device, error) {
	return Scan(ctx, TargetMediaRenderer, timeout, logger)
}

// ListMediaServers scans for DLNA media servers for at most timeout.
func ListMediaServers(ctx context.Context, timeout time.Duration, logger *zap.Logger) ([]Device, error) {
	return Scan(ctx, TargetMediaServer, timeout, logger)
}

// Scan sends one M-SEARCH for the given search target and collects unicast
// responses until the timeout elapses. Responses are de-duplicated by USN,
// falling back to host+location.
func Scan(ctx context.Context, target string, timeout time.Duration, logger *zap.Logger) ([]Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	mx := int(timeout / time.Second)
	if mx < 1 {
		mx = 1
	}
	msearch := fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n"+
		"\r\n", ssdpAddr, mx, target)

	if _, err := conn.WriteTo([]byte(msearch), dst); err != nil {
		return nil, fmt.Errorf("sending M-SEARCH: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var found []Device
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline reached; the scan window is over.
			break
		}
		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		dev, ok := parseResponse(string(buf[:n]), udpAddr.IP.String())
		if !ok {
			continue
		}
		logger.Debug("ssdp response",
			zap.String("host", dev.Host),
			zap.String("usn", dev.USN),
			zap.String("location", dev.Location))
		found = append(found, dev)
	}

	return dedupe(found), nil
}

// parseResponse turns one SSDP response datagram into a Device. Responses
// without a LOCATION header are ignored.
func parseResponse(message, host string) (Device, bool) {
	headers := parseHeaders(message)

	location := headers["LOCATION"]
	if location == "" {
		return Device{}, false
	}

	server := headers["SERVER"]
	if server == "" {
		server = "Unknown"
	}

	return Device{
		Host:     host,
		Location: rewriteLocationHost(location, host),
		USN:      headers["USN"],
		Server:   server,
		Model:    server,
		Name:     fmt.Sprintf("UPnP Device (%s)", host),
	}, true
}

// parseHeaders splits an SSDP message into header key/value pairs. Keys
// are upper-cased; the status line is skipped.
func parseHeaders(message string) map[string]string {
	headers := make(map[string]string)
	lines := strings.Split(message, "\r\n")
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return headers
}

// rewriteLocationHost replaces the hostname in a LOCATION URL with the
// address the response actually came from. Dockerized servers advertise
// their internal IP, which is unreachable from here.
func rewriteLocationHost(location, host string) string {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Hostname() == "" || parsed.Hostname() == host {
		return location
	}
	newNetloc := strings.Replace(parsed.Host, parsed.Hostname(), host, 1)
	return strings.Replace(location, parsed.Host, newNetloc, 1)
}

func dedupe(devices []Device) []Device {
	seen := make(map[string]struct{}, len(devices))
	unique := make([]Device, 0, len(devices))
	for _, d := range devices {
		key := d.USN
		if key == "" {
			key = d.Host + d.Location
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, d)
	}
	return unique
}
