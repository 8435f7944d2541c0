// Package dlna implements the subset of UPnP AV needed here: browsing and
// searching a ContentDirectory, and starting playback on an AVTransport
// renderer.
package dlna

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	contentDirectoryType = "urn:schemas-upnp-org:service:ContentDirectory:1"
	avTransportType      = "urn:schemas-upnp-org:service:AVTransport:1"

	// DefaultBrowseCount is the page size requested from the server.
	DefaultBrowseCount = 100
)

// endpoints are the control URLs resolved from a device description.
type endpoints struct {
	FriendlyName     string
	ContentDirectory string
	AVTransport      string
}

// Client speaks to one UPnP device, identified by the URL of its
// description document. The registry shares one Client per location
// across goroutines, so the lazily resolved endpoints sit behind a mutex.
type Client struct {
	location   string
	httpClient *http.Client
	log        *zap.Logger

	mu  sync.Mutex
	eps *endpoints
}

// NewClient creates a client for the device described at location. The
// description is fetched lazily on first use.
func NewClient(location string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		location: location,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Location returns the description URL this client is bound to.
func (c *Client) Location() string {
	return c.location
}

// FriendlyName returns the device's advertised name, or "" before the
// description has been fetched.
func (c *Client) FriendlyName() string {
	eps := c.endpoints()
	if eps == nil {
		return ""
	}
	return eps.FriendlyName
}

// endpoints returns the resolved endpoints, or nil before initialization.
func (c *Client) endpoints() *endpoints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eps
}

func (c *Client) restoreEndpoints(eps *endpoints) {
	c.mu.Lock()
	c.eps = eps
	c.mu.Unlock()
}

// initialize fetches and parses the description document once. The lock
// is held across the fetch so concurrent callers on a fresh client wait
// for the one in flight instead of fetching again.
func (c *Client) initialize(ctx context.Context) (*endpoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eps != nil {
		return c.eps, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching device description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching device description: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading device description: %w", err)
	}

	eps, err := parseDescription(body, c.location)
	if err != nil {
		return nil, err
	}

	c.log.Debug("device description resolved",
		zap.String("location", c.location),
		zap.String("name", eps.FriendlyName),
		zap.String("content_directory", eps.ContentDirectory),
		zap.String("av_transport", eps.AVTransport))

	c.eps = eps
	return eps, nil
}

// description document shapes. encoding/xml matches by local name, which
// keeps this lenient about the namespaces real servers use.
type descRoot struct {
	URLBase string     `xml:"URLBase"`
	Device  descDevice `xml:"device"`
}

type descDevice struct {
	FriendlyName string        `xml:"friendlyName"`
	Services     []descService `xml:"serviceList>service"`
	Devices      []descDevice  `xml:"deviceList>device"`
}

type descService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

func parseDescription(body []byte, location string) (*endpoints, error) {
	var root descRoot
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("invalid device description: %w", err)
	}

	base := baseURL(root.URLBase, location)

	eps := &endpoints{FriendlyName: root.Device.FriendlyName}
	collectServices(&root.Device, base, eps)
	return eps, nil
}

// collectServices walks the device tree, including embedded devices, and
// records the first ContentDirectory and AVTransport control URLs.
func collectServices(dev *descDevice, base string, eps *endpoints) {
	for _, svc := range dev.Services {
		ctrl := strings.TrimSpace(svc.ControlURL)
		if ctrl == "" {
			continue
		}
		if !strings.HasPrefix(ctrl, "http") {
			if strings.HasPrefix(ctrl, "/") {
				ctrl = base + ctrl
			} else {
				ctrl = base + "/" + ctrl
			}
		}
		switch {
		case strings.Contains(svc.ServiceType, "ContentDirectory") && eps.ContentDirectory == "":
			eps.ContentDirectory = ctrl
		case strings.Contains(svc.ServiceType, "AVTransport") && eps.AVTransport == "":
			eps.AVTransport = ctrl
		}
	}
	for i := range dev.Devices {
		collectServices(&dev.Devices[i], base, eps)
	}
}

func baseURL(urlBase, location string) string {
	if urlBase != "" {
		return strings.TrimRight(strings.TrimSpace(urlBase), "/")
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}

// Browse lists the direct children of a container. It returns one page of
// items starting at startIndex, plus the server's total match count for
// pagination.
func (c *Client) Browse(ctx context.Context, objectID string, startIndex, count int) ([]Item, int, error) {
	eps, err := c.initialize(ctx)
	if err != nil {
		return nil, 0, err
	}
	if eps.ContentDirectory == "" {
		return nil, 0, ErrNoContentDirectory
	}
	if objectID == "" {
		objectID = "0"
	}
	if count <= 0 {
		count = DefaultBrowseCount
	}

	inner := fmt.Sprintf(`<u:Browse xmlns:u="%s">
<ObjectID>%s</ObjectID>
<BrowseFlag>BrowseDirectChildren</BrowseFlag>
<Filter>*</Filter>
<StartingIndex>%d</StartingIndex>
<RequestedCount>%d</RequestedCount>
<SortCriteria></SortCriteria>
</u:Browse>`, contentDirectoryType, xmlEscape(objectID), startIndex, count)

	c.log.Debug("browse",
		zap.String("location", c.location),
		zap.String("object_id", objectID),
		zap.Int("start_index", startIndex))

	respBody, err := c.soapCall(ctx, eps.ContentDirectory, contentDirectoryType, "Browse", inner)
	if err != nil {
		return nil, 0, err
	}

	return parseDIDLResult(respBody)
}

// Search runs a ContentDirectory search against the root container with
// the given criteria string (e.g. `dc:title contains "x"`).
func (c *Client) Search(ctx context.Context, criteria string, startIndex, count int) ([]Item, int, error) {
	eps, err := c.initialize(ctx)
	if err != nil {
		return nil, 0, err
	}
	if eps.ContentDirectory == "" {
		return nil, 0, ErrNoContentDirectory
	}
	if count <= 0 {
		count = DefaultBrowseCount
	}

	inner := fmt.Sprintf(`<u:Search xmlns:u="%s">
<ContainerID>0</ContainerID>
<SearchCriteria>%s</SearchCriteria>
<Filter>*</Filter>
<StartingIndex>%d</StartingIndex>
<RequestedCount>%d</RequestedCount>
<SortCriteria></SortCriteria>
</u:Search>`, contentDirectoryType, xmlEscape(criteria), startIndex, count)

	c.log.Debug("search",
		zap.String("location", c.location),
		zap.String("criteria", criteria))

	respBody, err := c.soapCall(ctx, eps.ContentDirectory, contentDirectoryType, "Search", inner)
	if err != nil {
		return nil, 0, err
	}

	return parseDIDLResult(respBody)
}

// SetAVTransportURI points the renderer at a stream URL. metadata is
// optional DIDL-Lite improving the display on the device.
func (c *Client) SetAVTransportURI(ctx context.Context, uri, metadata string) error {
	eps, err := c.initialize(ctx)
	if err != nil {
		return err
	}
	if eps.AVTransport == "" {
		return ErrNoAVTransport
	}

	inner := fmt.Sprintf(`<u:SetAVTransportURI xmlns:u="%s">
<InstanceID>0</InstanceID>
<CurrentURI>%s</CurrentURI>
<CurrentURIMetaData>%s</CurrentURIMetaData>
</u:SetAVTransportURI>`, avTransportType, xmlEscape(uri), xmlEscape(metadata))

	_, err = c.soapCall(ctx, eps.AVTransport, avTransportType, "SetAVTransportURI", inner)
	return err
}

// Play starts playback of the currently set transport URI.
func (c *Client) Play(ctx context.Context) error {
	eps, err := c.initialize(ctx)
	if err != nil {
		return err
	}
	if eps.AVTransport == "" {
		return ErrNoAVTransport
	}

	inner := fmt.Sprintf(`<u:Play xmlns:u="%s">
<InstanceID>0</InstanceID>
<Speed>1</Speed>
</u:Play>`, avTransportType)

	_, err = c.soapCall(ctx, eps.AVTransport, avTransportType, "Play", inner)
	return err
}
