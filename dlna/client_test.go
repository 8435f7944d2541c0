package dlna

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeServer is an httptest-backed UPnP device with a ContentDirectory
// and an AVTransport.
type fakeServer struct {
	*httptest.Server

	mu            sync.Mutex
	descFetches   int
	browseBodies  []string
	searchBodies  []string
	avActions     []string
	browseResult  string
	browseTotal   int
	browseStatus  int
	searchResult  string
}

func escapeDIDL(didl string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(didl)
}

func soapResponse(action, result string, total int) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body>
<u:%sResponse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">
<Result>%s</Result>
<NumberReturned>0</NumberReturned>
<TotalMatches>%d</TotalMatches>
<UpdateID>1</UpdateID>
</u:%sResponse>
</s:Body>
</s:Envelope>`, action, escapeDIDL(result), total, action)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		browseResult: `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"><item id="1" parentID="0"><dc:title>One</dc:title><upnp:class>object.item.audioItem.musicTrack</upnp:class><res>http://nas/1.flac</res></item></DIDL-Lite>`,
		browseTotal:  1,
		browseStatus: http.StatusOK,
		searchResult: `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"></DIDL-Lite>`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rootDesc.xml", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.descFetches++
		fs.mu.Unlock()
		fmt.Fprint(w, `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<device>
<friendlyName>Fake NAS</friendlyName>
<serviceList>
<service>
<serviceType>urn:schemas-upnp-org:service:ContentDirectory:1</serviceType>
<controlURL>/ctl/ContentDir</controlURL>
</service>
<service>
<serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
<controlURL>/ctl/AVTransport</controlURL>
</service>
</serviceList>
</device>
</root>`)
	})
	mux.HandleFunc("/ctl/ContentDir", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if strings.Contains(r.Header.Get("SOAPAction"), "#Search") {
			fs.searchBodies = append(fs.searchBodies, string(body))
			fmt.Fprint(w, soapResponse("Search", fs.searchResult, 0))
			return
		}
		fs.browseBodies = append(fs.browseBodies, string(body))
		if fs.browseStatus != http.StatusOK {
			w.WriteHeader(fs.browseStatus)
			fmt.Fprint(w, "<fault/>")
			return
		}
		fmt.Fprint(w, soapResponse("Browse", fs.browseResult, fs.browseTotal))
	})
	mux.HandleFunc("/ctl/AVTransport", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		fs.mu.Lock()
		fs.avActions = append(fs.avActions, r.Header.Get("SOAPAction"))
		fs.mu.Unlock()
		fmt.Fprint(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body/></s:Envelope>`)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) location() string {
	return fs.URL + "/rootDesc.xml"
}

func TestClientBrowse(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(fs.location(), nil)

	items, total, err := c.Browse(context.Background(), "0", 0, 25)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Title != "One" {
		t.Errorf("items=%v total=%d", items, total)
	}
	if c.FriendlyName() != "Fake NAS" {
		t.Errorf("friendly name = %q", c.FriendlyName())
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.browseBodies) != 1 {
		t.Fatalf("browse requests = %d", len(fs.browseBodies))
	}
	body := fs.browseBodies[0]
	for _, want := range []string{
		"<ObjectID>0</ObjectID>",
		"<BrowseFlag>BrowseDirectChildren</BrowseFlag>",
		"<StartingIndex>0</StartingIndex>",
		"<RequestedCount>25</RequestedCount>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q", want)
		}
	}
}

func TestClientDescriptionFetchedOnce(t *testing.T) {
	fs := newFakeServer(t)
	c := NewClient(fs.location(), nil)

	for i := 0; i < 3; i++ {
		if _, _, err := c.Browse(context.Background(), "0", 0, 10); err != nil {
			t.Fatalf("Browse %d: %v", i, err)
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.descFetches != 1 {
		t.Errorf("description fetched %d times, want 1", fs.descFetches)
	}
}

func TestClientBrowseSOAPError(t *testing.T) {
	fs := newFakeServer(t)
	fs.browseStatus = http.StatusInternalServerError
	c := NewClient(fs.location(), nil)

	_, _, err := c.Browse(context.Background(), "0", 0, 10)
	var soapErr *SOAPError
	if !errors.As(err, &soapErr) {
		t.Fatalf("err = %v, want SOAPError", err)
	}
	if soapErr.Status != http.StatusInternalServerError || soapErr.Action != "Browse" {
		t.Errorf("soap error = %+v", soapErr)
	}
}

func TestPlayURLSetsURIThenPlays(t *testing.T) {
	fs := newFakeServer(t)
	r := NewRegistry(nil)

	err := r.PlayURL(context.Background(), fs.location(), "http://nas/1.flac", "")
	if err != nil {
		t.Fatalf("PlayURL: %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.avActions) != 2 {
		t.Fatalf("av actions = %v", fs.avActions)
	}
	if !strings.Contains(fs.avActions[0], "#SetAVTransportURI") {
		t.Errorf("first action = %q", fs.avActions[0])
	}
	if !strings.Contains(fs.avActions[1], "#Play") {
		t.Errorf("second action = %q", fs.avActions[1])
	}
}

func TestRegistrySearchFiltersAndCaches(t *testing.T) {
	fs := newFakeServer(t)
	fs.searchResult = `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">
<item id="1" parentID="0"><dc:title>Blue in Green</dc:title><upnp:class>object.item.audioItem.musicTrack</upnp:class><res>http://nas/1.flac</res></item>
<item id="2" parentID="0"><dc:title>So What</dc:title><dc:creator>Miles Davis</dc:creator><upnp:album>Kind of Blue</upnp:album><upnp:class>object.item.audioItem.musicTrack</upnp:class><res>http://nas/2.flac</res></item>
<item id="3" parentID="0"><dc:title>Unrelated</dc:title><upnp:class>object.item.audioItem.musicTrack</upnp:class><res>http://nas/3.flac</res></item>
</DIDL-Lite>`
	r := NewRegistry(nil)

	// "blue" matches a title; servers that ignore criteria return
	// everything, so the unrelated entries must be filtered out.
	items, err := r.Search(context.Background(), fs.location(), "blue")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %v, want the title and album matches", items)
	}

	// Second identical search is served from cache.
	if _, err := r.Search(context.Background(), fs.location(), "blue"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	fs.mu.Lock()
	searches := len(fs.searchBodies)
	fs.mu.Unlock()
	if searches != 1 {
		t.Errorf("search requests = %d, want 1 (cache hit)", searches)
	}
}

func TestRegistryConcurrentBrowseSameLocation(t *testing.T) {
	fs := newFakeServer(t)
	r := NewRegistry(nil)

	// Every goroutine shares one client; the lazy description fetch and
	// the endpoint reads must not trip the race detector.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.Browse(context.Background(), fs.location(), "0", 0); err != nil {
				t.Errorf("Browse: %v", err)
			}
		}()
	}
	wg.Wait()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.descFetches != 1 {
		t.Errorf("description fetched %d times, want 1 (concurrent callers wait)", fs.descFetches)
	}
}

func TestRegistrySearchQuotesCriteria(t *testing.T) {
	fs := newFakeServer(t)
	r := NewRegistry(nil)

	if _, err := r.Search(context.Background(), fs.location(), `so "what"`); err != nil {
		t.Fatalf("Search: %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	body := fs.searchBodies[0]
	if !strings.Contains(body, "dc:title contains") {
		t.Errorf("criteria missing from body: %s", body)
	}
	if strings.Contains(body, `so &#34;what&#34;`) {
		t.Error("quotes should be stripped from the criteria")
	}
}
