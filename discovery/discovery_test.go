package discovery

import (
	"testing"
)

const ssdpResponse = "HTTP/1.1 200 OK\r\n" +
	"CACHE-CONTROL: max-age=1800\r\n" +
	"EXT:\r\n" +
	"LOCATION: http://192.168.1.20:8200/rootDesc.xml\r\n" +
	"SERVER: Linux/5.10 UPnP/1.0 MiniDLNA/1.3.0\r\n" +
	"ST: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
	"USN: uuid:4d696e69-444c-164e-9d41-001122334455::urn:schemas-upnp-org:device:MediaServer:1\r\n" +
	"\r\n"

func TestParseResponse(t *testing.T) {
	dev, ok := parseResponse(ssdpResponse, "192.168.1.20")
	if !ok {
		t.Fatal("response should parse")
	}
	if dev.Host != "192.168.1.20" {
		t.Errorf("host = %q", dev.Host)
	}
	if dev.Location != "http://192.168.1.20:8200/rootDesc.xml" {
		t.Errorf("location = %q", dev.Location)
	}
	if dev.Server != "Linux/5.10 UPnP/1.0 MiniDLNA/1.3.0" {
		t.Errorf("server = %q", dev.Server)
	}
	if dev.USN == "" {
		t.Error("usn should be kept for de-duplication")
	}
}

func TestParseResponseWithoutLocation(t *testing.T) {
	msg := "HTTP/1.1 200 OK\r\nSERVER: something\r\n\r\n"
	if _, ok := parseResponse(msg, "192.168.1.20"); ok {
		t.Error("responses without LOCATION should be dropped")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("HTTP/1.1 200 OK\r\nLocation:  http://x/desc.xml \r\nst: upnp:rootdevice\r\nbroken line\r\n\r\n")
	if headers["LOCATION"] != "http://x/desc.xml" {
		t.Errorf("location = %q, keys should be upper-cased and values trimmed", headers["LOCATION"])
	}
	if headers["ST"] != "upnp:rootdevice" {
		t.Errorf("st = %q", headers["ST"])
	}
	if _, ok := headers["BROKEN LINE"]; ok {
		t.Error("lines without a colon should be skipped")
	}
}

func TestRewriteLocationHost(t *testing.T) {
	cases := []struct {
		location string
		host     string
		want     string
	}{
		// Dockerized server advertising an internal address.
		{"http://172.17.0.2:8200/rootDesc.xml", "192.168.1.20", "http://192.168.1.20:8200/rootDesc.xml"},
		// Already correct.
		{"http://192.168.1.20:8200/rootDesc.xml", "192.168.1.20", "http://192.168.1.20:8200/rootDesc.xml"},
		// Unparseable locations pass through untouched.
		{"not a url", "192.168.1.20", "not a url"},
	}
	for _, c := range cases {
		if got := rewriteLocationHost(c.location, c.host); got != c.want {
			t.Errorf("rewriteLocationHost(%q, %q) = %q, want %q", c.location, c.host, got, c.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	devices := []Device{
		{Host: "192.168.1.20", Location: "http://a", USN: "uuid:aaa"},
		{Host: "192.168.1.20", Location: "http://a", USN: "uuid:aaa"},
		{Host: "192.168.1.30", Location: "http://b", USN: ""},
		{Host: "192.168.1.30", Location: "http://b", USN: ""},
		{Host: "192.168.1.30", Location: "http://c", USN: ""},
	}

	unique := dedupe(devices)
	if len(unique) != 3 {
		t.Fatalf("unique = %d, want 3: %+v", len(unique), unique)
	}
}
