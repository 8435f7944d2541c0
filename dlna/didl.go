package dlna

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Item is one DIDL-Lite entry: a browsable container or a playable leaf.
type Item struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	Class       string `json:"upnp_class"`
	IsContainer bool   `json:"is_container"`
	ResURL      string `json:"res_url,omitempty"`
	AlbumArt    string `json:"album_art,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
}

// Browse/Search SOAP responses wrap the DIDL-Lite document inside a
// Result element as an escaped string, next to a TotalMatches count.
// parseDIDLResult unwraps both. Element matching is by local name, so any
// SOAP namespace prefix works.
func parseDIDLResult(soapResponse []byte) ([]Item, int, error) {
	result, total, err := extractResult(soapResponse)
	if err != nil {
		return nil, 0, err
	}
	if result == "" {
		return []Item{}, 0, nil
	}

	var didl didlLite
	if err := xml.Unmarshal([]byte(result), &didl); err != nil {
		return nil, 0, fmt.Errorf("invalid DIDL-Lite payload: %w", err)
	}

	items := make([]Item, 0, len(didl.Containers)+len(didl.Items))
	for _, c := range didl.Containers {
		items = append(items, c.toItem(true))
	}
	for _, i := range didl.Items {
		items = append(items, i.toItem(false))
	}
	return items, total, nil
}

// extractResult walks the SOAP response tokens for the Result text and
// the TotalMatches count.
func extractResult(soapResponse []byte) (string, int, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(soapResponse)))

	var result string
	var total int
	var current string
	var found bool

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			current = t.Name.Local
			if strings.EqualFold(current, "result") {
				found = true
			}
		case xml.CharData:
			switch strings.ToLower(current) {
			case "result":
				result += string(t)
			case "totalmatches":
				if n, err := strconv.Atoi(strings.TrimSpace(string(t))); err == nil {
					total = n
				}
			}
		case xml.EndElement:
			current = ""
		}
	}

	if !found {
		return "", 0, fmt.Errorf("response contains no Result element")
	}

	return result, total, nil
}

type didlLite struct {
	XMLName    xml.Name     `xml:"DIDL-Lite"`
	Containers []didlObject `xml:"container"`
	Items      []didlObject `xml:"item"`
}

type didlObject struct {
	ID       string   `xml:"id,attr"`
	ParentID string   `xml:"parentID,attr"`
	Title    string   `xml:"title"`
	Class    string   `xml:"class"`
	Artist   string   `xml:"artist"`
	Creator  string   `xml:"creator"`
	Album    string   `xml:"album"`
	AlbumArt string   `xml:"albumArtURI"`
	Res      []string `xml:"res"`
}

func (o didlObject) toItem(isContainer bool) Item {
	title := o.Title
	if title == "" {
		title = "Unknown"
	}
	artist := o.Artist
	if artist == "" {
		artist = o.Creator
	}
	var res string
	if len(o.Res) > 0 {
		res = o.Res[0]
	}
	return Item{
		ID:          o.ID,
		ParentID:    o.ParentID,
		Title:       title,
		Class:       o.Class,
		IsContainer: isContainer,
		ResURL:      res,
		AlbumArt:    o.AlbumArt,
		Artist:      artist,
		Album:       o.Album,
	}
}
