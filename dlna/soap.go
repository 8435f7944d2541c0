package dlna

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const soapEnvelope = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>%s</s:Body>
</s:Envelope>`

// soapCall posts a SOAP action body to a control URL and returns the raw
// response document.
func (c *Client) soapCall(ctx context.Context, controlURL, serviceType, action, innerBody string) ([]byte, error) {
	body := fmt.Sprintf(soapEnvelope, innerBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset=utf-8`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &SOAPError{Action: action, Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// xmlEscape escapes a value for embedding in a SOAP argument.
func xmlEscape(s string) string {
	var b strings.Builder
	// EscapeText only fails on writer errors; strings.Builder has none.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
