package dlna

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContentDirectory means the device description advertises no
	// ContentDirectory service, so it cannot be browsed.
	ErrNoContentDirectory = errors.New("no ContentDirectory service found")

	// ErrNoAVTransport means the device description advertises no
	// AVTransport service, so it cannot render streams.
	ErrNoAVTransport = errors.New("no AVTransport service found")
)

// SOAPError is a collaborator-reported SOAP fault.
type SOAPError struct {
	Action string
	Status int
	Body   string
}

func (e *SOAPError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d", e.Action, e.Status)
}
