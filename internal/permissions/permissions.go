// Package permissions gates capture on the operating system's microphone
// authorization.
package permissions

import (
	"fmt"

	"github.com/petems/vmic/internal/media"
)

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CheckMicrophone returns nil when capture is authorized. An undetermined
// status triggers the system prompt; the current request still fails.
func CheckMicrophone() error {
	return check(Microphone(), RequestMicrophone)
}

func check(status Status, request func()) error {
	switch status {
	case Authorized:
		return nil
	case NotDetermined:
		request()
		return fmt.Errorf("%w: microphone access requested, retry once granted", media.ErrNotAllowed)
	default:
		return fmt.Errorf("%w: microphone access %s", media.ErrNotAllowed, status)
	}
}
