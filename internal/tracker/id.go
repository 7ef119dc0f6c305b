package tracker

import (
	"strconv"

	"github.com/google/uuid"
)

// sessionNamespace scopes the name-based session identifiers.
var sessionNamespace = uuid.MustParse("6f1c2a7e-3b7d-4d0e-9a53-0c1f4e8b2d91")

// SessionID returns the identifier of the session run by pid on device.
// The same pair always yields the same identifier.
func SessionID(pid int, device string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(strconv.Itoa(pid)+"@"+device)).String()
}
