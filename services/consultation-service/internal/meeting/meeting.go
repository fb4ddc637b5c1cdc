// Package meeting allocates the stable meeting identifier handed to both
// parties of a confirmed booking.
package meeting

import (
	"strings"

	"github.com/google/uuid"
)

// namespace scopes locator UUIDs so they never collide with booking ids.
var namespace = uuid.MustParse("6f1c2c1e-8a57-4a53-9c77-0f8a6d3b7e21")

type Allocator struct {
	BaseURL string
}

// Allocate returns the same locator for the same booking on every call.
func (a Allocator) Allocate(bookingID string) string {
	id := uuid.NewSHA1(namespace, []byte(bookingID)).String()
	base := strings.TrimRight(a.BaseURL, "/")
	if base == "" {
		return id
	}
	return base + "/" + id
}
