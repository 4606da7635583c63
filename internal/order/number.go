package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateOrderNumber builds a unique, URL-safe, human-readable order
// number: ORD-<yymmdd>-<8 hex chars>. The suffix comes from crypto/rand
// rather than the clock, so concurrent checkouts in the same
// millisecond can not collide.
func GenerateOrderNumber() string {
	datePart := time.Now().UTC().Format("060102")

	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// fallback: time-based entropy
		nano := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(nano >> (8 * i))
		}
	}

	return fmt.Sprintf("ORD-%s-%s", datePart, hex.EncodeToString(buf))
}
