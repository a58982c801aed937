package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
)

// TopupReferencePrefix marks references issued by this service. The SMS
// parser looks for it inside bank transaction ids.
const TopupReferencePrefix = "WTU"

func GenerateUUID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}

// GenerateTopupReference returns WTU + yyyyMMddHHmmss (UTC) + a suffix in 1000..9999.
func GenerateTopupReference(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 9000)
	}
	return fmt.Sprintf("%s%s%d", TopupReferencePrefix, now.UTC().Format("20060102150405"), 1000+n.Int64())
}
