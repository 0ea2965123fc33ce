package evaluation

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

const maxHash = float64(0xFFFFFFFF)

// UserPercentage maps userID onto [0,100] using the first 8 hex digits of its MD5 digest.
// The derivation must stay bit-exact so rollouts keep their membership across releases.
func UserPercentage(userID string) float64 {
	sum := md5.Sum([]byte(userID))
	prefix := hex.EncodeToString(sum[:4])
	hashInt, err := strconv.ParseUint(prefix, 16, 32)
	if err != nil {
		return 100
	}
	return float64(hashInt) / maxHash * 100
}
