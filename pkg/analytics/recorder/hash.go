package recorder

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashArgs returns the hex SHA-256 of the arguments, NUL-separated so that
// ["a b"] and ["a", "b"] differ. Returns "" for no arguments.
func HashArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}

	h := sha256.New()
	for i, a := range args {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))
}
