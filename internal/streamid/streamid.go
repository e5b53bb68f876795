// Package streamid derives stable track identifiers.
package streamid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SessionPlaceholder is used as identity source when the signaller has no URI.
const SessionPlaceholder = "-"

// Derive returns "<hex sha256(source)>:<mline>". It is a pure function.
func Derive(source string, mline uint32) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:]) + ":" + strconv.FormatUint(uint64(mline), 10)
}

func Source(uri string, ok bool) string {
	if !ok || uri == "" {
		return SessionPlaceholder
	}
	return uri
}
