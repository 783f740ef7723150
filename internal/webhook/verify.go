package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a provided signature against the raw request body.
// The signature may carry an optional "sha256=" prefix. Comparison is
// constant time.
func VerifySignature(secret, body []byte, provided string) bool {
	if len(secret) == 0 || provided == "" {
		return false
	}
	provided = strings.TrimPrefix(provided, "sha256=")
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// normalizeAddr extracts the bare IP from a remote address, stripping any
// port and the IPv6-mapped-IPv4 prefix.
func normalizeAddr(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return strings.TrimPrefix(host, "::ffff:")
}

// addrAllowed reports whether the remote address passes the allow-list. An
// empty allow-list admits every source.
func addrAllowed(allowlist []string, remoteAddr string) bool {
	if len(allowlist) == 0 {
		return true
	}
	host := normalizeAddr(remoteAddr)
	for _, allowed := range allowlist {
		if normalizeAddr(allowed) == host {
			return true
		}
	}
	return false
}
