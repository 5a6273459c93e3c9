// Package signature provides request signing for the external music APIs.
package signature

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Plaintext builds an OAuth 1.0a PLAINTEXT signature from the consumer
// secret and the token secret. The token secret is empty during the
// request-token step.
func Plaintext(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// APISig builds the Last.fm method signature: parameters sorted by name and
// concatenated as name+value, shared secret appended, md5 in lowercase hex.
// The format and api_sig parameters are excluded from the signature base.
func APISig(params map[string]string, sharedSecret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" || k == "api_sig" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(sharedSecret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// PercentEncode applies RFC 3986 encoding with the unreserved set OAuth 1.0a
// requires. url.QueryEscape emits '+' for spaces, which providers reject.
func PercentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
