// Package rewrite implements the Domain Rewriter: thin inbound ("restore")
// and outbound ("replace") wrappers over an alias.Table, plus the header
// and media-type allow-lists that decide where substitution applies.
package rewrite

import (
	"mime"
	"strings"

	"github.com/webjingzi/mirror/internal/alias"
)

// InboundHeaders are rewritten alias->real on the way to the upstream.
var InboundHeaders = []string{"Origin", "Referer"}

// OutboundHeaders are rewritten real->alias on the way to the client.
var OutboundHeaders = []string{
	"Location",
	"Set-Cookie",
	"Access-Control-Allow-Origin",
	"Content-Security-Policy",
	"X-Frame-Options",
}

// AllowedMediaTypes are the Content-Type essences eligible for body
// rewriting.
var AllowedMediaTypes = map[string]bool{
	"text/html":                        true,
	"text/plain":                       true,
	"text/javascript":                  true,
	"application/json":                 true,
	"application/manifest+json":        true,
	"application/x-www-form-urlencoded": true,
}

// Essence returns the type/subtype portion of a Content-Type header value,
// with parameters stripped, lowercased. Returns "" if contentType is empty;
// if it does not parse as a media type, the trimmed text before the first
// ';' is used.
func Essence(contentType string) string {
	if contentType == "" {
		return ""
	}
	essence, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// mime.ParseMediaType is strict about parameters; fall back to a
		// bare split on ';' for the essence itself.
		essence = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(essence)
}

// IsRewritableMediaType reports whether contentType's essence is
// allow-listed for body rewriting.
func IsRewritableMediaType(contentType string) bool {
	return AllowedMediaTypes[Essence(contentType)]
}

// Restore applies alias->real substitution (inbound direction).
func Restore(t *alias.Table, s string) string {
	return t.ForwardSubstitute(s)
}

// Replace applies real->alias substitution (outbound direction).
func Replace(t *alias.Table, s string) string {
	return t.ReverseSubstitute(s)
}

// RestoreQuery restores every query value (not key) in a raw query string,
// preserving key order and multiplicity, and rejoins as k=v&... exactly as
// spec.md §4.7 step 3 describes.
func RestoreQuery(t *alias.Table, rawQuery string) string {
	if rawQuery == "" {
		return rawQuery
	}
	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			pairs[i] = pair
			continue
		}
		key, value := kv[0], kv[1]
		pairs[i] = key + "=" + Restore(t, value)
	}
	return strings.Join(pairs, "&")
}
