package dropbox

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanPath normalizes a remote path: NFC form (macOS hands out NFD names,
// the server stores NFC), no leading or trailing slashes. Root is "".
func CleanPath(p string) string {
	return strings.Trim(norm.NFC.String(p), "/")
}

// escapePath escapes each segment of a cleaned remote path for use in a URL,
// keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(CleanPath(p), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}

// rootedURL builds base + "/" + prefix + "/" + root + "/" + path.
func (c *Client) rootedURL(base, prefix, p string) string {
	return base + "/" + prefix + "/" + c.root + "/" + escapePath(p)
}
