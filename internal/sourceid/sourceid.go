// Package sourceid turns user-supplied media URLs into stable source identities
// used as the dedup key for acquired artifacts.
package sourceid

import (
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"thirdcoast.systems/relay/internal/faults"
)

// Well-known host aliases. Key: input host. Value: canonical domain.
//
// Only alias hosts that serve the same media catalogue.
var canonicalDomainByHost = map[string]string{
	"youtube.com":       "youtube.com",
	"www.youtube.com":   "youtube.com",
	"m.youtube.com":     "youtube.com",
	"music.youtube.com": "youtube.com",
	"youtu.be":          "youtube.com",

	"x.com":              "x.com",
	"www.x.com":          "x.com",
	"twitter.com":        "x.com",
	"www.twitter.com":    "x.com",
	"mobile.twitter.com": "x.com",

	"twitch.tv":     "twitch.tv",
	"www.twitch.tv": "twitch.tv",
	"m.twitch.tv":   "twitch.tv",

	"kick.com":     "kick.com",
	"www.kick.com": "kick.com",

	"vimeo.com":        "vimeo.com",
	"www.vimeo.com":    "vimeo.com",
	"player.vimeo.com": "vimeo.com",
}

// Query parameters that never change which media a URL points at.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"si":      {},
	"feature": {},
	"ref":     {},
}

// Identity is a normalized source.
type Identity struct {
	// Normalized is the canonical URL string; it is the unique dedup key.
	Normalized string
	// Domain is the canonical domain (youtube.com, x.com, ...).
	Domain string
}

// ArtifactID is the deterministic UUIDv5 of the identity, scoped by domain.
func (i Identity) ArtifactID() uuid.UUID {
	return uuid.NewSHA1(NamespaceUUIDForDomain(i.Domain), []byte(i.Normalized))
}

// ResolveCanonicalDomain returns the canonical domain for host.
//
// host should be a hostname without port.
func ResolveCanonicalDomain(host string) string {
	h := normalizeHost(host)
	if h == "" {
		return ""
	}
	if c, ok := canonicalDomainByHost[h]; ok {
		return c
	}
	return h
}

// NamespaceUUIDForDomain returns a deterministic UUIDv5 namespace for a domain.
func NamespaceUUIDForDomain(domain string) uuid.UUID {
	d := strings.TrimSpace(strings.ToLower(domain))
	d = strings.TrimSuffix(d, ".")
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(d))
}

// Normalize canonicalizes raw for dedup. Anything that is not an http(s) URL
// with a host fails with faults.UnsupportedSource.
//
// For known sources:
//   - youtube.com: https://youtube.com/watch?v={id} (keeps only v=)
//   - twitch.tv, x.com, kick.com, vimeo.com: all query params stripped
//
// For other hosts the fragment and tracking params (utm_*, fbclid, ...) are
// removed and the remaining query is re-encoded in sorted order.
func Normalize(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, faults.New(faults.UnsupportedSource, "missing url")
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
	}
	if err != nil {
		return Identity{}, faults.Wrap(faults.UnsupportedSource, "invalid url", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Identity{}, faults.Newf(faults.UnsupportedSource, "unsupported scheme %q", u.Scheme)
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	origHost := normalizeHost(u.Host)
	if origHost == "" {
		return Identity{}, faults.New(faults.UnsupportedSource, "url has no host")
	}
	canon := ResolveCanonicalDomain(origHost)

	// Shortlink ids live in the path, so extract before the host is rewritten.
	youtubeID := ""
	if canon == "youtube.com" {
		if id, _ := ExtractYouTubeVideoID(u.String()); id != "" {
			youtubeID = id
		}
	}

	u.Host = canon
	u.Scheme = "https"
	u.Path = trimTrailingSlash(u.Path)
	u.RawPath = ""

	switch canon {
	case "youtube.com":
		if youtubeID != "" {
			u.Path = "/watch"
			u.RawQuery = "v=" + url.QueryEscape(youtubeID)
		} else {
			u.RawQuery = stripTracking(u.Query()).Encode()
		}
	case "twitch.tv", "x.com", "kick.com", "vimeo.com":
		u.RawQuery = ""
	default:
		u.RawQuery = stripTracking(u.Query()).Encode()
	}
	u.ForceQuery = false

	return Identity{Normalized: u.String(), Domain: canon}, nil
}

func stripTracking(q url.Values) url.Values {
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") {
			q.Del(k)
			continue
		}
		if _, ok := trackingParams[lk]; ok {
			q.Del(k)
		}
	}
	return q
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	// url.URL.Host may include port.
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil {
			if parsed.Hostname() != "" {
				h = parsed.Hostname()
			}
		}
	}
	return strings.TrimSuffix(h, ".")
}

func trimTrailingSlash(p string) string {
	if p == "" || p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}

// ExtractYouTubeVideoID extracts the YouTube video ID from a URL.
func ExtractYouTubeVideoID(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", errors.New("empty url")
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	host := normalizeHost(u.Host)

	if host == "youtu.be" {
		if id := firstPathSegment(u.Path); id != "" {
			return id, nil
		}
		return "", errors.New("not a youtube url or video id not found")
	}

	if ResolveCanonicalDomain(host) != "youtube.com" {
		return "", errors.New("not a youtube url or video id not found")
	}

	if q := strings.TrimSpace(u.Query().Get("v")); q != "" {
		return q, nil
	}
	for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
		if strings.HasPrefix(u.Path, prefix) {
			if id := firstPathSegment(strings.TrimPrefix(u.Path, prefix)); id != "" {
				return id, nil
			}
		}
	}

	return "", errors.New("not a youtube url or video id not found")
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	seg, _, _ := strings.Cut(p, "/")
	return strings.TrimSpace(seg)
}
