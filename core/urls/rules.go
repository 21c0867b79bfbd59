// Package urls: URL rules for cloning.
// Provides helpers to validate clone targets, resolve page references against
// a base, and recognise tracking hosts.
package urls

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core"
)

// trackerHosts are analytics/ad hosts whose elements are removed from clones.
// A host matches when it equals an entry or is a subdomain of one.
var trackerHosts = []string{
	"google-analytics.com", "googletagmanager.com", "googleadservices.com",
	"googlesyndication.com", "doubleclick.net", "analytics.google.com",
	"connect.facebook.net", "facebook.com/tr", "px.ads.linkedin.com", "snap.licdn.com",
	"static.ads-twitter.com", "analytics.twitter.com", "bat.bing.com",
	"hotjar.com", "mixpanel.com", "segment.com", "segment.io", "cdn.segment.com",
	"amplitude.com", "fullstory.com", "heap.io", "heapanalytics.com",
	"scorecardresearch.com", "quantserve.com", "quantcount.com",
	"newrelic.com", "nr-data.net", "clarity.ms", "plausible.io",
	"matomo.cloud", "chartbeat.com", "optimizely.com", "crazyegg.com",
	"adservice.google.com", "criteo.com", "taboola.com", "outbrain.com",
}

// ValidateTarget checks that rawURL is an absolute http(s) URL suitable for
// cloning. Unless allowPrivate is set, literal loopback/private addresses and
// local domains are rejected.
func ValidateTarget(rawURL string, allowPrivate bool) (*url.URL, error) {
	req, err := core.NewCloneRequest(rawURL)
	if err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(req.TargetURL)
	if allowPrivate {
		return parsed, nil
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return nil, &core.InvalidInputError{URL: rawURL, Reason: "local hosts are not allowed"}
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return nil, &core.InvalidInputError{URL: rawURL, Reason: fmt.Sprintf("private address %s is not allowed", ip)}
	}
	return parsed, nil
}

// IsPrivateIP reports whether ip is loopback, private, link-local or
// unspecified.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// Resolve resolves a reference found in a page against base.
// It returns ok=false when the reference cannot be used offline
// (javascript:, blob:, extension schemes, unparseable values) or is a data:
// URL of a type that can carry a document or script.
// Fragments, image and font data:, mailto: and tel: references are returned
// unchanged.
func Resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ref, true
	}

	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return ref, IsStaticData(lower)
	case strings.HasPrefix(lower, "mailto:"), strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "sms:"):
		return ref, true
	case strings.HasPrefix(lower, "javascript:"), strings.HasPrefix(lower, "vbscript:"):
		return "", false
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if base == nil {
		if parsed.IsAbs() {
			return parsed.String(), true
		}
		return "", false
	}
	return base.ResolveReference(parsed).String(), true
}

// staticDataTypes are the data: media type prefixes kept in clones.
var staticDataTypes = []string{"image/", "font/", "application/font-", "application/x-font-"}

// IsStaticData reports whether a data: URL carries an image or a font.
func IsStaticData(ref string) bool {
	mediaType := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ref)), "data:"))
	for _, prefix := range staticDataTypes {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}

// IsHTTP reports whether rawURL is an absolute http(s) URL.
func IsHTTP(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// ResolveSrcset resolves every candidate URL of a srcset attribute, keeping
// the width/density descriptors. Unresolvable candidates are dropped.
func ResolveSrcset(base *url.URL, srcset string) string {
	var out []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		resolved, ok := Resolve(base, fields[0])
		if !ok || resolved == "" {
			continue
		}
		fields[0] = resolved
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

// IsTracker reports whether rawURL points at a known analytics/ad host.
func IsTracker(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	hostPath := host + strings.TrimSuffix(parsed.Path, "/")
	for _, tracker := range trackerHosts {
		if strings.Contains(tracker, "/") {
			if hostPath == tracker || strings.HasSuffix(hostPath, "."+tracker) ||
				strings.HasPrefix(hostPath, tracker+"/") {
				return true
			}
			continue
		}
		if host == tracker || strings.HasSuffix(host, "."+tracker) {
			return true
		}
	}
	return false
}
