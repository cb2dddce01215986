// Package cleanurls strips tracking parameters from URLs found in text.
package cleanurls

import (
	"net/url"
	"regexp"
	"strings"
)

var reURL = regexp.MustCompile(`https?://\S*`)

var trackers = map[string]struct{}{
	// Google Urchin Tracking Module
	"utm_source": {}, "utm_medium": {}, "utm_term": {}, "utm_campaign": {}, "utm_content": {},
	"utm_name": {}, "utm_cid": {}, "utm_reader": {}, "utm_viz_id": {}, "utm_pubreferrer": {},
	"utm_swu": {},
	// Adobe Omniture SiteCatalyst
	"ICID": {}, "icid": {},
	// Hubspot
	"_hsenc": {}, "_hsmi": {},
	// Marketo
	"mkt_tok": {},
	// MailChimp
	"mc_cid": {}, "mc_eid": {},
	// comScore Digital Analytix
	"ns_source": {}, "ns_mchannel": {}, "ns_campaign": {}, "ns_linkname": {}, "ns_fee": {},
	// Simple Reach
	"sr_share": {},
	// Vero
	"vero_conv": {}, "vero_id": {},
	// Facebook, Instagram, Google click identifiers
	"fbclid": {}, "igshid": {}, "srcid": {}, "gclid": {}, "ocid": {},
	"ncid": {}, "nr_email_referer": {},
	// Facebook, Product Hunt and others
	"ref": {},
	// Alibaba
	"spm": {},
}

// IsTracker reports whether key is a known tracking parameter.
func IsTracker(key string) bool {
	_, ok := trackers[key]
	return ok
}

// CleanURL removes tracking parameters from raw, keeping the order and
// encoding of the others. changed is false when nothing was removed.
func CleanURL(raw string) (cleaned string, changed bool) {
	base, fragment, hasFragment := strings.Cut(raw, "#")
	path, query, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return raw, false
	}

	var kept []string
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if IsTracker(key) {
			changed = true
			continue
		}
		kept = append(kept, pair)
	}
	if !changed {
		return raw, false
	}

	cleaned = path
	if len(kept) > 0 {
		cleaned += "?" + strings.Join(kept, "&")
	}
	if hasFragment {
		cleaned += "#" + fragment
	}
	return cleaned, true
}

// Clean finds URLs in content and cleans each one. It returns the cleaned URLs
// in order of appearance, and whether any of them changed.
func Clean(content string) ([]string, bool) {
	var (
		out     []string
		changed bool
	)
	for _, raw := range reURL.FindAllString(content, -1) {
		u, c := CleanURL(raw)
		changed = changed || c
		out = append(out, u)
	}
	return out, changed
}

// Reply renders the bot's answer to content, or "" when no URL had trackers.
func Reply(content string) string {
	urls, changed := Clean(content)
	if !changed {
		return ""
	}
	var b strings.Builder
	b.WriteString("Sanitized URLs\n")
	for _, u := range urls {
		b.WriteString(" - " + u + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
