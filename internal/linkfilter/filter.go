// Package linkfilter narrows the links discovered on a page before they are queued.
package linkfilter

import (
	"net/url"
	"strings"
)

// Predicate receives the whole candidate list and returns the subset to keep.
type Predicate func(urls []string) []string

// Filter is either a Predicate or a pair of host lists. A Predicate wins when both are set.
//
// Host entries match exactly, or as a suffix when written "*.example.com" or ".example.com".
type Filter struct {
	AllowList []string `json:"allowList,omitempty" mapstructure:"allow_list"`
	BlockList []string `json:"blockList,omitempty" mapstructure:"block_list"`
	Predicate Predicate `json:"-" mapstructure:"-"`
}

// Apply returns the URLs that survive f. A nil filter keeps everything.
// Strings that do not parse as absolute URLs are dropped when host lists are in use.
func Apply(urls []string, f *Filter) []string {
	if f == nil {
		return urls
	}
	if f.Predicate != nil {
		return f.Predicate(urls)
	}
	return f.apply(urls)
}

func (f *Filter) apply(urls []string) []string {
	allow := newHostPatterns(f.AllowList)
	block := newHostPatterns(f.BlockList)

	kept := make([]string, 0, len(urls))
	for _, raw := range urls {
		host, ok := hostOf(raw)
		if !ok {
			continue
		}
		if allow != nil && !allow.Match(host) {
			continue
		}
		if block.Match(host) {
			continue
		}
		kept = append(kept, raw)
	}
	return kept
}

func hostOf(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	return host, host != ""
}

// hostPatterns stores exact hosts and suffix wildcards.
type hostPatterns struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostPatterns(patterns []string) *hostPatterns {
	matcher := &hostPatterns{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (p *hostPatterns) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range p.suffixes {
		if existing == suffix {
			return
		}
	}
	p.suffixes = append(p.suffixes, suffix)
}

// Match reports whether host is covered. A nil set matches nothing.
func (p *hostPatterns) Match(host string) bool {
	if p == nil || host == "" {
		return false
	}
	if _, ok := p.exact[host]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
