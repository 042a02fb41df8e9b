package main

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

type TargetKind string

const (
	TargetAddress TargetKind = "address"
	TargetQuery   TargetKind = "query"
)

// NavigationTarget is where search-bar input sends the browser.
type NavigationTarget struct {
	Kind   TargetKind `json:"kind"`
	URL    string     `json:"url"`
	Engine string     `json:"engine,omitempty"`
}

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// Dispatch classifies raw as an address or a query against engine. Blank
// input yields ok == false. Anything with a dot and no whitespace counts as
// an address, so "v1.2" goes to https://v1.2.
func Dispatch(raw string, engine SearchEngine) (NavigationTarget, bool) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return NavigationTarget{}, false
	}

	if isAddress(input) {
		target := input
		switch {
		case schemePattern.MatchString(input):
		case strings.HasPrefix(input, "localhost:"):
			target = "http://" + input
		default:
			target = "https://" + input
		}
		return NavigationTarget{Kind: TargetAddress, URL: target}, true
	}

	return NavigationTarget{
		Kind:   TargetQuery,
		URL:    strings.Replace(engine.URLTemplate, "%s", encodeURIComponent(input), 1),
		Engine: engine.Name,
	}, true
}

func isAddress(input string) bool {
	if isAbsoluteURL(input) {
		return true
	}
	if strings.HasPrefix(input, "localhost:") {
		return true
	}
	return strings.Contains(input, ".") && !strings.ContainsFunc(input, unicode.IsSpace)
}

func isAbsoluteURL(input string) bool {
	if !schemePattern.MatchString(input) || strings.ContainsFunc(input, unicode.IsSpace) {
		return false
	}
	u, err := url.Parse(input)
	return err == nil && u.Host != ""
}

// encodeURIComponent escapes s like the browser function of the same name:
// only A-Z a-z 0-9 and -_.!~*'() are left as is.
func encodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
