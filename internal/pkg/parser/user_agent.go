package parser

import "strings"

type match struct {
	needle  string
	exclude string
	name    string
}

var platforms = []match{
	{needle: "windows", name: "Windows"},
	{needle: "iphone", name: "iOS"},
	{needle: "ipad", name: "iOS"},
	{needle: "mac os", name: "macOS"},
	{needle: "android", name: "Android"},
	{needle: "linux", name: "Linux"},
}

var browsers = []match{
	{needle: "edg", name: "Edge"},
	{needle: "firefox", name: "Firefox"},
	{needle: "chrome", name: "Chrome"},
	{needle: "safari", exclude: "chrome", name: "Safari"},
	{needle: "curl", name: "curl"},
}

func first(ua string, table []match) string {
	for _, m := range table {
		if strings.Contains(ua, m.needle) && (m.exclude == "" || !strings.Contains(ua, m.exclude)) {
			return m.name
		}
	}
	return "Unknown"
}

// ParseUserAgent returns the operating system and browser named in ua.
func ParseUserAgent(ua string) (os, browser string) {
	ua = strings.ToLower(ua)
	return first(ua, platforms), first(ua, browsers)
}

// Describe summarises ua for audit listings, e.g. "Chrome on macOS".
func Describe(ua string) string {
	os, browser := ParseUserAgent(ua)
	if os == "Unknown" && browser == "Unknown" {
		return "Unknown client"
	}
	return browser + " on " + os
}
