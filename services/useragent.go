package services

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"

	"github.com/LordMirex/mytypist-backend/utils"
)

const (
	defaultCountry = "Nigeria"
	unknownName    = "Unknown"

	// browser_name and os_name are VARCHAR(50)
	nameWidth = 50
)

// ClientInfo is what a document visit learns about its visitor from the request.
type ClientInfo struct {
	IP             string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	Browser        string
	OS             string
	DeviceType     string
	Country        string
}

// DescribeClient parses the visitor attributes of r. ip is the client
// address as resolved by the router against its trusted proxies.
func DescribeClient(r *http.Request, ip string) ClientInfo {
	ua := r.UserAgent()
	browser, os, device := ParseUserAgent(ua)
	return ClientInfo{
		IP:             ip,
		UserAgent:      ua,
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Browser:        browser,
		OS:             os,
		DeviceType:     device,
		Country:        CountryForIP(ip),
	}
}

// ParseUserAgent reduces ua to the browser, OS family and device class shown
// on the dashboards. Names are capped to the width of their columns.
func ParseUserAgent(ua string) (browser, os, deviceType string) {
	if strings.TrimSpace(ua) == "" {
		return unknownName, unknownName, "unknown"
	}
	parsed := useragent.New(ua)

	if browser, _ = parsed.Browser(); browser == "" {
		browser = unknownName
	}

	switch {
	case parsed.Bot():
		deviceType = "bot"
	case parsed.Platform() == "iPad":
		deviceType = "tablet"
	case parsed.Mobile():
		deviceType = "mobile"
	default:
		deviceType = "desktop"
	}

	return utils.Truncate(browser, nameWidth), utils.Truncate(osFamily(parsed), nameWidth), deviceType
}

func osFamily(ua *useragent.UserAgent) string {
	name := strings.ToLower(ua.OSInfo().Name + " " + ua.Platform())
	switch {
	case strings.Contains(name, "windows"):
		return "Windows"
	case strings.Contains(name, "android"):
		return "Android"
	case strings.Contains(name, "iphone"), strings.Contains(name, "ipad"), strings.Contains(name, "ipod"):
		return "iOS"
	case strings.Contains(name, "mac os"), strings.Contains(name, "macintosh"):
		return "macOS"
	case strings.Contains(name, "cros"):
		return "ChromeOS"
	case strings.Contains(name, "linux"), strings.Contains(name, "x11"):
		return "Linux"
	}
	return unknownName
}

// CountryForIP has no geo database behind it: public addresses are attributed
// to the home market and local or private ones to nothing.
func CountryForIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return ""
	}
	return defaultCountry
}

// DeviceFingerprint hashes the stable client attributes into a hex digest.
// It returns "" when there is nothing to hash.
func DeviceFingerprint(ip, userAgent, acceptLanguage string) string {
	if ip == "" && userAgent == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(ip + "\x00" + userAgent + "\x00" + acceptLanguage))
	return hex.EncodeToString(sum[:])
}
