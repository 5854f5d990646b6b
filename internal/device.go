package internal

import (
	"strings"

	"github.com/mssola/useragent"
)

// UserAgentInfo is the device descriptor derived from a User-Agent header.
type UserAgentInfo struct {
	Platform string
	Browser  string
	Mobile   bool
}

// ParseUserAgent extracts platform, browser family and the mobile flag from
// ua. Unknown parts are left empty.
func ParseUserAgent(ua string) UserAgentInfo {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return UserAgentInfo{}
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()

	platform := parsed.OSInfo().Name
	if platform == "" {
		platform = parsed.Platform()
	}

	return UserAgentInfo{
		Platform: platform,
		Browser:  browser,
		Mobile:   parsed.Mobile(),
	}
}

// DeviceFingerprint is the platform+browser key used to count distinct devices.
func DeviceFingerprint(platform, browser string) string {
	return strings.ToLower(strings.TrimSpace(platform)) + "|" + strings.ToLower(strings.TrimSpace(browser))
}
