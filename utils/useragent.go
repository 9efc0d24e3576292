package utils

import (
	"regexp"
	"strings"

	"gtasite/api/models"
)

var mobilePattern = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// DeviceInfoFromUserAgent derives coarse platform/browser metadata from a
// User-Agent string. Best-effort; anything unrecognized stays "Unknown".
func DeviceInfoFromUserAgent(ua string) models.DeviceInfo {
	browser := "Unknown"
	platform := "Unknown"

	switch {
	case strings.Contains(ua, "Edge"):
		browser = "Edge"
	case strings.Contains(ua, "Chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari"):
		browser = "Safari"
	case strings.Contains(ua, "Opera"):
		browser = "Opera"
	}

	switch {
	case strings.Contains(ua, "Windows"):
		platform = "Windows"
	case strings.Contains(ua, "Android"):
		platform = "Android"
	// iOS before Mac: iPhone/iPad agents also carry "like Mac OS X".
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		platform = "iOS"
	case strings.Contains(ua, "Mac"):
		platform = "macOS"
	case strings.Contains(ua, "Linux"):
		platform = "Linux"
	}

	return models.DeviceInfo{
		Platform: platform,
		Browser:  browser,
		IsMobile: mobilePattern.MatchString(ua),
	}
}
