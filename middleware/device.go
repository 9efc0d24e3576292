package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"gtasite/api/logger"
	"gtasite/api/store"
)

// DeviceCookieName is the long-lived identity cookie the SPA carries.
const DeviceCookieName = "gta_device_id"

// DeviceContextKey is where the resolved device id lands in the gin context.
const DeviceContextKey = "device_id"

// DeviceIdentity resolves the caller's stable device id on every tracking
// request. A missing or unknown cookie value gets a freshly minted id; a
// known one gets its registry TTL refreshed. The cookie is (re)set either
// way so the expiry window keeps sliding.
func DeviceIdentity(identity *store.IdentityStore, ttl time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		existing, err := c.Cookie(DeviceCookieName)
		if err != nil {
			existing = ""
		}

		deviceID, created := identity.GetOrCreateDeviceID(c.Request.Context(), existing)
		if created {
			log.Info("new device identity", "device_id", deviceID, "ip", c.ClientIP())
		}

		c.SetCookie(
			DeviceCookieName,
			deviceID,
			int(ttl/time.Second),
			"/",
			"",
			false,
			true,
		)

		c.Set(DeviceContextKey, deviceID)
		c.Next()
	}
}

// DeviceID pulls the resolved device id back out of the gin context.
func DeviceID(c *gin.Context) string {
	if v, ok := c.Get(DeviceContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
