// Best-effort IP geolocation. Failure of the IP lookup or of every
// location provider degrades to the "unknown" sentinels; nothing in this
// package returns an error to its caller, because geolocation is
// advisory analytics data and must never gate product functionality.
package geo

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"gtasite/api/logger"
	"gtasite/api/models"
)

const UnknownIP = "unknown"

// UnknownLocation is what resolution degrades to when no provider answers.
func UnknownLocation() models.IPLocation {
	return models.IPLocation{Country: "Unknown", City: "Unknown"}
}

// Result is the typed outcome of a resolution attempt. Degraded results
// carry the sentinels instead of an error.
type Result struct {
	IPAddress string
	Location  models.IPLocation
}

// Provider pairs a geolocation endpoint with the mapper for its
// particular response shape. New providers are added by appending an
// entry, in priority order.
type Provider struct {
	Name string
	URL  func(ip string) string
	Map  func(body []byte) (models.IPLocation, bool)
}

type Resolver struct {
	client     *http.Client
	ipEndpoint string
	providers  []Provider
	timeout    time.Duration
	log        *logger.Logger
}

func NewResolver(timeout time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{
		client:     &http.Client{},
		ipEndpoint: "https://api.ipify.org?format=json",
		providers:  DefaultProviders(),
		timeout:    timeout,
		log:        log.With("component", "geo"),
	}
}

// DefaultProviders is the provider table, in priority order.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name: "ipapi.co",
			URL:  func(ip string) string { return "https://ipapi.co/" + ip + "/json/" },
			Map: func(body []byte) (models.IPLocation, bool) {
				var data struct {
					CountryName string `json:"country_name"`
					Country     string `json:"country"`
					City        string `json:"city"`
				}
				if err := json.Unmarshal(body, &data); err != nil {
					return models.IPLocation{}, false
				}
				country := data.CountryName
				if country == "" {
					country = data.Country
				}
				if country == "" && data.City == "" {
					return models.IPLocation{}, false
				}
				return models.IPLocation{Country: orUnknown(country), City: orUnknown(data.City)}, true
			},
		},
		{
			Name: "ip-api.com",
			URL:  func(ip string) string { return "http://ip-api.com/json/" + ip },
			Map: func(body []byte) (models.IPLocation, bool) {
				var data struct {
					Status  string `json:"status"`
					Country string `json:"country"`
					City    string `json:"city"`
				}
				if err := json.Unmarshal(body, &data); err != nil || data.Status == "fail" {
					return models.IPLocation{}, false
				}
				if data.Country == "" && data.City == "" {
					return models.IPLocation{}, false
				}
				return models.IPLocation{Country: orUnknown(data.Country), City: orUnknown(data.City)}, true
			},
		},
		{
			Name: "ipinfo.io",
			URL:  func(ip string) string { return "https://ipinfo.io/" + ip + "/json" },
			Map: func(body []byte) (models.IPLocation, bool) {
				var data struct {
					Country string `json:"country"`
					City    string `json:"city"`
				}
				if err := json.Unmarshal(body, &data); err != nil {
					return models.IPLocation{}, false
				}
				if data.Country == "" && data.City == "" {
					return models.IPLocation{}, false
				}
				return models.IPLocation{Country: orUnknown(data.Country), City: orUnknown(data.City)}, true
			},
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// Resolve determines the caller's public IP and approximate location.
// hintIP is the address the HTTP layer already knows; it is used directly
// unless it is private or missing, in which case the public IP lookup
// service runs first.
func (r *Resolver) Resolve(ctx context.Context, hintIP string) Result {
	ip := hintIP
	if !isUsablePublicIP(ip) {
		looked, ok := r.lookupPublicIP(ctx)
		if !ok {
			return Result{IPAddress: UnknownIP, Location: UnknownLocation()}
		}
		ip = looked
	}

	for _, p := range r.providers {
		loc, ok := r.tryProvider(ctx, p, ip)
		if ok {
			return Result{IPAddress: ip, Location: loc}
		}
	}

	// Every provider failed: keep the IP, mark the location unknown.
	return Result{IPAddress: ip, Location: UnknownLocation()}
}

func (r *Resolver) tryProvider(ctx context.Context, p Provider, ip string) (models.IPLocation, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, p.URL(ip), nil)
	if err != nil {
		return models.IPLocation{}, false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("geolocation provider failed", "provider", p.Name, "error", err)
		return models.IPLocation{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Debug("geolocation provider returned non-200", "provider", p.Name, "status", resp.StatusCode)
		return models.IPLocation{}, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return models.IPLocation{}, false
	}
	return p.Map(body)
}

func (r *Resolver) lookupPublicIP(ctx context.Context) (string, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, r.ipEndpoint, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("public IP lookup failed", "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var data struct {
		IP string `json:"ip"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
	if err != nil || json.Unmarshal(body, &data) != nil || data.IP == "" {
		return "", false
	}
	return data.IP, true
}

func isUsablePublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsLoopback() && !parsed.IsPrivate() && !parsed.IsUnspecified()
}
