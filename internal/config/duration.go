package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Defaults applied when the corresponding fields are empty.
const (
	DefaultDeliveryEndpoint = "https://api.live.bilibili.com"
	DefaultDeliveryTimeout  = 60 * time.Second
	DefaultHTTPAddr         = "127.0.0.1:8787"
	DefaultPollTimeout      = 10 * time.Second
	DefaultBusyTimeout      = 5 * time.Second
)

// DeliveryTimeout returns delivery.timeout or DefaultDeliveryTimeout.
func (c DeliveryConfig) DeliveryTimeout() time.Duration {
	d, err := ParseDurationOrDefault("delivery.timeout", c.Timeout, DefaultDeliveryTimeout)
	if err != nil {
		return DefaultDeliveryTimeout
	}
	return d
}

func (c DeliveryConfig) EndpointOrDefault() string {
	if s := strings.TrimSpace(c.Endpoint); s != "" {
		return strings.TrimRight(s, "/")
	}
	return DefaultDeliveryEndpoint
}

func (c *HTTPConfig) AddrOrDefault() string {
	if c == nil || strings.TrimSpace(c.Addr) == "" {
		return DefaultHTTPAddr
	}
	return strings.TrimSpace(c.Addr)
}

func (c *TelegramConfig) PollTimeoutOrDefault() time.Duration {
	if c == nil {
		return DefaultPollTimeout
	}
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
	if err != nil {
		return DefaultPollTimeout
	}
	return d
}

func (c *StorageConfig) BusyTimeoutOrDefault() time.Duration {
	if c == nil {
		return DefaultBusyTimeout
	}
	d, err := ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
	if err != nil {
		return DefaultBusyTimeout
	}
	return d
}
