package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

type HTTPClientConfig struct {
	Timeout        time.Duration     `yaml:"timeout" validate:"gte=0"`
	KATimeout      time.Duration     `yaml:"keep_alive_timeout" validate:"gte=0"`
	ProxyURL       string            `yaml:"proxy"`
	ProxyUsername  string            `yaml:"proxy_username"`
	ProxyPassword  string            `yaml:"proxy_password"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	RPS            int               `yaml:"rps" validate:"gte=0"`
	Burst          int               `yaml:"burst" validate:"gte=0"`
	HighThreadMode bool              `yaml:"-"` // advanced socket options for high concurrency
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type SegHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewSegHTTPClient(cfg HTTPClientConfig) (*SegHTTPClient, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	// cfg.Timeout bounds connection setup and the wait for response headers.
	// Body reads are bounded by the job's chunk timeout, if any.
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				if err := setSocketOptions(fd, SocketBufferSize); err != nil {
					log.Debug().Str("op", "http/client").Err(err).Msgf("could not resize socket buffers for %s", address)
				}
			})
		}
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if cfg.ProxyUsername != "" {
			if cfg.ProxyPassword != "" {
				proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
			} else {
				proxyURL.User = url.User(cfg.ProxyUsername)
			}
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	var rt http.RoundTripper = transport
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.RPS
		}
		throttled, err := NewThrottle(cfg.RPS, burst, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		rt = throttled
	}
	return &SegHTTPClient{
		client: &http.Client{Transport: rt},
		config: cfg,
	}, nil
}

func (d *SegHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		if isReservedHeader(k) {
			continue
		}
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}

// isReservedHeader reports headers the range workers own.
func isReservedHeader(key string) bool {
	return http.CanonicalHeaderKey(strings.TrimSpace(key)) == "Range"
}
