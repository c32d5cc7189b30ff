package bybit

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL  string // e.g. https://api.bybit.com
	Category string // linear, inverse or spot; empty means linear
	HTTP     *http.Client
	Now      func() time.Time
}

func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "main", "mainnet", "live":
		return "https://api.bybit.com", nil
	case "test", "testnet":
		return "https://api-testnet.bybit.com", nil
	default:
		return "", fmt.Errorf("unknown Bybit env %q (want mainnet|testnet)", env)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Client) category() string {
	if c.Category == "" {
		return "linear"
	}
	return c.Category
}
