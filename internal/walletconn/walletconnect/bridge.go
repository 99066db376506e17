package walletconnect

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%c.bridge.walletconnect.org"
)

// RandomBridgeURL picks one of the public v1 bridge shards
func RandomBridgeURL() string {
	return fmt.Sprintf(bridgeURLFormat, alphanumerical[rand.IntN(len(alphanumerical))])
}

// websocketURL converts a bridge http(s) URL to its websocket endpoint
func websocketURL(bridge string) (string, error) {
	u, err := url.Parse(bridge)
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("protocol", "wc")
	q.Set("version", "1")
	q.Set("env", "cli")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
