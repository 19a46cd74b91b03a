package account

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
)

// Proxies is an ordered list of egress proxy URLs. Accounts are assigned by index
// modulo the list length; an empty list means direct connections.
type Proxies []string

// For returns the proxy for the account at index i, or "" for direct.
func (p Proxies) For(i int) string {
	if len(p) == 0 || i < 0 {
		return ""
	}
	return p[i%len(p)]
}

// IsSOCKS reports whether a proxy URL uses one of the socks schemes.
func IsSOCKS(proxyURL string) bool {
	return strings.HasPrefix(strings.ToLower(proxyURL), "socks")
}

// ParseProxies reads newline-delimited proxy URLs. Lines with an unsupported
// scheme or no host are reported in invalid and skipped.
func ParseProxies(r io.Reader) (proxies Proxies, invalid []int, err error) {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		u, perr := url.Parse(text)
		if perr != nil || u.Host == "" || !supportedScheme(u.Scheme) {
			invalid = append(invalid, line)
			continue
		}
		proxies = append(proxies, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read proxies: %w", err)
	}
	return proxies, invalid, nil
}

func supportedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "socks4", "socks5", "socks5h":
		return true
	}
	return false
}

// LoadProxies reads proxies from path. A missing file yields an empty list.
func LoadProxies(path string) (Proxies, []int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open proxies file: %w", err)
	}
	defer f.Close()
	return ParseProxies(f)
}
