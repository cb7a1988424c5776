package executor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// newProxyAwareHTTPClient returns a client routed through proxyURL when one is
// configured. http and https proxies use the transport's CONNECT support;
// socks5 proxies dial through golang.org/x/net/proxy. An unusable proxy URL is
// logged and the client falls back to a direct connection.
func newProxyAwareHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Transport: transport, Timeout: timeout}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return client
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		log.Errorf("cursor client: invalid proxy-url %q, connecting directly: %v", proxyURL, err)
		return client
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, errDialer := socksDialer(u)
		if errDialer != nil {
			log.Errorf("cursor client: socks5 proxy %q unusable, connecting directly: %v", u.Host, errDialer)
			return client
		}
		transport.Proxy = nil
		transport.DialContext = dialer
	default:
		log.Errorf("cursor client: unsupported proxy scheme %q, connecting directly", u.Scheme)
	}
	return client
}

func socksDialer(u *url.URL) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// describeProxy renders proxyURL without credentials for logging.
func describeProxy(proxyURL string) string {
	u, err := url.Parse(strings.TrimSpace(proxyURL))
	if err != nil || u.Host == "" {
		return "direct"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
