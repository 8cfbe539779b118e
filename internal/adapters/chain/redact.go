package chain

import "net/url"

// redact strips the path and query of an endpoint URL, which usually carry the API key.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "rpc"
	}
	return u.Scheme + "://" + u.Host
}
