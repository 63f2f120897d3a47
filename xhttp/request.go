package xhttp

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
)

// UserAgentProduct is the product token sent on every request created with [NewRequestWithContext].
const UserAgentProduct = "velesdb-go"

var defaultUserAgent = userAgent(debug.ReadBuildInfo())

func userAgent(bf *debug.BuildInfo, ok bool) string {
	ua := UserAgentProduct
	if !ok {
		return ua + "/0"
	}
	version := "no-version"
	for _, dep := range bf.Deps {
		if dep.Path == "github.com/birdie-ai/velesdb-go" && dep.Version != "" {
			version = dep.Version
		}
	}
	uas := []string{ua + "/" + version}
	if bf.GoVersion != "" {
		uas = append(uas, "Go/"+bf.GoVersion)
	}
	return strings.Join(uas, " ")
}

// NewRequestWithContext calls [http.NewRequestWithContext] and sets an User-Agent header
// following [RFC 7231] in the format: velesdb-go/<module version> Go/<go version>.
//
// [RFC 7231]: https://datatracker.ietf.org/doc/html/rfc7231#section-5.5.3
func NewRequestWithContext(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return req, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	return req, nil
}
