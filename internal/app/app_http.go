package app

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"vpatient/internal/vpclient"
)

// ── Activity page proxy ────────────────────────────────────
// The webview loads activity pages through the Wails asset server so they
// share an origin with the bindings. HTML pages get the Wails runtime and
// the page bridge injected before </head>.

const bridgeScripts = `<script src="/wails/ipc.js"></script>` +
	`<script src="/wails/runtime.js"></script>` +
	`<script src="/vpbridge.js"></script>`

// maxInjectSize bounds the HTML pages buffered for injection.
const maxInjectSize = 8 << 20

// newActivityProxy forwards to baseURL. A non-empty user is sent on every
// request so pages render the trainee's saved state.
func newActivityProxy(baseURL, user string) (http.Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		// Let the transport negotiate and decode compression so pages
		// arrive as plain HTML.
		req.Header.Del("Accept-Encoding")
		if user != "" {
			req.Header.Set(vpclient.UserHeader, user)
		}
	}
	proxy.ModifyResponse = injectBridge
	return proxy, nil
}

func injectBridge(resp *http.Response) error {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInjectSize))
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}

	if i := bytes.Index(bytes.ToLower(body), []byte("</head>")); i >= 0 {
		var out bytes.Buffer
		out.Grow(len(body) + len(bridgeScripts))
		out.Write(body[:i])
		out.WriteString(bridgeScripts)
		out.Write(body[i:])
		body = out.Bytes()
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}
