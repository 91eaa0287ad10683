package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/drblury/flowgate/internal/gateway/response"
	"github.com/drblury/flowgate/internal/runtime/jsoncodec"
	"github.com/drblury/flowgate/internal/runtime/logging"
	"github.com/drblury/flowgate/internal/runtime/metadata"
)

// HTTPPayload configures one forwarding step.
type HTTPPayload struct {
	// Host is an origin such as https://inventory:8443. When empty the origin
	// of the incoming request URL is used.
	Host string `json:"host"`
	// Method defaults to the incoming method.
	Method string `json:"method"`
	// TargetURL is the upstream path and query. When empty the incoming path
	// and query are forwarded as they are.
	TargetURL string            `json:"targetUrl"`
	Headers   map[string]string `json:"headers"`
}

// HTTP forwards the request body, merged with extracted outputs, to an
// upstream service and relays its status, body and headers.
type HTTP struct {
	name   string
	pools  *HostPools
	logger logging.ServiceLogger
}

// NewHTTP returns an HTTP strategy registered under name, or "http".
func NewHTTP(name string, pools *HostPools, logger logging.ServiceLogger) *HTTP {
	if name == "" {
		name = "http"
	}
	return &HTTP{name: name, pools: pools, logger: logging.WithComponent(logger, "strategy."+name)}
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) HandleRequest(ctx context.Context, req Request, requestURL string, outputs Outputs, payload Payload) (response.Response, error) {
	var p HTTPPayload
	if err := payload.Decode(&p); err != nil {
		return response.Response{}, fmt.Errorf("%s: decode payload: %w", h.name, err)
	}
	target, err := resolveTarget(p, requestURL)
	if err != nil {
		return response.Response{}, fmt.Errorf("%s: %w", h.name, err)
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = strings.ToUpper(req.Method)
	}
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		raw, err := jsoncodec.Marshal(Compose(req, outputs))
		if err != nil {
			return response.Response{}, fmt.Errorf("%s: encode body: %w", h.name, err)
		}
		body = bytes.NewReader(raw)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return response.Response{}, fmt.Errorf("%s: %w", h.name, err)
	}
	for k, v := range req.Headers {
		if !hopByHop(k) {
			upstreamReq.Header.Set(k, v)
		}
	}
	metadata.Metadata(p.Headers).ApplyTo(upstreamReq.Header)
	if body != nil {
		upstreamReq.Header.Set("Content-Type", "application/json")
	}

	client := h.pools.Client(target.Scheme + "://" + target.Host)
	resp, err := client.Do(upstreamReq)
	if err != nil {
		return response.Response{}, fmt.Errorf("%s: %s %s: %w", h.name, method, target.Host, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response.Response{}, fmt.Errorf("%s: read upstream body: %w", h.name, err)
	}

	h.logger.Debug("Upstream responded", logging.LogFields{
		"method": method,
		"target": target.Redacted(),
		"status": resp.StatusCode,
	})

	headers := resp.Header.Clone()
	for k := range headers {
		if hopByHop(k) {
			headers.Del(k)
		}
	}
	return response.Relay(resp.StatusCode, decodeUpstreamBody(raw), headers), nil
}

func resolveTarget(p HTTPPayload, requestURL string) (*url.URL, error) {
	incoming, err := url.Parse(requestURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}

	origin := incoming
	if p.Host != "" {
		host := p.Host
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		if origin, err = url.Parse(host); err != nil {
			return nil, fmt.Errorf("parse host %q: %w", p.Host, err)
		}
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("no upstream host for %q", requestURL)
	}

	target := &url.URL{Scheme: origin.Scheme, Host: origin.Host}
	if target.Scheme == "" {
		target.Scheme = "http"
	}
	if p.TargetURL == "" {
		target.Path = incoming.Path
		target.RawQuery = incoming.RawQuery
		return target, nil
	}
	ref, err := url.Parse(p.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse targetUrl %q: %w", p.TargetURL, err)
	}
	target.Path = ref.Path
	target.RawQuery = ref.RawQuery
	return target, nil
}

func decodeUpstreamBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var doc any
	if err := jsoncodec.Unmarshal(raw, &doc); err != nil {
		return string(raw)
	}
	return doc
}

// hopByHop also covers the encoding headers: the client transport negotiates
// compression and hands back decoded bodies.
func hopByHop(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "keep-alive", "proxy-connection", "proxy-authenticate",
		"proxy-authorization", "te", "trailer", "transfer-encoding", "upgrade",
		"content-length", "host", "accept-encoding", "content-encoding":
		return true
	}
	return false
}
