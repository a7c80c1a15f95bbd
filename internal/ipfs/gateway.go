package ipfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"planet/internal/services"
)

const maxGatewayBody = 64 << 20

// Gateway reads published content through the daemon's local HTTP gateway.
type Gateway struct {
	doer      HTTPDoer
	endpoints *Endpoints
	timeout   time.Duration
	maxBody   int64
}

// NewGateway constructs a gateway reader. A nil doer uses http.DefaultClient.
func NewGateway(endpoints *Endpoints, doer HTTPDoer, timeout time.Duration) *Gateway {
	if doer == nil {
		doer = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{doer: doer, endpoints: endpoints, timeout: timeout, maxBody: maxGatewayBody}
}

// NamePath returns the gateway path of a file below an IPNS name.
func NamePath(address, file string) string {
	p := "/ipns/" + url.PathEscape(address)
	if file != "" {
		p += "/" + file
	}
	return p
}

// URL returns the absolute gateway URL for path.
func (g *Gateway) URL(path string) string {
	return g.endpoints.GatewayURL() + path
}

// FeedManifest fetches feed.json published under address.
func (g *Gateway) FeedManifest(ctx context.Context, address string) ([]byte, error) {
	body, status, err := g.get(ctx, NamePath(address, "feed.json"))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, services.Wrap(services.ErrNotFound, "gateway", "feed.json", fmt.Sprintf("status %d", status), nil)
	}
	return body, nil
}

// Avatar fetches avatar.png published under address. ok is false when the
// gateway does not answer 200.
func (g *Gateway) Avatar(ctx context.Context, address string) ([]byte, bool, error) {
	body, status, err := g.get(ctx, NamePath(address, "avatar.png"))
	if err != nil {
		return nil, false, err
	}
	return body, status == http.StatusOK, nil
}

// ArticleJSON fetches <articleID>/article.json published under address.
func (g *Gateway) ArticleJSON(ctx context.Context, address, articleID string) ([]byte, error) {
	body, status, err := g.get(ctx, NamePath(address, articleID+"/article.json"))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, services.Wrap(services.ErrNotFound, "gateway", "article.json", fmt.Sprintf("status %d", status), nil)
	}
	return body, nil
}

// Reachable reports whether the gateway answers 200 for path.
func (g *Gateway) Reachable(ctx context.Context, path string) bool {
	_, status, err := g.get(ctx, path)
	return err == nil && status == http.StatusOK
}

func (g *Gateway) get(ctx context.Context, path string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.URL(path), nil)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrValidation, "gateway", path, "build request", err)
	}
	resp, err := g.doer.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, 0, services.Wrap(services.ErrTimeout, "gateway", path, fmt.Sprintf("no response within %s", g.timeout), err)
		}
		return nil, 0, services.Wrap(services.ErrTransient, "gateway", path, "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, services.Wrap(services.ErrTransient, "gateway", path, "read body", err)
	}
	if int64(len(body)) > g.maxBody {
		return nil, resp.StatusCode, services.Wrap(services.ErrDecode, "gateway", path,
			fmt.Sprintf("response larger than %d bytes", g.maxBody), nil)
	}
	return body, resp.StatusCode, nil
}
