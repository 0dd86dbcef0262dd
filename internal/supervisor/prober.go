package supervisor

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Prober: liveness-проверка ребёнка.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber дёргает /livez бота.
type HTTPProber struct {
	client *resty.Client
	url    string
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	client := resty.New()
	client.SetTimeout(timeout)
	return &HTTPProber{client: client, url: url}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return errors.Wrap(err, "probe")
	}
	if resp.StatusCode() != 200 {
		return errors.Errorf("probe %s: status %d", p.url, resp.StatusCode())
	}
	return nil
}
