package supervisor

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal_bot/pkg/logger"
)

// NewControlMux: /status, /pause, /resume и /metrics супервизора.
func NewControlMux(s *Supervisor) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, s.Status())
	})
	mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		control(w, r, s, s.Pause)
	})
	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		control(w, r, s, s.Resume)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func control(w http.ResponseWriter, r *http.Request, s *Supervisor, fn func() error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := fn(); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeStatus(w, s.Status())
}

func writeStatus(w http.ResponseWriter, st Status) {
	body, err := sonic.Marshal(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// ServeControl слушает addr до отмены ctx.
func ServeControl(ctx context.Context, addr string, mux *http.ServeMux) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	logger.Info("[SUP] control on %s", addr)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Client: CLI-клиент control-сервера.
type Client struct {
	r *resty.Client
}

func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	r := resty.New()
	r.SetBaseURL(base)
	r.SetTimeout(5 * time.Second)
	r.SetJSONMarshaler(sonic.Marshal)
	r.SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{r: r}
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	return c.do(ctx, http.MethodGet, "/status")
}

func (c *Client) Pause(ctx context.Context) (Status, error) {
	return c.do(ctx, http.MethodPost, "/pause")
}

func (c *Client) Resume(ctx context.Context) (Status, error) {
	return c.do(ctx, http.MethodPost, "/resume")
}

func (c *Client) do(ctx context.Context, method, path string) (Status, error) {
	var st Status
	resp, err := c.r.R().
		SetContext(ctx).
		SetResult(&st).
		Execute(method, path)
	if err != nil {
		return Status{}, errors.Wrap(err, path)
	}
	if resp.IsError() {
		return Status{}, errors.Errorf("%s: %s %s", path, resp.Status(), strings.TrimSpace(resp.String()))
	}
	return st, nil
}
