package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type fakeProc struct {
	pid  int
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	err     error
	signals []os.Signal
	killed  bool
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan struct{})}
}

func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProc) Pid() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProc) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if sig == syscall.SIGTERM {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(errors.New("signal: killed"))
	return nil
}

func (p *fakeProc) got() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeLauncher struct {
	launched chan *fakeProc

	mu   sync.Mutex
	opts []LaunchOptions
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{launched: make(chan *fakeProc, 16)}
}

func (l *fakeLauncher) Launch(_ context.Context, opts LaunchOptions) (Process, error) {
	l.mu.Lock()
	l.opts = append(l.opts, opts)
	p := newFakeProc(1000 + len(l.opts))
	l.mu.Unlock()
	l.launched <- p
	return p, nil
}

func (l *fakeLauncher) options(i int) LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts[i]
}

func (l *fakeLauncher) next(t *testing.T) *fakeProc {
	t.Helper()
	select {
	case p := <-l.launched:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("child was not launched")
		return nil
	}
}

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Send(_ context.Context, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alerts) Sendf(ctx context.Context, format string, args ...any) {
	a.Send(ctx, fmt.Sprintf(format, args...))
}

func (a *alerts) Confirm(context.Context, string, time.Duration) bool { return true }

func (a *alerts) contains(sub string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type failingProber struct{}

func (failingProber) Probe(context.Context) error { return errors.New("connection refused") }

type switchProber struct{ ok atomic.Bool }

func (p *switchProber) Probe(context.Context) error {
	if p.ok.Load() {
		return nil
	}
	return errors.New("connection refused")
}

// fileProber отвечает, когда ребёнок создал файл готовности.
type fileProber struct{ path string }

func (p fileProber) Probe(context.Context) error {
	_, err := os.Stat(p.path)
	return err
}

func childReady(s *Supervisor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	waitWithin(t, 2*time.Second, what, cond)
}

func waitWithin(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func fastConfig() Config {
	return Config{
		Backoff:          5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		EscalateAfter:    5,
		EscalatedBackoff: time.Hour,
		StopTimeout:      time.Second,
	}
}

func start(t *testing.T, s *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, c := range cases {
		if got := Backoff(time.Second, 30*time.Second, c.n); got != c.want {
			t.Errorf("Backoff(n=%d) = %s, want %s", c.n, got, c.want)
		}
	}
}

func TestRestartAfterCrash(t *testing.T) {
	l := newFakeLauncher()
	a := &alerts{}
	s := New(fastConfig(), l, nil, a)
	stop := start(t, s)

	p1 := l.next(t)
	p1.exit(errors.New("exit status 1"))

	p2 := l.next(t)
	waitFor(t, "second child running", func() bool {
		st := s.Status()
		return st.State == StateRunning && st.PID == p2.pid
	})

	st := s.Status()
	if st.Restarts != 1 || st.Consecutive != 1 {
		t.Errorf("restarts=%d consecutive=%d", st.Restarts, st.Consecutive)
	}
	if !strings.Contains(st.LastExit, "exit status 1") {
		t.Errorf("last exit = %q", st.LastExit)
	}
	if !a.contains("упал") || !a.contains("перезапущен") {
		t.Errorf("alerts = %q", a.msgs)
	}

	stop()
	if got := p2.got(); len(got) == 0 || got[0] != syscall.SIGTERM {
		t.Errorf("child must get SIGTERM on stop, got %v", got)
	}
	if s.Status().State != StateStopped {
		t.Errorf("state = %s", s.Status().State)
	}
}

func TestCleanExitIsRestartedToo(t *testing.T) {
	l := newFakeLauncher()
	s := New(fastConfig(), l, nil, &alerts{})
	stop := start(t, s)
	defer stop()

	l.next(t).exit(nil)
	l.next(t)
	if !strings.Contains(s.Status().LastExit, "status 0") {
		t.Errorf("last exit = %q", s.Status().LastExit)
	}
}

func TestArtifactsSurviveRestart(t *testing.T) {
	session := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(session, []byte(`{"ssid":"abc"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := fastConfig()
	cfg.Artifacts = []string{session}
	l := newFakeLauncher()
	s := New(cfg, l, nil, &alerts{})
	stop := start(t, s)
	defer stop()

	l.next(t).exit(errors.New("exit status 2"))
	l.next(t).exit(errors.New("exit status 2"))
	l.next(t)

	data, err := os.ReadFile(session)
	if err != nil {
		t.Fatalf("session artifact lost: %v", err)
	}
	if string(data) != `{"ssid":"abc"}` {
		t.Errorf("session artifact changed: %s", data)
	}
	if s.Status().Restarts != 2 {
		t.Errorf("restarts = %d", s.Status().Restarts)
	}
}

func TestEscalationAfterThreshold(t *testing.T) {
	cfg := fastConfig()
	cfg.EscalateAfter = 2
	l := newFakeLauncher()
	a := &alerts{}
	s := New(cfg, l, nil, a)
	stop := start(t, s)
	defer stop()

	for i := 0; i < 3; i++ {
		l.next(t).exit(errors.New("exit status 1"))
	}
	waitFor(t, "escalated state", func() bool { return s.Status().State == StateEscalated })

	st := s.Status()
	if st.Consecutive != 3 {
		t.Errorf("consecutive = %d", st.Consecutive)
	}
	if time.Until(st.NextStart) < 30*time.Minute {
		t.Errorf("escalated backoff not applied, next start %s", st.NextStart)
	}
	if !a.contains("3 раз подряд") {
		t.Errorf("alerts = %q", a.msgs)
	}

	select {
	case <-l.launched:
		t.Fatal("no restart expected during escalated backoff")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStableRunResetsConsecutive(t *testing.T) {
	cfg := fastConfig()
	cfg.StableAfter = 20 * time.Millisecond
	l := newFakeLauncher()
	s := New(cfg, l, nil, &alerts{})
	stop := start(t, s)
	defer stop()

	l.next(t).exit(errors.New("boom"))
	p2 := l.next(t)
	time.Sleep(40 * time.Millisecond)
	p2.exit(errors.New("boom"))
	l.next(t)

	st := s.Status()
	if st.Restarts != 2 || st.Consecutive != 1 {
		t.Errorf("restarts=%d consecutive=%d", st.Restarts, st.Consecutive)
	}
}

func TestPauseSignalsChildWithoutRestart(t *testing.T) {
	l := newFakeLauncher()
	s := New(fastConfig(), l, nil, &alerts{})
	stop := start(t, s)
	defer stop()

	p1 := l.next(t)
	waitFor(t, "child ready", func() bool { return childReady(s) })

	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	if got := p1.got(); len(got) != 1 || got[0] != syscall.SIGUSR1 {
		t.Fatalf("signals = %v", got)
	}
	if p1.wasKilled() || !s.Status().Paused || s.Status().Restarts != 0 {
		t.Fatalf("pause must not restart: %+v", s.Status())
	}
	select {
	case <-l.launched:
		t.Fatal("pause launched a new child")
	case <-time.After(30 * time.Millisecond):
	}

	if err := s.Resume(); err != nil {
		t.Fatal(err)
	}
	if got := p1.got(); len(got) != 2 || got[1] != syscall.SIGUSR2 {
		t.Fatalf("signals = %v", got)
	}

	// пауза переживает рестарт
	_ = s.Pause()
	p1.exit(errors.New("crash"))
	l.next(t)
	if !l.options(1).Paused {
		t.Error("restarted child must start paused")
	}
}

func TestPauseBeforeStartAppliesOnLaunch(t *testing.T) {
	l := newFakeLauncher()
	s := New(fastConfig(), l, nil, &alerts{})
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	stop := start(t, s)
	defer stop()

	l.next(t)
	if !l.options(0).Paused {
		t.Error("first child must start paused")
	}
}

func TestPauseHeldUntilChildAnswers(t *testing.T) {
	cfg := fastConfig()
	cfg.ProbeEvery = 5 * time.Millisecond
	cfg.ProbeGrace = time.Hour
	prober := &switchProber{}
	l := newFakeLauncher()
	s := New(cfg, l, prober, &alerts{})
	stop := start(t, s)
	defer stop()

	p1 := l.next(t)
	waitFor(t, "child running", func() bool { return s.Status().PID == p1.pid })

	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := p1.got(); len(got) != 0 {
		t.Fatalf("starting child must not get signals, got %v", got)
	}
	if !s.Status().Paused || p1.wasKilled() {
		t.Fatalf("status %+v, killed=%v", s.Status(), p1.wasKilled())
	}

	prober.ok.Store(true)
	waitFor(t, "pending SIGUSR1", func() bool {
		got := p1.got()
		return len(got) == 1 && got[0] == syscall.SIGUSR1
	})
	if s.Status().Restarts != 0 {
		t.Errorf("restarts = %d", s.Status().Restarts)
	}
}

func TestResumeWhileDownReachesNextChild(t *testing.T) {
	l := newFakeLauncher()
	s := New(fastConfig(), l, nil, &alerts{})
	// бот мог сам уйти в паузу по файлу; супервизор обязан снять её после старта
	if err := s.Resume(); err != nil {
		t.Fatal(err)
	}
	stop := start(t, s)
	defer stop()

	p1 := l.next(t)
	if l.options(0).Paused {
		t.Fatal("resumed child must not start paused")
	}
	waitFor(t, "pending SIGUSR2", func() bool {
		got := p1.got()
		return len(got) == 1 && got[0] == syscall.SIGUSR2
	})
}

func TestEarlyPauseDoesNotKillStartingChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	readyFile := filepath.Join(t.TempDir(), "ready")
	cfg := fastConfig()
	cfg.ProbeEvery = 20 * time.Millisecond
	cfg.ProbeGrace = 10 * time.Second
	cfg.ProbeFailures = 3
	l := &ExecLauncher{
		Path: "sh",
		// обработчики ставятся через секунду после старта, как у бота после сборки графа
		Args: []string{"-c", `sleep 1; trap "" USR1 USR2; touch "$READY_FILE"; sleep 5`},
		Env:  []string{"READY_FILE=" + readyFile},
	}
	s := New(cfg, l, fileProber{path: readyFile}, &alerts{})
	stop := start(t, s)
	defer stop()

	waitFor(t, "child running", func() bool { return s.Status().State == StateRunning })
	if err := s.Pause(); err != nil {
		t.Fatal(err)
	}

	waitWithin(t, 5*time.Second, "child ready", func() bool { return childReady(s) })
	time.Sleep(100 * time.Millisecond)

	st := s.Status()
	if st.Restarts != 0 || st.LastExit != "" || st.State != StateRunning {
		t.Fatalf("pause killed the starting child: %+v", st)
	}
	if !st.Paused {
		t.Error("pause flag lost")
	}
}

func TestUnresponsiveChildIsKilled(t *testing.T) {
	cfg := fastConfig()
	cfg.ProbeEvery = 5 * time.Millisecond
	cfg.ProbeFailures = 2
	l := newFakeLauncher()
	a := &alerts{}
	s := New(cfg, l, failingProber{}, a)
	stop := start(t, s)
	defer stop()

	p1 := l.next(t)
	l.next(t)
	if !p1.wasKilled() {
		t.Error("hung child must be killed")
	}
	if !a.contains("не отвечает") {
		t.Errorf("alerts = %q", a.msgs)
	}
}

func TestControlServerAndClient(t *testing.T) {
	s := New(fastConfig(), newFakeLauncher(), nil, &alerts{})
	srv := httptest.NewServer(NewControlMux(s))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	st, err := c.Pause(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Paused || st.State != StateStopped {
		t.Errorf("after pause: %+v", st)
	}
	st, err = c.Status(ctx)
	if err != nil || !st.Paused {
		t.Errorf("status: %+v, %v", st, err)
	}
	st, err = c.Resume(ctx)
	if err != nil || st.Paused {
		t.Errorf("after resume: %+v, %v", st, err)
	}

	resp, err := http.Get(srv.URL + "/pause")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /pause = %d", resp.StatusCode)
	}
}

func TestHTTPProber(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL+"/livez", time.Second)
	if err := p.Probe(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}
	code.Store(http.StatusServiceUnavailable)
	if err := p.Probe(context.Background()); err == nil {
		t.Fatal("503 must fail the probe")
	}
}

func TestExecLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	l := &ExecLauncher{Path: "sh", Args: []string{"-c", "exit 3"}}
	p, err := l.Launch(context.Background(), LaunchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	<-p.Done()
	if p.Err() == nil || !strings.Contains(p.Err().Error(), "exit status 3") {
		t.Errorf("err = %v", p.Err())
	}

	l = &ExecLauncher{Path: "sh", Args: []string{"-c", `test "$PAUSED" = true`}}
	p, err = l.Launch(context.Background(), LaunchOptions{Paused: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Err(); err != nil {
		t.Errorf("child did not see PAUSED=true: %v", err)
	}
}
