package supervisor

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"signal_bot/internal/metrics"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

var ErrCleanExit = errors.New("child exited with status 0")

type Config struct {
	Backoff          time.Duration // пауза перед первым рестартом
	MaxBackoff       time.Duration // потолок обычного backoff
	EscalateAfter    int           // падений подряд до эскалации
	EscalatedBackoff time.Duration
	StableAfter      time.Duration // столько проработал: счётчик подряд обнуляется
	ProbeEvery       time.Duration
	ProbeGrace       time.Duration // после старта не пробуем
	ProbeFailures    int
	StopTimeout      time.Duration // SIGTERM -> SIGKILL
	Artifacts        []string      // файлы, которые должны пережить рестарт
}

func (c *Config) normalize() {
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.EscalatedBackoff < c.MaxBackoff {
		c.EscalatedBackoff = c.MaxBackoff
	}
	if c.ProbeFailures < 1 {
		c.ProbeFailures = 1
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// Supervisor: конечный автомат Running -> Backoff|Escalated -> Restarting -> Running.
// Рестарт только на реальное завершение процесса; пауза: сигнал ребёнку.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	prober   Prober
	notifier notify.Notifier

	mu     sync.Mutex
	status Status
	proc   Process
	// ready: ребёнок ответил на пробу, сигналы ему уже безопасны
	ready bool
	// pending: пауза менялась, пока ребёнок не был готов; доставить при готовности
	pending bool
}

func New(cfg Config, launcher Launcher, prober Prober, n notify.Notifier) *Supervisor {
	cfg.normalize()
	if n == nil {
		n = notify.NewStdout()
	}
	return &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		prober:   prober,
		notifier: n,
		status:   Status{State: StateStopped},
	}
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run крутит цикл до отмены ctx; при отмене останавливает ребёнка.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.setState(StateRestarting)
		startedAt := time.Now()
		exitErr := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped)
			logger.Info("[SUP] stopped")
			return nil
		}

		delay := s.recordExit(ctx, exitErr, time.Since(startedAt))
		s.checkArtifacts()

		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	proc, err := s.launcher.Launch(ctx, LaunchOptions{Paused: s.Status().Paused})
	if err != nil {
		logger.Error("[SUP] launch: %v", err)
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.ready = false
	if s.pending && s.status.Paused {
		// PAUSED=true уже в окружении
		s.pending = false
	}
	s.status.PID = proc.Pid()
	s.status.StartedAt = time.Now()
	s.status.State = StateRunning
	restarts := s.status.Restarts
	s.mu.Unlock()
	publishState(StateRunning)

	logger.Info("[SUP] child started pid=%d", proc.Pid())
	if restarts > 0 {
		s.notifier.Sendf(ctx, "✅ Бот перезапущен (pid %d, рестартов всего %d)", proc.Pid(), restarts)
	}

	defer func() {
		s.mu.Lock()
		s.proc = nil
		s.ready = false
		s.status.PID = 0
		s.mu.Unlock()
	}()
	return s.watch(ctx, proc)
}

func (s *Supervisor) watch(ctx context.Context, proc Process) error {
	var tick <-chan time.Time
	if s.prober != nil && s.cfg.ProbeEvery > 0 {
		t := time.NewTicker(s.cfg.ProbeEvery)
		defer t.Stop()
		tick = t.C
	}
	// без пробы готовность наступает по истечении ProbeGrace
	var graceOver <-chan time.Time
	if tick == nil {
		graceOver = time.After(s.cfg.ProbeGrace)
	}
	started := time.Now()
	failures := 0
	ready := false

	for {
		select {
		case <-proc.Done():
			if err := proc.Err(); err != nil {
				return err
			}
			return ErrCleanExit
		case <-ctx.Done():
			s.stop(proc)
			return ctx.Err()
		case <-graceOver:
			graceOver = nil
			ready = true
			s.markReady(proc)
		case <-tick:
			inGrace := time.Since(started) < s.cfg.ProbeGrace
			if inGrace && ready {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeEvery)
			err := s.prober.Probe(pctx)
			cancel()
			if err == nil {
				failures = 0
				if !ready {
					ready = true
					s.markReady(proc)
				}
				continue
			}
			// в grace провал пробы значит только "ещё стартует"
			if inGrace {
				continue
			}
			failures++
			logger.Warn("[SUP] probe failed (%d/%d): %v", failures, s.cfg.ProbeFailures, err)
			if failures >= s.cfg.ProbeFailures {
				logger.Error("[SUP] pid=%d unresponsive, killing", proc.Pid())
				s.notifier.Sendf(ctx, "🧟 Бот не отвечает (%d проверок подряд), убиваю pid %d", failures, proc.Pid())
				if err := proc.Kill(); err != nil {
					logger.Error("[SUP] kill: %v", err)
				}
				failures = 0
			}
		}
	}
}

// stop: SIGTERM, по таймауту SIGKILL.
func (s *Supervisor) stop(proc Process) {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		logger.Warn("[SUP] sigterm: %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(s.cfg.StopTimeout):
		logger.Warn("[SUP] pid=%d ignored SIGTERM, killing", proc.Pid())
		_ = proc.Kill()
		<-proc.Done()
	}
}

// recordExit считает падение и возвращает паузу до следующего старта.
func (s *Supervisor) recordExit(ctx context.Context, exitErr error, ran time.Duration) time.Duration {
	s.mu.Lock()
	if s.cfg.StableAfter > 0 && ran >= s.cfg.StableAfter {
		s.status.Consecutive = 0
	}
	s.status.Consecutive++
	s.status.Restarts++
	s.status.LastExit = exitErr.Error()
	n := s.status.Consecutive

	delay := Backoff(s.cfg.Backoff, s.cfg.MaxBackoff, n)
	state := StateBackoff
	if s.cfg.EscalateAfter > 0 && n > s.cfg.EscalateAfter {
		delay = s.cfg.EscalatedBackoff
		state = StateEscalated
	}
	s.status.State = state
	s.status.NextStart = time.Now().Add(delay)
	s.mu.Unlock()

	publishState(state)
	metrics.SupervisorRestarts.Inc()

	if state == StateEscalated {
		logger.Error("[SUP] %d crashes in a row, escalated backoff %s: %v", n, delay, exitErr)
		s.notifier.Sendf(ctx, "🚨 Бот падает %d раз подряд (%v). Следующий старт через %s", n, exitErr, delay)
		return delay
	}
	logger.Warn("[SUP] child exited: %v, restart in %s (consecutive=%d)", exitErr, delay, n)
	s.notifier.Sendf(ctx, "💥 Бот упал: %v. Перезапуск через %s", exitErr, delay)
	return delay
}

// checkArtifacts только проверяет наличие: сессия и прочие файлы на диске переживают рестарт.
func (s *Supervisor) checkArtifacts() {
	for _, path := range s.cfg.Artifacts {
		if _, err := os.Stat(path); err != nil {
			logger.Warn("[SUP] artifact %s: %v", path, err)
			continue
		}
		logger.Debug("[SUP] artifact %s kept", path)
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
	publishState(st)
}

// Pause шлёт ребёнку SIGUSR1; флаг переживает рестарт (PAUSED=true при запуске).
func (s *Supervisor) Pause() error { return s.setPaused(true) }

// Resume шлёт SIGUSR2.
func (s *Supervisor) Resume() error { return s.setPaused(false) }

func pauseSignal(paused bool) os.Signal {
	if paused {
		return syscall.SIGUSR1
	}
	return syscall.SIGUSR2
}

// setPaused до готовности ребёнка только запоминает флаг: SIGUSR1 без обработчика убивает процесс.
func (s *Supervisor) setPaused(v bool) error {
	s.mu.Lock()
	s.status.Paused = v
	proc := s.proc
	if proc == nil || !s.ready {
		s.pending = true
		s.mu.Unlock()
		logger.Info("[SUP] paused=%v, applies when child is ready", v)
		return nil
	}
	s.mu.Unlock()

	sig := pauseSignal(v)
	if err := proc.Signal(sig); err != nil {
		return errors.Wrapf(err, "signal pid %d", proc.Pid())
	}
	logger.Info("[SUP] paused=%v, sent %v to pid=%d", v, sig, proc.Pid())
	return nil
}

// markReady открывает доставку сигналов и отдаёт отложенную смену паузы.
func (s *Supervisor) markReady(proc Process) {
	s.mu.Lock()
	if s.proc != proc {
		s.mu.Unlock()
		return
	}
	s.ready = true
	pending, paused := s.pending, s.status.Paused
	s.pending = false
	s.mu.Unlock()

	logger.Debug("[SUP] pid=%d ready", proc.Pid())
	if !pending {
		return
	}
	sig := pauseSignal(paused)
	if err := proc.Signal(sig); err != nil {
		logger.Warn("[SUP] deliver pending %v to pid=%d: %v", sig, proc.Pid(), err)
		return
	}
	logger.Info("[SUP] paused=%v, sent pending %v to pid=%d", paused, sig, proc.Pid())
}
