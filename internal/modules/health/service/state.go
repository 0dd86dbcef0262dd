package service

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"signal_bot/pkg/logger"
)

// State: общее состояние процесса. Флаг паузы меняют команды оператора и сигналы ОС,
// а читают планировщик и движок мартингейла. Всё через атомики.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	pauseMu   sync.Mutex
	pauseFile string
	paused    atomic.Bool

	channelsEnabled   atomic.Bool
	platformConnected atomic.Bool
	lastBeatUnixNano  atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	s.channelsEnabled.Store(true)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// KeepPauseIn привязывает флаг паузы к файлу: файл есть, значит пауза.
// Флаг из файла применяется сразу, дальше SetPaused создаёт и удаляет файл.
func (s *State) KeepPauseIn(path string) {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()

	s.pauseFile = path
	if _, err := os.Stat(path); err == nil {
		s.paused.Store(true)
		logger.Warn("[STATE] pause restored from %s", path)
	}
}

// SetPaused возвращает предыдущее значение.
func (s *State) SetPaused(v bool) bool {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()

	prev := s.paused.Swap(v)
	if prev != v && s.pauseFile != "" {
		if err := savePause(s.pauseFile, v); err != nil {
			logger.Error("[STATE] persist pause=%v: %v", v, err)
		}
	}
	return prev
}

func (s *State) Paused() bool { return s.paused.Load() }

func savePause(path string, paused bool) error {
	if !paused {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove pause file")
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	return errors.Wrap(os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o600), "write pause file")
}

func (s *State) SetChannelsEnabled(v bool) { s.channelsEnabled.Store(v) }
func (s *State) ChannelsEnabled() bool     { return s.channelsEnabled.Load() }

// ToggleChannels переключает мониторинг каналов и возвращает новое значение.
func (s *State) ToggleChannels() bool {
	for {
		cur := s.channelsEnabled.Load()
		if s.channelsEnabled.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

func (s *State) SetPlatformConnected(v bool) { s.platformConnected.Store(v) }
func (s *State) PlatformConnected() bool     { return s.platformConnected.Load() }

// Beat: пульс конвейера, его смотрит /livez.
func (s *State) Beat(t time.Time) { s.lastBeatUnixNano.Store(t.UnixNano()) }

func (s *State) LastBeat() time.Time {
	u := s.lastBeatUnixNano.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(0, u)
}

// Alive: пульса ещё не было (старт) или он свежее timeout.
func (s *State) Alive(now time.Time, timeout time.Duration) bool {
	last := s.LastBeat()
	if last.IsZero() {
		return now.Sub(s.startedAt) <= timeout
	}
	return now.Sub(last) <= timeout
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
