package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Process: запущенный дочерний процесс.
type Process interface {
	Pid() int
	// Done закрывается при завершении процесса; Err после этого: причина выхода.
	Done() <-chan struct{}
	Err() error
	Signal(sig os.Signal) error
	Kill() error
}

type LaunchOptions struct {
	// Paused: стартовать на паузе (PAUSED=true в окружении ребёнка)
	Paused bool
}

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Process, error)
}

// ExecLauncher запускает бинарник бота через os/exec.
type ExecLauncher struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

func (l *ExecLauncher) Launch(_ context.Context, opts LaunchOptions) (Process, error) {
	// без CommandContext: остановкой ребёнка управляет супервизор
	cmd := exec.Command(l.Path, l.Args...)
	cmd.Dir = l.Dir
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.Env = append(os.Environ(), l.Env...)
	if opts.Paused {
		cmd.Env = append(cmd.Env, "PAUSED=true")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", l.Path)
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}

func (p *execProcess) Signal(sig os.Signal) error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}
