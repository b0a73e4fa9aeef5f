package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"fieldmic/internal/domain"
	"fieldmic/internal/ports"
)

// preferredPlayers is searched in order when no player command is configured.
var preferredPlayers = []string{"ffplay", "mpv", "vlc"}

// ExecPlayer plays artifacts by piping them into an external audio player.
type ExecPlayer struct {
	command string
}

// NewExecPlayer uses command if set, otherwise the first player found on PATH.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	if command != "" {
		return &ExecPlayer{command: command}, nil
	}
	for _, candidate := range preferredPlayers {
		if _, err := exec.LookPath(candidate); err == nil {
			return &ExecPlayer{command: candidate}, nil
		}
	}
	return nil, fmt.Errorf("%w: no audio player found (tried: %s)", domain.ErrPlaybackFailure, strings.Join(preferredPlayers, ", "))
}

// Command returns the resolved player binary.
func (p *ExecPlayer) Command() string {
	return p.command
}

func playerArgs(command string) []string {
	switch filepath.Base(command) {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0"}
	case "mpv":
		return []string{"--no-video", "--really-quiet", "-"}
	case "vlc", "cvlc":
		return []string{"--intf", "dummy", "--play-and-exit", "-"}
	default:
		return []string{"-"}
	}
}

// Play starts output and returns immediately. The artifact bytes are streamed on stdin.
func (p *ExecPlayer) Play(ctx context.Context, artifact domain.Artifact) (ports.Playback, error) {
	if artifact.Empty() {
		return nil, fmt.Errorf("%w: empty artifact", domain.ErrPlaybackFailure)
	}

	cmd := exec.Command(p.command, playerArgs(p.command)...)
	cmd.Stdin = bytes.NewReader(artifact.Data)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", domain.ErrPlaybackFailure, p.command, err)
	}

	playback := &execPlayback{
		cmd:      cmd,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	go playback.wait(stderr)
	go func() {
		select {
		case <-ctx.Done():
			_ = playback.Stop()
		case <-playback.finished:
		}
	}()
	return playback, nil
}

type execPlayback struct {
	cmd      *exec.Cmd
	done     chan error
	finished chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (p *execPlayback) wait(stderr *bytes.Buffer) {
	err := p.cmd.Wait()

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()

	switch {
	case stopped:
		p.done <- nil
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			err = fmt.Errorf("%v: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		p.done <- fmt.Errorf("%w: %v", domain.ErrPlaybackFailure, err)
	default:
		p.done <- nil
	}
	close(p.finished)
}

func (p *execPlayback) Done() <-chan error {
	return p.done
}

// Stop kills the player and waits for it to exit.
func (p *execPlayback) Stop() error {
	p.mu.Lock()
	already := p.stopped
	p.stopped = true
	p.mu.Unlock()

	if !already && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.finished
	return nil
}
