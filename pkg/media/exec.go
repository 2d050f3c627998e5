package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"

	"github.com/blesnip/leaudio-snippet/internal/log"
)

// FilePlaceholder is replaced by the local path of the media file in player command lines.
const FilePlaceholder = "{file}"

// DefaultCommand plays a file through the system's default PulseAudio/PipeWire sink, which is
// where a connected LE Audio device shows up.
const DefaultCommand = "paplay {file}"

// ExecPlayer plays media by running an external command.
type ExecPlayer struct {
	command []string
	fetcher *Fetcher

	lock    sync.Mutex
	current *playback
}

type playback struct {
	uri    string
	cmd    *exec.Cmd
	paused bool
	done   chan struct{}
}

func (p *playback) finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// NewExecPlayer parses commandLine with shell quoting rules. If commandLine does not contain
// FilePlaceholder the file path is appended as the last argument. fetcher resolves remote URIs;
// without one only local media can be played.
func NewExecPlayer(commandLine string, fetcher *Fetcher) (*ExecPlayer, error) {
	command, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("media: invalid player command: %w", err)
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("media: empty player command")
	}
	if !strings.Contains(commandLine, FilePlaceholder) {
		command = append(command, FilePlaceholder)
	}
	return &ExecPlayer{command: command, fetcher: fetcher}, nil
}

func (p *ExecPlayer) resolve(ctx context.Context, uri string) (string, error) {
	if p.fetcher != nil {
		return p.fetcher.Resolve(ctx, uri)
	}
	return resolveLocal(uri)
}

func (p *ExecPlayer) Play(ctx context.Context, uri string) error {
	path, err := p.resolve(ctx, uri)
	if err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopLocked()

	args := make([]string, len(p.command))
	for i, arg := range p.command {
		args[i] = strings.ReplaceAll(arg, FilePlaceholder, path)
	}
	// Playback outlives the RPC, so the command is not bound to ctx.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("media: failed to start player: %w", err)
	}

	current := &playback{uri: uri, cmd: cmd, done: make(chan struct{})}
	p.current = current
	log.Info("Playing %s", uri)
	go func() {
		err := cmd.Wait()
		close(current.done)
		if err != nil {
			log.Debug("Player for %s exited: %s", current.uri, err)
		} else {
			log.Debug("Finished playing %s", current.uri)
		}
	}()
	return nil
}

func (p *ExecPlayer) Pause() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.current == nil || p.current.finished() {
		return ErrNotPlaying
	}
	if p.current.paused {
		return nil
	}
	if err := suspend(p.current.cmd.Process); err != nil {
		return fmt.Errorf("media: failed to pause: %w", err)
	}
	p.current.paused = true
	log.Info("Paused %s", p.current.uri)
	return nil
}

func (p *ExecPlayer) Stop() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopLocked()
	return nil
}

func (p *ExecPlayer) stopLocked() {
	current := p.current
	if current == nil {
		return
	}
	p.current = nil
	if current.finished() {
		return
	}
	// SIGKILL is delivered to stopped processes too, so a paused player needs no resume first.
	if err := current.cmd.Process.Kill(); err != nil {
		log.Warning("media: failed to stop player: %s", err)
	}
	<-current.done
	log.Info("Stopped %s", current.uri)
}

// State reports what the player is doing.
func (p *ExecPlayer) State() State {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch {
	case p.current == nil || p.current.finished():
		return StateIdle
	case p.current.paused:
		return StatePaused
	}
	return StatePlaying
}
