// Package sound plays an audible cue when alerts are surfaced. It shells
// out to an external player (paplay, aplay, mpv) so no audio stack is
// linked into the daemon.
package sound

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	logx "calalert/pkg/logx"
)

// Player plays one cue. Implementations must be safe for concurrent use.
type Player interface {
	Play(ctx context.Context) error
}

// Nop is a Player that does nothing.
type Nop struct{}

func (Nop) Play(context.Context) error { return nil }

// playTimeout bounds a single invocation; a wedged player must not pile
// up processes behind the evaluation loop.
const playTimeout = 10 * time.Second

// CommandPlayer runs an external command for each cue.
type CommandPlayer struct {
	command string
	args    []string
	log     logx.Logger
}

func NewCommandPlayer(command string, args []string, log logx.Logger) (*CommandPlayer, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("sound command is empty")
	}
	return &CommandPlayer{
		command: command,
		args:    append([]string(nil), args...),
		log:     log.With(logx.String("component", "sound")),
	}, nil
}

func (p *CommandPlayer) Play(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, playTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		p.log.Warn("sound playback failed",
			logx.String("command", p.command),
			logx.String("output", strings.TrimSpace(string(out))),
			logx.Err(err))
		return err
	}
	return nil
}
