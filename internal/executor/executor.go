package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxStderr = 4096

type Executor struct {
	logger *log.Entry
}

func NewExecutor(logger *log.Entry) *Executor {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Executor{logger: logger}
}

// Output runs the command to completion and returns its stdout. The error carries the tail of stderr.
func (e *Executor) Output(ctx context.Context, command *Cmd) ([]byte, error) {
	e.logger.Debugf("> %s", command)

	start := time.Now()

	var outb, errb bytes.Buffer

	cmd := exec.CommandContext(ctx, command.Binary, command.args...)
	cmd.Stdout = &outb
	cmd.Stderr = &errb
	cmd.Env = append(os.Environ(), command.envs...)
	err := cmd.Run()

	e.logger.WithField("duration", time.Since(start)).Debugf("< %s", command.Binary)

	if err != nil {
		return nil, errors.Wrapf(err, "error executing %s: %s", command.Binary, Tail(errb.String(), maxStderr))
	}

	return outb.Bytes(), nil
}

type Cmd struct {
	Binary string
	args   []string
	envs   []string
}

func (c *Cmd) Add(args ...string) {
	c.args = append(c.args, args...)
}

func (c *Cmd) Env(env string) {
	c.envs = append(c.envs, env)
}

func (c *Cmd) Command() []string {
	return c.args
}

func (c *Cmd) Envs() []string {
	return c.envs
}

func (c *Cmd) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.args, " "))
}

// Tail keeps the last n bytes of s.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)

	if len(s) <= n {
		return s
	}

	return "..." + s[len(s)-n:]
}
