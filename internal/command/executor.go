// Package command runs external programs. The match runner uses it to
// drive the battle engine CLI without coupling the rest of the code to
// os/exec.
package command

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer(
	"github.com/algobattle/algobattle-server/internal/command",
)

type Result struct {
	Cmd      []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

type Command struct {
	Stdin   io.Reader
	Dir     string
	Program string
	Args    []string
}

func New(program string, args ...string) *Command {
	return &Command{
		Program: program,
		Args:    args,
	}
}

type Executor interface {
	Execute(ctx context.Context, cmd *Command) (*Result, error)
}
