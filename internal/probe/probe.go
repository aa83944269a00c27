// Package probe models optional metric sources as an ordered chain of named
// providers. Each provider either answers or reports ErrUnsupported; the
// chain returns the first answer.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/Dicklesworthstone/telelink/internal/logging"
)

// ErrUnsupported is returned by providers whose backing API, tool or sensor
// is absent on this host.
var ErrUnsupported = errors.New("probe: unsupported")

// Provider is a named source of T.
type Provider[T any] interface {
	Name() string
	Probe(ctx context.Context) (T, error)
}

// Func adapts a plain function into a Provider.
type Func[T any] struct {
	ProviderName string
	Fn           func(ctx context.Context) (T, error)
}

func (f Func[T]) Name() string { return f.ProviderName }

func (f Func[T]) Probe(ctx context.Context) (T, error) { return f.Fn(ctx) }

// Chain tries providers in order.
type Chain[T any] struct {
	providers []Provider[T]
	logger    *slog.Logger
}

// NewChain builds a chain. A nil logger discards output.
func NewChain[T any](logger *slog.Logger, providers ...Provider[T]) *Chain[T] {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Chain[T]{providers: providers, logger: logger}
}

// Names lists provider names in probe order.
func (c *Chain[T]) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// First returns the value of the first provider that answers, together with
// that provider's name. When every provider fails the error wraps
// ErrUnsupported.
func (c *Chain[T]) First(ctx context.Context) (T, string, error) {
	var zero T
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := p.Probe(ctx)
		if err == nil {
			return v, p.Name(), nil
		}
		if errors.Is(err, ErrUnsupported) {
			c.logger.Debug("provider unsupported", "provider", p.Name())
		} else {
			c.logger.Debug("provider failed", "provider", p.Name(), "err", err)
		}
	}
	return zero, "", fmt.Errorf("%w: none of %d providers answered", ErrUnsupported, len(c.providers))
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// Exec runs the command on the host.
func Exec(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", ctx.Err()
	}
	return string(out), err
}
