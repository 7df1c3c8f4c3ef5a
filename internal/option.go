package internal

import (
	"io"

	"github.com/starford/nbsync/internal/notebook"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	executor notebook.Executor
	stdout   io.Writer
	logOut   io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithExecutor replaces the jupyter executor built from the config.
func WithExecutor(e notebook.Executor) Option {
	return func(a *application) {
		a.executor = e
	}
}

// WithStdout sets where converted Markdown is written when no output
// directory is given.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithLogOutput sets the destination of the JSON log.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
