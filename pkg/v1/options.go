package v1

import (
	"io"

	"github.com/4thel00z/docchat/internal"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope     string
	model     string
	user      string
	logOutput io.Writer
	engine    []internal.EngineOption
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithModel selects the chat model by catalog label.
func WithModel(label string) Option {
	return func(c *clientConfig) {
		c.model = label
	}
}

// WithUser sets the owner of sessions started by the client.
func WithUser(name string) Option {
	return func(c *clientConfig) {
		c.user = name
	}
}

// WithLogOutput sends engine logs to w. Logs are discarded by default.
func WithLogOutput(w io.Writer) Option {
	return func(c *clientConfig) {
		c.logOutput = w
	}
}

func withEngineOptions(opts ...internal.EngineOption) Option {
	return func(c *clientConfig) {
		c.engine = append(c.engine, opts...)
	}
}
