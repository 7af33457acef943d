package bootstrap

import (
	"time"

	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/store"
	"github.com/kbukum/recipeflow/storage"
)

// Option configures the Engine during creation.
type Option func(*engineOptions)

type engineOptions struct {
	logger          *logger.Logger
	store           store.Store
	storage         storage.Storage
	providers       map[string]provider.Capability
	gracefulTimeout *time.Duration
}

func resolveOptions(opts []Option) *engineOptions {
	o := &engineOptions{providers: make(map[string]provider.Capability)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger. If not set, the logger is built from
// the config's logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithStore replaces the configured store driver.
func WithStore(s store.Store) Option {
	return func(o *engineOptions) { o.store = s }
}

// WithStorage replaces the configured artifact storage.
func WithStorage(s storage.Storage) Option {
	return func(o *engineOptions) { o.storage = s }
}

// WithProvider registers a ready provider instance under name. It is
// wrapped with the same middleware as factory-built providers.
func WithProvider(name string, p provider.Capability) Option {
	return func(o *engineOptions) { o.providers[name] = p }
}

// WithGracefulTimeout bounds Shutdown when RunTask finishes.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.gracefulTimeout = &d }
}
