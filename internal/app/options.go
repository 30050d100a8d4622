package service

import (
	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of dispatch loops. One keeps subscriber
// callbacks in dispatch order.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAgent sets the seed of the local agent key.
func WithAgent(seed string) Option {
	return func(s *Service) {
		if seed != "" {
			s.agentSeed = seed
		}
	}
}

// WithSQLite makes Start open a SQLite store at path instead of the
// in-memory one.
func WithSQLite(path string) Option {
	return func(s *Service) {
		s.sqlitePath = path
	}
}

// WithStore injects a ready store. Stop closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCatalog replaces the built-in widget catalog.
func WithCatalog(c *widget.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}
