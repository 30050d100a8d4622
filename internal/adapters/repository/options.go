package repository

import (
	"time"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// settings are shared by every store implementation.
type settings struct {
	agent  model.AgentPubKey
	clock  func() time.Time
	logger logger.Logger
}

func defaultSettings() settings {
	return settings{
		agent:  model.AgentKeyFromSeed("local"),
		clock:  time.Now,
		logger: logger.OrGlobal(nil).Named("store"),
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithAgent sets the agent that authors writes and scopes "my" queries.
func WithAgent(agent model.AgentPubKey) Option {
	return func(s *settings) {
		if !agent.IsZero() {
			s.agent = agent
		}
	}
}

// WithClock sets the time source used to stamp assessments.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
