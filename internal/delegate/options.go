package delegate

import (
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

type options struct {
	scheduler subscriber.Scheduler
	logger    logger.Logger
	initial   *model.Assessment
}

// Option configures a delegate.
type Option func(*options)

// WithScheduler sets where subscriber callbacks run. Without it callbacks run
// inline.
func WithScheduler(s subscriber.Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithLogger sets the delegate logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInitialAssessment seeds the input delegate's local cache. Output
// delegates ignore it.
func WithInitialAssessment(a *model.Assessment) Option {
	return func(o *options) {
		if a != nil {
			c := *a
			o.initial = &c
		}
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{
		scheduler: subscriber.Inline,
		logger:    logger.OrGlobal(nil).Named(name),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
