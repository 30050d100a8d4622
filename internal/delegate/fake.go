package delegate

import (
	"context"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
)

// FakeInput is an in-process InputDelegate for widget tests and previews.
// CreateAssessment records the value without a backend; the latest value only
// changes when SetLatestAssessmentForUser promotes it.
type FakeInput struct {
	subs *subscriber.Manager

	mu     sync.Mutex
	last   *model.Assessment
	latest *model.Assessment
}

var (
	_ InputDelegate  = (*FakeInput)(nil)
	_ OutputDelegate = (*FakeInput)(nil)
)

// NewFakeInput creates a fake. Only WithScheduler is honoured.
func NewFakeInput(opts ...Option) *FakeInput {
	o := options{scheduler: subscriber.Inline}
	for _, opt := range opts {
		opt(&o)
	}
	return &FakeInput{subs: subscriber.New(o.scheduler)}
}

// GetLatestAssessmentForUser returns the promoted value.
func (f *FakeInput) GetLatestAssessmentForUser(context.Context) *model.Assessment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAssessment(f.latest)
}

// GetLatestAssessment returns the promoted value.
func (f *FakeInput) GetLatestAssessment(ctx context.Context) *model.Assessment {
	return f.GetLatestAssessmentForUser(ctx)
}

// SetLatestAssessmentForUser promotes the last created value to latest.
func (f *FakeInput) SetLatestAssessmentForUser() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = f.last
}

// Created returns the last created value.
func (f *FakeInput) Created() *model.Assessment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAssessment(f.last)
}

// Subscribe registers cb.
func (f *FakeInput) Subscribe(cb subscriber.Callback) subscriber.Unsubscribe {
	return f.subs.Subscribe(cb)
}

// CreateAssessment records value and dispatches it.
func (f *FakeInput) CreateAssessment(_ context.Context, value model.RangeValue) (model.Record[model.Assessment], error) {
	a := model.Assessment{Value: value}
	f.mu.Lock()
	f.last = &a
	f.mu.Unlock()

	f.subs.Dispatch(&a)
	return model.Record[model.Assessment]{Entry: a}, nil
}

// InvalidateAssessment forgets the last created value and dispatches nil.
func (f *FakeInput) InvalidateAssessment() {
	f.mu.Lock()
	f.last = nil
	f.mu.Unlock()
	f.subs.Dispatch(nil)
}

func copyAssessment(a *model.Assessment) *model.Assessment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
