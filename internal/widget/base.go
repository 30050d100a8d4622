package widget

import (
	"context"
	"math"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
)

// state is the value holder shared by AssessBase and DisplayBase.
type state struct {
	mu       sync.Mutex
	wctx     Context
	current  *model.Assessment
	unsub    subscriber.Unsubscribe
	closed   bool
	updates  uint64
	onChange func()
}

// receive applies a dispatched value unless the widget is closed.
func (s *state) receive(a *model.Assessment) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.updates++
	s.current = a
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// bind subscribes and then pulls once. The pulled value is dropped if a
// notification arrived while the read was in flight, or the widget closed.
func (s *state) bind(wc Context, subscribe func(subscriber.Callback) subscriber.Unsubscribe, pull func() *model.Assessment) {
	s.mu.Lock()
	if s.unsub != nil {
		s.unsub()
	}
	s.wctx = wc
	s.closed = false
	s.current = nil
	s.mu.Unlock()

	unsub := subscribe(s.receive)

	s.mu.Lock()
	s.unsub = unsub
	seen := s.updates
	s.mu.Unlock()

	a := pull()

	s.mu.Lock()
	if s.closed || s.updates != seen {
		s.mu.Unlock()
		return
	}
	s.current = a
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *state) assessment() *model.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

func (s *state) context() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wctx
}

func (s *state) setOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *state) close() {
	s.mu.Lock()
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *state) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AssessBase implements everything in Assess except View. Embed it and
// provide View.
type AssessBase struct {
	state
	Range    model.RangeKind
	delegate delegate.InputDelegate
}

// Bind implements Assess.
func (b *AssessBase) Bind(ctx context.Context, wc Context, d delegate.InputDelegate) {
	b.mu.Lock()
	b.delegate = d
	b.mu.Unlock()
	b.bind(wc, d.Subscribe, func() *model.Assessment { return d.GetLatestAssessmentForUser(ctx) })
}

// Commit implements Assess. The value is not range checked here.
func (b *AssessBase) Commit(ctx context.Context, v model.RangeValue) error {
	b.mu.Lock()
	d, closed := b.delegate, b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if d == nil {
		return ErrUnbound
	}
	_, err := d.CreateAssessment(ctx, v)
	return err
}

// Step implements Assess.
func (b *AssessBase) Step(delta int) model.RangeValue {
	cur := b.Assessment()
	switch {
	case b.Range.Integer != nil:
		r := b.Range.Integer
		v := r.Min
		if cur != nil && cur.Value.Integer != nil {
			v = *cur.Value.Integer
		}
		v += int64(delta)
		return model.IntegerValue(min(max(v, r.Min), r.Max))
	case b.Range.Float != nil:
		r := b.Range.Float
		v := r.Min
		if cur != nil && cur.Value.Float != nil {
			v = *cur.Value.Float
		}
		v += float64(delta) * floatStep(r)
		return model.FloatValue(math.Min(math.Max(v, r.Min), r.Max))
	default:
		return model.IntegerValue(int64(delta))
	}
}

func floatStep(r *model.FloatRange) float64 {
	span := r.Max - r.Min
	if span <= 0 || math.IsInf(span, 0) {
		return 1
	}
	return span / 10
}

// Assessment implements Assess.
func (b *AssessBase) Assessment() *model.Assessment { return b.assessment() }

// Context returns the bound context.
func (b *AssessBase) Context() Context { return b.context() }

// OnChange implements Assess.
func (b *AssessBase) OnChange(fn func()) { b.setOnChange(fn) }

// Close implements Assess.
func (b *AssessBase) Close() { b.close() }

// Closed reports whether Close was called.
func (b *AssessBase) Closed() bool { return b.isClosed() }

// DisplayBase implements everything in Display except View.
type DisplayBase struct {
	state
}

// Bind implements Display.
func (b *DisplayBase) Bind(ctx context.Context, wc Context, d delegate.OutputDelegate) {
	b.bind(wc, d.Subscribe, func() *model.Assessment { return d.GetLatestAssessment(ctx) })
}

// Assessment implements Display.
func (b *DisplayBase) Assessment() *model.Assessment { return b.assessment() }

// Context returns the bound context.
func (b *DisplayBase) Context() Context { return b.context() }

// OnChange implements Display.
func (b *DisplayBase) OnChange(fn func()) { b.setOnChange(fn) }

// Close implements Display.
func (b *DisplayBase) Close() { b.close() }

// Closed reports whether Close was called.
func (b *DisplayBase) Closed() bool { return b.isClosed() }
