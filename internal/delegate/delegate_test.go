package delegate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/adapters/mq/queue"
	"github.com/neighbourhoods/nh-tray/internal/adapters/mq/worker"
	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

// stubBackend serves canned results, optionally blocking reads until gate
// is closed.
type stubBackend struct {
	mu      sync.Mutex
	result  map[model.EntryHash][]model.Assessment
	readErr error
	gate    chan struct{}
	reads   int
	created []model.CreateAssessmentInput
	failErr error
}

func (s *stubBackend) read() (map[model.EntryHash][]model.Assessment, error) {
	s.mu.Lock()
	s.reads++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return s.result, s.readErr
}

func (s *stubBackend) GetMyAssessmentsForResources(context.Context, model.Query) (map[model.EntryHash][]model.Assessment, error) {
	return s.read()
}

func (s *stubBackend) GetAssessmentsForResources(context.Context, model.Query) (map[model.EntryHash][]model.Assessment, error) {
	return s.read()
}

func (s *stubBackend) CreateAssessment(_ context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return model.Record[model.Assessment]{}, s.failErr
	}
	s.created = append(s.created, in)
	return model.Record[model.Assessment]{Entry: model.Assessment{Value: in.Value, DimensionEh: in.DimensionEh, ResourceEh: in.ResourceEh}}, nil
}

func (s *stubBackend) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

var (
	resource    = model.MustHashEntry(model.KindResource, "R")
	resourceDef = model.MustHashEntry(model.KindResourceDef, "posts")
)

func fixture(t *testing.T) (*repository.MemoryStore, model.EntryHash, model.EntryHash) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore(
		repository.WithAgent(model.AgentKeyFromSeed("alice")),
		repository.WithLogger(logger.Nop()),
	)
	likeness, err := store.CreateDimension(ctx, model.Dimension{Name: "likeness", Range: model.IntegerKind(0, 10)})
	if err != nil {
		t.Fatal(err)
	}
	urgency, err := store.CreateDimension(ctx, model.Dimension{Name: "urgency", Range: model.IntegerKind(0, 5)})
	if err != nil {
		t.Fatal(err)
	}
	return store, likeness.EntryHash, urgency.EntryHash
}

func binding(dim model.EntryHash) delegate.Binding {
	return delegate.Binding{ResourceEh: resource, ResourceDefEh: resourceDef, DimensionEh: dim}
}

func TestInputDelegate(t *testing.T) {
	Convey("Given an input delegate over a store", t, func() {
		ctx := context.Background()
		store, likeness, urgency := fixture(t)
		in, lease := delegate.NewInput(store, binding(likeness), delegate.WithLogger(logger.Nop()))
		defer lease.Release()

		Convey("When nothing was assessed", func() {
			Convey("Then the latest is nil", func() {
				So(in.GetLatestAssessmentForUser(ctx), ShouldBeNil)
			})
		})

		Convey("When likeness 7 then 3 is recorded", func() {
			rec, err := in.CreateAssessment(ctx, model.IntegerValue(7))
			So(err, ShouldBeNil)
			So(in.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "7")
			So(rec.Entry.Author, ShouldEqual, model.AgentKeyFromSeed("alice"))

			_, err = in.CreateAssessment(ctx, model.IntegerValue(3))
			So(err, ShouldBeNil)

			Convey("Then the latest is 3 from the cache", func() {
				So(in.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "3")
			})

			Convey("Then a fresh delegate reads 3 from the store", func() {
				fresh, freshLease := delegate.NewInput(store, binding(likeness), delegate.WithLogger(logger.Nop()))
				defer freshLease.Release()
				So(fresh.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "3")
			})
		})

		Convey("When subscribers are registered", func() {
			var got []*model.Assessment
			in.Subscribe(func(a *model.Assessment) { got = append(got, a) })
			_, err := in.CreateAssessment(ctx, model.IntegerValue(4))
			So(err, ShouldBeNil)

			Convey("Then they are notified before CreateAssessment returns", func() {
				So(got, ShouldHaveLength, 1)
				So(got[0].Value.String(), ShouldEqual, "4")
			})

			Convey("Then invalidation clears the cache and notifies nil", func() {
				in.InvalidateAssessment()
				So(got, ShouldHaveLength, 2)
				So(got[1], ShouldBeNil)
				So(in.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "4")
			})
		})

		Convey("When the value is out of range", func() {
			_, err := in.CreateAssessment(ctx, model.IntegerValue(42))

			Convey("Then the error propagates", func() {
				So(errors.Is(err, delegate.ErrCreateAssessment), ShouldBeTrue)
				So(errors.Is(err, model.ErrOutOfRange), ShouldBeTrue)
				So(in.GetLatestAssessmentForUser(ctx), ShouldBeNil)
			})
		})

		Convey("When two delegates are bound to different dimensions", func() {
			other, otherLease := delegate.NewInput(store, binding(urgency), delegate.WithLogger(logger.Nop()))
			defer otherLease.Release()
			likenessCalls, urgencyCalls := 0, 0
			in.Subscribe(func(*model.Assessment) { likenessCalls++ })
			other.Subscribe(func(*model.Assessment) { urgencyCalls++ })

			_, err := in.CreateAssessment(ctx, model.IntegerValue(1))
			So(err, ShouldBeNil)

			Convey("Then only the writer's subscribers are notified", func() {
				So(likenessCalls, ShouldEqual, 1)
				So(urgencyCalls, ShouldEqual, 0)
				So(other.GetLatestAssessmentForUser(ctx), ShouldBeNil)
			})
		})
	})
}

func TestInputDelegateCachePreference(t *testing.T) {
	Convey("Given a backend that returns a stale value", t, func() {
		ctx := context.Background()
		likeness := model.MustHashEntry(model.KindDimension, "likeness")
		stale := model.Assessment{Value: model.IntegerValue(1), DimensionEh: likeness, ResourceEh: resource, Timestamp: 99}
		backend := &stubBackend{result: map[model.EntryHash][]model.Assessment{resource: {stale}}}
		in, lease := delegate.NewInput(backend, binding(likeness), delegate.WithLogger(logger.Nop()))
		defer lease.Release()

		So(in.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "1")

		Convey("When the delegate writes", func() {
			_, err := in.CreateAssessment(ctx, model.IntegerValue(8))
			So(err, ShouldBeNil)
			reads := backend.readCount()

			Convey("Then reads are served from the cache", func() {
				So(in.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "8")
				So(backend.readCount(), ShouldEqual, reads)
				So(backend.created[0].MaybeInputDataset, ShouldBeNil)
				So(backend.created[0].ResourceDefEh, ShouldEqual, resourceDef)
			})
		})

		Convey("When seeded with an initial assessment", func() {
			seeded, seededLease := delegate.NewInput(backend, binding(likeness),
				delegate.WithLogger(logger.Nop()),
				delegate.WithInitialAssessment(&model.Assessment{Value: model.IntegerValue(5)}),
			)
			defer seededLease.Release()

			Convey("Then it is returned without a read", func() {
				before := backend.readCount()
				So(seeded.GetLatestAssessmentForUser(ctx).Value.String(), ShouldEqual, "5")
				So(backend.readCount(), ShouldEqual, before)
			})
		})
	})
}

func TestReadFailures(t *testing.T) {
	Convey("Given a backend whose reads fail", t, func() {
		ctx := context.Background()
		dim := model.MustHashEntry(model.KindDimension, "likeness")
		backend := &stubBackend{readErr: errors.New("conductor unreachable")}

		Convey("Then the input delegate returns nil and counts the failure", func() {
			before := testutil.ToFloat64(metrics.Global().ReadErrors("input"))
			in, lease := delegate.NewInput(backend, binding(dim), delegate.WithLogger(logger.Nop()))
			defer lease.Release()
			So(in.GetLatestAssessmentForUser(ctx), ShouldBeNil)
			So(testutil.ToFloat64(metrics.Global().ReadErrors("input")), ShouldEqual, before+1)
		})

		Convey("Then the output delegate returns nil and counts the failure", func() {
			before := testutil.ToFloat64(metrics.Global().ReadErrors("output"))
			out, lease := delegate.NewOutput(backend, binding(dim), delegate.WithLogger(logger.Nop()))
			defer lease.Release()
			So(out.GetLatestAssessment(ctx), ShouldBeNil)
			So(testutil.ToFloat64(metrics.Global().ReadErrors("output")), ShouldEqual, before+1)
		})

		Convey("Then write failures are not swallowed", func() {
			backend.failErr = errors.New("rejected")
			in, lease := delegate.NewInput(backend, binding(dim), delegate.WithLogger(logger.Nop()))
			defer lease.Release()
			_, err := in.CreateAssessment(ctx, model.IntegerValue(1))
			So(errors.Is(err, delegate.ErrCreateAssessment), ShouldBeTrue)
		})
	})
}

func TestOutputDelegate(t *testing.T) {
	Convey("Given assessments by two agents", t, func() {
		ctx := context.Background()
		store, likeness, _ := fixture(t)
		in, inLease := delegate.NewInput(store, binding(likeness), delegate.WithLogger(logger.Nop()))
		defer inLease.Release()
		_, err := in.CreateAssessment(ctx, model.IntegerValue(6))
		So(err, ShouldBeNil)

		out, lease := delegate.NewOutput(store, binding(likeness), delegate.WithLogger(logger.Nop()))
		defer lease.Release()

		Convey("Then the output delegate reads the latest by any author", func() {
			So(out.GetLatestAssessment(ctx).Value.String(), ShouldEqual, "6")
			So(out.Binding().DimensionEh, ShouldEqual, likeness)
		})

		Convey("Then Notify reaches its subscribers", func() {
			var got *model.Assessment
			out.Subscribe(func(a *model.Assessment) { got = a })
			out.Notify(&model.Assessment{Value: model.IntegerValue(9)})
			So(got.Value.String(), ShouldEqual, "9")
		})
	})
}

func TestLease(t *testing.T) {
	Convey("Given a delegate on a task loop", t, func() {
		ctx := context.Background()
		pool := worker.NewPool(1, queue.NewInMemoryQueue(), worker.WithLogger(logger.Nop()))
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		store, likeness, _ := fixture(t)
		leasesBefore := testutil.ToFloat64(metrics.Global().LeasesActive())
		in, lease := delegate.NewInput(store, binding(likeness),
			delegate.WithScheduler(pool),
			delegate.WithLogger(logger.Nop()),
		)
		So(testutil.ToFloat64(metrics.Global().LeasesActive()), ShouldEqual, leasesBefore+1)

		Convey("When released with a notification still queued", func() {
			block := make(chan struct{})
			pool.Schedule(func() { <-block })
			calls := 0
			in.Subscribe(func(*model.Assessment) { calls++ })
			_, err := in.CreateAssessment(ctx, model.IntegerValue(2))
			So(err, ShouldBeNil)

			lease.Release()
			lease.Release()
			close(block)
			flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			So(pool.Flush(flushCtx), ShouldBeNil)

			Convey("Then the widget is never notified", func() {
				So(calls, ShouldEqual, 0)
				So(lease.Released(), ShouldBeTrue)
				So(testutil.ToFloat64(metrics.Global().LeasesActive()), ShouldEqual, leasesBefore)
			})

			Convey("Then reads return nil and writes fail", func() {
				So(in.GetLatestAssessmentForUser(ctx), ShouldBeNil)
				_, err := in.CreateAssessment(ctx, model.IntegerValue(3))
				So(err, ShouldEqual, delegate.ErrReleased)
			})

			Convey("Then subscribing is a no-op", func() {
				unsub := in.Subscribe(func(*model.Assessment) { calls++ })
				unsub()
				in.InvalidateAssessment()
				So(calls, ShouldEqual, 0)
			})
		})

		Reset(func() { lease.Release() })
	})

	Convey("Given a read in flight when the lease is released", t, func() {
		ctx := context.Background()
		dim := model.MustHashEntry(model.KindDimension, "likeness")
		gate := make(chan struct{})
		backend := &stubBackend{
			gate:   gate,
			result: map[model.EntryHash][]model.Assessment{resource: {{Value: model.IntegerValue(1), DimensionEh: dim, ResourceEh: resource}}},
		}
		out, lease := delegate.NewOutput(backend, binding(dim), delegate.WithLogger(logger.Nop()))

		result := make(chan *model.Assessment, 1)
		go func() { result <- out.GetLatestAssessment(ctx) }()
		for backend.readCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		lease.Release()
		close(gate)

		Convey("Then the result is discarded", func() {
			So(<-result, ShouldBeNil)
		})
	})

	Convey("Given a nil lease and a lease group", t, func() {
		var nilLease *delegate.Lease
		So(func() { nilLease.Release() }, ShouldNotPanic)
		So(nilLease.Released(), ShouldBeFalse)

		store, likeness, urgency := fixture(t)
		_, a := delegate.NewInput(store, binding(likeness), delegate.WithLogger(logger.Nop()))
		_, b := delegate.NewOutput(store, binding(urgency), delegate.WithLogger(logger.Nop()))
		delegate.Leases{a, b, nil}.Release()
		So(a.Released(), ShouldBeTrue)
		So(b.Released(), ShouldBeTrue)
	})
}

func TestStaticOutput(t *testing.T) {
	Convey("Given static output delegates", t, func() {
		ctx := context.Background()
		a := &model.Assessment{Value: model.IntegerValue(12)}
		s := delegate.NewStaticOutput(a)
		a.Value = model.IntegerValue(0)

		Convey("Then the held value is a snapshot", func() {
			So(s.GetLatestAssessment(ctx).Value.String(), ShouldEqual, "12")
		})

		Convey("Then nil is a valid value", func() {
			So(delegate.NewStaticOutput(nil).GetLatestAssessment(ctx), ShouldBeNil)
		})

		Convey("Then subscribe never fires", func() {
			unsub := s.Subscribe(func(*model.Assessment) { panic("unexpected") })
			So(unsub, ShouldNotBeNil)
			So(func() { unsub() }, ShouldNotPanic)
		})
	})
}

func TestFakeInput(t *testing.T) {
	Convey("Given a fake input delegate", t, func() {
		ctx := context.Background()
		f := delegate.NewFakeInput()
		var seen []*model.Assessment
		f.Subscribe(func(a *model.Assessment) { seen = append(seen, a) })

		Convey("When a value is created", func() {
			rec, err := f.CreateAssessment(ctx, model.IntegerValue(1))
			So(err, ShouldBeNil)
			So(rec.Entry.Value.String(), ShouldEqual, "1")

			Convey("Then it is dispatched but not yet latest", func() {
				So(seen, ShouldHaveLength, 1)
				So(f.GetLatestAssessmentForUser(ctx), ShouldBeNil)
				So(f.Created().Value.String(), ShouldEqual, "1")
			})

			Convey("Then promoting makes it latest", func() {
				f.SetLatestAssessmentForUser()
				So(f.GetLatestAssessment(ctx).Value.String(), ShouldEqual, "1")
			})

			Convey("Then invalidation dispatches nil", func() {
				f.InvalidateAssessment()
				So(seen, ShouldHaveLength, 2)
				So(seen[1], ShouldBeNil)
				So(f.Created(), ShouldBeNil)
			})
		})
	})
}
