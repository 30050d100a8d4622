package subscriber_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

func TestManagerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// panics[i] marks subscriber i as panicking; removed[i] marks it as
	// unsubscribed before dispatch.
	properties.Property("every live subscriber is called exactly once", prop.ForAll(
		func(panics, removed []bool) bool {
			m := subscriber.New(subscriber.Inline, subscriber.WithLogger(logger.Nop()))
			n := len(panics)
			calls := make([]int, n)
			unsubs := make([]subscriber.Unsubscribe, n)
			for i := 0; i < n; i++ {
				i := i
				unsubs[i] = m.Subscribe(func(*model.Assessment) {
					calls[i]++
					if panics[i] {
						panic("subscriber failure")
					}
				})
			}
			for i := 0; i < n && i < len(removed); i++ {
				if removed[i] {
					unsubs[i]()
				}
			}

			m.Dispatch(&model.Assessment{Value: model.IntegerValue(1)})

			for i := 0; i < n; i++ {
				want := 1
				if i < len(removed) && removed[i] {
					want = 0
				}
				if calls[i] != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
