package tui_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	service "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/internal/tui"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
	logger.SetLevel(slog.LevelError)
}

func press(m tea.Model, k tea.KeyType) (tea.Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: k})
}

func TestModel(t *testing.T) {
	Convey("Given a TUI over two live surfaces", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.Seed(ctx, config.DefaultTray()), ShouldBeNil)
		post, err := svc.ResourceDef("post")
		So(err, ShouldBeNil)
		pool, err := svc.Scheduler()
		So(err, ShouldBeNil)

		n := tui.NewNotifier()
		var rows []tui.Row
		for _, name := range []string{"post-1", "post-2"} {
			s, err := svc.OpenSurface(ctx, service.ResourceHash(name), post, tray.WithOnRebind(n.Notify))
			So(err, ShouldBeNil)
			defer s.Close()
			rows = append(rows, tui.Row{Name: name, Surface: s})
		}
		var m tea.Model = tui.New(ctx, "posts", rows, n)

		Convey("Then every row shows empty widgets", func() {
			view := m.View()
			So(view, ShouldContainSubstring, "posts")
			So(view, ShouldContainSubstring, "post-1")
			So(view, ShouldContainSubstring, "post-2")
			So(view, ShouldContainSubstring, "△ 0")
			So(view, ShouldContainSubstring, "Σ –")
		})

		Convey("When the first row is stepped and committed", func() {
			m, _ = press(m, tea.KeyRight)
			So(m.View(), ShouldContainSubstring, "pending 1")

			m, cmd := press(m, tea.KeyEnter)
			So(cmd, ShouldNotBeNil)
			m, _ = m.Update(cmd())
			So(pool.Flush(ctx), ShouldBeNil)
			So(pool.Flush(ctx), ShouldBeNil)

			Convey("Then the value and the computed output are shown", func() {
				view := m.View()
				So(view, ShouldContainSubstring, "saved post-1")
				So(view, ShouldContainSubstring, "▲ 1")
				So(view, ShouldContainSubstring, "Σ 1")
				So(view, ShouldNotContainSubstring, "pending")
				So(rows[1].Surface.View().Input.Assessment(), ShouldBeNil)
			})
		})

		Convey("When moving down before stepping", func() {
			m, _ = press(m, tea.KeyDown)
			m, _ = press(m, tea.KeyDown)
			m, _ = press(m, tea.KeyRight)
			m, cmd := press(m, tea.KeyEnter)
			m, _ = m.Update(cmd())
			So(pool.Flush(ctx), ShouldBeNil)
			So(pool.Flush(ctx), ShouldBeNil)

			Convey("Then only the second row is assessed", func() {
				So(m.View(), ShouldContainSubstring, "saved post-2")
				So(rows[0].Surface.View().Input.Assessment(), ShouldBeNil)
				So(rows[1].Surface.View().Input.Assessment().Value.String(), ShouldEqual, "1")
			})
		})

		Convey("When stepping past the range", func() {
			for i := 0; i < 5; i++ {
				m, _ = press(m, tea.KeyRight)
			}

			Convey("Then the pending value is clamped", func() {
				So(m.View(), ShouldContainSubstring, "pending 1")
			})
		})

		Convey("When a surface is closed", func() {
			rows[0].Surface.Close()

			Convey("Then its row shows the error and enter does nothing", func() {
				So(m.View(), ShouldContainSubstring, tray.ErrClosed.Error())
				_, cmd := press(m, tea.KeyEnter)
				So(cmd, ShouldBeNil)
			})
		})

		Convey("When a change is signalled", func() {
			n.Notify()
			n.Notify()
			msg := m.Init()()

			Convey("Then the model redraws and listens again", func() {
				_, cmd := m.Update(msg)
				So(cmd, ShouldNotBeNil)
			})
		})

		Convey("When quitting", func() {
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

			Convey("Then the program is asked to quit", func() {
				So(cmd, ShouldNotBeNil)
				_, ok := cmd().(tea.QuitMsg)
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestModel_CommitError(t *testing.T) {
	Convey("Given a TUI whose context is cancelled", t, func() {
		ctx := context.Background()
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.Seed(ctx, config.DefaultTray()), ShouldBeNil)
		post, err := svc.ResourceDef("post")
		So(err, ShouldBeNil)

		n := tui.NewNotifier()
		s, err := svc.OpenSurface(ctx, service.ResourceHash("post-1"), post)
		So(err, ShouldBeNil)
		defer s.Close()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		var m tea.Model = tui.New(cancelled, "posts", []tui.Row{{Name: "post-1", Surface: s}}, n)

		Convey("When committing", func() {
			m, _ = press(m, tea.KeyRight)
			m, cmd := press(m, tea.KeyEnter)
			m, _ = m.Update(cmd())

			Convey("Then the failure is shown and the pending value kept", func() {
				So(m.View(), ShouldContainSubstring, "commit failed")
				So(m.View(), ShouldContainSubstring, "pending 1")
				So(s.View().Input.Assessment(), ShouldBeNil)
			})
		})
	})
}
