package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neighbourhoods/nh-tray/internal/adapters/http/api"
	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	service "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	created   []delegate.Binding
	createErr error
	latest    *model.Assessment
	latestArg struct {
		b    delegate.Binding
		mine bool
	}
	trayErr     error
	trayName    string
	defaultTray [2]string
	activeErr   error
	active      [2]model.EntryHash

	contextErr  error
	contextArgs struct {
		resources []model.EntryHash
		limit     int
	}
}

func (m *mockDependencies) CreateAssessment(_ context.Context, b delegate.Binding, v model.RangeValue) (model.Record[model.Assessment], error) {
	if m.createErr != nil {
		return model.Record[model.Assessment]{}, m.createErr
	}
	m.created = append(m.created, b)
	return model.Record[model.Assessment]{Entry: model.Assessment{Value: v, DimensionEh: b.DimensionEh, ResourceEh: b.ResourceEh}}, nil
}

func (m *mockDependencies) LatestAssessment(_ context.Context, b delegate.Binding, mine bool) (*model.Assessment, error) {
	m.latestArg.b, m.latestArg.mine = b, mine
	return m.latest, nil
}

func (m *mockDependencies) RenderTray(_ context.Context, name string, resourceEh, resourceDefEh model.EntryHash) (types.TrayView, error) {
	m.trayName = name
	if m.trayErr != nil {
		return types.TrayView{}, m.trayErr
	}
	if name == "" {
		name = service.DefaultTrayName
	}
	return types.TrayView{Name: name, ResourceEh: resourceEh, ResourceDefEh: resourceDefEh}, nil
}

func (m *mockDependencies) SetDefaultTray(_ context.Context, resourceDefEh model.EntryHash, name string) error {
	if m.trayErr != nil {
		return m.trayErr
	}
	m.defaultTray = [2]string{resourceDefEh.String(), name}
	return nil
}

func (m *mockDependencies) SetActiveMethod(_ context.Context, resourceDefEh, methodEh model.EntryHash) error {
	if m.activeErr != nil {
		return m.activeErr
	}
	m.active = [2]model.EntryHash{resourceDefEh, methodEh}
	return nil
}

func (m *mockDependencies) Widgets() []model.RegisteredControl {
	return []model.RegisteredControl{{
		RegistrationEh:                model.MustHashEntry(model.KindRegistration, "thumb"),
		AssessmentControlRegistration: model.AssessmentControlRegistration{AppletID: "nh", ControlKey: "thumb", Kind: "input"},
	}}
}

func (m *mockDependencies) Names() types.Names {
	return types.Names{Trays: []string{"default"}}
}

func (m *mockDependencies) ComputeContext(_ context.Context, name string, resources []model.EntryHash, limit int) (types.ContextView, error) {
	if m.contextErr != nil {
		return types.ContextView{}, m.contextErr
	}
	m.contextArgs.resources, m.contextArgs.limit = resources, limit
	return types.ContextView{Name: name, Resources: []types.RankedResource{{Rank: 1, ResourceEh: resource, Value: 3}}}, nil
}

func (m *mockDependencies) Ranking(_ context.Context, dimension model.EntryHash, limit int) ([]types.RankedResource, error) {
	if m.contextErr != nil {
		return nil, m.contextErr
	}
	m.contextArgs.limit = limit
	return []types.RankedResource{{Rank: 1, ResourceEh: resource, Value: 3}}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

var (
	resource    = model.MustHashEntry(model.KindResource, "post-1")
	resourceDef = model.MustHashEntry(model.KindResourceDef, "post")
	dimension   = model.MustHashEntry(model.KindDimension, "likeness")
	method      = model.MustHashEntry(model.KindMethod, "total likeness")
)

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then health endpoint should serve metrics", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats endpoint should be accessible", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then stats can be narrowed to named keys", func() {
			w := do(mux, "GET", "/stats?keys=started", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"started":true}`)
			So(do(mux, "GET", "/stats?keys=started,bogus", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then health answers JSON clients with a liveness body", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			So(do(mux, "POST", "/healthz", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then every response carries a request id", func() {
			w := do(mux, "GET", "/widgets", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
			So(w.Body.String(), ShouldContainSubstring, `"control_key":"thumb"`)
		})

		Convey("Then a supplied request id is echoed", func() {
			req := httptest.NewRequest("GET", "/names", nil)
			req.Header.Set("X-Request-ID", "abc")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-ID"), ShouldEqual, "abc")
		})

		Convey("Then resource names hash deterministically", func() {
			w := do(mux, "GET", "/resources/hash?name=post-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, resource.String())
			So(do(mux, "GET", "/resources/hash", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then wrong methods are not found", func() {
			So(do(mux, "GET", "/assessments", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, "POST", "/tray", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, "GET", "/active-method", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAssessments(t *testing.T) {
	Convey("Given a server over mock dependencies", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		body := fmt.Sprintf(`{"value":{"Integer":1},"dimension_eh":%q,"resource_eh":%q,"resource_def_eh":%q}`,
			dimension, resource, resourceDef)

		Convey("When posting a valid assessment", func() {
			w := do(mux, "POST", "/assessments", body)

			Convey("Then it is created for the binding", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.created, ShouldHaveLength, 1)
				So(deps.created[0].DimensionEh, ShouldEqual, dimension)
				So(deps.created[0].ResourceDefEh, ShouldEqual, resourceDef)
			})
		})

		Convey("When posting malformed JSON", func() {
			w := do(mux, "POST", "/assessments", `{`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("When the value is missing", func() {
			w := do(mux, "POST", "/assessments", fmt.Sprintf(`{"dimension_eh":%q,"resource_eh":%q,"resource_def_eh":%q}`, dimension, resource, resourceDef))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store rejects the range", func() {
			deps.createErr = fmt.Errorf("%w: %w", delegate.ErrCreateAssessment, fmt.Errorf("%w: %w", repository.ErrInvalidInput, model.ErrOutOfRange))
			w := do(mux, "POST", "/assessments", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store fails", func() {
			deps.createErr = fmt.Errorf("%w: %w", delegate.ErrCreateAssessment, repository.ErrBackend)
			w := do(mux, "POST", "/assessments", body)
			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(decodeError(w)["code"], ShouldEqual, "store_failed")
			So(decodeError(w)["request_id"], ShouldNotBeEmpty)
		})

		Convey("When a write carries an idempotency key", func() {
			post := func(key, payload string) *httptest.ResponseRecorder {
				req := httptest.NewRequest("POST", "/assessments", strings.NewReader(payload))
				req.Header.Set("Idempotency-Key", key)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				return w
			}
			first := post("k-1", body)
			again := post("k-1", body)

			Convey("Then the retry replays the first record without writing", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(again.Code, ShouldEqual, http.StatusOK)
				So(again.Header().Get("Idempotent-Replayed"), ShouldEqual, "true")
				So(again.Body.String(), ShouldEqual, first.Body.String())
				So(deps.created, ShouldHaveLength, 1)
			})

			Convey("Then reusing the key for another body conflicts", func() {
				other := strings.Replace(body, `"Integer":1`, `"Integer":0`, 1)
				w := post("k-1", other)
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(decodeError(w)["code"], ShouldEqual, "idempotency_conflict")
			})

			Convey("Then a failed write can be retried under the same key", func() {
				deps.createErr = repository.ErrBackend
				So(post("k-2", body).Code, ShouldEqual, http.StatusBadGateway)
				deps.createErr = nil
				So(post("k-2", body).Code, ShouldEqual, http.StatusCreated)
				So(deps.created, ShouldHaveLength, 2)
			})
		})

		Convey("When the service is not started", func() {
			deps.createErr = service.ErrNotStarted
			w := do(mux, "POST", "/assessments", body)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When reading the latest assessment", func() {
			deps.latest = &model.Assessment{Value: model.IntegerValue(3)}
			w := do(mux, "GET", fmt.Sprintf("/assessments/latest?resource_eh=%s&dimension_eh=%s&mine=true", resource, dimension), "")

			Convey("Then the binding and author filter are passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `{"Integer":3}`)
				So(deps.latestArg.mine, ShouldBeTrue)
				So(deps.latestArg.b.ResourceEh, ShouldEqual, resource)
			})
		})

		Convey("When nothing is assessed", func() {
			w := do(mux, "GET", fmt.Sprintf("/assessments/latest?resource_eh=%s&dimension_eh=%s", resource, dimension), "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"assessment":null}`)
			So(deps.latestArg.mine, ShouldBeFalse)
		})

		Convey("When query parameters are bad", func() {
			So(do(mux, "GET", "/assessments/latest", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/assessments/latest?resource_eh=zzz&dimension_eh=zzz", "").Code, ShouldEqual, http.StatusBadRequest)
			w := do(mux, "GET", fmt.Sprintf("/assessments/latest?resource_eh=%s&dimension_eh=%s&mine=maybe", resource, dimension), "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestTrayAndMethods(t *testing.T) {
	Convey("Given a server over mock dependencies", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		trayURL := fmt.Sprintf("/tray?resource_eh=%s&resource_def_eh=%s", resource, resourceDef)

		Convey("When rendering a tray without a name", func() {
			w := do(mux, "GET", trayURL, "")

			Convey("Then the service picks the resource definition's default", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.trayName, ShouldEqual, "")
				So(w.Body.String(), ShouldContainSubstring, `"name":"default"`)
			})
		})

		Convey("When setting a default tray", func() {
			w := do(mux, "PUT", "/default-tray", fmt.Sprintf(`{"resource_def_eh":%q,"name":"triage"}`, resourceDef))

			Convey("Then it is applied", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(deps.defaultTray, ShouldResemble, [2]string{resourceDef.String(), "triage"})
			})
		})

		Convey("When a default tray request is incomplete or unknown", func() {
			So(do(mux, "PUT", "/default-tray", `{"name":"triage"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "PUT", "/default-tray", fmt.Sprintf(`{"resource_def_eh":%q}`, resourceDef)).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/default-tray", "").Code, ShouldEqual, http.StatusNotFound)
			deps.trayErr = service.ErrUnknownTray
			So(do(mux, "PUT", "/default-tray", fmt.Sprintf(`{"resource_def_eh":%q,"name":"nope"}`, resourceDef)).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When resolution fails", func() {
			deps.trayErr = fmt.Errorf("%w: %w", registry.ErrResolution, registry.ErrWidgetNotRegistered)
			w := do(mux, "GET", trayURL, "")
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decodeError(w)["code"], ShouldEqual, "resolution_failed")
		})

		Convey("When the tray is unknown", func() {
			deps.trayErr = service.ErrUnknownTray
			So(do(mux, "GET", trayURL+"&name=triage", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When something unexpected fails", func() {
			deps.trayErr = errors.New("boom")
			So(do(mux, "GET", trayURL, "").Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When setting the active method", func() {
			w := do(mux, "PUT", "/active-method", fmt.Sprintf(`{"resource_def_eh":%q,"method_eh":%q}`, resourceDef, method))

			Convey("Then it is applied", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(deps.active[0], ShouldEqual, resourceDef)
				So(deps.active[1], ShouldEqual, method)
			})
		})

		Convey("When the method is missing", func() {
			w := do(mux, "PUT", "/active-method", fmt.Sprintf(`{"resource_def_eh":%q}`, resourceDef))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["message"], ShouldContainSubstring, "missing method_eh")
		})

		Convey("When the method is unknown", func() {
			deps.activeErr = fmt.Errorf("%w: %w", registry.ErrResolution, registry.ErrMethodNotFound)
			w := do(mux, "PUT", "/active-method", fmt.Sprintf(`{"resource_def_eh":%q,"method_eh":%q}`, resourceDef, method))
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}

func TestContexts(t *testing.T) {
	Convey("Given a server with mocked contexts", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When a context is computed for two resources", func() {
			other := model.MustHashEntry(model.KindResource, "post-2")
			w := do(mux, "GET", fmt.Sprintf("/contexts?name=hot&limit=5&resource_eh=%s&resource_eh=%s", resource, other), "")

			Convey("Then the arguments reach the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"name":"hot"`)
				So(w.Body.String(), ShouldContainSubstring, `"rank":1`)
				So(deps.contextArgs.limit, ShouldEqual, 5)
				So(deps.contextArgs.resources, ShouldResemble, []model.EntryHash{resource, other})
			})
		})

		Convey("When parameters are malformed", func() {
			So(do(mux, "GET", "/contexts", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/contexts?name=hot&limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/contexts?name=hot&limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/contexts?name=hot&resource_eh=nope", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "GET", "/ranking", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "POST", "/ranking", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the context is unknown", func() {
			deps.contextErr = fmt.Errorf("%w: %q", service.ErrUnknownContext, "hot")
			w := do(mux, "GET", "/contexts?name=hot", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When a ranking is read", func() {
			w := do(mux, "GET", fmt.Sprintf("/ranking?dimension_eh=%s", dimension), "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, dimension.String())
			So(deps.contextArgs.limit, ShouldEqual, 0)

			deps.contextErr = service.ErrNoRanking
			So(do(mux, "GET", fmt.Sprintf("/ranking?dimension_eh=%s", dimension), "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEndToEnd(t *testing.T) {
	Convey("Given a server over a seeded service", t, func() {
		ctx := context.Background()
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.Seed(ctx, config.DefaultTray()), ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		names := svc.Names()
		post := names.ResourceDefs["post"]
		likeness := names.Dimensions["likeness"]
		total := names.Dimensions["total likeness"]

		Convey("When an assessment is posted and the tray read back", func() {
			body := fmt.Sprintf(`{"value":{"Integer":1},"dimension_eh":%q,"resource_eh":%q,"resource_def_eh":%q}`, likeness, resource, post)
			So(do(mux, "POST", "/assessments", body).Code, ShouldEqual, http.StatusCreated)

			w := do(mux, "GET", fmt.Sprintf("/tray?resource_eh=%s&resource_def_eh=%s", resource, post), "")
			var view types.TrayView
			So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)

			Convey("Then both widgets show the value", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(view.Pairs, ShouldHaveLength, 1)
				So(view.Pairs[0].Input.Value(), ShouldEqual, "1")
				So(view.Pairs[0].Output.DimensionEh, ShouldEqual, total)
				So(view.Pairs[0].Output.Value(), ShouldEqual, "1")
			})
		})

		Convey("When an out-of-range value is posted", func() {
			body := fmt.Sprintf(`{"value":{"Integer":5},"dimension_eh":%q,"resource_eh":%q,"resource_def_eh":%q}`, likeness, resource, post)
			So(do(mux, "POST", "/assessments", body).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a liked post is listed by the default context", func() {
			body := fmt.Sprintf(`{"value":{"Integer":1},"dimension_eh":%q,"resource_eh":%q,"resource_def_eh":%q}`, likeness, resource, post)
			So(do(mux, "POST", "/assessments", body).Code, ShouldEqual, http.StatusCreated)

			w := do(mux, "GET", "/contexts?name=most+liked", "")
			var view types.ContextView
			So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)

			Convey("Then the post is ranked first", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(view.Resources, ShouldHaveLength, 1)
				So(view.Resources[0].ResourceEh, ShouldEqual, resource)
				So(do(mux, "GET", fmt.Sprintf("/ranking?dimension_eh=%s", total), "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}
