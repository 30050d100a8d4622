package service

import (
	"context"
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Seed writes the dimensions and methods of tf to the store and fills the
// widget registry, the active methods and the tray table from it. Seeding
// the same file twice is idempotent.
func (s *Service) Seed(ctx context.Context, tf config.TrayFile) error {
	if _, _, err := s.deps(); err != nil {
		return err
	}
	if err := tf.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrSeed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range tf.Dimensions {
		if err := s.seedDimension(ctx, d); err != nil {
			return fmt.Errorf("%w: dimension %q: %w", ErrSeed, d.Name, err)
		}
	}
	for _, m := range tf.Methods {
		if err := s.seedMethod(ctx, m); err != nil {
			return fmt.Errorf("%w: method %q: %w", ErrSeed, m.Name, err)
		}
	}
	for _, rd := range tf.ResourceDefs {
		if err := s.seedResourceDef(rd); err != nil {
			return fmt.Errorf("%w: resource def %q: %w", ErrSeed, rd.Name, err)
		}
	}
	for _, t := range tf.Trays {
		if err := s.seedTray(tf, t); err != nil {
			return fmt.Errorf("%w: tray %q: %w", ErrSeed, t.Name, err)
		}
	}
	for _, c := range tf.Contexts {
		if err := s.seedContext(ctx, c); err != nil {
			return fmt.Errorf("%w: context %q: %w", ErrSeed, c.Name, err)
		}
	}

	s.logger.Info(ctx, "seeded registries",
		logger.Int("dimensions", len(tf.Dimensions)),
		logger.Int("methods", len(tf.Methods)),
		logger.Int("resource_defs", len(tf.ResourceDefs)),
		logger.Int("trays", len(tf.Trays)),
		logger.Int("contexts", len(tf.Contexts)),
	)
	return nil
}

func rangeOf(d config.DimensionSpec) model.RangeKind {
	if d.Range == "float" {
		return model.FloatKind(d.Min, d.Max)
	}
	return model.IntegerKind(int64(d.Min), int64(d.Max))
}

// kindFor resolves k, an applet/component kind or a registration hash, and
// checks that the catalog has a widget of role for it.
func (s *Service) kindFor(k string, role widget.Role) (widget.Kind, error) {
	kind, err := widget.ParseKind(k)
	if err != nil {
		eh, herr := model.ParseHash(k)
		if herr != nil {
			return widget.Kind{}, err
		}
		if kind, err = s.catalog.KindOf(eh); err != nil {
			return widget.Kind{}, err
		}
	}
	f, err := s.catalog.Lookup(kind)
	if err != nil {
		return widget.Kind{}, err
	}
	if f.Role() != role {
		return widget.Kind{}, fmt.Errorf("%w: %s is not an %s widget", widget.ErrWrongRole, kind, role)
	}
	return kind, nil
}

// widgetConfig addresses dimension's widget the way k does: by registration
// hash when k is one, otherwise by applet component.
func (s *Service) widgetConfig(dimension model.EntryHash, k string, role widget.Role) (model.AssessmentWidgetConfig, error) {
	kind, err := s.kindFor(k, role)
	if err != nil {
		return model.AssessmentWidgetConfig{}, err
	}
	if eh, err := model.ParseHash(k); err == nil {
		return model.AssessmentWidgetConfig{DimensionEh: dimension, RegistrationEh: &eh}, nil
	}
	return model.AssessmentWidgetConfig{DimensionEh: dimension, AppletID: kind.AppletID, ComponentName: kind.Component}, nil
}

func (s *Service) seedDimension(ctx context.Context, d config.DimensionSpec) error {
	rec, err := s.store.CreateDimension(ctx, model.Dimension{Name: d.Name, Range: rangeOf(d), Computed: d.Computed})
	if err != nil {
		return err
	}
	s.dimensions[d.Name] = rec.EntryHash

	var entry registry.Entry
	if d.Assess != "" {
		if entry.Assess, err = s.kindFor(d.Assess, widget.RoleAssess); err != nil {
			return err
		}
	}
	if d.Display != "" {
		if entry.Display, err = s.kindFor(d.Display, widget.RoleDisplay); err != nil {
			return err
		}
	}
	if !entry.Assess.IsZero() || !entry.Display.IsZero() {
		s.registry.Widgets.Register(rec.EntryHash, entry)
	}
	return nil
}

func (s *Service) seedMethod(ctx context.Context, m config.MethodSpec) error {
	program, err := normalizeProgram(m.Program)
	if err != nil {
		return err
	}
	method := model.Method{
		Name:            m.Name,
		OutputDimension: s.dimensions[m.Output],
		Program:         program,
		CanComputeLive:  true,
	}
	for _, in := range m.Inputs {
		method.InputDimensions = append(method.InputDimensions, s.dimensions[in])
	}
	rec, err := s.store.CreateMethod(ctx, method)
	if err != nil {
		return err
	}
	if err := s.registry.Methods.Register(rec.EntryHash, method); err != nil {
		return err
	}
	if err := s.backend.track(ctx, method.OutputDimension); err != nil {
		return err
	}
	s.methods[m.Name] = rec.EntryHash
	return nil
}

func (s *Service) seedResourceDef(rd config.ResourceDefSpec) error {
	def := model.ResourceDef{Name: rd.Name, AppletID: rd.AppletID, ResourceName: rd.ResourceName}
	for _, d := range rd.Dimensions {
		def.Dimensions = append(def.Dimensions, s.dimensions[d])
	}
	eh, err := model.HashEntry(model.KindResourceDef, def)
	if err != nil {
		return err
	}
	s.resourceDefs[rd.Name] = eh
	if rd.ActiveMethod != "" {
		s.registry.Active.Set(eh, s.methods[rd.ActiveMethod])
	}
	if rd.DefaultTray != "" {
		s.defaultTrays[eh] = rd.DefaultTray
	}
	return nil
}

func (s *Service) seedTray(tf config.TrayFile, t config.TraySpec) error {
	tc := model.AssessmentTrayConfig{Name: t.Name}
	for _, c := range t.Controls {
		in, out := c.InputKind, c.OutputKind
		if d, ok := tf.Dimension(c.Input); ok && in == "" {
			in = d.Assess
		}
		if d, ok := tf.Dimension(c.Output); ok && out == "" {
			out = d.Display
		}
		inCfg, err := s.widgetConfig(s.dimensions[c.Input], in, widget.RoleAssess)
		if err != nil {
			return fmt.Errorf("input %q: %w", c.Input, err)
		}
		outCfg, err := s.widgetConfig(s.dimensions[c.Output], out, widget.RoleDisplay)
		if err != nil {
			return fmt.Errorf("output %q: %w", c.Output, err)
		}
		tc.Controls = append(tc.Controls, model.AssessmentControlConfig{Input: inCfg, Output: outCfg})
	}
	cfg, err := tray.FromTrayConfig(tc, s.catalog)
	if err != nil {
		return err
	}
	s.trays[t.Name] = cfg
	return nil
}

func (s *Service) seedContext(ctx context.Context, c config.ContextSpec) error {
	cc := model.CulturalContext{Name: c.Name, ResourceDefEh: s.resourceDefs[c.ResourceDef]}
	for _, th := range c.Thresholds {
		value, err := s.thresholdValue(ctx, th)
		if err != nil {
			return err
		}
		cc.Thresholds = append(cc.Thresholds, model.Threshold{
			DimensionEh: s.dimensions[th.Dimension],
			Kind:        model.ThresholdKind(th.Kind),
			Value:       value,
		})
	}
	for _, o := range c.OrderBy {
		cc.OrderBy = append(cc.OrderBy, model.OrderBy{DimensionEh: s.dimensions[o.Dimension], Kind: model.OrderingKind(o.Kind)})
	}
	if err := cc.Validate(); err != nil {
		return err
	}
	s.contexts[c.Name] = cc
	return nil
}

// thresholdValue shapes the threshold like the dimension it applies to.
func (s *Service) thresholdValue(ctx context.Context, th config.ThresholdSpec) (model.RangeValue, error) {
	d, err := s.store.GetDimension(ctx, s.dimensions[th.Dimension])
	if err != nil {
		return model.RangeValue{}, err
	}
	if d.Range.Integer != nil {
		return model.IntegerValue(int64(th.Value)), nil
	}
	return model.FloatValue(th.Value), nil
}
