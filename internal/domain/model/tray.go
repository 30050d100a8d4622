package model

// AssessmentWidgetConfig maps a dimension to the control that renders it.
// Either RegistrationEh is set, or AppletID and ComponentName are.
type AssessmentWidgetConfig struct {
	DimensionEh    EntryHash  `json:"dimension_eh" cbor:"dimension_eh"`
	RegistrationEh *EntryHash `json:"registration_eh,omitempty" cbor:"registration_eh,omitempty"`
	AppletID       string     `json:"applet_id,omitempty" cbor:"applet_id,omitempty"`
	ComponentName  string     `json:"component_name,omitempty" cbor:"component_name,omitempty"`
}

// Validate checks that exactly one addressing form is used.
func (c AssessmentWidgetConfig) Validate() error {
	if c.DimensionEh.IsZero() {
		return ErrInvalidEntry
	}
	byRegistration := c.RegistrationEh != nil
	byComponent := c.AppletID != "" && c.ComponentName != ""
	if byRegistration == byComponent {
		return ErrInvalidEntry
	}
	return nil
}

// AssessmentControlConfig pairs the input control with the output control
// that displays the computed result.
type AssessmentControlConfig struct {
	Input  AssessmentWidgetConfig `json:"input_assessment_control" cbor:"input"`
	Output AssessmentWidgetConfig `json:"output_assessment_control" cbor:"output"`
}

// AssessmentTrayConfig is a named, ordered list of control configs.
type AssessmentTrayConfig struct {
	Name     string                    `json:"name" cbor:"name"`
	Controls []AssessmentControlConfig `json:"assessment_control_configs" cbor:"controls"`
}

// Validate checks every control config.
func (t AssessmentTrayConfig) Validate() error {
	if t.Name == "" {
		return ErrInvalidEntry
	}
	for _, c := range t.Controls {
		if err := c.Input.Validate(); err != nil {
			return err
		}
		if err := c.Output.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AssessmentControlRegistration describes a control an applet exposes.
type AssessmentControlRegistration struct {
	AppletID   string    `json:"applet_id" cbor:"applet_id"`
	ControlKey string    `json:"control_key" cbor:"control_key"`
	Name       string    `json:"name" cbor:"name"`
	RangeKind  RangeKind `json:"range_kind" cbor:"range_kind"`
	Kind       string    `json:"kind" cbor:"kind"` // "input" or "output"
}

// RegisteredControl is a registration together with the entry hash that
// widget configs use to address it.
type RegisteredControl struct {
	RegistrationEh EntryHash `json:"registration_eh"`
	AssessmentControlRegistration
}
