package registry

import (
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// Dimensions is the input/output pair a method maps between.
type Dimensions struct {
	Input  model.EntryHash `json:"input"`
	Output model.EntryHash `json:"output"`
}

// Methods maps methods to their dimensions.
type Methods struct {
	snap *Snapshot[map[model.EntryHash]Dimensions]
}

// NewMethods returns an empty method table.
func NewMethods() *Methods {
	return &Methods{snap: NewSnapshot(map[model.EntryHash]Dimensions{})}
}

// Register records m under methodEh. Only the first input dimension is
// mapped.
func (m *Methods) Register(methodEh model.EntryHash, method model.Method) error {
	if err := method.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidMethod, method.Name, err)
	}
	m.Set(methodEh, Dimensions{Input: method.InputDimensions[0], Output: method.OutputDimension})
	return nil
}

// Set records the dimensions for methodEh.
func (m *Methods) Set(methodEh model.EntryHash, d Dimensions) {
	m.snap.Update(func(cur map[model.EntryHash]Dimensions) map[model.EntryHash]Dimensions {
		next := cloneMap(cur)
		next[methodEh] = d
		return next
	})
}

// Dimensions returns the dimensions of methodEh.
func (m *Methods) Dimensions(methodEh model.EntryHash) (Dimensions, error) {
	d, ok := m.snap.Get()[methodEh]
	if !ok {
		return Dimensions{}, fmt.Errorf("%w: %s", ErrMethodNotFound, methodEh)
	}
	return d, nil
}
