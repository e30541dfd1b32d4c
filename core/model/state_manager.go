package model

import (
	"sync"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// ModelState is the part of a StateManager written into a model snapshot.
type ModelState struct {
	Fitted    bool
	NFeatures int
	NSamples  int
}

// StateManager tracks whether an estimator has been fitted and the shape of
// its training matrix. Estimators hold one by composition; it is safe for
// concurrent Predict calls.
type StateManager struct {
	mu sync.RWMutex
	st ModelState
}

func NewStateManager() *StateManager {
	return &StateManager{}
}

func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Fitted
}

func (s *StateManager) SetFitted() {
	s.mu.Lock()
	s.st.Fitted = true
	s.mu.Unlock()
}

// SetDimensions records the training matrix shape.
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	s.st.NFeatures, s.st.NSamples = nFeatures, nSamples
	s.mu.Unlock()
}

func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.NFeatures, s.st.NSamples
}

// Reset forgets everything learned by a previous Fit.
func (s *StateManager) Reset() {
	s.SetState(ModelState{})
}

// RequireFitted fails with a NotFittedError until SetFitted has been called.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if s.IsFitted() {
		return nil
	}
	return errors.NewNotFittedError(modelName, method)
}

// RequireFeatures checks that X has as many columns as the training matrix.
func (s *StateManager) RequireFeatures(op string, X interface{ Dims() (int, int) }) error {
	want, _ := s.GetDimensions()
	if _, got := X.Dims(); got != want {
		return errors.NewDimensionError(op, want, got, 1)
	}
	return nil
}

func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *StateManager) SetState(st ModelState) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}
