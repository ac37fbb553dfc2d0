// Package mutator defines the external package-mutator collaborator
// boundary (spec section 1 Non-goals, 4.F step 5): the core only records
// the *decision* to install/remove/upgrade/downgrade packages and treats
// applying that decision as an opaque operation with a success/fail
// outcome. No implementation here shells out to a real package manager;
// that is explicitly out of scope.
package mutator

import "context"

// PackageAction is one atomic change the mutator is asked to perform.
type PackageAction struct {
	PackageName string
	FromVersion string
	ToVersion   string
	Kind        ActionKind
}

// ActionKind enumerates the operations a PackageAction may request.
type ActionKind string

const (
	ActionInstall ActionKind = "install"
	ActionRemove  ActionKind = "remove"
	ActionUpgrade ActionKind = "upgrade"
)

// Intent is the resolved set of actions handed to the mutator for one
// operation.
type Intent struct {
	EndpointID string
	Actions    []PackageAction
}

// Outcome reports whether the mutator succeeded in applying an Intent.
type Outcome struct {
	Success bool
	Error   string
}

// Mutator applies a resolved Intent and reports the outcome. Real
// implementations live outside this core; Apply's contract is opaque
// from the coordinator's point of view.
type Mutator interface {
	Apply(ctx context.Context, intent Intent) (Outcome, error)
}

// Stub is an in-memory Mutator used where no real package manager is
// wired up (the default for this core, per spec 1's non-goals). ApplyFunc
// lets callers (and tests) control the outcome; a nil ApplyFunc always
// reports success.
type Stub struct {
	ApplyFunc func(ctx context.Context, intent Intent) (Outcome, error)
}

// Apply implements Mutator.
func (s *Stub) Apply(ctx context.Context, intent Intent) (Outcome, error) {
	if s.ApplyFunc != nil {
		return s.ApplyFunc(ctx, intent)
	}
	return Outcome{Success: true}, nil
}
