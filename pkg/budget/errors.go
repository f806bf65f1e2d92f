package budget

import (
	"errors"
	"fmt"
)

// Kind classifies an admission rejection.
type Kind string

const (
	SafetyCeilingBreach   Kind = "SAFETY_CEILING_BREACH"
	CeilingExceeded       Kind = "CEILING_EXCEEDED"
	GovernedRouteBlocked  Kind = "GOVERNED_ROUTE_BLOCKED"
	BelowMinimumGuarantee Kind = "BELOW_MINIMUM_GUARANTEE"
	ViabilityRejected     Kind = "VIABILITY_REJECTED"
)

var (
	ErrSafetyCeilingBreach   = errors.New("budget: safety ceiling breach")
	ErrCeilingExceeded       = errors.New("budget: ceiling exceeded")
	ErrGovernedRouteBlocked  = errors.New("budget: governed route blocked")
	ErrBelowMinimumGuarantee = errors.New("budget: below minimum guarantee")
	ErrViabilityRejected     = errors.New("budget: viability rejected")

	ErrInvalidEnvelope  = errors.New("budget: invalid envelope")
	ErrInvalidPolicy    = errors.New("budget: invalid policy")
	ErrPolicyDowngrade  = errors.New("budget: policy version downgrade refused")
	ErrNoPolicy         = errors.New("budget: no policy loaded")
	ErrStoreUnavailable = errors.New("budget: usage store unavailable")
)

// Error rejects a single admission request. State is left unchanged.
type Error struct {
	Kind      Kind
	Subject   string
	Route     string
	Dimension string
	Limit     float64
	Value     float64
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("budget: %s (subject=%s route=%s", e.Kind, e.Subject, e.Route)
	if e.Dimension != "" {
		msg += fmt.Sprintf(" dimension=%s value=%g limit=%g", e.Dimension, e.Value, e.Limit)
	} else if e.Kind == SafetyCeilingBreach && e.Err == nil {
		msg += fmt.Sprintf(" risk=%g cap=%g", e.Value, e.Limit)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrSafetyCeilingBreach:
		return e.Kind == SafetyCeilingBreach
	case ErrCeilingExceeded:
		return e.Kind == CeilingExceeded
	case ErrGovernedRouteBlocked:
		return e.Kind == GovernedRouteBlocked
	case ErrBelowMinimumGuarantee:
		return e.Kind == BelowMinimumGuarantee
	case ErrViabilityRejected:
		return e.Kind == ViabilityRejected
	}
	return false
}

// KindOf returns the rejection kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
