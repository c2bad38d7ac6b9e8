// Package platform defines the operating-system facilities the tracker
// consumes: a daily active-use counter and a permission prompt.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the usage facility does not exist on this host.
	ErrUnavailable = errors.New("platform usage facility unavailable")

	// ErrPermissionDenied means the user has not granted access to usage data.
	ErrPermissionDenied = errors.New("usage access permission denied")
)

// UsageCounter reports how long the device has been actively used since
// local midnight.
type UsageCounter interface {
	TodayActiveSeconds(ctx context.Context) (float64, error)
}

// PermissionRequester asks the user for access to usage data.
type PermissionRequester interface {
	RequestPermissions(ctx context.Context) (bool, error)
}

// CounterFunc adapts a function to UsageCounter.
type CounterFunc func(ctx context.Context) (float64, error)

// TodayActiveSeconds calls f.
func (f CounterFunc) TodayActiveSeconds(ctx context.Context) (float64, error) {
	return f(ctx)
}

// PermissionFunc adapts a function to PermissionRequester.
type PermissionFunc func(ctx context.Context) (bool, error)

// RequestPermissions calls f.
func (f PermissionFunc) RequestPermissions(ctx context.Context) (bool, error) {
	return f(ctx)
}
