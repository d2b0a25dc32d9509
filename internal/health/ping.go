package health

import "context"

// HealthPinger is implemented by components that can probe themselves.
// HealthPing returns nil when the component is usable.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
