package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrNoFactory is logged by Reload when a route's strategy has no
// registered TransportFactory.
type ErrNoFactory struct {
	Service  string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (service %s)", e.Strategy, e.Service)
}

// ErrFactoryFailed is logged by Reload when a TransportFactory fails.
type ErrFactoryFailed struct {
	Service  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for service %s (endpoint %s): %v",
		e.Strategy, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrRemoteStatus is returned by the HTTP transport for non-2xx replies.
type ErrRemoteStatus struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ErrRemoteStatus) Error() string {
	return fmt.Sprintf("connectivity: %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}
