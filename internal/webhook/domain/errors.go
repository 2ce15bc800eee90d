package domain

import "errors"

// ErrUnavailable asks the sender to redeliver later.
var ErrUnavailable = errors.New("service_unavailable")
