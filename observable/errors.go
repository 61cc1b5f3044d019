package observable

import "errors"

// ErrNoValueYet is returned when a Subject is read, or strictly observed,
// before anything has been pushed into it.
var ErrNoValueYet = errors.New("observable: no value yet")
