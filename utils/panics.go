package utils

import "fmt"

// RecoverWithError turns a panic into an error stored in *err. Use it deferred.
func RecoverWithError(err *error) {
	rv := recover()
	if rv == nil {
		return
	}
	if rvErr, ok := rv.(error); ok {
		*err = fmt.Errorf("got panic: %w", rvErr)
		return
	}
	*err = fmt.Errorf("got panic: %v", rv)
}
