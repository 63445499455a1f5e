package main

import "github.com/zph/fleetd/pkg/ferrors"

// exitCodeFor maps a command error to the process exit code: -EINVAL for
// validation failures, -ENOENT for not-found, 1 otherwise. Remote helper
// failures also map to 1; the helper's own exit code is not passed through.
func exitCodeFor(err error) int {
	type coder interface{ Code() int }
	if c, ok := err.(coder); ok {
		return c.Code()
	}
	if ferrors.Is(err, ferrors.KindValidation) || ferrors.Is(err, ferrors.KindHostValidation) {
		return ferrors.ExitEINVAL
	}
	if ferrors.Is(err, ferrors.KindNotFound) {
		return ferrors.ExitENOENT
	}
	return 1
}
