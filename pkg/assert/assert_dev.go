//go:build !release

// Package assert holds invariant checks that only run in development builds. Build with
// `-tags release` to compile them away.
package assert

import "fmt"

// Enabled reports whether debug-only validation is compiled in.
const Enabled = true

// That panics with the formatted message when cond is false.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
