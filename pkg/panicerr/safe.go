package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic is returned as an error carrying the
// recovered value and stack.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for functions taking a context.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// SafeLoop adapts a blocking Start(ctx) style loop, which has no error
// result, so a panic inside it surfaces as an error.
func SafeLoop(fn func(context.Context)) func(context.Context) error {
	return SafeContext(func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
