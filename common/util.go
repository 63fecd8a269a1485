package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// RunParallel runs every function in its own goroutine and joins whatever
// errors they return. The second return value is the number of failures.
func RunParallel(funcs ...func() error) (int, error) {
	var wg sync.WaitGroup
	errs := make(chan error, len(funcs))

	for _, fn := range funcs {
		wg.Add(1)
		go func(fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errs <- err
			}
		}(fn)
	}

	wg.Wait()
	close(errs)

	var allErrs []error
	for err := range errs {
		allErrs = append(allErrs, err)
	}
	return len(allErrs), errors.Join(allErrs...)
}

// FirstSuccess races fn against every source and returns the first
// successful result, cancelling the rest. If all of them fail the errors are
// joined, each prefixed by the source's name.
func FirstSuccess[S fmt.Stringer, T any](
	ctx context.Context,
	sources []S,
	fn func(ctx context.Context, src S) (T, error),
) (T, error) {
	var zero T
	if len(sources) == 0 {
		return zero, ErrNoSession
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val T
		err error
	}
	results := make(chan result, len(sources))
	for _, src := range sources {
		go func(src S) {
			val, err := fn(ctx, src)
			if err != nil {
				err = fmt.Errorf("%s: %w", src.String(), err)
			}
			results <- result{val, err}
		}(src)
	}

	var errs []error
	for range sources {
		r := <-results
		if r.err == nil {
			return r.val, nil
		}
		errs = append(errs, r.err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return zero, ctxErr
	}
	return zero, errors.Join(errs...)
}
