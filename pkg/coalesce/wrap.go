package coalesce

import "context"

func result[R any](v any, err error) (R, error) {
	if err != nil {
		var zero R
		return zero, err
	}
	r, _ := v.(R)
	return r, nil
}

// Wrap0 coalesces a function without arguments.
func Wrap0[R any](c *Cache, identifier string, fn func(context.Context) (R, error)) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		return result[R](c.Do(ctx, identifier, nil, func(ctx context.Context) (any, error) {
			return fn(ctx)
		}))
	}
}

// Wrap1 coalesces a function of one argument.
func Wrap1[A, R any](c *Cache, identifier string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, a A) (R, error) {
		return result[R](c.Do(ctx, identifier, []any{a}, func(ctx context.Context) (any, error) {
			return fn(ctx, a)
		}))
	}
}

// Wrap2 coalesces a function of two arguments.
func Wrap2[A, B, R any](c *Cache, identifier string, fn func(context.Context, A, B) (R, error)) func(context.Context, A, B) (R, error) {
	return func(ctx context.Context, a A, b B) (R, error) {
		return result[R](c.Do(ctx, identifier, []any{a, b}, func(ctx context.Context) (any, error) {
			return fn(ctx, a, b)
		}))
	}
}

// Wrap3 coalesces a function of three arguments.
func Wrap3[A, B, C, R any](c *Cache, identifier string, fn func(context.Context, A, B, C) (R, error)) func(context.Context, A, B, C) (R, error) {
	return func(ctx context.Context, a A, b B, cc C) (R, error) {
		return result[R](c.Do(ctx, identifier, []any{a, b, cc}, func(ctx context.Context) (any, error) {
			return fn(ctx, a, b, cc)
		}))
	}
}

// WrapValue0 coalesces a synchronous function. It goes through the same path as
// the other wrappers and leaves no entry behind once it returns.
func WrapValue0[R any](c *Cache, identifier string, fn func() R) func() R {
	return func() R {
		v, _ := result[R](c.Do(context.Background(), identifier, nil, func(context.Context) (any, error) {
			return fn(), nil
		}))
		return v
	}
}

// WrapValue1 coalesces a synchronous function of one argument. The signature
// has no error to return, so an argument that cannot be serialized panics with
// the *SerializationError and fn does not run.
func WrapValue1[A, R any](c *Cache, identifier string, fn func(A) R) func(A) R {
	return func(a A) R {
		v, err := result[R](c.Do(context.Background(), identifier, []any{a}, func(context.Context) (any, error) {
			return fn(a), nil
		}))
		if err != nil {
			panic(err)
		}
		return v
	}
}
