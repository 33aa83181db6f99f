package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPollAttempts = 60
	DefaultPollInterval = time.Second
)

// PollOptions bounds a poll. Intervals are constant; there is no backoff or
// jitter, so a poll costs at most MaxAttempts requests.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	MaxElapsed  time.Duration
	OnAttempt   func(PollAttempt)
	Sleep       func(ctx context.Context, delay time.Duration) error
	Now         func() time.Time
}

type PollAttempt struct {
	Target      PollTarget
	Attempt     int
	MaxAttempts int
	Ready       bool
	Err         error
}

// PollTarget names what is being polled for error reporting.
type PollTarget struct {
	URL    string
	Wanted string
}

type FetchFunc func(ctx context.Context) (any, error)

// ReadyFunc inspects one observation and reports whether the wait is over.
type ReadyFunc[T any] func(body any) (T, bool)

type StateFunc func(body any) string

type ProjectFunc func(body any) (Document, bool)

func (o PollOptions) normalized() PollOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultPollAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Sleep == nil {
		o.Sleep = waitWithContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// merged applies the non-zero fields of override on top of o.
func (o PollOptions) merged(override PollOptions) PollOptions {
	if override.MaxAttempts > 0 {
		o.MaxAttempts = override.MaxAttempts
	}
	if override.Interval > 0 {
		o.Interval = override.Interval
	}
	if override.MaxElapsed > 0 {
		o.MaxElapsed = override.MaxElapsed
	}
	if override.OnAttempt != nil {
		o.OnAttempt = override.OnAttempt
	}
	if override.Sleep != nil {
		o.Sleep = override.Sleep
	}
	if override.Now != nil {
		o.Now = override.Now
	}
	return o
}

// PollUntil fetches until ready accepts an observation or the budget runs
// out. Fetch errors count as "not ready yet" and become the last observation;
// only context cancellation aborts early.
func PollUntil[T any](
	ctx context.Context,
	options PollOptions,
	target PollTarget,
	fetch FetchFunc,
	ready ReadyFunc[T],
) (T, error) {
	var zero T
	if fetch == nil || ready == nil {
		return zero, badInputError("core: poll requires fetch and ready functions")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	options = options.normalized()
	startedAt := options.Now()

	var last any
	attempts := 0
	for attempt := 1; attempt <= options.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		attempts = attempt

		body, err := fetch(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			last = observedFailure(err)
		} else {
			last = body
			if value, ok := ready(body); ok {
				options.report(PollAttempt{Target: target, Attempt: attempt, MaxAttempts: options.MaxAttempts, Ready: true})
				return value, nil
			}
		}
		options.report(PollAttempt{Target: target, Attempt: attempt, MaxAttempts: options.MaxAttempts, Err: err})

		if attempt == options.MaxAttempts {
			break
		}
		if options.MaxElapsed > 0 && options.Now().Sub(startedAt)+options.Interval > options.MaxElapsed {
			break
		}
		if err := options.Sleep(ctx, options.Interval); err != nil {
			return zero, err
		}
	}

	return zero, &TimeoutError{
		URL:      target.URL,
		Wanted:   target.Wanted,
		Attempts: attempts,
		Elapsed:  options.Now().Sub(startedAt),
		LastBody: last,
	}
}

// WaitForState polls until extract(body) equals wanted and returns the
// matching body.
func WaitForState(
	ctx context.Context,
	options PollOptions,
	target PollTarget,
	fetch FetchFunc,
	extract StateFunc,
	wanted string,
) (Document, error) {
	if extract == nil {
		return nil, badInputError("core: wait for state requires a state extractor")
	}
	if strings.TrimSpace(target.Wanted) == "" {
		target.Wanted = fmt.Sprintf("state=%s", wanted)
	}
	return PollUntil[Document](ctx, options, target, fetch, func(body any) (Document, bool) {
		doc, ok := asDocument(body)
		if !ok {
			return nil, false
		}
		return doc, extract(doc) == wanted
	})
}

// WaitForFields polls until the projected object carries every field as a
// non-empty string. It never returns a partial map.
func WaitForFields(
	ctx context.Context,
	options PollOptions,
	target PollTarget,
	fetch FetchFunc,
	project ProjectFunc,
	fields ...string,
) (map[string]string, error) {
	if len(fields) == 0 {
		return nil, badInputError("core: wait for fields requires at least one field")
	}
	if project == nil {
		project = FirstObject
	}
	if strings.TrimSpace(target.Wanted) == "" {
		target.Wanted = "fields " + strings.Join(fields, ",")
	}
	return PollUntil[map[string]string](ctx, options, target, fetch, func(body any) (map[string]string, bool) {
		doc, ok := project(body)
		if !ok {
			return nil, false
		}
		return requireFields(doc, fields...)
	})
}

// FieldState reads the state from the first of keys that is present.
func FieldState(keys ...string) StateFunc {
	return func(body any) string {
		doc, ok := asDocument(body)
		if !ok {
			return ""
		}
		return StringField(doc, keys...)
	}
}

func requireFields(doc Document, fields ...string) (map[string]string, bool) {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		value, ok := doc[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return nil, false
		}
		out[field] = value
	}
	return out, true
}

func observedFailure(err error) any {
	if transportErr, ok := AsTransportError(err); ok {
		if strings.TrimSpace(transportErr.Body) != "" {
			return transportErr.Body
		}
		return transportErr.Error()
	}
	return err.Error()
}

func (o PollOptions) report(attempt PollAttempt) {
	if o.OnAttempt != nil {
		o.OnAttempt(attempt)
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
