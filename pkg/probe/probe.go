// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package probe

import (
	"context"
	"fmt"
)

// Probe retrieves one raw sample of every family.
//
// A failed family is reported in RawSample.Failures and does not fail the
// whole call. A non-nil error means no family could be collected; the
// returned sample, when non-nil, still carries the per-family failures.
// Implementations do not retry.
type Probe interface {
	Collect(ctx context.Context) (*RawSample, error)
}

// collectFamily runs read on its own goroutine and gives up once ctx is done,
// so a hung platform call cannot hold the tick. The abandoned goroutine
// finishes in the background and its result is discarded. done, when set,
// runs once read has returned, even after the caller has given up.
func collectFamily[T any](ctx context.Context, family Family, read func(context.Context) (T, error), done func()) (T, *Failure) {
	var zero T

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		if done != nil {
			defer done()
		}
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: panic: %v", ErrTransient, r)}
			}
		}()
		v, err := read(ctx)
		ch <- result{value: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, NewFailure(family, r.err)
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, &Failure{Family: family, Kind: KindTimeout, Err: ctx.Err()}
	}
}
