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
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrUnavailable means the platform cannot supply the family at all.
	ErrUnavailable = errors.New("probe unavailable")
	// ErrTimeout means the family did not answer within the tick budget.
	ErrTimeout = errors.New("probe timeout")
	// ErrTransient covers I/O and other retryable failures.
	ErrTransient = errors.New("probe transient failure")
)

type Kind int

const (
	KindTransient Kind = iota
	KindTimeout
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "transient"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrTransient
	}
}

// Failure records why one family could not be collected.
type Failure struct {
	Family Family
	Kind   Kind
	Err    error
}

// NewFailure classifies err and binds it to the family.
func NewFailure(family Family, err error) *Failure {
	return &Failure{Family: family, Kind: Classify(err), Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Family, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Family, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel of the failure kind.
func (f *Failure) Is(target error) bool {
	return target == f.Kind.sentinel()
}

// Reason is a short human readable cause.
func (f *Failure) Reason() string {
	if f == nil {
		return ""
	}
	switch {
	case f.Kind == KindTimeout:
		return "timeout"
	case errors.Is(f.Err, os.ErrPermission):
		return "permission denied"
	case f.Kind == KindUnavailable:
		return "platform unsupported"
	case f.Err != nil:
		return f.Err.Error()
	default:
		return f.Kind.String()
	}
}

// Classify maps an error returned by a platform call onto a failure kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, errors.ErrUnsupported),
		errors.Is(err, os.ErrPermission),
		strings.Contains(err.Error(), "not implemented"):
		return KindUnavailable
	default:
		return KindTransient
	}
}
