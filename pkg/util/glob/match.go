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

package glob

import (
	"fmt"
	"strings"

	globutil "github.com/bmatcuk/doublestar/v4"
)

// Matcher reports whether a device name or mountpoint matches any of a set of
// doublestar patterns. A nil Matcher matches nothing.
type Matcher struct {
	patterns []string
}

// NewMatcher validates and stores the given patterns. Blank entries are ignored.
func NewMatcher(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if !globutil.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", globutil.ErrBadPattern, pattern)
		}
		m.patterns = append(m.patterns, pattern)
	}
	return m, nil
}

// MustMatcher is NewMatcher for patterns known at compile time.
func MustMatcher(patterns ...string) *Matcher {
	m, err := NewMatcher(patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns true when name matches at least one pattern.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return false
	}
	for _, pattern := range m.patterns {
		// patterns are validated in NewMatcher, so Match cannot fail here
		if ok, _ := globutil.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// SplitList splits a comma separated flag value into patterns.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
