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
	"errors"
	"testing"

	globutil "github.com/bmatcuk/doublestar/v4"
)

type MatchTest struct {
	patterns    []string
	name        string
	shouldMatch bool
}

var matchTests = []MatchTest{
	{[]string{"lo"}, "lo", true},
	{[]string{"lo"}, "lo0", false},
	{[]string{"docker*", "veth*"}, "veth12ab", true},
	{[]string{"docker*", "veth*"}, "eth0", false},
	{[]string{"/snap/**"}, "/snap/core/1234", true},
	{[]string{"/snap/**"}, "/home", false},
	{[]string{"/run/*"}, "/run/user/1000", false},
	{[]string{"/run/**"}, "/run/user/1000", true},
	{[]string{"{tmpfs,devtmpfs,overlay}"}, "overlay", true},
	{[]string{"  ", ""}, "anything", false},
	{nil, "eth0", false},
}

func TestMatcherMatch(t *testing.T) {
	for idx, tt := range matchTests {
		m, err := NewMatcher(tt.patterns...)
		if err != nil {
			t.Fatalf("#%v. NewMatcher(%#q) returned error: %v", idx, tt.patterns, err)
		}
		if got := m.Match(tt.name); got != tt.shouldMatch {
			t.Errorf("#%v. Match(%#q, %#q) = %v want %v", idx, tt.patterns, tt.name, got, tt.shouldMatch)
		}
	}
}

func TestNewMatcherRejectsBadPattern(t *testing.T) {
	_, err := NewMatcher("eth[")
	if !errors.Is(err, globutil.ErrBadPattern) {
		t.Fatalf("expected ErrBadPattern, got %v", err)
	}
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	if m.Match("lo") {
		t.Fatalf("nil matcher should not match")
	}
	if m.Patterns() != nil {
		t.Fatalf("nil matcher should have no patterns")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" lo, docker* ,,veth*")
	want := []string{"lo", "docker*", "veth*"}
	if len(got) != len(want) {
		t.Fatalf("SplitList = %#v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitList[%d] = %q want %q", i, got[i], want[i])
		}
	}
	if SplitList("   ") != nil {
		t.Fatalf("blank list should be nil")
	}
}
