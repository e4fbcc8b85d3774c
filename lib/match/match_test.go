// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package match

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/bureau-foundation/gridbus/lib/headers"
)

func TestResultStates(t *testing.T) {
	t.Parallel()
	var zero Result
	if zero.Evaluated() || zero.Matched() {
		t.Errorf("zero Result: Evaluated=%v Matched=%v, want false/false", zero.Evaluated(), zero.Matched())
	}
	if !NoMatch.Evaluated() || NoMatch.Matched() {
		t.Errorf("NoMatch: Evaluated=%v Matched=%v, want true/false", NoMatch.Evaluated(), NoMatch.Matched())
	}
	matched := Match("x")
	if !matched.Evaluated() || !matched.Matched() || matched.Value() != "x" {
		t.Errorf("Match(x) = %v", matched)
	}
	if got := matched.String(); got != "Match(x)" {
		t.Errorf("String = %q", got)
	}
}

func TestRules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		rule       Rule
		wantPrefix string
		topic      string
		want       bool
	}{
		{"all", All(), "", "anything/at/all", true},
		{"start", Start("campus/"), "campus/", "campus/building", true},
		{"start_miss", Start("campus/"), "campus/", "camp", false},
		{"exact", Exact("a/b"), "a/b", "a/b", true},
		{"exact_below", Exact("a/b"), "a/b", "a/b/c", false},
		{"end", End("/blower", "devices/"), "devices/", "devices/unit/blower", true},
		{"end_miss", End("/blower", "devices/"), "devices/", "devices/unit/fan", false},
		{"contains", Contains("rtu", ""), "", "campus/rtu4/temp", true},
		{"contains_miss", Contains("rtu", ""), "", "campus/ahu/temp", false},
		{"subtopic", Subtopic("devices", "zone", 0), "devices", "devices/b1/zone/temp", true},
		{"subtopic_limited", Subtopic("devices", "zone", 1), "devices", "devices/b1/zone/temp", false},
		{"subtopic_prefix_level_ignored", Subtopic("devices", "devices", 0), "devices", "devices/b1", false},
		{"subtopic_no_levels", Subtopic("devices", "zone", 0), "devices", "devices", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if test.rule.Prefix != test.wantPrefix {
				t.Errorf("Prefix = %q, want %q", test.rule.Prefix, test.wantPrefix)
			}
			if got := test.rule.Test(test.topic).Matched(); got != test.want {
				t.Errorf("Test(%q) = %v, want %v", test.topic, got, test.want)
			}
		})
	}
}

func TestRuleWithoutPredicateReportsPrefix(t *testing.T) {
	t.Parallel()
	result := Start("a/").Test("a/b")
	if result.Value() != "a/" {
		t.Errorf("Value = %v, want a/", result.Value())
	}
}

func TestRegexSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern    string
		wantPrefix string
		wantRest   string
	}{
		{`topic1/(sub|next)/title[1-9]`, "topic1/", `(sub|next)/title[1-9]`},
		{`plain/topic`, "plain/topic", ""},
		{`a\.b/c.*`, "a.b/c", ".*"},
		{`x/\d+`, "x/", `\d+`},
		{`^anchored`, "", "^anchored"},
		{`trailing\`, "trailing", `\`},
	}
	for _, test := range tests {
		t.Run(test.pattern, func(t *testing.T) {
			t.Parallel()
			prefix, rest := splitRegex(test.pattern)
			if prefix != test.wantPrefix || rest != test.wantRest {
				t.Errorf("splitRegex(%q) = (%q, %q), want (%q, %q)",
					test.pattern, prefix, rest, test.wantPrefix, test.wantRest)
			}
		})
	}
}

func TestRegex(t *testing.T) {
	t.Parallel()
	rule := MustRegex(`topic1/(sub|next|part)/title[1-9]`)
	if rule.Prefix != "topic1/" {
		t.Fatalf("Prefix = %q", rule.Prefix)
	}

	result := rule.Test("topic1/next/title4")
	if !result.Matched() {
		t.Fatal("expected match")
	}
	want := []string{"next/title4", "next"}
	if !reflect.DeepEqual(result.Value(), want) {
		t.Errorf("Value = %v, want %v", result.Value(), want)
	}

	if rule.Test("topic1/other/title4").Matched() {
		t.Error("unexpected match for other")
	}
	// Anchored at the start only.
	if !rule.Test("topic1/sub/title1/extra").Matched() {
		t.Error("regex should match a longer topic")
	}
}

func TestRegexInvalid(t *testing.T) {
	t.Parallel()
	if _, err := Regex(`a/(unclosed`); err == nil {
		t.Error("Regex accepted an unbalanced group")
	}
	defer func() {
		if recover() == nil {
			t.Error("MustRegex did not panic")
		}
	}()
	MustRegex(`a/(unclosed`)
}

func TestGlob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern    string
		wantPrefix string
		topic      string
		want       bool
		captures   []string
	}{
		{"root/sub/*/leaf", "root/sub/", "root/sub/x/leaf", true, []string{"x"}},
		{"root/sub/*/leaf", "root/sub/", "root/sub/x/y/leaf", false, nil},
		{"root/sub/*/leaf", "root/sub/", "root/sub/x/leafy", false, nil},
		{"root/**/leaf", "root/", "root/a/b/c/leaf", true, []string{"a/b/c"}},
		{"rtu?", "rtu", "rtu4", true, []string{"4"}},
		{"rtu?", "rtu", "rtu42", false, nil},
		{"zone[1-3]/temp", "zone", "zone2/temp", true, []string{"2"}},
		{"zone[!1-3]/temp", "zone", "zone7/temp", true, []string{"7"}},
		{"zone[!1-3]/temp", "zone", "zone2/temp", false, nil},
		{`lit\*eral/*`, "lit*eral/", "lit*eral/x", true, []string{"x"}},
		{"a.b/*", "a.b/", "a.b/c", true, []string{"c"}},
		{"no/wildcards", "no/wildcards", "no/wildcards", true, []string{}},
	}
	for _, test := range tests {
		t.Run(test.pattern+"@"+test.topic, func(t *testing.T) {
			t.Parallel()
			rule := MustGlob(test.pattern)
			if rule.Prefix != test.wantPrefix {
				t.Errorf("Prefix = %q, want %q", rule.Prefix, test.wantPrefix)
			}
			result := rule.Test(test.topic)
			if result.Matched() != test.want {
				t.Fatalf("Test(%q) matched = %v, want %v", test.topic, result.Matched(), test.want)
			}
			if test.want && !reflect.DeepEqual(result.Value(), test.captures) {
				t.Errorf("captures = %#v, want %#v", result.Value(), test.captures)
			}
		})
	}
}

func TestGlobUnterminatedClass(t *testing.T) {
	t.Parallel()
	if _, err := Glob("zone[12"); err == nil {
		t.Error("Glob accepted an unterminated class")
	}
}

func TestRequireHeaders(t *testing.T) {
	t.Parallel()
	test := RequireHeaders(map[string]any{"From": "rtu4", "priority": 5})

	matching := headers.New()
	matching.Set("from", "rtu4")
	matching.Set("Priority", 5)
	if !test(matching) {
		t.Error("headers with matching values rejected")
	}

	var decoded headers.Headers
	if err := decoded.UnmarshalJSON([]byte(`{"FROM":"rtu4","priority":5}`)); err != nil {
		t.Fatal(err)
	}
	if !test(&decoded) {
		t.Error("JSON-decoded numeric header rejected")
	}

	missing := headers.New()
	missing.Set("From", "rtu4")
	if test(missing) {
		t.Error("headers missing a key accepted")
	}

	wrong := headers.New()
	wrong.Set("From", "ahu1")
	wrong.Set("priority", 5)
	if test(wrong) {
		t.Error("headers with wrong value accepted")
	}

	if test(nil) {
		t.Error("nil headers accepted by non-empty requirement")
	}
	if !RequireHeaders(nil)(nil) {
		t.Error("empty requirement rejected nil headers")
	}
}

func TestRequireHeadersComparesStrictly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want any
		got  any
		ok   bool
	}{
		{"same string", "5", "5", true},
		{"string vs number", "5", 5, false},
		{"number vs string", 5, "5", false},
		{"number vs json number", 5, json.Number("5"), true},
		{"number vs json fraction", 5, json.Number("5.0"), true},
		{"number vs other json number", 5, json.Number("6"), false},
		{"json number vs string", json.Number("5"), "5", false},
		{"int vs float", 2, 2.0, true},
		{"int vs uint", int64(7), uint8(7), true},
		{"float vs fraction", 0.5, json.Number("0.5"), true},
		{"bool vs string", true, "true", false},
		{"bool", true, true, true},
		{"nil vs string", nil, "<nil>", false},
		{"list", []any{"a", "b"}, []any{"a", "b"}, true},
		{"list vs string", []any{"a"}, "[a]", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := headers.New()
			h.Set("Key", test.got)
			if got := RequireHeaders(map[string]any{"key": test.want})(h); got != test.ok {
				t.Errorf("required %#v against header %#v = %v, want %v", test.want, test.got, got, test.ok)
			}
		})
	}
}
