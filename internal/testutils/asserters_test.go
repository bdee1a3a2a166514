package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		equal    bool
	}{
		{name: "identical", actual: "a\nb", expected: "a\nb", equal: true},
		{name: "trailing whitespace ignored", actual: "a  \nb\t", expected: "a\nb", equal: true},
		{name: "surrounding blank lines trimmed", actual: "\n\na\n", expected: "a", equal: true},
		{name: "content differs", actual: "a\nc", expected: "a\nb", equal: false},
		{name: "empty lines kept by default", actual: "a\n\nb", expected: "a\nb", equal: false},
		{name: "empty lines ignored", opts: []TextOption{WithIgnoreEmptyLines(true)}, actual: "a\n\nb", expected: "a\nb", equal: true},
		{name: "trim disabled", opts: []TextOption{WithTrimSpace(false)}, actual: "\na", expected: "a", equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			NewTextAsserter(rt).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.equal {
				assert.Empty(t, rt.failures)
			} else {
				assert.Len(t, rt.failures, 1)
			}
		})
	}
}

func TestTextAsserter_DiffShowsBothSides(t *testing.T) {
	diff := NewTextAsserter(t).Diff("steps: 15", "steps: 12")
	assert.Contains(t, diff, "-steps: 12")
	assert.Contains(t, diff, "+steps: 15")

	colored := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("x y", "x z")
	assert.True(t, strings.Contains(colored, "x·z"), "colored diff MUST make spaces visible")
}
