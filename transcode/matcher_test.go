package transcode

import (
	"reflect"
	"testing"
)

func TestMatcherAdvance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		delim string
		mode  Matching
		input string
		want  []int
	}{
		{name: "singleByte", delim: ",", input: "a,b,", want: []int{1, 3}},
		{name: "multiByte", delim: "#|#", input: "a#|#b#|#", want: []int{3, 7}},
		{name: "mismatchRestarts", delim: "#|#", input: "##|#", want: nil},
		{name: "naiveRepeatedPrefix", delim: "aab", input: "aaab", want: nil},
		{name: "overlapRepeatedPrefix", delim: "aab", mode: MatchOverlap, input: "aaab", want: []int{3}},
		{name: "overlapRestartsLater", delim: "abab", mode: MatchOverlap, input: "abababab", want: []int{3, 7}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newMatcher([]byte(tc.delim), tc.mode)
			var got []int
			for i := 0; i < len(tc.input); i++ {
				if m.advance(tc.input[i]) {
					got = append(got, i)
					m.reset()
				}
				if m.pos < 0 || m.pos > len(tc.delim) {
					t.Fatalf("pos = %d out of range after byte %d", m.pos, i)
				}
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("matches at %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrefixFunction(t *testing.T) {
	t.Parallel()

	got := prefixFunction([]byte("aabaaab"))
	want := []int{0, 1, 0, 1, 2, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prefixFunction() = %v, want %v", got, want)
	}
}
