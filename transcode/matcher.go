package transcode

// matcher tracks how much of a delimiter the most recent input bytes match.
type matcher struct {
	delim []byte
	// fail[i] is the length of the longest proper prefix of delim[:i+1] that
	// is also its suffix. nil selects naive restarts.
	fail []int
	pos  int
}

func newMatcher(delim []byte, mode Matching) matcher {
	m := matcher{delim: delim}
	if mode == MatchOverlap {
		m.fail = prefixFunction(delim)
	}
	return m
}

// advance feeds one byte and reports whether it completed the delimiter. The
// caller resets the matcher after a completed match.
func (m *matcher) advance(b byte) bool {
	if m.fail == nil {
		if b == m.delim[m.pos] {
			m.pos++
		} else {
			m.pos = 0
		}
		return m.pos == len(m.delim)
	}

	for m.pos > 0 && b != m.delim[m.pos] {
		m.pos = m.fail[m.pos-1]
	}
	if b == m.delim[m.pos] {
		m.pos++
	}
	return m.pos == len(m.delim)
}

func (m *matcher) reset() {
	m.pos = 0
}

func prefixFunction(p []byte) []int {
	fail := make([]int, len(p))
	k := 0
	for i := 1; i < len(p); i++ {
		for k > 0 && p[i] != p[k] {
			k = fail[k-1]
		}
		if p[i] == p[k] {
			k++
		}
		fail[i] = k
	}
	return fail
}
