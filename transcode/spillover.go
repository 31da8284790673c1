package transcode

// spillover holds the bytes of the field in progress that were read in
// earlier chunks. Their classification is only known once the field ends: the
// trailing ones may turn out to be the first bytes of the delimiter.
type spillover struct {
	buf []byte
}

func (s *spillover) stash(p []byte) {
	s.buf = append(s.buf, p...)
}

func (s *spillover) reset() {
	s.buf = s.buf[:0]
}

func (s *spillover) size() int {
	return len(s.buf)
}

// resolve splits the stash once a delimiter of length delimLen completed at
// offset end of the current chunk. It returns the stashed field content and
// cut, the number of trailing stash bytes that belonged to the delimiter.
func (s *spillover) resolve(end, delimLen int) (content []byte, cut int) {
	if len(s.buf) == 0 {
		return nil, 0
	}
	if end < delimLen {
		cut = min(delimLen-end, len(s.buf))
	}
	return s.buf[:len(s.buf)-cut], cut
}
