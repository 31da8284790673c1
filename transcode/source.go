package transcode

import "io"

// pushbackReader lets the assembler return bytes it read past a record
// boundary. Unread bytes are served before the underlying reader is touched
// again. An error returned together with data is held until the data has been
// consumed.
type pushbackReader struct {
	r       io.Reader
	held    []byte
	pending []byte
	err     error
}

func newPushbackReader(r io.Reader, size int) *pushbackReader {
	return &pushbackReader{r: r, held: make([]byte, 0, size)}
}

func (p *pushbackReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.r.Read(b)
	if err != nil {
		p.err = err
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

// Unread puts b back at the front of the stream. It accepts at most one
// chunk and only when every previously unread byte has been consumed.
func (p *pushbackReader) Unread(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if len(p.pending) > 0 || len(b) > cap(p.held) {
		return ErrPushbackOverflow
	}
	p.pending = append(p.held[:0], b...)
	return nil
}

func (p *pushbackReader) Close() error {
	p.held = nil
	p.pending = nil
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
