package transcode

import (
	"bytes"
	"io"
	"log/slog"
)

// Converter is a pull-driven io.Reader producing XML from a delimited source.
// A Converter is not safe for concurrent use.
type Converter struct {
	asm    *assembler
	out    bytes.Buffer
	err    error
	closed bool
}

// Option configures optional Converter behavior.
type Option func(*Converter)

// WithLogger makes the converter report dropped records at debug level.
func WithLogger(log *slog.Logger) Option {
	return func(c *Converter) {
		c.asm.log = log
	}
}

// NewConverter compiles cfg and returns a Converter reading from r. The
// converter owns r from now on and closes it in Close when r is an io.Closer.
func NewConverter(r io.Reader, cfg Config, opts ...Option) (*Converter, error) {
	lay, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	c := &Converter{asm: newAssembler(lay, r, nil)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read fills p with up to len(p) bytes of XML. It assembles records only
// while fewer than len(p) bytes are buffered. It returns 0, io.EOF once the
// root element has been closed and every byte delivered; later calls keep
// doing so. A source error is returned as is once buffered output is drained,
// and again on every later call.
//
// Empty reads from the source are retried, but a source returning no data and
// no error 100 times in a row fails with io.ErrNoProgress. A non-blocking
// source must block or report an error rather than spin.
func (c *Converter) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for c.err == nil && !c.asm.exhausted && c.out.Len() < len(p) {
		c.err = c.asm.next(&c.out)
	}

	if c.out.Len() > 0 {
		return c.out.Read(p)
	}
	if c.err != nil {
		return 0, c.err
	}
	return 0, io.EOF
}

// Offset returns the number of source bytes consumed so far, not counting
// bytes read ahead and pushed back for the next record.
func (c *Converter) Offset() int64 {
	return c.asm.offset
}

// Stats returns the number of records emitted and dropped so far.
func (c *Converter) Stats() Stats {
	return c.asm.stats
}

// Close releases the buffers and closes the source. Any later Read or Close
// returns ErrClosed.
func (c *Converter) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	err := c.asm.src.Close()
	c.asm.release()
	c.out = bytes.Buffer{}
	return err
}
