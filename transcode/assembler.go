package transcode

import (
	"bytes"
	"io"
	"log/slog"
)

// maxEmptyReads mirrors bufio: a source that keeps returning no data and no
// error is treated as broken.
const maxEmptyReads = 100

// scanState is the per-record position of the assembler.
type scanState struct {
	field  matcher
	record matcher
	// fieldIdx counts every field boundary seen in the record, included or
	// not; included counts only rendered fields and picks the field name.
	fieldIdx int
	included int
	boundary bool
	seen     bool
}

func (s *scanState) reset() {
	s.field.reset()
	s.record.reset()
	s.fieldIdx = 0
	s.included = 0
	s.boundary = false
	s.seen = false
}

// Stats counts what a converter produced so far.
type Stats struct {
	Records int
	Dropped int
}

// assembler turns source chunks into complete record elements.
type assembler struct {
	lay     *layout
	src     *pushbackReader
	chunk   []byte
	spill   spillover
	pending bytes.Buffer
	st      scanState
	log     *slog.Logger

	offset    int64
	started   bool
	exhausted bool
	stats     Stats
}

func newAssembler(lay *layout, r io.Reader, log *slog.Logger) *assembler {
	return &assembler{
		lay:   lay,
		src:   newPushbackReader(r, lay.chunkSize),
		chunk: make([]byte, lay.chunkSize),
		spill: spillover{buf: make([]byte, 0, lay.chunkSize)},
		st: scanState{
			field:  newMatcher(lay.fieldDelim, lay.matching),
			record: newMatcher(lay.recordDelim, lay.matching),
		},
		log: log,
	}
}

// next scans up to and including the next record boundary and appends the
// rendered record to out. Once the source is exhausted it also appends the
// root close tag; next must not be called again after that.
func (a *assembler) next(out *bytes.Buffer) error {
	a.pending.Reset()
	a.spill.reset()
	a.st.reset()

	if !a.started {
		out.Write(a.lay.prolog)
		a.started = true
	}

	empty := 0
	for !a.st.boundary {
		n, err := a.src.Read(a.chunk)
		if err == io.EOF {
			a.finish()
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return io.ErrNoProgress
			}
			continue
		}
		empty = 0
		if err := a.scan(a.chunk[:n]); err != nil {
			return err
		}
	}

	a.flush(out)
	if a.exhausted {
		out.Write(a.lay.epilog)
	}
	return nil
}

// scan feeds one chunk through both matchers. Field content inside the chunk
// is rendered straight from it; only the unterminated tail of an included
// field is copied into the spillover.
func (a *assembler) scan(chunk []byte) error {
	a.st.seen = true
	start := 0
	for i, b := range chunk {
		if a.st.field.advance(b) {
			a.endField(chunk, start, i+1, len(a.lay.fieldDelim))
			start = i + 1
		}
		if a.st.record.advance(b) {
			a.endField(chunk, start, i+1, len(a.lay.recordDelim))
			a.st.boundary = true
			a.offset += int64(i + 1)
			return a.src.Unread(chunk[i+1:])
		}
	}

	a.offset += int64(len(chunk))
	if a.lay.include.Has(a.st.fieldIdx) {
		a.spill.stash(chunk[start:])
	}
	return nil
}

// endField closes the current field whose delimiter of length delimLen ends
// at offset end of chunk. Content is the reconciled spillover followed by
// chunk[start:end-delimLen], both shortened by whatever part of the delimiter
// they hold.
func (a *assembler) endField(chunk []byte, start, end, delimLen int) {
	if a.lay.include.Has(a.st.fieldIdx) {
		name := a.st.included
		a.pending.Write(a.lay.fieldOpen[name])
		head, cut := a.spill.resolve(end, delimLen)
		a.pending.Write(head)
		if stop := end - (delimLen - cut); stop > start {
			a.pending.Write(chunk[start:stop])
		}
		a.pending.Write(a.lay.fieldClose[name])
		a.st.included++
	}
	a.spill.reset()
	a.st.field.reset()
	a.st.fieldIdx++
}

// finish handles the end of the source. An unterminated trailing record is
// kept if at least one of its included fields has already been captured; its
// stashed bytes become the last field.
func (a *assembler) finish() {
	a.exhausted = true
	if a.st.boundary || a.st.included == 0 {
		return
	}
	a.st.boundary = true
	a.endField(nil, 0, 0, 0)
}

func (a *assembler) flush(out *bytes.Buffer) {
	if a.st.included == len(a.lay.fieldOpen) {
		out.Write(a.lay.recordOpen)
		a.pending.WriteTo(out)
		out.Write(a.lay.recordClose)
		a.stats.Records++
		return
	}
	if !a.st.seen {
		return
	}
	a.stats.Dropped++
	if a.log != nil {
		a.log.Debug("dropping incomplete record",
			"offset", a.offset,
			"fields", a.st.included,
			"want", len(a.lay.fieldOpen),
		)
	}
}

func (a *assembler) release() {
	a.chunk = nil
	a.spill.buf = nil
	a.pending = bytes.Buffer{}
}
