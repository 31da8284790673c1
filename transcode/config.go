package transcode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	DefaultRecordName = "row"
	DefaultEncoding   = "UTF-8"
	DefaultChunkSize  = 8 * 1024
)

// Matching selects how a delimiter match recovers from a mismatching byte.
type Matching int

const (
	// MatchNaive restarts the match at the first delimiter byte on any
	// mismatch without re-testing the mismatching byte. A delimiter with a
	// repeated prefix such as "aab" is therefore not found inside "aaab".
	MatchNaive Matching = iota
	// MatchOverlap falls back to the longest delimiter prefix that is still
	// matched, so self-overlapping delimiters are always found.
	MatchOverlap
)

func (m Matching) String() string {
	switch m {
	case MatchNaive:
		return "naive"
	case MatchOverlap:
		return "overlap"
	default:
		return fmt.Sprintf("Matching(%d)", int(m))
	}
}

// Mask selects field positions. Position i is included when Mask[i] is true;
// positions past the end of the mask are excluded.
type Mask []bool

// AllFields returns a mask including the first n positions.
func AllFields(n int) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

// ParseMask decodes a bit-set string where character i is '1' when position i
// is included and '0' when it is not, e.g. "100101".
func ParseMask(s string) (Mask, error) {
	m := make(Mask, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '1':
			m[i] = true
		case '0':
		default:
			return nil, errors.Errorf("transcode: invalid mask character %q at position %d", s[i], i)
		}
	}
	return m, nil
}

// Has reports whether position i is included.
func (m Mask) Has(i int) bool {
	return i >= 0 && i < len(m) && m[i]
}

// Count returns the number of included positions.
func (m Mask) Count() int {
	n := 0
	for _, in := range m {
		if in {
			n++
		}
	}
	return n
}

func (m Mask) String() string {
	var b strings.Builder
	for _, in := range m {
		if in {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Config describes one conversion. Fields names the included fields in
// position order; Include selects which source positions they come from and
// defaults to the first len(Fields) positions.
type Config struct {
	FieldDelimiter  string
	RecordDelimiter string
	Fields          []string
	Include         Mask
	RecordName      string
	// Encoding names the character set delimiters, names and markup are
	// encoded with. Any name known to the WHATWG encoding index is accepted.
	Encoding string
	// ChunkSize is the number of bytes requested from the source per read.
	ChunkSize int
	Matching  Matching
}

func (c Config) withDefaults() Config {
	if c.Include == nil {
		c.Include = AllFields(len(c.Fields))
	}
	if c.RecordName == "" {
		c.RecordName = DefaultRecordName
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// Validate reports every structural problem with the configuration in a
// single *ConfigError. Encoding support is checked separately when the
// configuration is compiled by NewConverter.
func (c Config) Validate() error {
	c = c.withDefaults()
	var problems []string

	if c.FieldDelimiter == "" {
		problems = append(problems, "field delimiter is empty")
	}
	if c.RecordDelimiter == "" {
		problems = append(problems, "record delimiter is empty")
	}
	if c.FieldDelimiter != "" && c.FieldDelimiter == c.RecordDelimiter {
		problems = append(problems, fmt.Sprintf("field and record delimiter are both %q", c.FieldDelimiter))
	}
	if len(c.Fields) == 0 {
		problems = append(problems, "no field names configured")
	}
	for i, name := range c.Fields {
		if !validName(name) {
			problems = append(problems, fmt.Sprintf("field name %d (%q) is not a usable element name", i, name))
		}
	}
	if !validName(c.RecordName) {
		problems = append(problems, fmt.Sprintf("record name %q is not a usable element name", c.RecordName))
	}
	if n := c.Include.Count(); n != len(c.Fields) {
		problems = append(problems, fmt.Sprintf("include mask %s selects %d fields but %d names are configured",
			c.Include, n, len(c.Fields)))
	}
	if c.ChunkSize < 0 {
		problems = append(problems, fmt.Sprintf("chunk size (%d) must be positive", c.ChunkSize))
	}
	if c.Matching != MatchNaive && c.Matching != MatchOverlap {
		problems = append(problems, fmt.Sprintf("unknown matching mode %s", c.Matching))
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// validName rejects names that cannot appear between angle brackets.
func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\r\n<>&/\"'=")
}

// layout is a Config compiled into the exact bytes written to the output.
type layout struct {
	fieldDelim  []byte
	recordDelim []byte
	include     Mask
	matching    Matching
	chunkSize   int

	fieldOpen   [][]byte
	fieldClose  [][]byte
	recordOpen  []byte
	recordClose []byte
	prolog      []byte
	epilog      []byte
}

func compile(c Config) (*layout, error) {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	enc, err := htmlindex.Get(c.Encoding)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "encoding %q", c.Encoding)
	}
	e := &encoder{enc: enc}

	l := &layout{
		fieldDelim:  e.bytes(c.FieldDelimiter),
		recordDelim: e.bytes(c.RecordDelimiter),
		include:     c.Include,
		matching:    c.Matching,
		chunkSize:   c.ChunkSize,
		fieldOpen:   make([][]byte, len(c.Fields)),
		fieldClose:  make([][]byte, len(c.Fields)),
	}
	for i, name := range c.Fields {
		l.fieldOpen[i] = e.bytes("<" + name + "><![CDATA[")
		l.fieldClose[i] = e.bytes("]]></" + name + ">")
	}
	l.recordOpen = e.bytes("<" + c.RecordName + ">")
	l.recordClose = e.bytes("</" + c.RecordName + ">")
	l.prolog = e.bytes(`<?xml version="1.0" encoding="` + charsetName(enc, c.Encoding) + `"?><` + c.RecordName + "s>")
	l.epilog = e.bytes("</" + c.RecordName + "s>")
	if e.err != nil {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "encoding %q: %v", c.Encoding, e.err)
	}
	if bytes.Equal(l.fieldDelim, l.recordDelim) {
		return nil, &ConfigError{Problems: []string{"field and record delimiter encode to the same bytes"}}
	}
	return l, nil
}

// encoder keeps the first encoding failure so compile can report it once.
type encoder struct {
	enc encoding.Encoding
	err error
}

func (e *encoder) bytes(s string) []byte {
	if e.err != nil {
		return nil
	}
	b, err := e.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		e.err = err
		return nil
	}
	return b
}

func charsetName(enc encoding.Encoding, fallback string) string {
	name, err := htmlindex.Name(enc)
	if err != nil {
		return fallback
	}
	return strings.ToUpper(name)
}
