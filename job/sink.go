package job

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Output receives the XML of one conversion. Either Commit or Abort is
// called exactly once when the conversion ends.
type Output interface {
	io.Writer
	Commit() error
	Abort() error
	Location() string
}

// Sink creates one Output per converted input.
type Sink interface {
	Create(source string) (Output, error)
}

// NewSink returns the sink configured for job. stdout is used by the stdout
// sink.
func NewSink(job *Config, stdout io.Writer) (Sink, error) {
	switch job.Sink {
	case SinkFile, "":
		if job.Output == "" {
			return nil, fmt.Errorf("job %s: file sink needs an output directory", job.Name)
		}
		if err := os.MkdirAll(job.Output, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create output directory")
		}
		return &FileSink{Dir: job.Output}, nil
	case SinkStdout:
		return &WriterSink{W: stdout, Name: "stdout"}, nil
	default:
		return nil, fmt.Errorf("invalid sink type: %s", job.Sink)
	}
}

// FileSink writes <input name>.xml into Dir. The document is written to a
// temporary file and renamed into place on Commit.
type FileSink struct {
	Dir string
}

func (s *FileSink) Create(source string) (Output, error) {
	base := filepath.Base(source)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".xml"
	f, err := os.CreateTemp(s.Dir, "."+name+"-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output file")
	}
	return &fileOutput{File: f, target: filepath.Join(s.Dir, name)}, nil
}

type fileOutput struct {
	*os.File
	target string
}

func (o *fileOutput) Commit() error {
	if err := o.File.Close(); err != nil {
		os.Remove(o.File.Name())
		return errors.Wrap(err, "failed to close output file")
	}
	if err := os.Rename(o.File.Name(), o.target); err != nil {
		os.Remove(o.File.Name())
		return errors.Wrap(err, "failed to rename output file")
	}
	return nil
}

func (o *fileOutput) Abort() error {
	o.File.Close()
	return os.Remove(o.File.Name())
}

func (o *fileOutput) Location() string {
	return o.target
}

// WriterSink streams every document into W.
type WriterSink struct {
	W    io.Writer
	Name string
}

func (s *WriterSink) Create(string) (Output, error) {
	return &writerOutput{Writer: s.W, name: s.Name}, nil
}

type writerOutput struct {
	io.Writer
	name string
}

func (o *writerOutput) Commit() error    { return nil }
func (o *writerOutput) Abort() error     { return nil }
func (o *writerOutput) Location() string { return o.name }
