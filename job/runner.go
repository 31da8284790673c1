// Package job runs configured conversions from input files into sinks.
package job

import (
	"context"
	"io"
	"log/slog"
	"time"

	"csvxml/input"
	"csvxml/transcode"
	"csvxml/webhook"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Notifier interface {
	Send(ev webhook.Event) error
}

// Result describes one finished conversion.
type Result struct {
	RunID   string
	Records int
	Dropped int
	// Bytes is the size of the XML written; Offset the source bytes consumed.
	Bytes  int64
	Offset int64
	Output string
}

type Runner struct {
	job    *Config
	sink   Sink
	notify Notifier
	log    *slog.Logger
}

// NewRunner returns a runner for job. notify may be nil.
func NewRunner(job *Config, sink Sink, notify Notifier, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{job: job, sink: sink, notify: notify, log: log.With("job", job.Name)}
}

// Convert pulls the XML of src through a converter into dst, checking ctx
// between pulls. src is closed when the conversion ends.
func (r *Runner) Convert(ctx context.Context, src io.Reader, dst io.Writer) (result Result, err error) {
	result.RunID = uuid.NewString()
	cfg, err := r.job.Transcode()
	if err != nil {
		closeSource(src)
		return result, err
	}
	log := r.log.With("run_id", result.RunID)
	conv, err := transcode.NewConverter(src, cfg, transcode.WithLogger(log))
	if err != nil {
		closeSource(src)
		return result, errors.Wrapf(err, "job %s", r.job.Name)
	}
	defer func() {
		stats := conv.Stats()
		result.Records = stats.Records
		result.Dropped = stats.Dropped
		result.Offset = conv.Offset()
		if cerr := conv.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close input")
		}
	}()

	buf := make([]byte, r.job.pullSize())
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, rerr := conv.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return result, errors.Wrap(err, "failed to write output")
			}
			result.Bytes += int64(n)
		}
		if rerr == io.EOF {
			return result, nil
		}
		if rerr != nil {
			return result, errors.Wrap(rerr, "failed to convert input")
		}
	}
}

func closeSource(src io.Reader) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}

// Process converts one tracked input file into the job's sink and reports
// the outcome to the notifier.
func (r *Runner) Process(ctx context.Context, file *input.FileState) (Result, error) {
	start := time.Now()
	result, err := r.process(ctx, file)
	log := r.log.With("file", file.Path, "run_id", result.RunID)
	if err != nil {
		log.Error("conversion failed", "error", err)
	} else {
		log.Info("conversion finished",
			"output", result.Output,
			"records", result.Records,
			"dropped", result.Dropped,
			"bytes", result.Bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	r.report(file.Path, result, err)
	return result, err
}

func (r *Runner) process(ctx context.Context, file *input.FileState) (Result, error) {
	f, err := file.Open()
	if err != nil {
		return Result{}, errors.Wrapf(err, "failed to open file: %s", file.Path)
	}
	out, err := r.sink.Create(file.Path)
	if err != nil {
		f.Close()
		return Result{}, err
	}
	result, err := r.Convert(ctx, f, out)
	if err != nil {
		out.Abort()
		return result, err
	}
	if err := out.Commit(); err != nil {
		return result, err
	}
	result.Output = out.Location()
	return result, nil
}

func (r *Runner) report(path string, result Result, err error) {
	if r.notify == nil {
		return
	}
	ev := webhook.Event{
		Job:       r.job.Name,
		File:      path,
		Output:    result.Output,
		Records:   result.Records,
		Dropped:   result.Dropped,
		Bytes:     result.Bytes,
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if serr := r.notify.Send(ev); serr != nil {
		r.log.Warn("failed to send webhook", "file", path, "error", serr)
	}
}
