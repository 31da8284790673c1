package job

import (
	"fmt"
	"path/filepath"
	"time"

	"csvxml/transcode"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	SinkFile   = "file"
	SinkStdout = "stdout"

	DefaultPullSize = 32 * 1024
)

// Config is one named conversion job as read from the "jobs" key.
type Config struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Input    string `mapstructure:"input" yaml:"input"`
	Registry string `mapstructure:"registry" yaml:"registry"`
	Sink     string `mapstructure:"sink" yaml:"sink"`
	Output   string `mapstructure:"output" yaml:"output,omitempty"`

	// Settle is the quiet period before a written input file is converted.
	Settle time.Duration `mapstructure:"settle" yaml:"settle,omitempty"`

	FieldDelimiter  string   `mapstructure:"fieldDelimiter" yaml:"fieldDelimiter"`
	RecordDelimiter string   `mapstructure:"recordDelimiter" yaml:"recordDelimiter"`
	Fields          []string `mapstructure:"fields" yaml:"fields"`
	// Include is a bit string such as "101"; empty includes the first
	// len(Fields) positions.
	Include      string `mapstructure:"include" yaml:"include,omitempty"`
	RecordName   string `mapstructure:"recordName" yaml:"recordName,omitempty"`
	Encoding     string `mapstructure:"encoding" yaml:"encoding,omitempty"`
	ChunkSize    int    `mapstructure:"chunkSize" yaml:"chunkSize,omitempty"`
	PullSize     int    `mapstructure:"pullSize" yaml:"pullSize,omitempty"`
	MatchOverlap bool   `mapstructure:"matchOverlap" yaml:"matchOverlap,omitempty"`
}

// Transcode builds the converter configuration of the job.
func (c *Config) Transcode() (transcode.Config, error) {
	cfg := transcode.Config{
		FieldDelimiter:  c.FieldDelimiter,
		RecordDelimiter: c.RecordDelimiter,
		Fields:          c.Fields,
		RecordName:      c.RecordName,
		Encoding:        c.Encoding,
		ChunkSize:       c.ChunkSize,
	}
	if c.MatchOverlap {
		cfg.Matching = transcode.MatchOverlap
	}
	if c.Include != "" {
		mask, err := transcode.ParseMask(c.Include)
		if err != nil {
			return cfg, errors.Wrapf(err, "job %s", c.Name)
		}
		cfg.Include = mask
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "job %s", c.Name)
	}
	return cfg, nil
}

func (c *Config) pullSize() int {
	if c.PullSize > 0 {
		return c.PullSize
	}
	return DefaultPullSize
}

func (c *Config) setDefaults() {
	if c.Sink == "" {
		c.Sink = SinkFile
	}
	if c.Registry == "" && c.Input != "" {
		c.Registry = filepath.Join(filepath.Dir(c.Input), "."+c.Name+".registry.json")
	}
	if c.Output == "" && c.Sink == SinkFile && c.Input != "" {
		c.Output = filepath.Dir(c.Input)
	}
}

// LoadJobs decodes and checks the "jobs" key of v.
func LoadJobs(v *viper.Viper) ([]*Config, error) {
	var jobs []*Config
	if err := v.UnmarshalKey("jobs", &jobs); err != nil {
		return nil, errors.Wrap(err, "failed to decode jobs")
	}
	seen := make(map[string]bool)
	for i, job := range jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("job %d has no name", i)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
		job.setDefaults()
		if job.Sink != SinkFile && job.Sink != SinkStdout {
			return nil, fmt.Errorf("job %s: invalid sink type: %s", job.Name, job.Sink)
		}
		if _, err := job.Transcode(); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// Find returns the job called name, or nil.
func Find(jobs []*Config, name string) *Config {
	for _, job := range jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}
