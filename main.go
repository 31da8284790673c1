package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"csvxml/input"
	"csvxml/job"
	"csvxml/logging"
	"csvxml/server"
	"csvxml/webhook"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

type logConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	envPath = flag.String("env", "env.json", "env path")
	jobName = flag.String("job", "", "convert -in with this job and exit")
	inPath  = flag.String("in", "", "input file for -job")
	outPath = flag.String("out", "", "output file for -job (default stdout)")
	dump    = flag.Bool("dump", false, "print the resolved jobs as YAML and exit")
)

func loadConfig(path string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CSVXML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return v, nil
}

// convertOne runs a single conversion in the foreground and prints a summary.
func convertOne(ctx context.Context, jobs []*job.Config, name, in, out string) error {
	j := job.Find(jobs, name)
	if j == nil {
		return fmt.Errorf("unknown job: %s", name)
	}
	src, err := os.Open(in)
	if err != nil {
		return errors.Wrapf(err, "failed to open file: %s", in)
	}
	var dst io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			src.Close()
			return errors.Wrapf(err, "failed to create file: %s", out)
		}
		defer f.Close()
		dst = f
	}

	start := time.Now()
	res, err := job.NewRunner(j, nil, nil, slog.Default()).Convert(ctx, src, dst)
	if err != nil {
		color.New(color.BgRed, color.FgWhite).Fprintf(os.Stderr, " FAILED ")
		fmt.Fprintf(os.Stderr, " %s: %v\n", in, err)
		return err
	}
	color.New(color.BgGreen, color.FgBlack).Fprintf(os.Stderr, " %s ", j.Name)
	fmt.Fprintf(os.Stderr, " %s ", in)
	color.New(color.FgGreen).Fprintf(os.Stderr, "%d records", res.Records)
	if res.Dropped > 0 {
		color.New(color.FgYellow).Fprintf(os.Stderr, " %d dropped", res.Dropped)
	}
	fmt.Fprintf(os.Stderr, " %d bytes in %v\n", res.Bytes, time.Since(start).Round(time.Millisecond))
	return nil
}

// watchJob converts every file matching the job's input pattern until ctx is
// cancelled, recording progress in the job's registry.
func watchJob(ctx context.Context, j *job.Config, notifier job.Notifier) error {
	log := slog.Default().With("job", j.Name)
	sink, err := job.NewSink(j, os.Stdout)
	if err != nil {
		return err
	}
	files, err := input.NewFiles(ctx, j.Registry, j.Input, log, input.WithSettle(j.Settle))
	if err != nil {
		return errors.Wrap(err, "failed to create registry")
	}
	defer files.Save()

	runner := job.NewRunner(j, sink, notifier, log)
	for file := range files.List() {
		res, err := runner.Process(ctx, file)
		files.Complete(file, res.Offset, res.Output, err == nil)
		if err := files.Save(); err != nil {
			log.Error("failed to save registry", "error", err)
		}
	}
	return nil
}

func main() {
	flag.Parse()
	if *envPath == "" {
		log.Fatalf("env path is required")
	}
	v, err := loadConfig(*envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	var lc logConfig
	v.UnmarshalKey("log", &lc)
	logging.Setup(lc.Level, lc.Format)

	jobs, err := job.LoadJobs(v)
	if err != nil {
		log.Fatalf("Failed to load jobs: %v", err)
	}

	if *dump {
		out, err := yaml.Marshal(map[string]any{"jobs": jobs})
		if err != nil {
			log.Fatalf("Failed to marshal jobs: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *jobName != "" {
		if *inPath == "" {
			log.Fatalf("-in is required with -job")
		}
		if err := convertOne(ctx, jobs, *jobName, *inPath, *outPath); err != nil {
			os.Exit(1)
		}
		return
	}

	notifier := webhook.New(v)
	var wg sync.WaitGroup
	for _, j := range jobs {
		if j.Input == "" {
			slog.Warn("job has no input pattern, not watching", "job", j.Name)
			continue
		}
		wg.Add(1)
		go func(j *job.Config) {
			defer wg.Done()
			if err := watchJob(ctx, j, notifier); err != nil {
				slog.Error("failed to watch job", "job", j.Name, "error", err)
			}
		}(j)
	}

	var sc server.Config
	v.UnmarshalKey("server", &sc)
	var srv *server.Server
	if sc.Addr != "" {
		srv = server.New(jobs)
		go func() {
			if err := srv.Start(sc.Addr); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "error", err)
				cancel()
			}
		}()
	}

	// wait for all jobs to complete
	<-ctx.Done()
	slog.Info("shutting down")
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		srv.Shutdown(shutdownCtx)
		done()
	}
	wg.Wait()
}
