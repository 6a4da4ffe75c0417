package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediahub/internal/config"
	"mediahub/internal/ipc"
	"mediahub/internal/logging"
	"mediahub/internal/wire"
)

// Hub is the subset of the hub client the worker needs.
type Hub interface {
	ClaimJob(ctx context.Context) (*wire.Job, error)
	ReportStatus(ctx context.Context, file, status string) error
	ReportProgress(ctx context.Context, file string, progress any) error
	Complete(ctx context.Context, file string) error
}

// Progress is the payload sent while an encoder runs.
type Progress struct {
	Percent        int     `json:"percent"`
	ConversionTime float64 `json:"conversion_time"`
	RunID          string  `json:"run_id,omitempty"`
}

// Options configures a Worker.
type Options struct {
	PollInterval     time.Duration
	ProgressInterval time.Duration
	OutputDir        string
	Encoder          []string
	Logger           *slog.Logger
}

// Worker claims and converts jobs one at a time.
type Worker struct {
	hub              Hub
	pollInterval     time.Duration
	progressInterval time.Duration
	outputDir        string
	encoder          []string
	logger           *slog.Logger
}

// New constructs a Worker.
func New(hub Hub, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	defaults := config.Default()
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaults.ConverterPollInterval()
	}
	progress := opts.ProgressInterval
	if progress <= 0 {
		progress = defaults.ConverterProgressInterval()
	}
	encoder := opts.Encoder
	if len(encoder) == 0 {
		encoder = defaults.Converter.Encoder
	}
	return &Worker{
		hub:              hub,
		pollInterval:     poll,
		progressInterval: progress,
		outputDir:        opts.OutputDir,
		encoder:          encoder,
		logger:           logging.NewComponentLogger(logger, "converter"),
	}
}

// NewFromConfig builds a Worker from the converter section of cfg.
func NewFromConfig(cfg *config.Config, hub Hub, logger *slog.Logger) *Worker {
	return New(hub, Options{
		PollInterval:     cfg.ConverterPollInterval(),
		ProgressInterval: cfg.ConverterProgressInterval(),
		OutputDir:        cfg.Converter.OutputDir,
		Encoder:          cfg.Converter.Encoder,
		Logger:           logger,
	})
}

// Run polls for jobs until ctx is canceled. It returns early when the hub
// connection is lost so the supervisor can restart the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("converter started",
		logging.String(logging.FieldEventType, "converter_started"),
		logging.Duration("poll_interval", w.pollInterval),
		logging.String("output_dir", w.outputDir))
	for {
		job, err := w.hub.ClaimJob(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			var replyErr *ipc.ReplyError
			if !errors.As(err, &replyErr) {
				return fmt.Errorf("claim job: %w", err)
			}
			logging.WarnWithContext(w.logger, "job request rejected", "converter_claim_rejected",
				logging.String(logging.FieldImpact, "no job is converted this poll"),
				logging.Error(err))
		case job != nil:
			if err := w.Convert(ctx, job); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(w.logger, "conversion failed", "converter_failed",
					logging.String(logging.FieldInputFile, job.InputFile),
					logging.String(logging.FieldImpact, "the file was not converted and has been removed from the queue"),
					logging.String(logging.FieldErrorHint, "check the encoder command in converter.encoder"),
					logging.Error(err))
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// Convert runs the encoder for job and reports progress and completion.
// The job is completed on the hub even when the encoder fails, so a bad file
// does not block the queue.
func (w *Worker) Convert(ctx context.Context, job *wire.Job) error {
	input := job.InputFile
	runID := uuid.NewString()
	logger := w.logger.With(
		logging.String(logging.FieldInputFile, input),
		logging.String("run_id", runID))

	output := OutputPath(w.outputDir, input)
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.finish(ctx, logger, input, fmt.Sprintf("failed: %v", err))
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	args := Expand(w.encoder, input, output)

	w.report(logger, func() error {
		return w.hub.ReportStatus(ctx, input, "Transcoding to "+filepath.Base(output))
	})
	logger.Info("conversion started",
		logging.String(logging.FieldEventType, "conversion_started"),
		logging.String("output_file", output),
		logging.String("command", args[0]))

	start := time.Now()
	err := w.runWithProgress(ctx, logger, input, runID, args)
	elapsed := time.Since(start)

	w.report(logger, func() error {
		return w.hub.ReportProgress(ctx, input, Progress{ConversionTime: elapsed.Seconds(), RunID: runID})
	})
	if err != nil {
		w.finish(ctx, logger, input, fmt.Sprintf("failed: %v", err))
		return err
	}
	logger.Info("conversion finished",
		logging.String(logging.FieldEventType, "conversion_finished"),
		logging.Duration("elapsed", elapsed),
		logging.String("output_file", output))
	w.finish(ctx, logger, input, "")
	return nil
}

func (w *Worker) runWithProgress(ctx context.Context, logger *slog.Logger, input, runID string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec
	stderr := &tailBuffer{limit: 4 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	start := time.Now()
	ticker := time.NewTicker(w.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				if tail := strings.TrimSpace(stderr.String()); tail != "" {
					return fmt.Errorf("encoder: %w: %s", err, tail)
				}
				return fmt.Errorf("encoder: %w", err)
			}
			return nil
		case <-ticker.C:
			elapsed := time.Since(start)
			logger.Debug("conversion progress", logging.Duration("elapsed", elapsed))
			w.report(logger, func() error {
				return w.hub.ReportProgress(ctx, input, Progress{ConversionTime: elapsed.Seconds(), RunID: runID})
			})
		}
	}
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, input, status string) {
	if status != "" {
		w.report(logger, func() error { return w.hub.ReportStatus(ctx, input, status) })
	}
	w.report(logger, func() error { return w.hub.Complete(ctx, input) })
}

func (w *Worker) report(logger *slog.Logger, send func() error) {
	if err := send(); err != nil {
		logger.Debug("hub update failed", logging.Error(err))
	}
}

// OutputPath returns where the converted copy of input is written.
func OutputPath(dir, input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = base
	}
	return filepath.Join(dir, name+".mp4")
}

// Expand substitutes {input} and {output} in an encoder command template.
func Expand(template []string, input, output string) []string {
	replacer := strings.NewReplacer("{input}", input, "{output}", output)
	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = replacer.Replace(arg)
	}
	return args
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
