package converter_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediahub/internal/converter"
	"mediahub/internal/ipc"
	"mediahub/internal/testsupport"
	"mediahub/internal/wire"
)

type fakeHub struct {
	mu        sync.Mutex
	jobs      []*wire.Job
	claimErr  error
	statuses  []string
	progress  []converter.Progress
	completed []string
}

func (h *fakeHub) ClaimJob(context.Context) (*wire.Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimErr != nil {
		return nil, h.claimErr
	}
	if len(h.jobs) == 0 {
		return nil, nil
	}
	job := h.jobs[0]
	h.jobs = h.jobs[1:]
	return job, nil
}

func (h *fakeHub) ReportStatus(_ context.Context, _ string, status string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
	return nil
}

func (h *fakeHub) ReportProgress(_ context.Context, _ string, progress any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, progress.(converter.Progress))
	return nil
}

func (h *fakeHub) Complete(_ context.Context, file string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, file)
	return nil
}

func (h *fakeHub) completedFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.completed...)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestOutputPath(t *testing.T) {
	cases := map[string]string{
		"/media/in/Movie.mkv":      "/out/Movie.mp4",
		"/media/in/show.s01e01.ts": "/out/show.s01e01.mp4",
		"/media/in/noext":          "/out/noext.mp4",
	}
	for input, want := range cases {
		if got := converter.OutputPath("/out", input); got != want {
			t.Fatalf("OutputPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExpand(t *testing.T) {
	got := converter.Expand([]string{"ffmpeg", "-i", "{input}", "out={output}"}, "/a.mkv", "/b.mp4")
	want := []string{"ffmpeg", "-i", "/a.mkv", "out=/b.mp4"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestConvertSuccess(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mkv")
	testsupport.WriteFile(t, input, 4096)
	outDir := filepath.Join(dir, "out")

	hub := &fakeHub{}
	w := converter.New(hub, converter.Options{
		OutputDir:        outDir,
		ProgressInterval: 20 * time.Millisecond,
		Encoder:          []string{"sh", "-c", `sleep 0.2; cp "$0" "$1"`, "{input}", "{output}"},
	})
	if err := w.Convert(context.Background(), &wire.Job{InputFile: input}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	info, err := os.Stat(filepath.Join(outDir, "clip.mp4"))
	if err != nil || info.Size() != 4096 {
		t.Fatalf("expected converted output, got %v %v", info, err)
	}
	if len(hub.statuses) != 1 || !strings.HasPrefix(hub.statuses[0], "Transcoding") {
		t.Fatalf("unexpected statuses %v", hub.statuses)
	}
	if len(hub.progress) < 2 {
		t.Fatalf("expected periodic and final progress, got %d", len(hub.progress))
	}
	last := hub.progress[len(hub.progress)-1]
	if last.Percent != 0 || last.ConversionTime <= 0 || last.RunID == "" {
		t.Fatalf("unexpected final progress %+v", last)
	}
	if got := hub.completedFiles(); len(got) != 1 || got[0] != input {
		t.Fatalf("expected completion for %s, got %v", input, got)
	}
}

func TestConvertFailureStillCompletes(t *testing.T) {
	requireShell(t)
	hub := &fakeHub{}
	w := converter.New(hub, converter.Options{
		OutputDir: t.TempDir(),
		Encoder:   []string{"sh", "-c", "echo broken stream >&2; exit 3"},
	})
	err := w.Convert(context.Background(), &wire.Job{InputFile: "/media/in/bad.mkv"})
	if err == nil || !strings.Contains(err.Error(), "broken stream") {
		t.Fatalf("expected encoder failure with stderr tail, got %v", err)
	}
	if len(hub.statuses) != 2 || !strings.HasPrefix(hub.statuses[1], "failed:") {
		t.Fatalf("expected failure status, got %v", hub.statuses)
	}
	if got := hub.completedFiles(); len(got) != 1 {
		t.Fatalf("expected the job to be completed, got %v", got)
	}
}

func TestRunProcessesQueueUntilCanceled(t *testing.T) {
	requireShell(t)
	hub := &fakeHub{jobs: []*wire.Job{{InputFile: "/media/in/a.mkv"}, {InputFile: "/media/in/b.mkv"}}}
	w := converter.New(hub, converter.Options{
		OutputDir:    t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		Encoder:      []string{"true"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	testsupport.Eventually(t, 2*time.Second, func() bool {
		return len(hub.completedFiles()) == 2
	}, "expected both queued files to be completed")
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunStopsWhenHubIsGone(t *testing.T) {
	hub := &fakeHub{claimErr: ipc.ErrClientClosed}
	w := converter.New(hub, converter.Options{PollInterval: time.Millisecond})
	err := w.Run(context.Background())
	if !errors.Is(err, ipc.ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestRunKeepsPollingOnRejectedClaim(t *testing.T) {
	hub := &fakeHub{claimErr: &ipc.ReplyError{Text: "Converter Error - Bad Request"}}
	w := converter.New(hub, converter.Options{PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("expected Run to keep polling until canceled, got %v", err)
	}
}
