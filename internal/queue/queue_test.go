package queue_test

import (
	"encoding/json"
	"errors"
	"testing"

	"mediahub/internal/queue"
)

func TestClaimFromEmptyQueue(t *testing.T) {
	q := queue.New()
	job, ok := q.Claim()
	if ok || job != nil {
		t.Fatalf("expected no job, got %+v", job)
	}
}

func TestClaimIsFIFO(t *testing.T) {
	q := queue.New()
	for _, file := range []string{"A", "B", "C"} {
		if _, err := q.Enqueue(file); err != nil {
			t.Fatalf("Enqueue(%s): %v", file, err)
		}
	}

	first, ok := q.Claim()
	if !ok || first.InputFile != "A" {
		t.Fatalf("expected A, got %+v", first)
	}
	second, ok := q.Claim()
	if !ok || second.InputFile != "B" {
		t.Fatalf("expected B, got %+v", second)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 pending job, got %d", q.Len())
	}
	if q.InFlightLen() != 2 {
		t.Fatalf("expected 2 in-flight jobs, got %d", q.InFlightLen())
	}
	if second.Status != queue.StatusInFlight || second.ClaimedAt.IsZero() {
		t.Fatalf("expected claimed job to be in flight, got %+v", second)
	}
}

func TestEnqueueAssignsIDsAndRejectsDuplicates(t *testing.T) {
	q := queue.New()
	a, err := q.Enqueue("/media/a.mkv")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b, err := q.Enqueue("/media/b.mkv")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if _, err := q.Enqueue("/media/a.mkv"); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := q.Enqueue("  "); !errors.Is(err, queue.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}

	if _, ok := q.Claim(); !ok {
		t.Fatal("expected claim")
	}
	if _, err := q.Enqueue("/media/a.mkv"); !errors.Is(err, queue.ErrDuplicate) {
		t.Fatalf("expected in-flight duplicate to be rejected, got %v", err)
	}
}

func TestCompleteAbsentJobLeavesQueueUnchanged(t *testing.T) {
	q := queue.New()
	if _, err := q.Enqueue("A"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Enqueue("B"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	before := q.Pending()

	if q.Complete("missing") {
		t.Fatal("expected nothing removed")
	}
	after := q.Pending()
	if len(after) != len(before) {
		t.Fatalf("queue changed: before %d after %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("queue order changed at %d", i)
		}
	}
}

func TestCompleteRemovesByExactMatch(t *testing.T) {
	q := queue.New()
	for _, file := range []string{"/m/a.mkv", "/m/a.mkv.part", "/m/b.mkv"} {
		if _, err := q.Enqueue(file); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	claimed, _ := q.Claim()

	if !q.Complete(claimed.InputFile) {
		t.Fatal("expected completion to remove claimed job")
	}
	if q.InFlightLen() != 0 {
		t.Fatalf("expected in-flight cleared, got %d", q.InFlightLen())
	}
	if q.Len() != 2 {
		t.Fatalf("expected prefix match to survive, got %d pending", q.Len())
	}

	if !q.Complete("/m/b.mkv") {
		t.Fatal("expected pending job removed")
	}
	if q.Complete("/m/b.mkv") {
		t.Fatal("expected second completion to be a no-op")
	}
	pending := q.Pending()
	if len(pending) != 1 || pending[0].InputFile != "/m/a.mkv.part" {
		t.Fatalf("unexpected pending jobs: %+v", pending)
	}
}

func TestRecordProgressAndStatus(t *testing.T) {
	q := queue.New()
	if q.RecordProgress("", json.RawMessage(`{"elapsed":1}`)) {
		t.Fatal("expected no in-flight job to record against")
	}
	if _, err := q.Enqueue("/m/a.mkv"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Claim()

	if !q.RecordProgress("", json.RawMessage(`{"elapsed":12}`)) {
		t.Fatal("expected progress recorded on sole in-flight job")
	}
	if !q.RecordStatus("/m/a.mkv", " transcoding ") {
		t.Fatal("expected status recorded")
	}
	jobs := q.InFlight()
	if len(jobs) != 1 {
		t.Fatalf("expected one in-flight job, got %d", len(jobs))
	}
	if string(jobs[0].Progress) != `{"elapsed":12}` {
		t.Fatalf("unexpected progress %s", jobs[0].Progress)
	}
	if jobs[0].StatusText != "transcoding" {
		t.Fatalf("unexpected status %q", jobs[0].StatusText)
	}
	w := jobs[0].Wire()
	if w.InputFile != "/m/a.mkv" || w.Status != "in_flight: transcoding" {
		t.Fatalf("unexpected wire job %+v", w)
	}
}
