package dispatch

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/checkface/internal/latent"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(nil)
	for i := uint32(0); i < 5; i++ {
		q.Submit(latent.NewSeed(i), "")
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	for i := uint32(0); i < 5; i++ {
		job, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d returned nothing", i)
		}
		if want := latent.NewSeed(i).Name(); job.Proxy.Name() != want {
			t.Errorf("pop %d = %s, want %s", i, job.Proxy.Name(), want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("TryPop on empty queue returned a job")
	}
}

func TestQueue_PopBatchDoesNotWaitToFill(t *testing.T) {
	q := NewQueue(nil)
	q.Submit(latent.NewSeed(1), "a")
	q.Submit(latent.NewSeed(2), "b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := q.PopBatch(ctx, 10)
	if err != nil {
		t.Fatalf("PopBatch failed: %v", err)
	}
	if len(batch) != 2 || batch[0].Label != "a" || batch[1].Label != "b" {
		t.Errorf("batch = %v", batch)
	}
}

func TestQueue_PopBatchBounded(t *testing.T) {
	q := NewQueue(nil)
	for i := uint32(0); i < 7; i++ {
		q.Submit(latent.NewSeed(i), "")
	}
	batch, err := q.PopBatch(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 || q.Len() != 4 {
		t.Errorf("batch %d, remaining %d; want 3 and 4", len(batch), q.Len())
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue(nil)
	got := make(chan *Job, 1)
	go func() {
		job, err := q.Pop(context.Background())
		if err == nil {
			got <- job
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Submit(latent.NewSeed(9), "late")
	select {
	case job := <-got:
		if job.Label != "late" {
			t.Errorf("Label = %q", job.Label)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after push")
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Pop error = %v, want context.Canceled", err)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue(nil)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Submit(latent.NewSeed(uint32(i)), "")
			}
		}()
	}
	wg.Wait()
	if q.Len() != 400 {
		t.Errorf("Len() = %d, want 400", q.Len())
	}
}

func TestJob_WaitTimeout(t *testing.T) {
	job := NewJob(latent.NewSeed(1), "slow")
	timeout := 80 * time.Millisecond

	start := time.Now()
	img, err := job.Wait(context.Background(), timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("Wait error = %v, want ErrGenerationTimeout", err)
	}
	if img != nil {
		t.Error("timed out wait returned an image")
	}
	if elapsed < timeout || elapsed > timeout+500*time.Millisecond {
		t.Errorf("Wait returned after %s, want about %s", elapsed, timeout)
	}

	// the worker may still complete an abandoned job
	if !job.Complete(image.NewGray(image.Rect(0, 0, 1, 1))) {
		t.Error("first Complete on abandoned job returned false")
	}
}

func TestJob_CompleteOnce(t *testing.T) {
	job := NewJob(latent.NewSeed(1), "x")
	first := image.NewGray(image.Rect(0, 0, 1, 1))
	second := image.NewGray(image.Rect(0, 0, 2, 2))

	if !job.Complete(first) {
		t.Fatal("first Complete returned false")
	}
	if job.Complete(second) {
		t.Error("second Complete returned true")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := job.Wait(context.Background(), time.Second)
			if err != nil || img != first {
				t.Errorf("Wait = %v, %v; want first image", img, err)
			}
		}()
	}
	wg.Wait()

	if img, ok := job.Result(); !ok || img != first {
		t.Error("Result did not return the first image")
	}
}
