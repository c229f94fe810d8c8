package worker_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/worker"
)

// syncBuffer guards a bytes.Buffer written from worker goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("Worker Pool", func() {
	var (
		wp  *worker.Pool
		out *syncBuffer
	)

	BeforeEach(func() {
		out = &syncBuffer{}
		var err error
		wp, err = worker.NewPool(&worker.Config{Logger: logger.New(logger.WithWriter(out))})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("runs queued jobs before Close returns", func() {
			var ran atomic.Int32
			for range 10 {
				Expect(wp.Enqueue(worker.Job{
					Name: "count",
					Run: func(context.Context) error {
						ran.Add(1)
						return nil
					},
				})).To(BeTrue())
			}

			wp.Close()
			Expect(ran.Load()).To(Equal(int32(10)))
		})

		It("drops jobs when the queue is full", func() {
			wp.Close()

			release := make(chan struct{})
			started := make(chan struct{})
			small, err := worker.NewPool(&worker.Config{
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger.New(logger.WithWriter(out)),
			})
			Expect(err).NotTo(HaveOccurred())

			block := worker.Job{Name: "block", Run: func(context.Context) error {
				close(started)
				<-release
				return nil
			}}
			noop := worker.Job{Name: "noop", Run: func(context.Context) error { return nil }}

			Expect(small.Enqueue(block)).To(BeTrue())
			Eventually(started).Should(BeClosed())
			Expect(small.Enqueue(noop)).To(BeTrue())
			Expect(small.Enqueue(noop)).To(BeFalse())

			close(release)
			small.Close()
			Expect(out.String()).To(ContainSubstring("queue full"))
		})

		It("rejects jobs after Close", func() {
			wp.Close()
			Expect(wp.Enqueue(worker.Job{Name: "late", Run: func(context.Context) error { return nil }})).To(BeFalse())
			Expect(out.String()).To(ContainSubstring("pool closed"))
		})
	})

	Describe("containment", func() {
		It("logs job errors and keeps working", func() {
			var ran atomic.Bool
			wp.Enqueue(worker.Job{Name: "fail", Key: "chat-1", Run: func(context.Context) error {
				return errors.New("boom")
			}})
			wp.Enqueue(worker.Job{Name: "after", Run: func(context.Context) error {
				ran.Store(true)
				return nil
			}})
			wp.Close()

			Expect(ran.Load()).To(BeTrue())
			Expect(out.String()).To(ContainSubstring("background job failed"))
			Expect(out.String()).To(ContainSubstring("chat-1"))
		})

		It("recovers panicking jobs", func() {
			var ran atomic.Bool
			wp.Enqueue(worker.Job{Name: "panic", Run: func(context.Context) error {
				panic("kaboom")
			}})
			wp.Enqueue(worker.Job{Name: "after", Run: func(context.Context) error {
				ran.Store(true)
				return nil
			}})

			Expect(wp.Close).NotTo(Panic())
			Expect(ran.Load()).To(BeTrue())
			Expect(out.String()).To(ContainSubstring("kaboom"))
		})

		It("reports jobs without a run function", func() {
			wp.Enqueue(worker.Job{Name: "empty"})
			wp.Close()
			Expect(out.String()).To(ContainSubstring("has no run function"))
		})
	})

	Describe("context", func() {
		It("gives jobs a live context detached from the submitter", func() {
			submitter, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(submitter.Err()).To(HaveOccurred())

			var jobErr error
			wp.Enqueue(worker.Job{Name: "ctx", Run: func(ctx context.Context) error {
				jobErr = ctx.Err()
				return nil
			}})
			wp.Close()
			Expect(jobErr).NotTo(HaveOccurred())
		})

		It("bounds jobs with the configured timeout", func() {
			wp.Close()
			timed, err := worker.NewPool(&worker.Config{
				JobTimeout: 10 * time.Millisecond,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			var jobErr error
			timed.Enqueue(worker.Job{Name: "slow", Run: func(ctx context.Context) error {
				<-ctx.Done()
				jobErr = ctx.Err()
				return jobErr
			}})
			timed.Close()
			Expect(jobErr).To(MatchError(context.DeadlineExceeded))
		})
	})

	It("is safe to close twice", func() {
		wp.Close()
		Expect(wp.Close).NotTo(Panic())
	})
})
