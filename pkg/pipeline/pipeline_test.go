package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/llm"
	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/memory/direct"
	"github.com/papercomputeco/automem/pkg/pipeline"
	"github.com/papercomputeco/automem/pkg/resolver"
	"github.com/papercomputeco/automem/pkg/status"
	"github.com/papercomputeco/automem/pkg/storage"
	testutils "github.com/papercomputeco/automem/pkg/utils/test"
	"github.com/papercomputeco/automem/pkg/worker"
)

// lockedBuffer is written from worker goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("Classify", func() {
	user := &memory.User{ID: "u-1"}
	sess := &memory.Session{Token: "t"}
	msgs := testutils.NewConversation("hello", "hi")

	DescribeTable("picks the processing path",
		func(in pipeline.Inlet, want pipeline.Path) {
			Expect(pipeline.Classify(in)).To(Equal(want))
		},
		Entry("chat id and messages without handles",
			pipeline.Inlet{Event: &pipeline.Event{ChatID: "c-1", Messages: msgs}}, pipeline.PathBackground),
		Entry("chat id with a user but no session",
			pipeline.Inlet{Event: &pipeline.Event{ChatID: "c-1", Messages: msgs}, User: user}, pipeline.PathBackground),
		Entry("chat id with an empty message list",
			pipeline.Inlet{Event: &pipeline.Event{ChatID: "c-1", Messages: []llm.Message{}}}, pipeline.PathBackground),
		Entry("user and session",
			pipeline.Inlet{Event: &pipeline.Event{ChatID: "c-1", Messages: msgs}, User: user, Session: sess}, pipeline.PathLive),
		Entry("user without chat id",
			pipeline.Inlet{Event: &pipeline.Event{Messages: msgs}, User: user}, pipeline.PathLive),
		Entry("user without messages",
			pipeline.Inlet{Event: &pipeline.Event{}, User: user, Session: sess}, pipeline.PathPassThrough),
		Entry("nothing identifying",
			pipeline.Inlet{Event: &pipeline.Event{Messages: msgs}}, pipeline.PathPassThrough),
		Entry("no event", pipeline.Inlet{}, pipeline.PathPassThrough),
	)

	It("names paths", func() {
		Expect(pipeline.PathLive.String()).To(Equal("live"))
		Expect(pipeline.PathBackground.String()).To(Equal("background"))
		Expect(pipeline.PathPassThrough.String()).To(Equal("pass-through"))
	})
})

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		extractor *fakeExtractor
		rich      *testutils.MockMemoryDriver
		directDrv *testutils.MockMemoryDriver
		router    *memory.Router
		owners    *fakeResolver
		pool      *worker.Pool
		publisher *fakePublisher
		logs      *lockedBuffer
		user      *memory.User
		sess      *memory.Session
		emitter   *status.Collector
	)

	newPipeline := func(mutate func(*pipeline.Config)) *pipeline.Pipeline {
		c := pipeline.Config{
			Enabled:   true,
			AutoSave:  true,
			Extractor: extractor,
			Router:    router,
			Resolver:  owners,
			Spawner:   pool,
			Publisher: publisher,
			Logger:    logger.New(logger.WithWriter(logs)),
		}
		if mutate != nil {
			mutate(&c)
		}
		p, err := pipeline.New(c)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		ctx = context.Background()
		extractor = &fakeExtractor{out: `["User enjoys hiking"]`}
		rich = testutils.NewMockMemoryDriver("rich")
		directDrv = testutils.NewMockMemoryDriver("direct")
		router = memory.NewRouter(memory.RouterConfig{
			Caps:   memory.Capabilities{Rich: true, Query: true},
			Rich:   rich,
			Direct: directDrv,
			Logger: logger.Nop(),
		})
		owners = &fakeResolver{owners: map[string]string{"c-1": "u-owner"}}
		publisher = &fakePublisher{}
		logs = &lockedBuffer{}
		user = &memory.User{ID: "u-1"}
		sess = &memory.Session{Token: "tok"}
		emitter = &status.Collector{}

		var err error
		pool, err = worker.NewPool(&worker.Config{Logger: logger.New(logger.WithWriter(logs))})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		pool.Close()
	})

	It("requires an extractor and a router", func() {
		_, err := pipeline.New(pipeline.Config{Router: router})
		Expect(err).To(HaveOccurred())
		_, err = pipeline.New(pipeline.Config{Extractor: extractor})
		Expect(err).To(HaveOccurred())
	})

	It("passes inlet events through", func() {
		p := newPipeline(nil)
		ev := &pipeline.Event{ChatID: "c-1"}
		Expect(p.Inlet(ev)).To(BeIdenticalTo(ev))
	})

	Describe("disabled", func() {
		It("returns the event without doing anything", func() {
			p := newPipeline(func(c *pipeline.Config) { c.Enabled = false })
			ev := &pipeline.Event{ChatID: "c-1", Messages: testutils.NewConversation("I love hiking", "nice")}

			Expect(p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})).To(BeIdenticalTo(ev))
			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
			Expect(owners.Calls()).To(BeEmpty())
			Expect(emitter.Events()).To(BeEmpty())
		})
	})

	Describe("live path", func() {
		var ev *pipeline.Event

		BeforeEach(func() {
			ev = &pipeline.Event{ChatID: "c-1", Messages: testutils.NewConversation("I love hiking", "nice")}
		})

		It("extracts from the second-to-last turn and stores through the rich driver", func() {
			p := newPipeline(nil)
			out := p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})

			Expect(out).To(BeIdenticalTo(ev))
			Expect(out.Messages).To(Equal(testutils.NewConversation("I love hiking", "nice")))
			Expect(extractor.Calls()).To(Equal([]string{"I love hiking"}))
			Expect(rich.Contents()).To(Equal([]string{"User enjoys hiking"}))
			Expect(directDrv.Contents()).To(BeEmpty())
			Expect(emitter.Descriptions()).To(Equal([]string{"Saved 1 memory"}))

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Path).To(Equal("live"))
			Expect(events[0].UserID).To(Equal("u-1"))
		})

		It("reports partial failures", func() {
			extractor.out = `["a", "b", "c"]`
			rich.FailOn["b"] = true
			p := newPipeline(nil)

			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(emitter.Descriptions()).To(Equal([]string{"Saved 2 of 3 memories, some failed"}))
		})

		It("reports nothing to save when the extractor returns an empty list", func() {
			extractor.out = "[]"
			p := newPipeline(nil)

			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(rich.Saved()).To(BeEmpty())
			Expect(directDrv.Saved()).To(BeEmpty())
			Expect(emitter.Descriptions()).To(Equal([]string{status.NothingSaved}))
			Expect(publisher.Events()).To(BeEmpty())
		})

		DescribeTable("never stores invalid extractor output",
			func(raw string) {
				extractor.out = raw
				p := newPipeline(nil)

				p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
				Expect(rich.Saved()).To(BeEmpty())
				Expect(directDrv.Saved()).To(BeEmpty())
				Expect(emitter.Descriptions()).To(Equal([]string{status.NothingSaved}))
			},
			Entry("prose", "Nothing memorable here."),
			Entry("object", `{"facts":["a"]}`),
			Entry("mixed types", `["a", 2]`),
			Entry("python list", `['a']`),
		)

		It("stays silent when the user hid status messages", func() {
			user.Valves = &memory.UserValves{Enabled: true, ShowStatus: false}
			p := newPipeline(nil)

			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(rich.Contents()).To(HaveLen(1))
			Expect(emitter.Events()).To(BeEmpty())
		})

		It("does nothing when the user disabled memories", func() {
			user.Valves = &memory.UserValves{Enabled: false, ShowStatus: true}
			p := newPipeline(nil)

			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(extractor.Calls()).To(BeEmpty())
			Expect(emitter.Events()).To(BeEmpty())
		})

		It("does nothing with auto-save off", func() {
			p := newPipeline(func(c *pipeline.Config) { c.AutoSave = false })
			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("needs at least two turns", func() {
			p := newPipeline(nil)
			ev.Messages = testutils.NewConversation("I love hiking")
			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("needs the second-to-last turn to be the user's", func() {
			p := newPipeline(nil)
			ev.Messages = []llm.Message{
				llm.NewTextMessage(llm.RoleUser, "I love hiking"),
				llm.NewTextMessage(llm.RoleAssistant, "nice"),
				llm.NewTextMessage(llm.RoleAssistant, "anything else?"),
			}
			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("falls back to the direct driver when the live turn has no session", func() {
			p := newPipeline(nil)
			ev.ChatID = ""
			p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Emitter: emitter})

			Expect(rich.Saved()).To(BeEmpty())
			Expect(directDrv.Saved()).To(HaveLen(1))
			Expect(directDrv.Saved()[0].Owner.ID()).To(Equal("u-1"))
		})

		It("contains panics and still returns the event", func() {
			extractor.panic = true
			p := newPipeline(nil)

			var out *pipeline.Event
			Expect(func() {
				out = p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: emitter})
			}).NotTo(Panic())
			Expect(out).To(BeIdenticalTo(ev))
			Expect(logs.String()).To(ContainSubstring("live memory path panicked"))
		})

		It("ignores emitter failures", func() {
			p := newPipeline(nil)
			failing := status.Func(func(context.Context, status.Event) error { return errEmit })

			out := p.Outlet(ctx, pipeline.Inlet{Event: ev, User: user, Session: sess, Emitter: failing})
			Expect(out).To(BeIdenticalTo(ev))
			Expect(rich.Contents()).To(HaveLen(1))
		})
	})

	Describe("background path", func() {
		var ev *pipeline.Event

		BeforeEach(func() {
			ev = &pipeline.Event{ChatID: "c-1", Messages: []llm.Message{
				llm.NewTextMessage(llm.RoleAssistant, "hi"),
				llm.NewTextMessage(llm.RoleUser, "I love hiking"),
				llm.NewTextMessage(llm.RoleAssistant, "nice"),
			}}
		})

		It("resolves the owner and stores through the direct driver without status", func() {
			p := newPipeline(nil)
			out := p.Outlet(ctx, pipeline.Inlet{Event: ev, Emitter: emitter})
			Expect(out).To(BeIdenticalTo(ev))

			pool.Close()
			Expect(owners.Calls()).To(Equal([]string{"c-1"}))
			Expect(extractor.Calls()).To(Equal([]string{"I love hiking"}))
			Expect(directDrv.Saved()).To(HaveLen(1))
			Expect(directDrv.Saved()[0].Owner).To(Equal(memory.Owner{UserID: "u-owner"}))
			Expect(rich.Saved()).To(BeEmpty())
			Expect(emitter.Events()).To(BeEmpty())

			events := publisher.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Path).To(Equal("background"))
			Expect(events[0].ChatID).To(Equal("c-1"))
		})

		It("returns before the background work finishes", func() {
			p := newPipeline(func(c *pipeline.Config) { c.BackgroundDelay = 200 * time.Millisecond })

			start := time.Now()
			p.Outlet(ctx, pipeline.Inlet{Event: ev})
			Expect(time.Since(start)).To(BeNumerically("<", 150*time.Millisecond))
			Expect(owners.Calls()).To(BeEmpty())

			pool.Close()
			Expect(owners.Calls()).To(Equal([]string{"c-1"}))
		})

		It("does not spawn for an empty message list", func() {
			p := newPipeline(nil)
			ev.Messages = []llm.Message{}
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(owners.Calls()).To(BeEmpty())
		})

		It("skips unknown chats with a warning", func() {
			p := newPipeline(nil)
			ev.ChatID = "c-unknown"
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
			Expect(logs.String()).To(ContainSubstring("chat owner not found"))
		})

		It("logs resolver failures and stores nothing", func() {
			owners.err = errors.New("database is locked")
			p := newPipeline(nil)
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
			Expect(directDrv.Saved()).To(BeEmpty())
			Expect(logs.String()).To(ContainSubstring("background job failed"))
			Expect(logs.String()).To(ContainSubstring("database is locked"))
		})

		It("skips with auto-save off", func() {
			p := newPipeline(func(c *pipeline.Config) { c.AutoSave = false })
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("skips a single-turn conversation", func() {
			p := newPipeline(nil)
			ev.Messages = testutils.NewConversation("I love hiking")
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("skips when the newest user turn is blank", func() {
			p := newPipeline(nil)
			ev.Messages = []llm.Message{
				llm.NewTextMessage(llm.RoleUser, "I love hiking"),
				llm.NewTextMessage(llm.RoleAssistant, "nice"),
				llm.NewTextMessage(llm.RoleUser, "  "),
				llm.NewTextMessage(llm.RoleAssistant, "?"),
			}
			p.Outlet(ctx, pipeline.Inlet{Event: ev})

			pool.Close()
			Expect(extractor.Calls()).To(BeEmpty())
		})

		It("contains extractor panics inside the job", func() {
			extractor.panic = true
			p := newPipeline(nil)

			Expect(func() { p.Outlet(ctx, pipeline.Inlet{Event: ev}) }).NotTo(Panic())
			Expect(pool.Close).NotTo(Panic())
			Expect(logs.String()).To(ContainSubstring("extractor blew up"))
		})

		It("is skipped without a spawner", func() {
			p := newPipeline(func(c *pipeline.Config) { c.Spawner = nil })
			p.Outlet(ctx, pipeline.Inlet{Event: ev})
			Expect(owners.Calls()).To(BeEmpty())
			Expect(logs.String()).To(ContainSubstring("background processing not configured"))
		})

		It("stops waiting when the job context ends", func() {
			p := newPipeline(func(c *pipeline.Config) { c.BackgroundDelay = time.Hour })
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			err := p.ProcessCompletedChat(cctx, "c-1", ev.Messages)
			Expect(err).To(MatchError(context.Canceled))
			Expect(owners.Calls()).To(BeEmpty())
		})
	})

	Describe("manual saves", func() {
		It("stores validated facts for an owner", func() {
			p := newPipeline(nil)
			res, err := p.Remember(ctx, `["User has a cat"]`, memory.Owner{UserID: "u-9"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(memory.Result{Saved: 1}))
			Expect(directDrv.Contents()).To(Equal([]string{"User has a cat"}))
		})

		It("rejects invalid input", func() {
			p := newPipeline(nil)
			_, err := p.Remember(ctx, `[]`, memory.Owner{UserID: "u-9"})
			Expect(err).To(HaveOccurred())
			Expect(directDrv.Saved()).To(BeEmpty())
		})

		It("previews extraction without storing", func() {
			p := newPipeline(nil)
			got, err := p.Preview(ctx, "I love hiking")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]string{"User enjoys hiking"}))
			Expect(directDrv.Saved()).To(BeEmpty())
			Expect(rich.Saved()).To(BeEmpty())
		})
	})
})

var _ = Describe("Completed chat against a real store", func() {
	It("stores the hiking fact for the chat owner", func() {
		ctx := context.Background()
		location := filepath.Join(GinkgoT().TempDir(), "webui.db")

		store := direct.New(direct.Config{Location: location, Logger: logger.Nop()})
		Expect(store.Migrate(ctx)).To(Succeed())

		db, err := storage.Open(ctx, location)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.ExecContext(ctx, `INSERT INTO chat (id, user_id) VALUES ('chat-42', 'user-7')`)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Close()).To(Succeed())

		richAPI := testutils.NewMockMemoryAPI()
		caps := memory.DetectCapabilities(richAPI, richAPI)
		router := memory.NewRouter(memory.RouterConfig{
			Caps:   caps,
			Rich:   testutils.NewMockMemoryDriver("rich"),
			Direct: store,
			Logger: logger.Nop(),
		})

		pool, err := worker.NewPool(&worker.Config{Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		p, err := pipeline.New(pipeline.Config{
			Enabled:         true,
			AutoSave:        true,
			BackgroundDelay: 10 * time.Millisecond,
			Extractor:       &fakeExtractor{out: `["User enjoys hiking"]`},
			Router:          router,
			Resolver:        resolver.New(location),
			Spawner:         pool,
			Logger:          logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		ev := &pipeline.Event{ChatID: "chat-42", Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleAssistant, "hi"),
			llm.NewTextMessage(llm.RoleUser, "I love hiking"),
			llm.NewTextMessage(llm.RoleAssistant, "nice"),
		}}
		p.Outlet(ctx, pipeline.Inlet{Event: ev})
		pool.Close()

		db, err = storage.Open(ctx, location)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var userID, content string
		Expect(db.QueryRowContext(ctx, `SELECT user_id, content FROM memory`).Scan(&userID, &content)).To(Succeed())
		Expect(userID).To(Equal("user-7"))
		Expect(content).To(ContainSubstring("hiking"))
	})
})
