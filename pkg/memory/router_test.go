package memory_test

import (
	"bytes"
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/memory"
	testutils "github.com/papercomputeco/automem/pkg/utils/test"
)

var _ = Describe("Router", func() {
	var (
		ctx    context.Context
		rich   *testutils.MockMemoryDriver
		direct *testutils.MockMemoryDriver
		user   *memory.User
		sess   *memory.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		rich = testutils.NewMockMemoryDriver("rich")
		direct = testutils.NewMockMemoryDriver("direct")
		user = &memory.User{ID: "user-1234567890"}
		sess = &memory.Session{ID: "req-1", Token: "tok"}
	})

	newRouter := func(caps memory.Capabilities) *memory.Router {
		return memory.NewRouter(memory.RouterConfig{
			Caps:   caps,
			Rich:   rich,
			Direct: direct,
			Logger: logger.Nop(),
		})
	}

	It("uses the rich driver when capable and both handles are present", func() {
		r := newRouter(memory.Capabilities{Rich: true, Query: true})

		res := r.Route(ctx, []string{"a", "b"}, memory.Owner{User: user, Session: sess})
		Expect(res).To(Equal(memory.Result{Saved: 2}))
		Expect(res.OK()).To(BeTrue())
		Expect(rich.Contents()).To(Equal([]string{"a", "b"}))
		Expect(direct.Contents()).To(BeEmpty())
	})

	It("falls back to the direct driver without a session handle", func() {
		r := newRouter(memory.Capabilities{Rich: true, Query: true})

		res := r.Route(ctx, []string{"a"}, memory.Owner{User: user})
		Expect(res.Saved).To(Equal(1))
		Expect(rich.Contents()).To(BeEmpty())
		Expect(direct.Saved()).To(HaveLen(1))
		Expect(direct.Saved()[0].Owner.ID()).To(Equal("user-1234567890"))
	})

	It("uses the direct driver when the rich capability is absent", func() {
		r := newRouter(memory.Capabilities{})

		res := r.Route(ctx, []string{"a"}, memory.Owner{User: user, Session: sess})
		Expect(res.Saved).To(Equal(1))
		Expect(rich.Contents()).To(BeEmpty())
		Expect(direct.Contents()).To(ConsistOf("a"))
	})

	It("uses the direct driver with only a user id", func() {
		r := newRouter(memory.Capabilities{Rich: true, Query: true})

		res := r.Route(ctx, []string{"a", "b", "c"}, memory.Owner{UserID: "u-1"})
		Expect(res.Saved).To(Equal(3))
		Expect(direct.Contents()).To(HaveLen(3))
	})

	It("fails the whole batch when no owner can be identified", func() {
		var buf bytes.Buffer
		r := memory.NewRouter(memory.RouterConfig{
			Caps:   memory.Capabilities{Rich: true},
			Rich:   rich,
			Direct: direct,
			Logger: logger.New(logger.WithWriter(&buf)),
		})

		res := r.Route(ctx, []string{"a", "b"}, memory.Owner{})
		Expect(res).To(Equal(memory.Result{Failed: 2}))
		Expect(res.OK()).To(BeFalse())
		Expect(rich.Contents()).To(BeEmpty())
		Expect(direct.Contents()).To(BeEmpty())
		Expect(buf.String()).To(ContainSubstring("no storage method available"))
	})

	It("keeps going after a failing fact", func() {
		direct.FailOn["b"] = true
		r := newRouter(memory.Capabilities{})

		res := r.Route(ctx, []string{"a", "b", "c"}, memory.Owner{UserID: "u-1"})
		Expect(res).To(Equal(memory.Result{Saved: 2, Failed: 1}))
		Expect(res.Total()).To(Equal(3))
		Expect(direct.Contents()).To(Equal([]string{"a", "c"}))
	})

	It("contains a panicking driver to the fact that caused it", func() {
		direct.PanicOn["b"] = true
		r := newRouter(memory.Capabilities{})

		var res memory.Result
		Expect(func() {
			res = r.Route(ctx, []string{"a", "b", "c"}, memory.Owner{UserID: "u-1"})
		}).NotTo(Panic())
		Expect(res).To(Equal(memory.Result{Saved: 2, Failed: 1}))
	})

	It("returns an empty result for an empty batch", func() {
		r := newRouter(memory.Capabilities{})
		Expect(r.Route(ctx, nil, memory.Owner{})).To(Equal(memory.Result{}))
	})

	It("never invokes both drivers for one batch", func() {
		rich.FailOn["a"] = true
		r := newRouter(memory.Capabilities{Rich: true, Query: true})

		res := r.Route(ctx, []string{"a"}, memory.Owner{User: user, Session: sess})
		Expect(res).To(Equal(memory.Result{Failed: 1}))
		Expect(direct.Contents()).To(BeEmpty())
	})
})

var _ = Describe("DetectCapabilities", func() {
	It("reports nothing without an adder", func() {
		api := testutils.NewMockMemoryAPI()
		Expect(memory.DetectCapabilities(nil, api)).To(Equal(memory.Capabilities{}))
	})

	It("reports rich without query when only an adder exists", func() {
		api := testutils.NewMockMemoryAPI()
		Expect(memory.DetectCapabilities(api, nil)).To(Equal(memory.Capabilities{Rich: true}))
	})

	It("reports both when adder and querier exist", func() {
		api := testutils.NewMockMemoryAPI()
		Expect(memory.DetectCapabilities(api, api)).To(Equal(memory.Capabilities{Rich: true, Query: true}))
	})
})

var _ = Describe("QueryResult", func() {
	It("returns the minimum distance of the first row", func() {
		d, ok, err := testutils.Distances(0.9, 0.3, 0.5).Nearest()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(d).To(BeNumerically("~", 0.3))
	})

	It("reports no neighbours for an empty result", func() {
		_, ok, err := (&memory.QueryResult{}).Nearest()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		var nilResult *memory.QueryResult
		_, ok, err = nilResult.Nearest()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("rejects rows of unequal length", func() {
		r := &memory.QueryResult{
			IDs:       [][]string{{"a"}},
			Distances: [][]float64{{0.1, 0.2}},
		}
		_, _, err := r.Nearest()
		Expect(err).To(MatchError(memory.ErrMalformedQuery))
	})
})

var _ = Describe("User", func() {
	It("defaults valves when unset", func() {
		var u *memory.User
		Expect(u.EffectiveValves()).To(Equal(memory.UserValves{ShowStatus: true, Enabled: true}))
		Expect((&memory.User{ID: "x"}).EffectiveValves().Enabled).To(BeTrue())
	})

	It("returns configured valves", func() {
		u := &memory.User{ID: "x", Valves: &memory.UserValves{Enabled: false, ShowStatus: true}}
		Expect(u.EffectiveValves().Enabled).To(BeFalse())
	})

	It("fills valves missing from the payload with defaults", func() {
		u := &memory.User{}
		Expect(json.Unmarshal([]byte(`{"id":"x","valves":{"show_status":false}}`), u)).To(Succeed())
		Expect(u.EffectiveValves()).To(Equal(memory.UserValves{ShowStatus: false, Enabled: true}))
	})
})
