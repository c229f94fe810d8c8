package resolver_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/logger"
	"github.com/papercomputeco/automem/pkg/memory/direct"
	"github.com/papercomputeco/automem/pkg/resolver"
	"github.com/papercomputeco/automem/pkg/storage"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		location string
		r        *resolver.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		location = filepath.Join(GinkgoT().TempDir(), "webui.db")
		Expect(direct.New(direct.Config{Location: location, Logger: logger.Nop()}).Migrate(ctx)).To(Succeed())

		db, err := storage.Open(ctx, location)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.ExecContext(ctx, `INSERT INTO chat (id, user_id) VALUES ('c-1', 'u-1'), ('c-2', '')`)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Close()).To(Succeed())

		r = resolver.New(location)
	})

	It("returns the owner of a known chat", func() {
		userID, found, err := r.Resolve(ctx, "c-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(userID).To(Equal("u-1"))
	})

	It("reports an unknown chat as not found", func() {
		userID, found, err := r.Resolve(ctx, "c-404")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(userID).To(BeEmpty())
	})

	It("treats a blank owner as not found", func() {
		_, found, err := r.Resolve(ctx, "c-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("does not look up an empty chat id", func() {
		_, found, err := resolver.New("").Resolve(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("wraps store failures", func() {
		bad := resolver.New(filepath.Join(GinkgoT().TempDir(), "missing", "webui.db"))
		_, found, err := bad.Resolve(ctx, "c-1")
		Expect(found).To(BeFalse())
		Expect(err).To(MatchError(resolver.ErrLookup))
		Expect(err).To(MatchError(storage.ErrOperational))
	})

	It("wraps a missing chat table", func() {
		path := filepath.Join(GinkgoT().TempDir(), "empty.db")
		db, err := storage.Create(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Close()).To(Succeed())

		_, _, err = resolver.New(path).Resolve(ctx, "c-1")
		Expect(err).To(MatchError(resolver.ErrLookup))
	})

	It("does not create a missing database file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "webui.db")
		_, found, err := resolver.New(path).Resolve(ctx, "c-1")
		Expect(found).To(BeFalse())
		Expect(err).To(MatchError(resolver.ErrLookup))
		Expect(err).To(MatchError(storage.ErrNotFound))

		_, statErr := os.Stat(path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})
