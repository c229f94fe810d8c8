package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("fills in the envelope", func() {
		ev := eventstream.NewMemoriesSavedEvent(eventstream.PathLive, "u-1", "c-1", []string{"a"}, 1, 0)
		Expect(ev.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(ev.EventType).To(Equal("automem.memories.saved"))
		Expect(ev.EventID).To(HaveLen(36))
		Expect(ev.EmittedAt.IsZero()).To(BeFalse())
	})

	It("marshals with expected top-level keys", func() {
		ev := eventstream.NewMemoriesSavedEvent(eventstream.PathBackground, "u-1", "", []string{"a", "b"}, 1, 1)

		payload, err := json.Marshal(ev)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		for _, key := range []string{"schema_version", "event_type", "event_id", "emitted_at", "user_id", "path", "facts", "saved", "failed"} {
			Expect(got).To(HaveKey(key))
		}
		Expect(got).NotTo(HaveKey("chat_id"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil memories event"))
	})
})
