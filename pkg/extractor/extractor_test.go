package extractor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/automem/pkg/extractor"
	"github.com/papercomputeco/automem/pkg/logger"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

var _ = Describe("Extractor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("posts the fixed prompt and the user text and returns the content", func() {
		var got capturedRequest
		var auth, path string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(completion(`["User enjoys hiking"]`))
		}))
		defer server.Close()

		e := extractor.New(extractor.Config{
			BaseURL: server.URL + "/api/v1/",
			Model:   "test-model",
			APIKey:  "secret",
			Logger:  logger.Nop(),
		})

		out := e.Extract(ctx, "I love hiking")
		Expect(out).To(Equal(`["User enjoys hiking"]`))

		Expect(path).To(Equal("/api/v1/chat/completions"))
		Expect(auth).To(Equal("Bearer secret"))
		Expect(got.Model).To(Equal("test-model"))
		Expect(got.Temperature).To(BeNumerically("~", 0.1))
		Expect(got.MaxTokens).To(Equal(500))
		Expect(got.Messages).To(HaveLen(2))
		Expect(got.Messages[0].Role).To(Equal("system"))
		Expect(got.Messages[0].Content).To(Equal(extractor.SystemPrompt))
		Expect(got.Messages[1].Role).To(Equal("user"))
		Expect(got.Messages[1].Content).To(Equal("I love hiking"))
	})

	It("omits the authorization header without a key", func() {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(completion("[]"))
		}))
		defer server.Close()

		e := extractor.New(extractor.Config{BaseURL: server.URL, Logger: logger.Nop()})
		Expect(e.Extract(ctx, "hello")).To(Equal("[]"))
		Expect(auth).To(BeEmpty())
		Expect(e.Model()).To(Equal(extractor.DefaultModel))
	})

	DescribeTable("falls back to the empty list",
		func(handler http.HandlerFunc, wantLog string) {
			server := httptest.NewServer(handler)
			defer server.Close()

			var buf bytes.Buffer
			e := extractor.New(extractor.Config{
				BaseURL: server.URL,
				Model:   "test-model",
				Logger:  logger.New(logger.WithWriter(&buf)),
			})

			Expect(e.Extract(ctx, "I love hiking")).To(Equal(extractor.EmptyList))
			Expect(buf.String()).To(ContainSubstring(wantLog))
			Expect(buf.String()).To(ContainSubstring("test-model"))
		},
		Entry("on authentication failure", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid key"}}`))
		}), "status=401"),
		Entry("on rate limiting", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}), "rate limited"),
		Entry("on server errors", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}), "status=502"),
		Entry("on malformed JSON", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{not json`))
		}), "unmarshal response"),
		Entry("on a response without choices", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}), "no choices"),
		Entry("on a choice without content", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant"}}]}`))
		}), "no message content"),
	)

	It("falls back to the empty list on transport timeout", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			json.NewEncoder(w).Encode(completion(`["late"]`))
		}))
		defer server.Close()

		e := extractor.New(extractor.Config{
			BaseURL: server.URL,
			Timeout: 20 * time.Millisecond,
			Logger:  logger.Nop(),
		})
		Expect(e.Extract(ctx, "hello")).To(Equal(extractor.EmptyList))
	})

	It("falls back to the empty list when the endpoint is unreachable", func() {
		e := extractor.New(extractor.Config{BaseURL: "http://127.0.0.1:1", Logger: logger.Nop()})
		Expect(e.Extract(ctx, "hello")).To(Equal(extractor.EmptyList))
	})
})
