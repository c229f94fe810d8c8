package servecmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	servecmder "github.com/papercomputeco/automem/cmd/automem/serve"
)

var _ = Describe("NewServeCmd", func() {
	It("registers flags from the shared registry", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{"listen", "database", "migrate", "extraction-model", "rich-provider", "workers", "spool-dir"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("defaults flags to the config defaults", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal("127.0.0.1:8090"))
		Expect(cmd.Flags().Lookup("workers").DefValue).To(Equal("3"))
		Expect(cmd.Flags().Lookup("migrate").DefValue).To(Equal("false"))
	})

	Describe("execution", func() {
		var (
			tmpDir  string
			origDir string
		)

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "automem-serve-test-*")
			Expect(err).NotTo(HaveOccurred())

			origDir, err = os.Getwd()
			Expect(err).NotTo(HaveOccurred())

			Expect(os.MkdirAll(filepath.Join(tmpDir, ".automem"), 0o755)).To(Succeed())
			Expect(os.Chdir(tmpDir)).To(Succeed())
		})

		AfterEach(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
			os.RemoveAll(tmpDir)
		})

		It("rejects an unknown rich memory provider before serving", func() {
			cmd := servecmder.NewServeCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{
				"--database", filepath.Join(tmpDir, "webui.db"),
				"--migrate",
				"--rich-provider", "mem0",
			})

			err := cmd.Execute()
			Expect(err).To(MatchError(ContainSubstring(`unsupported rich memory provider: "mem0"`)))

			// --migrate ran before the provider was rejected.
			_, statErr := os.Stat(filepath.Join(tmpDir, "webui.db"))
			Expect(statErr).NotTo(HaveOccurred())
		})

		It("rejects an openwebui provider without a target", func() {
			cmd := servecmder.NewServeCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{
				"--database", filepath.Join(tmpDir, "webui.db"),
				"--rich-provider", "openwebui",
			})

			err := cmd.Execute()
			Expect(err).To(MatchError(ContainSubstring("creating openwebui client")))
		})

		It("also logs to --log-file as JSON", func() {
			logPath := filepath.Join(tmpDir, "logs", "serve.log")

			cmd := servecmder.NewServeCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{
				"--log-file", logPath,
				"--database", filepath.Join(tmpDir, "webui.db"),
				"--migrate",
				"--rich-provider", "mem0",
			})
			Expect(cmd.Execute()).To(HaveOccurred())

			data, err := os.ReadFile(logPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"memory tables ready"`))
		})

		It("fails on a malformed config file", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, ".automem", "config.toml"), []byte("[api\n"), 0o600)).To(Succeed())

			cmd := servecmder.NewServeCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{})

			Expect(cmd.Execute()).To(MatchError(ContainSubstring("could not initialize config")))
		})
	})
})
