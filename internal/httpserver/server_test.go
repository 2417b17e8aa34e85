package httpserver_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/angeloszaimis/payment-router/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	var (
		log  *slog.Logger
		logs *gbytes.Buffer
	)

	BeforeEach(func() {
		logs = gbytes.NewBuffer()
		log = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})

	Context("server creation", func() {
		noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

		DescribeTable("address validation",
			func(addr string, valid bool) {
				srv, err := httpserver.New(addr, noop, log)
				if valid {
					Expect(err).NotTo(HaveOccurred())
					Expect(srv).NotTo(BeNil())
					return
				}
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("host and port", "localhost:9999", true),
			Entry("IP address", "127.0.0.1:9999", true),
			Entry("port only", ":9999", true),
			Entry("too many colons", "invalid:host:port", false),
			Entry("missing port", "localhost", false),
		)
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		It("starts, handles requests and logs them", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				w.Write([]byte("queued"))
			})
			var err error
			testServer, err = httpserver.New(":19999", handler, log)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				testServer.Start()
			}()

			var resp *http.Response
			Eventually(func() error {
				resp, err = http.Post("http://localhost:19999/payments", "application/json", nil)
				return err
			}).Should(Succeed())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("queued"))
			Eventually(logs).Should(gbytes.Say(`path=/payments status=202`))
		})

		It("shuts down gracefully", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			var err error
			testServer, err = httpserver.New(":19998", handler, log)
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() {
				done <- testServer.Start()
			}()
			time.Sleep(100 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
