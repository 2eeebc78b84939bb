package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/eventtix/multisafepay-provider/internal"
	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
	"github.com/eventtix/multisafepay-provider/internal/core/events"
	"github.com/eventtix/multisafepay-provider/internal/method"
	paymentpkg "github.com/eventtix/multisafepay-provider/internal/payment"
	"github.com/eventtix/multisafepay-provider/internal/redirect"
	"github.com/eventtix/multisafepay-provider/internal/transport"
	"github.com/eventtix/multisafepay-provider/pkg/logger"
)

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		repo    *mockRepository
		router  *chi.Mux
		payment *paymentmodel.Payment
	)

	settings := internal.ProviderSettings{
		Enabled:    true,
		Endpoint:   internal.EndpointTest,
		APIUser:    "user",
		APIPass:    "pass",
		CustomerID: "cust-1",
		TerminalID: "term-1",
		MethodVisa: true,
	}

	ginkgo.BeforeEach(func() {
		repo = newMockRepository()
		registry := method.NewRegistry(settings)
		signer := redirect.NewSigner([]byte("test-signing-secret-0123456789ab"))
		bus := events.NewEventBus(logger.L())
		service := paymentpkg.NewService(repo, newMockGateway(), registry, settings, signer,
			"https://shop.example", bus, logger.L())
		handler := paymentpkg.NewWebhookHandler(transport.NewBaseHandler(logger.L()), service, logger.L())

		router = chi.NewRouter()
		router.Post("/webhooks/multisafepay/{payment}/{action}", handler.HandleWebhook)
		router.Get("/return/{order}/{payment}/{hash}", handler.HandleReturn)

		payment = &paymentmodel.Payment{
			EventSlug:   "democon",
			OrderCode:   "ABC12",
			OrderSecret: "S3CRET",
			LocalID:     1,
			Amount:      decimal.RequireFromString("23.00"),
			Currency:    "EUR",
			Method:      method.KeyCreditCard,
			State:       paymentmodel.StateCreated,
		}
		gomega.Expect(repo.CreatePayment(payment)).To(gomega.Succeed())
	})

	do := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req.WithContext(context.Background()))
		return rec
	}

	ginkgo.Describe("HandleWebhook", func() {
		ginkgo.It("confirms the payment on a success notification", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/1/success", nil)
			rec := do(req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			stored, _ := repo.GetPayment(payment.ID)
			gomega.Expect(stored.State).To(gomega.Equal(paymentmodel.StateConfirmed))
		})

		ginkgo.It("answers 200 to a duplicate delivery", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/1/success", nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusOK))

			req = httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/1/success", nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusOK))

			gomega.Expect(repo.actionsFor(payment.ID, paymentpkg.ActionPaid)).To(gomega.Equal(1))
		})

		ginkgo.It("rejects unknown actions with a 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/1/sideways", nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("rejects a non-numeric payment id", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/abc/success", nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("HandleReturn", func() {
		ginkgo.It("redirects to the order page when the hash matches", func() {
			hash := paymentpkg.ReturnHash("S3CRET")
			req := httptest.NewRequest(http.MethodGet, "/return/ABC12/1/"+hash, nil)
			rec := do(req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusFound))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal("/order/ABC12"))
		})

		ginkgo.It("rejects a wrong hash", func() {
			req := httptest.NewRequest(http.MethodGet, "/return/ABC12/1/deadbeef", nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("rejects a mismatched order code", func() {
			hash := paymentpkg.ReturnHash("S3CRET")
			req := httptest.NewRequest(http.MethodGet, "/return/WRONG/1/"+hash, nil)
			gomega.Expect(do(req).Code).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
