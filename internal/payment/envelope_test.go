package payment_test

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/eventtix/multisafepay-provider/internal"
	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
	"github.com/eventtix/multisafepay-provider/internal/method"
	paymentpkg "github.com/eventtix/multisafepay-provider/internal/payment"
)

var _ = ginkgo.Describe("Envelope", func() {
	settings := internal.ProviderSettings{
		Enabled:    true,
		Endpoint:   internal.EndpointTest,
		CustomerID: "cust-1",
		TerminalID: "term-1",
		MethodVisa: true,
		MethodAmex: true,
	}

	newPayment := func() *paymentmodel.Payment {
		return &paymentmodel.Payment{
			ID:          42,
			EventSlug:   "democon",
			OrderCode:   "ABC12",
			OrderSecret: "S3crEt",
			OrderLocale: "nl-informal",
			LocalID:     3,
			Amount:      decimal.RequireFromString("23.45"),
			Currency:    "EUR",
			Method:      method.KeyCreditCard,
		}
	}

	ginkgo.Describe("order identifiers", func() {
		ginkgo.It("uppercases the event slug and embeds the local id", func() {
			p := newPayment()
			gomega.Expect(paymentpkg.PaymentOrderID(p)).To(gomega.Equal("DEMOCON-ABC12-P-3"))
		})

		ginkgo.It("distinguishes refunds from payments", func() {
			p := newPayment()
			r := &paymentmodel.Refund{PaymentID: p.ID, LocalID: 7}
			gomega.Expect(paymentpkg.RefundOrderID(p, r)).To(gomega.Equal("DEMOCON-ABC12-R-7"))
		})
	})

	ginkgo.Describe("GatewayLocale", func() {
		ginkgo.It("keeps supported languages", func() {
			gomega.Expect(paymentpkg.GatewayLocale("nl-informal")).To(gomega.Equal("nl"))
			gomega.Expect(paymentpkg.GatewayLocale("en")).To(gomega.Equal("en"))
		})

		ginkgo.It("falls back to English for everything else", func() {
			gomega.Expect(paymentpkg.GatewayLocale("de-informal")).To(gomega.Equal("en"))
			gomega.Expect(paymentpkg.GatewayLocale("fr")).To(gomega.Equal("en"))
			gomega.Expect(paymentpkg.GatewayLocale("")).To(gomega.Equal("en"))
		})
	})

	ginkgo.Describe("ReturnHash", func() {
		ginkgo.It("digests the lowercased secret", func() {
			// sha1("s3cret")
			gomega.Expect(paymentpkg.ReturnHash("S3crEt")).To(gomega.Equal(paymentpkg.ReturnHash("s3cret")))
			gomega.Expect(paymentpkg.ReturnHash("S3crEt")).To(gomega.HaveLen(40))
		})

		ginkgo.It("changes with the secret", func() {
			gomega.Expect(paymentpkg.ReturnHash("one")).NotTo(gomega.Equal(paymentpkg.ReturnHash("two")))
		})
	})

	ginkgo.Describe("BuildInitEnvelope", func() {
		ginkgo.It("fills the protocol fields from the payment and settings", func() {
			p := newPayment()
			registry := method.NewRegistry(settings)
			d, ok := registry.Get(method.KeyCreditCard)
			gomega.Expect(ok).To(gomega.BeTrue())

			env := paymentpkg.BuildInitEnvelope(p, d, settings, "https://shop.example")

			gomega.Expect(env.RequestHeader.SpecVersion).To(gomega.Equal("1.35"))
			gomega.Expect(env.RequestHeader.CustomerID).To(gomega.Equal("cust-1"))
			gomega.Expect(env.RequestHeader.RequestID).NotTo(gomega.BeEmpty())
			gomega.Expect(env.TerminalID).To(gomega.Equal("term-1"))

			gomega.Expect(env.Payment.Amount.Value).To(gomega.Equal("2345"))
			gomega.Expect(env.Payment.Amount.CurrencyCode).To(gomega.Equal("EUR"))
			gomega.Expect(env.Payment.OrderID).To(gomega.Equal("DEMOCON-ABC12-P-3"))
			gomega.Expect(env.Payment.Description).To(gomega.Equal("Order DEMOCON-ABC12"))

			gomega.Expect(env.PaymentMethods).To(gomega.Equal([]string{"VISA", "AMEX"}))
			gomega.Expect(env.Wallets).To(gomega.BeEmpty())
			gomega.Expect(env.Payer.LanguageCode).To(gomega.Equal("nl"))
		})

		ginkgo.It("builds return and notification URLs with the payment id and hash", func() {
			p := newPayment()
			registry := method.NewRegistry(settings)
			d, _ := registry.Get(method.KeyCreditCard)

			env := paymentpkg.BuildInitEnvelope(p, d, settings, "https://shop.example")

			hash := paymentpkg.ReturnHash(p.OrderSecret)
			gomega.Expect(env.ReturnURL.URL).To(gomega.Equal("https://shop.example/return/ABC12/42/" + hash))
			gomega.Expect(env.Notification.SuccessNotifyURL).To(gomega.Equal("https://shop.example/webhooks/multisafepay/42/success"))
			gomega.Expect(env.Notification.FailNotifyURL).To(gomega.Equal("https://shop.example/webhooks/multisafepay/42/fail"))
		})

		ginkgo.It("issues a fresh request id per envelope", func() {
			p := newPayment()
			registry := method.NewRegistry(settings)
			d, _ := registry.Get(method.KeyCreditCard)

			a := paymentpkg.BuildInitEnvelope(p, d, settings, "https://shop.example")
			b := paymentpkg.BuildInitEnvelope(p, d, settings, "https://shop.example")
			gomega.Expect(a.RequestHeader.RequestID).NotTo(gomega.Equal(b.RequestHeader.RequestID))
		})
	})
})
