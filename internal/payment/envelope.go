package payment

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	internal "github.com/eventtix/multisafepay-provider/internal"
	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
	"github.com/eventtix/multisafepay-provider/internal/currency"
	"github.com/eventtix/multisafepay-provider/internal/gateway"
	"github.com/eventtix/multisafepay-provider/internal/method"
)

// supportedLocales are the payer languages the gateway's payment page can
// render; anything else falls back to English.
var supportedLocales = map[string]bool{
	"nl": true,
	"en": true,
}

// GatewayLocale maps an order's language tag to a gateway locale.
func GatewayLocale(language string) string {
	if len(language) >= 2 && supportedLocales[language[:2]] {
		return language[:2]
	}
	return "en"
}

// PaymentOrderID is the stable gateway-side identifier for a payment,
// usable for idempotent lookups.
func PaymentOrderID(p *paymentmodel.Payment) string {
	return fmt.Sprintf("%s-%s-P-%d", strings.ToUpper(p.EventSlug), p.OrderCode, p.LocalID)
}

// RefundOrderID is the stable gateway-side identifier for a refund.
func RefundOrderID(p *paymentmodel.Payment, r *paymentmodel.Refund) string {
	return fmt.Sprintf("%s-%s-R-%d", strings.ToUpper(p.EventSlug), p.OrderCode, r.LocalID)
}

func orderDescription(p *paymentmodel.Payment) string {
	return fmt.Sprintf("Order %s-%s", strings.ToUpper(p.EventSlug), p.OrderCode)
}

func payerNote(p *paymentmodel.Payment) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(p.EventSlug), p.OrderCode)
}

// ReturnHash digests the order secret for the return URL. It only proves
// the request comes from a party that knows the secret; it is not an
// authentication of the gateway itself.
func ReturnHash(orderSecret string) string {
	sum := sha1.Sum([]byte(strings.ToLower(orderSecret)))
	return hex.EncodeToString(sum[:])
}

func newRequestHeader(customerID string) gateway.RequestHeader {
	return gateway.RequestHeader{
		SpecVersion:    gateway.SpecVersion,
		CustomerID:     customerID,
		RequestID:      uuid.New().String(),
		RetryIndicator: 0,
		ClientInfo: gateway.ClientInfo{
			ShopInfo: gateway.ShopInfo,
		},
	}
}

// BuildInitEnvelope constructs the payment page initialization request.
// Deterministic except for the fresh RequestId.
func BuildInitEnvelope(p *paymentmodel.Payment, d method.Descriptor, settings internal.ProviderSettings, baseURL string) gateway.InitializeRequest {
	return gateway.InitializeRequest{
		RequestHeader: newRequestHeader(settings.CustomerID),
		TerminalID:    settings.TerminalID,
		Payment: gateway.PaymentBlock{
			Amount: gateway.Amount{
				Value:        fmt.Sprintf("%d", currency.ToMinorUnits(p.Amount, p.Currency)),
				CurrencyCode: p.Currency,
			},
			OrderID:     PaymentOrderID(p),
			Description: orderDescription(p),
			PayerNote:   payerNote(p),
		},
		PaymentMethods: d.PaymentMethods,
		Wallets:        d.Wallets,
		Payer: gateway.Payer{
			LanguageCode: GatewayLocale(p.OrderLocale),
		},
		ReturnURL: gateway.ReturnURL{
			URL: fmt.Sprintf("%s/return/%s/%d/%s", baseURL, p.OrderCode, p.ID, ReturnHash(p.OrderSecret)),
		},
		Notification: gateway.Notification{
			SuccessNotifyURL: fmt.Sprintf("%s/webhooks/multisafepay/%d/success", baseURL, p.ID),
			FailNotifyURL:    fmt.Sprintf("%s/webhooks/multisafepay/%d/fail", baseURL, p.ID),
		},
	}
}
