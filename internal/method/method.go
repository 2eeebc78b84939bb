// Package method holds the closed set of MultiSafepay payment method
// descriptors and their capability flags. New methods are added here, never
// at runtime.
package method

import (
	"strings"

	internal "github.com/eventtix/multisafepay-provider/internal"
)

// Method keys referenced across the provider.
const (
	KeyCreditCard = "creditcard"
	KeyWero       = "wero"
	KeyBancontact = "bancontact"
	KeyEPS        = "eps"
	KeyGiropay    = "giropay"
	KeyIdeal      = "ideal"
	KeyPaydirekt  = "paydirekt"
	KeyPaypal     = "paypal"
	KeySEPADebit  = "sepadebit"
	KeySofort     = "sofort"
	KeyPrzelewy   = "przelewy"
)

// Descriptor declares one payment method: the gateway codes it activates and
// the capabilities that gate which lifecycle operations may be attempted.
// Capability flags are consulted by the lifecycle service independent of the
// payment's own state.
type Descriptor struct {
	Key            string
	VerboseName    string
	PaymentMethods []string
	Wallets        []string

	RefundsAllowed bool
	CancelFlow     bool

	// Retired methods stay resolvable so historical payments keep
	// rendering, but are never selectable for new payments or order
	// changes.
	Retired bool

	// RequiresRedirect marks methods that go through the shared redirect
	// page instead of an iframe-safe embed; Execute wraps their redirect
	// URL in a signed token.
	RequiresRedirect bool

	publicName string
}

// Registry resolves descriptors against a settings snapshot. The credit card
// descriptor's gateway codes are computed from the brand/wallet flags at
// resolution time; everything else is static.
type Registry struct {
	settings internal.ProviderSettings
}

func NewRegistry(settings internal.ProviderSettings) *Registry {
	return &Registry{settings: settings}
}

var descriptors = []Descriptor{
	{
		Key:         KeyCreditCard,
		VerboseName: "Credit card via MultiSafepay",
		// PaymentMethods, Wallets and publicName are resolved from settings.
		RefundsAllowed: true,
		CancelFlow:     true,
	},
	{
		Key:            KeyWero,
		VerboseName:    "iDEAL | Wero via MultiSafepay",
		publicName:     "iDEAL | Wero",
		PaymentMethods: []string{"IDEAL"},
		RefundsAllowed: true,
	},
	{
		Key:            KeyBancontact,
		VerboseName:    "Bancontact via MultiSafepay",
		publicName:     "Bancontact",
		PaymentMethods: []string{"BANCONTACT"},
		RefundsAllowed: true,
	},
	{
		Key:              KeyEPS,
		VerboseName:      "EPS via MultiSafepay",
		publicName:       "eps",
		PaymentMethods:   []string{"EPS"},
		RequiresRedirect: true,
	},
	{
		Key:              KeyGiropay,
		VerboseName:      "giropay via MultiSafepay",
		publicName:       "giropay",
		PaymentMethods:   []string{"GIROPAY"},
		Retired:          true,
		RequiresRedirect: true,
	},
	{
		// Replaced by wero; kept for rendering old payments.
		Key:              KeyIdeal,
		VerboseName:      "iDEAL via MultiSafepay",
		publicName:       "iDEAL",
		PaymentMethods:   []string{"IDEAL"},
		RefundsAllowed:   true,
		Retired:          true,
		RequiresRedirect: true,
	},
	{
		Key:              KeyPaydirekt,
		VerboseName:      "paydirekt via MultiSafepay",
		publicName:       "paydirekt",
		PaymentMethods:   []string{"PAYDIREKT"},
		Retired:          true,
		RequiresRedirect: true,
	},
	{
		Key:              KeyPaypal,
		VerboseName:      "PayPal via MultiSafepay",
		publicName:       "PayPal",
		PaymentMethods:   []string{"PAYPAL"},
		RefundsAllowed:   true,
		RequiresRedirect: true,
	},
	{
		Key:            KeySEPADebit,
		VerboseName:    "SEPA Direct Debit via MultiSafepay",
		publicName:     "SEPA Direct Debit",
		PaymentMethods: []string{"DIRDEB"},
		RefundsAllowed: true,
	},
	{
		Key:              KeySofort,
		VerboseName:      "SOFORT via MultiSafepay",
		publicName:       "SOFORT",
		PaymentMethods:   []string{"DIRECTBANK"},
		RefundsAllowed:   true,
		Retired:          true,
		RequiresRedirect: true,
	},
	{
		Key:              KeyPrzelewy,
		VerboseName:      "ePrzelewy via MultiSafepay",
		publicName:       "ePrzelewy",
		PaymentMethods:   []string{"EPRZELEWY"},
		Retired:          true,
		RequiresRedirect: true,
	},
}

// Get resolves a descriptor by key. The second return is false for keys the
// registry has never known.
func (r *Registry) Get(key string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Key == key {
			if d.Key == KeyCreditCard {
				return r.resolveCard(d), true
			}
			return d, true
		}
	}
	return Descriptor{}, false
}

// All returns every descriptor, retired ones included, with the credit card
// entry resolved against the current settings.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Key == KeyCreditCard {
			d = r.resolveCard(d)
		}
		out = append(out, d)
	}
	return out
}

// Enabled returns the descriptors usable for new payments under the current
// settings.
func (r *Registry) Enabled() []Descriptor {
	var out []Descriptor
	for _, d := range r.All() {
		if r.IsAllowed(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) resolveCard(d Descriptor) Descriptor {
	s := r.settings

	d.PaymentMethods = nil
	if s.MethodVisa {
		d.PaymentMethods = append(d.PaymentMethods, "VISA")
	}
	if s.MethodMastercard {
		d.PaymentMethods = append(d.PaymentMethods, "MASTERCARD")
	}
	if s.MethodAmex {
		d.PaymentMethods = append(d.PaymentMethods, "AMEX")
	}

	d.Wallets = nil
	if s.MethodApplePay {
		d.Wallets = append(d.Wallets, "APPLEPAY")
	}
	if s.MethodGooglePay {
		d.Wallets = append(d.Wallets, "GOOGLEPAY")
	}

	names := []string{"Credit card"}
	if s.MethodApplePay {
		names = append(names, "Apple Pay")
	}
	if s.MethodGooglePay {
		names = append(names, "Google Pay")
	}
	d.publicName = strings.Join(names, ", ")

	return d
}

// Identifier is the provider identifier recorded on payments.
func (d Descriptor) Identifier() string {
	return "multisafepay_" + d.Key
}

// PublicName is the customer-facing name shown during checkout.
func (d Descriptor) PublicName() string {
	return d.publicName
}

// IsEnabled reports whether the method is switched on in settings. The
// global flag alone is not enough: simple methods also need their own flag,
// and credit card needs at least one brand or wallet.
func (r *Registry) IsEnabled(d Descriptor) bool {
	if !r.settings.Enabled {
		return false
	}
	if d.Key == KeyCreditCard {
		return len(d.PaymentMethods)+len(d.Wallets) > 0
	}
	return r.methodFlag(d.Key)
}

// IsAllowed reports whether the method may be selected for a new payment.
// Retired methods are never allowed, whatever the settings say.
func (r *Registry) IsAllowed(d Descriptor) bool {
	if d.Retired {
		return false
	}
	return r.IsEnabled(d)
}

// OrderChangeAllowed reports whether the method may be used when modifying
// an existing order. Same rule as selection: retirement wins.
func (r *Registry) OrderChangeAllowed(d Descriptor) bool {
	if d.Retired {
		return false
	}
	return r.IsEnabled(d)
}

func (r *Registry) methodFlag(key string) bool {
	s := r.settings
	switch key {
	case KeyWero:
		return s.MethodWero
	case KeyBancontact:
		return s.MethodBancontact
	case KeyEPS:
		return s.MethodEPS
	case KeyGiropay:
		return s.MethodGiropay
	case KeyIdeal:
		return s.MethodIdeal
	case KeyPaydirekt:
		return s.MethodPaydirekt
	case KeyPaypal:
		return s.MethodPaypal
	case KeySEPADebit:
		return s.MethodSEPADebit
	case KeySofort:
		return s.MethodSofort
	case KeyPrzelewy:
		return s.MethodPrzelewy
	default:
		return false
	}
}
