package gateway

import (
	"encoding/json"
	"fmt"
)

// SpecVersion is the gateway protocol version sent in every request header.
const SpecVersion = "1.35"

// ShopInfo identifies this integration in the request header client info.
const ShopInfo = "eventtix"

// Gateway endpoint paths, relative to the /v1/json/ prefix.
const (
	EndpointInitialize = "Payment/v1/PaymentPage/Initialize"
	EndpointCancel     = "Payment/v1/Transaction/Cancel"
	EndpointRefund     = "Payment/v1/Transaction/Refund"
	EndpointCapture    = "Payment/v1/Transaction/Capture"
)

// Cancel error names that signal "use the refund path instead" rather than a
// real failure.
const (
	ErrNameAlreadyCaptured   = "TRANSACTION_ALREADY_CAPTURED"
	ErrNameWrongState        = "TRANSACTION_IN_WRONG_STATE"
	ErrNameActionUnsupported = "ACTION_NOT_SUPPORTED"
)

type RequestHeader struct {
	SpecVersion    string     `json:"SpecVersion"`
	CustomerID     string     `json:"CustomerId"`
	RequestID      string     `json:"RequestId"`
	RetryIndicator int        `json:"RetryIndicator"`
	ClientInfo     ClientInfo `json:"ClientInfo"`
}

type ClientInfo struct {
	ShopInfo string `json:"ShopInfo"`
}

type Amount struct {
	// Value is the amount in minor units, serialized as a string per the
	// gateway protocol.
	Value        string `json:"Value"`
	CurrencyCode string `json:"CurrencyCode"`
}

type PaymentBlock struct {
	Amount      Amount `json:"Amount"`
	OrderID     string `json:"OrderId"`
	Description string `json:"Description"`
	PayerNote   string `json:"PayerNote,omitempty"`
}

type Payer struct {
	LanguageCode string `json:"LanguageCode"`
}

type ReturnURL struct {
	URL string `json:"Url"`
}

type Notification struct {
	SuccessNotifyURL string `json:"SuccessNotifyUrl"`
	FailNotifyURL    string `json:"FailNotifyUrl"`
}

// InitializeRequest is the envelope posted to start a payment page session.
type InitializeRequest struct {
	RequestHeader  RequestHeader `json:"RequestHeader"`
	TerminalID     string        `json:"TerminalId"`
	Payment        PaymentBlock  `json:"Payment"`
	PaymentMethods []string      `json:"PaymentMethods"`
	Wallets        []string      `json:"Wallets"`
	Payer          Payer         `json:"Payer"`
	ReturnURL      ReturnURL     `json:"ReturnUrl"`
	Notification   Notification  `json:"Notification"`
}

type TransactionReference struct {
	TransactionID string `json:"TransactionId"`
}

type CancelRequest struct {
	RequestHeader        RequestHeader        `json:"RequestHeader"`
	TransactionReference TransactionReference `json:"TransactionReference"`
}

type CaptureRequest struct {
	RequestHeader        RequestHeader        `json:"RequestHeader"`
	TransactionReference TransactionReference `json:"TransactionReference"`
}

type RefundRequest struct {
	RequestHeader    RequestHeader        `json:"RequestHeader"`
	Refund           RefundBlock          `json:"Refund"`
	CaptureReference TransactionReference `json:"CaptureReference"`
}

type RefundBlock struct {
	Amount      Amount `json:"Amount"`
	OrderID     string `json:"OrderId"`
	Description string `json:"Description"`
}

// Transaction is the status block echoed back on cancel/refund/capture
// responses.
type Transaction struct {
	ID     string `json:"Id"`
	Status string `json:"Status"`
}

// Transaction status values the refund flow discriminates on.
const (
	TxStatusAuthorized = "AUTHORIZED"
	TxStatusCaptured   = "CAPTURED"
)

type TransactionResponse struct {
	Transaction Transaction `json:"Transaction"`
}

// Response is a successful (2xx) gateway reply: the decoded body is kept raw
// so the caller can persist it verbatim as the payment snapshot.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Snapshot returns the body as a generic document for persistence.
func (r *Response) Snapshot() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Error is a non-2xx gateway reply. The raw body is retained for logging and
// snapshot persistence; the parsed fields are extracted when the body is the
// gateway's structured error document.
type Error struct {
	StatusCode       int
	Body             json.RawMessage
	ErrorName        string `json:"ErrorName"`
	ErrorMessage     string `json:"ErrorMessage"`
	ProcessorMessage string `json:"ProcessorMessage"`
}

func (e *Error) Error() string {
	if e.ErrorName != "" {
		return fmt.Sprintf("multisafepay error %d: %s (%s)", e.StatusCode, e.ErrorName, e.ErrorMessage)
	}
	return fmt.Sprintf("multisafepay error %d", e.StatusCode)
}

// HasStructuredBody reports whether the error carried a parseable gateway
// error document.
func (e *Error) HasStructuredBody() bool {
	return e.ErrorName != "" || e.ErrorMessage != ""
}

// UserMessage picks the text suitable for user-facing refund errors: the
// processor message when present, then the gateway error message.
func (e *Error) UserMessage() string {
	if e.ProcessorMessage != "" {
		return e.ProcessorMessage
	}
	return e.ErrorMessage
}

// IsBenignCancelFailure reports whether a cancel attempt failed only because
// the transaction is past the point of cancellation, meaning the caller
// should fall through to the refund path.
func (e *Error) IsBenignCancelFailure() bool {
	switch e.ErrorName {
	case ErrNameAlreadyCaptured, ErrNameWrongState, ErrNameActionUnsupported:
		return true
	}
	return false
}

// Snapshot returns the error body as a generic document for persistence,
// falling back to a synthetic document when the body is not JSON.
func (e *Error) Snapshot() map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(e.Body, &m); err != nil || m == nil {
		return map[string]interface{}{"error": true, "detail": string(e.Body)}
	}
	return m
}
