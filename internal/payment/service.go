// Package payment drives a local payment through its lifecycle against the
// MultiSafepay gateway: initialization, callback reconciliation, refunds and
// data-retention shredding.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	internal "github.com/eventtix/multisafepay-provider/internal"
	"github.com/eventtix/multisafepay-provider/internal/core/common/validation"
	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
	"github.com/eventtix/multisafepay-provider/internal/core/events"
	"github.com/eventtix/multisafepay-provider/internal/currency"
	"github.com/eventtix/multisafepay-provider/internal/gateway"
	"github.com/eventtix/multisafepay-provider/internal/method"
	"github.com/eventtix/multisafepay-provider/internal/redirect"
)

// Audit trail action types.
const (
	ActionPaid       = "multisafepay.event.paid"
	ActionAuthorized = "multisafepay.event.authorized"
	ActionFail       = "multisafepay.event.fail"
	ActionCanceled   = "multisafepay.event.canceled"
	ActionRefunded   = "multisafepay.event.refunded"
)

// Callback event kinds delivered by the gateway notification dispatcher.
const (
	EventKindSuccess = "success"
	EventKindFail    = "fail"
)

// shredGlyph replaces every sensitive value during shredding.
const shredGlyph = "█"

// Repository is the persistence surface the lifecycle needs. Snapshot and
// state always change together; there is no call that writes one without
// the other, except the shredder's redaction pass.
type Repository interface {
	CreatePayment(p *paymentmodel.Payment) error
	GetPayment(id int64) (*paymentmodel.Payment, error)
	UpdatePaymentState(id int64, state string, info json.RawMessage) error
	// TransitionPaymentState applies state+snapshot only when the current
	// state is one of from; reports whether the transition was applied.
	TransitionPaymentState(id int64, from []string, to string, info json.RawMessage) (bool, error)
	UpdatePaymentInfo(id int64, info json.RawMessage) error

	CreateRefund(r *paymentmodel.Refund) error
	GetRefund(id int64) (*paymentmodel.Refund, error)
	UpdateRefundState(id int64, state string, info json.RawMessage) error

	LogAction(paymentID int64, action string, data json.RawMessage) error
}

// GatewayAPI abstracts the HTTP client so tests can substitute a double.
type GatewayAPI interface {
	Post(ctx context.Context, endpoint string, body interface{}) (*gateway.Response, error)
	Get(ctx context.Context, endpoint string) (*gateway.Response, error)
}

// RedirectTarget is what Execute hands back to the checkout flow: either a
// direct gateway URL for iframe-safe methods, or a signed token for methods
// that must pass through the shared redirect page.
type RedirectTarget struct {
	URL         string
	SignedToken string
}

type Service struct {
	repo     Repository
	client   GatewayAPI
	registry *method.Registry
	settings internal.ProviderSettings
	signer   *redirect.Signer
	baseURL  string
	bus      *events.EventBus
	logger   *slog.Logger

	// locks serializes concurrent callback deliveries per payment so
	// duplicate webhook retries cannot double-apply a transition.
	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func NewService(repo Repository, client GatewayAPI, registry *method.Registry, settings internal.ProviderSettings, signer *redirect.Signer, baseURL string, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		client:   client,
		registry: registry,
		settings: settings,
		signer:   signer,
		baseURL:  baseURL,
		bus:      bus,
		logger:   logger,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Service) paymentLock(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// CreatePayment records a new payment attempt selected during checkout. The
// method must be currently allowed for selection.
func (s *Service) CreatePayment(p *paymentmodel.Payment) error {
	d, ok := s.registry.Get(p.Method)
	if !ok {
		return internal.ErrUnknownMethod
	}
	if d.Retired {
		return internal.ErrMethodRetired
	}
	if !s.registry.IsAllowed(d) {
		return internal.NewValidationError("This payment method is not enabled", internal.ErrCodeUnknownMethod)
	}

	v := validation.NewValidator()
	v.Field("event_slug", p.EventSlug).Required()
	v.Field("order_code", p.OrderCode).Required()
	v.Field("order_secret", p.OrderSecret).Required()
	v.Field("amount", p.Amount).Required().Positive()
	v.Field("currency", p.Currency).Required()
	if err := v.Validate(); err != nil {
		return err
	}

	p.State = paymentmodel.StateCreated
	if err := s.repo.CreatePayment(p); err != nil {
		s.logger.Error("failed to create payment record", "error", err, "order_code", p.OrderCode)
		return internal.NewInternalError("failed to create payment record", err)
	}

	s.logger.Info("payment record created",
		"payment_id", p.ID,
		"order_code", p.OrderCode,
		"method", p.Method)
	return nil
}

// Execute starts the gateway payment page session for a payment and returns
// where to send the payer's browser. Snapshot and state are persisted
// together on every outcome.
func (s *Service) Execute(ctx context.Context, paymentID int64) (*RedirectTarget, error) {
	p, err := s.repo.GetPayment(paymentID)
	if err != nil {
		return nil, internal.ErrPaymentNotFound.WithCause(err)
	}

	d, ok := s.registry.Get(p.Method)
	if !ok {
		return nil, internal.ErrUnknownMethod
	}

	envelope := BuildInitEnvelope(p, d, s.settings, s.baseURL)

	resp, err := s.client.Post(ctx, gateway.EndpointInitialize, envelope)
	if err != nil {
		return nil, s.failFromInitError(p, err)
	}

	snapshot, err := resp.Snapshot()
	if err != nil {
		s.logger.Error("multisafepay returned unparseable init response",
			"payment_id", p.ID,
			"error", err)
		return nil, s.failFromInitError(p, err)
	}

	if err := s.repo.UpdatePaymentState(p.ID, paymentmodel.StateCreated, resp.Body); err != nil {
		s.logger.Error("failed to persist init snapshot", "error", err, "payment_id", p.ID)
		return nil, internal.NewInternalError("failed to persist payment state", err)
	}

	redirectURL, _ := snapshot["RedirectUrl"].(string)
	s.logger.Info("payment session initialized",
		"payment_id", p.ID,
		"order_id", PaymentOrderID(p),
		"method", p.Method)

	target := &RedirectTarget{URL: redirectURL}
	if d.RequiresRedirect {
		token, err := s.signer.Sign(redirectURL, p.OrderSecret)
		if err != nil {
			return nil, internal.NewInternalError("failed to sign redirect token", err)
		}
		target.SignedToken = token
	}
	return target, nil
}

// failFromInitError persists the failure snapshot, marks the payment failed
// and returns the generic communication error. The structured gateway error
// never reaches the payer; it is logged here in full.
func (s *Service) failFromInitError(p *paymentmodel.Payment, cause error) error {
	var info json.RawMessage

	if gwErr, ok := cause.(*gateway.Error); ok {
		s.logger.Error("multisafepay rejected payment initialization",
			"payment_id", p.ID,
			"status", gwErr.StatusCode,
			"body", string(gwErr.Body))
		info, _ = json.Marshal(gwErr.Snapshot())
	} else {
		s.logger.Error("multisafepay initialization request failed",
			"payment_id", p.ID,
			"error", cause)
		info, _ = json.Marshal(map[string]interface{}{
			"error":  true,
			"detail": cause.Error(),
		})
	}

	if err := s.repo.UpdatePaymentState(p.ID, paymentmodel.StateFailed, info); err != nil {
		s.logger.Error("failed to persist failure snapshot", "error", err, "payment_id", p.ID)
	}
	if err := s.repo.LogAction(p.ID, ActionFail, info); err != nil {
		s.logger.Error("failed to write audit entry", "error", err, "payment_id", p.ID)
	}

	return internal.ErrGatewayComms.WithCause(cause)
}

// HandleCallback applies a webhook or return notification. It is idempotent
// and never regresses a terminal state: the same terminal event twice is a
// no-op, a conflicting stale event is logged and dropped.
func (s *Service) HandleCallback(ctx context.Context, paymentID int64, eventKind string) error {
	if eventKind != EventKindSuccess && eventKind != EventKindFail {
		return internal.NewValidationError(
			fmt.Sprintf("unknown callback event kind %q", eventKind),
			internal.ErrCodeValidationFailed)
	}

	lock := s.paymentLock(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPayment(paymentID)
	if err != nil {
		return internal.ErrPaymentNotFound.WithCause(err)
	}

	target := paymentmodel.StateConfirmed
	action := ActionPaid
	if eventKind == EventKindFail {
		target = paymentmodel.StateFailed
		action = ActionFail
	}

	if p.State == target {
		s.logger.Debug("duplicate callback ignored",
			"payment_id", p.ID,
			"event_kind", eventKind,
			"state", p.State)
		return nil
	}

	if p.IsTerminal() {
		s.logger.Warn("stale callback for terminal payment dropped",
			"payment_id", p.ID,
			"event_kind", eventKind,
			"state", p.State)
		return nil
	}

	applied, err := s.repo.TransitionPaymentState(p.ID,
		[]string{paymentmodel.StateCreated, paymentmodel.StatePending},
		target, p.Info)
	if err != nil {
		return internal.NewInternalError("failed to apply payment transition", err)
	}
	if !applied {
		// Lost the race to a concurrent delivery; that delivery logged it.
		s.logger.Info("payment transition already applied elsewhere",
			"payment_id", p.ID,
			"event_kind", eventKind)
		return nil
	}

	data, _ := json.Marshal(map[string]interface{}{"event_kind": eventKind})
	if err := s.repo.LogAction(p.ID, action, data); err != nil {
		s.logger.Error("failed to write audit entry", "error", err, "payment_id", p.ID)
	}

	if target == paymentmodel.StateConfirmed {
		s.bus.Publish(ctx, events.NewPaymentConfirmedEvent(p.ID, p.OrderCode, p.Method))
	} else {
		s.bus.Publish(ctx, events.NewPaymentFailedEvent(p.ID, p.OrderCode, p.Method))
	}

	s.logger.Info("callback applied",
		"payment_id", p.ID,
		"event_kind", eventKind,
		"new_state", target)
	return nil
}

// CreateRefund records a refund request against a confirmed payment. The
// amount may be partial but never more than what was collected.
func (s *Service) CreateRefund(paymentID int64, localID int64, amount decimal.Decimal) (*paymentmodel.Refund, error) {
	p, err := s.repo.GetPayment(paymentID)
	if err != nil {
		return nil, internal.ErrPaymentNotFound.WithCause(err)
	}

	d, ok := s.registry.Get(p.Method)
	if !ok {
		return nil, internal.ErrUnknownMethod
	}
	if !d.RefundsAllowed {
		return nil, internal.ErrRefundNotSupported
	}

	v := validation.NewValidator()
	v.Field("amount", amount).Required().Positive().
		MaxDecimal(p.Amount, internal.ErrCodeInvalidAmount)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	r := &paymentmodel.Refund{
		PaymentID: p.ID,
		LocalID:   localID,
		Amount:    amount,
		Currency:  p.Currency,
		State:     paymentmodel.RefundStateRequested,
	}
	if err := s.repo.CreateRefund(r); err != nil {
		s.logger.Error("failed to create refund record", "error", err, "payment_id", p.ID)
		return nil, internal.NewInternalError("failed to create refund record", err)
	}

	s.logger.Info("refund record created",
		"refund_id", r.ID,
		"payment_id", p.ID,
		"amount", amount.String())
	return r, nil
}

func refundMinorUnits(r *paymentmodel.Refund) int64 {
	return currency.ToMinorUnits(r.Amount, r.Currency)
}

// transactionRef digs the gateway transaction id out of a payment snapshot.
func transactionRef(p *paymentmodel.Payment) (id string, status string) {
	info := p.InfoData()
	if info == nil {
		return "", ""
	}
	tx, _ := info["Transaction"].(map[string]interface{})
	if tx == nil {
		return "", ""
	}
	id, _ = tx["Id"].(string)
	status, _ = tx["Status"].(string)
	return id, status
}

// Refund returns funds for a payment. Full-amount refunds on cancel-capable
// methods try the cheaper cancel path before capture; everything else goes
// straight to the capture-refund endpoint. Capability violations are
// rejected before any network call.
func (s *Service) Refund(ctx context.Context, refundID int64) error {
	r, err := s.repo.GetRefund(refundID)
	if err != nil {
		return internal.ErrRefundNotFound.WithCause(err)
	}

	p, err := s.repo.GetPayment(r.PaymentID)
	if err != nil {
		return internal.ErrPaymentNotFound.WithCause(err)
	}

	d, ok := s.registry.Get(p.Method)
	if !ok {
		return internal.ErrUnknownMethod
	}
	if !d.RefundsAllowed {
		return internal.ErrRefundNotSupported
	}

	txID, txStatus := transactionRef(p)
	if txID == "" {
		return internal.ErrPaymentNotCaptured
	}

	fullAmount := r.Amount.Equal(p.Amount)
	preCapture := txStatus == gateway.TxStatusAuthorized

	if d.CancelFlow && fullAmount && preCapture {
		done, err := s.tryCancel(ctx, p, r, txID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// Benign cancel failure; continue on the refund path.
	}

	return s.captureRefund(ctx, p, r, d, txID, fullAmount)
}

// tryCancel attempts the cancel endpoint. Returns done=true when the cancel
// settled the refund, done=false when the caller should fall through to the
// capture-refund path.
func (s *Service) tryCancel(ctx context.Context, p *paymentmodel.Payment, r *paymentmodel.Refund, txID string) (bool, error) {
	req := gateway.CancelRequest{
		RequestHeader:        newRequestHeader(s.settings.CustomerID),
		TransactionReference: gateway.TransactionReference{TransactionID: txID},
	}

	resp, err := s.client.Post(ctx, gateway.EndpointCancel, req)
	if err != nil {
		if gwErr, ok := err.(*gateway.Error); ok && gwErr.IsBenignCancelFailure() {
			s.logger.Info("cancel path not applicable, falling through to refund",
				"payment_id", p.ID,
				"refund_id", r.ID,
				"gateway_error", gwErr.ErrorName)
			return false, nil
		}
		return false, s.failRefund(p, r, err)
	}

	if err := s.repo.UpdateRefundState(r.ID, paymentmodel.RefundStateDone, resp.Body); err != nil {
		return false, internal.NewInternalError("failed to persist refund state", err)
	}
	if err := s.repo.UpdatePaymentState(p.ID, paymentmodel.StateCanceled, p.Info); err != nil {
		s.logger.Error("failed to mark payment canceled", "error", err, "payment_id", p.ID)
	}
	if err := s.repo.LogAction(p.ID, ActionCanceled, resp.Body); err != nil {
		s.logger.Error("failed to write audit entry", "error", err, "payment_id", p.ID)
	}

	s.bus.Publish(ctx, events.NewRefundDoneEvent(r.ID, p.ID, p.OrderCode))
	s.logger.Info("payment canceled in place of refund",
		"payment_id", p.ID,
		"refund_id", r.ID)
	return true, nil
}

func (s *Service) captureRefund(ctx context.Context, p *paymentmodel.Payment, r *paymentmodel.Refund, d method.Descriptor, txID string, fullAmount bool) error {
	req := gateway.RefundRequest{
		RequestHeader: newRequestHeader(s.settings.CustomerID),
		Refund: gateway.RefundBlock{
			Amount: gateway.Amount{
				Value:        fmt.Sprintf("%d", refundMinorUnits(r)),
				CurrencyCode: r.Currency,
			},
			OrderID:     RefundOrderID(p, r),
			Description: orderDescription(p),
		},
		CaptureReference: gateway.TransactionReference{TransactionID: txID},
	}

	resp, err := s.client.Post(ctx, gateway.EndpointRefund, req)
	if err != nil {
		return s.failRefund(p, r, err)
	}

	var tx gateway.TransactionResponse
	if decodeErr := resp.Decode(&tx); decodeErr != nil {
		s.logger.Warn("refund response missing transaction block",
			"refund_id", r.ID,
			"error", decodeErr)
	}

	// An authorized-but-not-captured refund needs an explicit capture before
	// any money moves.
	if tx.Transaction.Status == gateway.TxStatusAuthorized {
		if err := s.repo.LogAction(p.ID, ActionAuthorized, resp.Body); err != nil {
			s.logger.Error("failed to write audit entry", "error", err, "payment_id", p.ID)
		}

		captureReq := gateway.CaptureRequest{
			RequestHeader:        newRequestHeader(s.settings.CustomerID),
			TransactionReference: gateway.TransactionReference{TransactionID: tx.Transaction.ID},
		}
		captureResp, err := s.client.Post(ctx, gateway.EndpointCapture, captureReq)
		if err != nil {
			return s.failRefund(p, r, err)
		}
		resp = captureResp
	}

	if err := s.repo.UpdateRefundState(r.ID, paymentmodel.RefundStateDone, resp.Body); err != nil {
		return internal.NewInternalError("failed to persist refund state", err)
	}
	if fullAmount {
		if err := s.repo.UpdatePaymentState(p.ID, paymentmodel.StateRefunded, p.Info); err != nil {
			s.logger.Error("failed to mark payment refunded", "error", err, "payment_id", p.ID)
		}
	}
	if err := s.repo.LogAction(p.ID, ActionRefunded, resp.Body); err != nil {
		s.logger.Error("failed to write audit entry", "error", err, "payment_id", p.ID)
	}

	s.bus.Publish(ctx, events.NewRefundDoneEvent(r.ID, p.ID, p.OrderCode))
	s.logger.Info("refund completed",
		"payment_id", p.ID,
		"refund_id", r.ID,
		"full_amount", fullAmount)
	return nil
}

// failRefund persists the failure, then surfaces the processor message when
// the gateway supplied one, else a generic error.
func (s *Service) failRefund(p *paymentmodel.Payment, r *paymentmodel.Refund, cause error) error {
	var info json.RawMessage
	userMsg := ""

	if gwErr, ok := cause.(*gateway.Error); ok {
		s.logger.Error("multisafepay rejected refund",
			"payment_id", p.ID,
			"refund_id", r.ID,
			"status", gwErr.StatusCode,
			"body", string(gwErr.Body))
		info, _ = json.Marshal(gwErr.Snapshot())
		userMsg = gwErr.UserMessage()
	} else {
		s.logger.Error("multisafepay refund request failed",
			"payment_id", p.ID,
			"refund_id", r.ID,
			"error", cause)
		info, _ = json.Marshal(map[string]interface{}{
			"error":  true,
			"detail": cause.Error(),
		})
	}

	if err := s.repo.UpdateRefundState(r.ID, paymentmodel.RefundStateFailed, info); err != nil {
		s.logger.Error("failed to persist refund failure", "error", err, "refund_id", r.ID)
	}

	if userMsg != "" {
		return internal.NewExternalError(
			fmt.Sprintf("MultiSafepay reported an error: %s", userMsg),
			internal.ErrCodeGatewayRejected, cause)
	}
	return internal.ErrGatewayComms.WithCause(cause)
}

// Shred irreversibly redacts the sensitive details of a stored snapshot
// while preserving its keys. Safe to call repeatedly and without a
// snapshot.
func (s *Service) Shred(paymentID int64) error {
	p, err := s.repo.GetPayment(paymentID)
	if err != nil {
		return internal.ErrPaymentNotFound.WithCause(err)
	}

	info := p.InfoData()
	if info == nil {
		return nil
	}

	if details, ok := info["details"].(map[string]interface{}); ok {
		for k := range details {
			details[k] = shredGlyph
		}
		info["details"] = details
	}
	info["_shredded"] = true

	raw, err := json.Marshal(info)
	if err != nil {
		return internal.NewInternalError("failed to marshal shredded snapshot", err)
	}
	if err := s.repo.UpdatePaymentInfo(p.ID, raw); err != nil {
		return internal.NewInternalError("failed to persist shredded snapshot", err)
	}

	s.logger.Info("payment snapshot shredded", "payment_id", p.ID)
	return nil
}

// RefundSupported reports whether the payment's method allows refunds.
func (s *Service) RefundSupported(p *paymentmodel.Payment) bool {
	d, ok := s.registry.Get(p.Method)
	return ok && d.RefundsAllowed
}

// PartialRefundSupported mirrors RefundSupported; the gateway handles
// partial amounts on the same endpoint.
func (s *Service) PartialRefundSupported(p *paymentmodel.Payment) bool {
	return s.RefundSupported(p)
}

// PaymentDetails summarizes a snapshot for the organizer control view.
func (s *Service) PaymentDetails(p *paymentmodel.Payment) map[string]interface{} {
	info := p.InfoData()
	if info == nil {
		return nil
	}
	txID, txStatus := transactionRef(p)
	methodName, _ := info["PaymentMethod"].(string)

	display := p.Method
	if d, ok := s.registry.Get(p.Method); ok {
		display = d.PublicName()
	}

	details := map[string]interface{}{
		"id":             txID,
		"status":         txStatus,
		"reference":      PaymentOrderID(p),
		"payment_method": methodName,
		"display":        display,
	}

	// The snapshot stores the amount in minor units; scale it back for
	// rendering.
	if amt, ok := info["Amount"].(map[string]interface{}); ok {
		if v, ok := amt["Value"].(string); ok {
			if minor, err := strconv.ParseInt(v, 10, 64); err == nil {
				cur, _ := amt["CurrencyCode"].(string)
				details["amount"] = currency.ToDecimal(minor, cur).String()
				details["currency"] = cur
			}
		}
	}

	return details
}
