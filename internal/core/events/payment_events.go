package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeRefundDone       = "refund.done"
)

type PaymentConfirmedEvent struct {
	BaseEvent
	PaymentID int64  `json:"payment_id"`
	OrderCode string `json:"order_code"`
	Method    string `json:"method"`
}

func NewPaymentConfirmedEvent(paymentID int64, orderCode, methodKey string) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"order_code": orderCode,
				"method":     methodKey,
			},
		},
		PaymentID: paymentID,
		OrderCode: orderCode,
		Method:    methodKey,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID int64  `json:"payment_id"`
	OrderCode string `json:"order_code"`
	Method    string `json:"method"`
}

func NewPaymentFailedEvent(paymentID int64, orderCode, methodKey string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"order_code": orderCode,
				"method":     methodKey,
			},
		},
		PaymentID: paymentID,
		OrderCode: orderCode,
		Method:    methodKey,
	}
}

type RefundDoneEvent struct {
	BaseEvent
	RefundID  int64  `json:"refund_id"`
	PaymentID int64  `json:"payment_id"`
	OrderCode string `json:"order_code"`
}

func NewRefundDoneEvent(refundID, paymentID int64, orderCode string) *RefundDoneEvent {
	return &RefundDoneEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRefundDone,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"refund_id":  refundID,
				"payment_id": paymentID,
				"order_code": orderCode,
			},
		},
		RefundID:  refundID,
		PaymentID: paymentID,
		OrderCode: orderCode,
	}
}
