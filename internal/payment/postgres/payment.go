package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
	paymentpkg "github.com/eventtix/multisafepay-provider/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.Repository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) CreatePayment(p *paymentmodel.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetPayment(id int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePaymentState writes state and snapshot in a single statement so one
// never lands without the other.
func (r *PaymentRepository) UpdatePaymentState(id int64, state string, info json.RawMessage) error {
	updates := map[string]interface{}{
		"state":      state,
		"updated_at": time.Now(),
	}
	if info != nil {
		updates["info"] = info
	}
	return r.db.Model(&paymentmodel.Payment{}).Where("id = ?", id).Updates(updates).Error
}

// TransitionPaymentState is a compare-and-set: the update only lands when
// the row is still in one of the expected source states. The affected-rows
// count tells the caller whether a concurrent delivery got there first.
func (r *PaymentRepository) TransitionPaymentState(id int64, from []string, to string, info json.RawMessage) (bool, error) {
	updates := map[string]interface{}{
		"state":      to,
		"updated_at": time.Now(),
	}
	if info != nil {
		updates["info"] = info
	}

	tx := r.db.Model(&paymentmodel.Payment{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *PaymentRepository) UpdatePaymentInfo(id int64, info json.RawMessage) error {
	return r.db.Model(&paymentmodel.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"info":       info,
		"updated_at": time.Now(),
	}).Error
}

func (r *PaymentRepository) CreateRefund(rf *paymentmodel.Refund) error {
	return r.db.Create(rf).Error
}

func (r *PaymentRepository) GetRefund(id int64) (*paymentmodel.Refund, error) {
	var rf paymentmodel.Refund
	err := r.db.First(&rf, id).Error
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *PaymentRepository) UpdateRefundState(id int64, state string, info json.RawMessage) error {
	updates := map[string]interface{}{
		"state":      state,
		"updated_at": time.Now(),
	}
	if info != nil {
		updates["info"] = info
	}
	return r.db.Model(&paymentmodel.Refund{}).Where("id = ?", id).Updates(updates).Error
}

func (r *PaymentRepository) LogAction(paymentID int64, action string, data json.RawMessage) error {
	return r.db.Create(&paymentmodel.ActionLog{
		PaymentID: paymentID,
		Action:    action,
		Data:      data,
		CreatedAt: time.Now(),
	}).Error
}
