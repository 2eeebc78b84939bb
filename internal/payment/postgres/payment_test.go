package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	paymentmodel "github.com/eventtix/multisafepay-provider/internal/core/datamodel/payment"
)

func TestPaymentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Payment Repository Suite")
}

// SQLite-compatible shadow models: text instead of jsonb, string instead of
// numeric. The repository itself only sees the shared table names.

type PaymentSQLite struct {
	ID          int64     `gorm:"primaryKey"`
	EventSlug   string    `gorm:"column:event_slug;not null"`
	OrderCode   string    `gorm:"column:order_code;not null;index"`
	OrderSecret string    `gorm:"column:order_secret;not null"`
	OrderLocale string    `gorm:"column:order_locale;default:en"`
	LocalID     int64     `gorm:"column:local_id;not null"`
	Amount      string    `gorm:"column:amount;type:text;not null"`
	Currency    string    `gorm:"column:currency;not null"`
	Method      string    `gorm:"column:method;not null"`
	State       string    `gorm:"column:state;default:created"`
	Info        string    `gorm:"column:info;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (PaymentSQLite) TableName() string { return "payments" }

type RefundSQLite struct {
	ID        int64     `gorm:"primaryKey"`
	PaymentID int64     `gorm:"column:payment_id;not null;index"`
	LocalID   int64     `gorm:"column:local_id;not null"`
	Amount    string    `gorm:"column:amount;type:text;not null"`
	Currency  string    `gorm:"column:currency;not null"`
	State     string    `gorm:"column:state;default:requested"`
	Info      string    `gorm:"column:info;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (RefundSQLite) TableName() string { return "refunds" }

type ActionLogSQLite struct {
	ID        int64     `gorm:"primaryKey"`
	PaymentID int64     `gorm:"column:payment_id;not null;index"`
	Action    string    `gorm:"column:action;not null"`
	Data      string    `gorm:"column:data;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ActionLogSQLite) TableName() string { return "action_logs" }

var _ = ginkgo.Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo *PaymentRepository
	)

	newPayment := func() *paymentmodel.Payment {
		return &paymentmodel.Payment{
			EventSlug:   "democon",
			OrderCode:   "ABC12",
			OrderSecret: "s3cret",
			OrderLocale: "nl",
			LocalID:     1,
			Amount:      decimal.RequireFromString("23.00"),
			Currency:    "EUR",
			Method:      "creditcard",
			State:       paymentmodel.StateCreated,
		}
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		err = db.AutoMigrate(&PaymentSQLite{}, &RefundSQLite{}, &ActionLogSQLite{})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		repo = &PaymentRepository{db: db}
	})

	ginkgo.Describe("payments", func() {
		ginkgo.It("creates and reads back a payment", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())
			gomega.Expect(p.ID).NotTo(gomega.BeZero())

			got, err := repo.GetPayment(p.ID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(got.OrderCode).To(gomega.Equal("ABC12"))
			gomega.Expect(got.Amount.Equal(decimal.RequireFromString("23.00"))).To(gomega.BeTrue())
		})

		ginkgo.It("writes state and snapshot together", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			info := json.RawMessage(`{"RedirectUrl":"https://pay.example/x"}`)
			gomega.Expect(repo.UpdatePaymentState(p.ID, paymentmodel.StatePending, info)).To(gomega.Succeed())

			got, err := repo.GetPayment(p.ID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(got.State).To(gomega.Equal(paymentmodel.StatePending))
			gomega.Expect(got.InfoData()["RedirectUrl"]).To(gomega.Equal("https://pay.example/x"))
		})
	})

	ginkgo.Describe("TransitionPaymentState", func() {
		ginkgo.It("applies when the source state matches", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			applied, err := repo.TransitionPaymentState(p.ID,
				[]string{paymentmodel.StateCreated, paymentmodel.StatePending},
				paymentmodel.StateConfirmed, nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeTrue())

			got, _ := repo.GetPayment(p.ID)
			gomega.Expect(got.State).To(gomega.Equal(paymentmodel.StateConfirmed))
		})

		ginkgo.It("refuses to move a terminal payment", func() {
			p := newPayment()
			p.State = paymentmodel.StateConfirmed
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			applied, err := repo.TransitionPaymentState(p.ID,
				[]string{paymentmodel.StateCreated, paymentmodel.StatePending},
				paymentmodel.StateFailed, nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(applied).To(gomega.BeFalse())

			got, _ := repo.GetPayment(p.ID)
			gomega.Expect(got.State).To(gomega.Equal(paymentmodel.StateConfirmed))
		})

		ginkgo.It("applies exactly once under repeated calls", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			first, err := repo.TransitionPaymentState(p.ID,
				[]string{paymentmodel.StateCreated}, paymentmodel.StateConfirmed, nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			second, err := repo.TransitionPaymentState(p.ID,
				[]string{paymentmodel.StateCreated}, paymentmodel.StateConfirmed, nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(first).To(gomega.BeTrue())
			gomega.Expect(second).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("refunds", func() {
		ginkgo.It("creates and transitions a refund", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			rf := &paymentmodel.Refund{
				PaymentID: p.ID,
				LocalID:   1,
				Amount:    decimal.RequireFromString("23.00"),
				Currency:  "EUR",
				State:     paymentmodel.RefundStateRequested,
			}
			gomega.Expect(repo.CreateRefund(rf)).To(gomega.Succeed())

			info := json.RawMessage(`{"Transaction":{"Id":"tx-9","Status":"CAPTURED"}}`)
			gomega.Expect(repo.UpdateRefundState(rf.ID, paymentmodel.RefundStateDone, info)).To(gomega.Succeed())

			got, err := repo.GetRefund(rf.ID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(got.State).To(gomega.Equal(paymentmodel.RefundStateDone))
		})
	})

	ginkgo.Describe("action log", func() {
		ginkgo.It("appends audit entries", func() {
			p := newPayment()
			gomega.Expect(repo.CreatePayment(p)).To(gomega.Succeed())

			gomega.Expect(repo.LogAction(p.ID, "multisafepay.event.paid", json.RawMessage(`{"event_kind":"success"}`))).To(gomega.Succeed())

			var count int64
			gomega.Expect(db.Model(&ActionLogSQLite{}).Where("payment_id = ?", p.ID).Count(&count).Error).To(gomega.Succeed())
			gomega.Expect(count).To(gomega.Equal(int64(1)))
		})
	})
})
