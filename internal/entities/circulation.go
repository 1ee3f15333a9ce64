package entities

import "time"

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
)

type FineStatus string

const (
	FineStatusAccrued   FineStatus = "accrued"
	FineStatusPaid      FineStatus = "paid"
	FineStatusCancelled FineStatus = "cancelled"
)

// IsSettlement reports whether s is a terminal fine status.
func (s FineStatus) IsSettlement() bool {
	return s == FineStatusPaid || s == FineStatusCancelled
}

type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	CopyID     uint       `gorm:"index;not null" json:"copy_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `gorm:"index" json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     LoanStatus `gorm:"index;size:20;default:'active'" json:"status"`
	Extensions int        `gorm:"not null;default:0" json:"extensions"`
	User       User       `gorm:"foreignKey:UserID" json:"-"`
	Copy       Copy       `gorm:"foreignKey:CopyID" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Fine amounts are whole currency units and never change after accrual.
type Fine struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	LoanID    uint       `gorm:"index;not null" json:"loan_id"`
	Amount    int64      `gorm:"not null" json:"amount"`
	Status    FineStatus `gorm:"index;size:20;default:'accrued'" json:"status"`
	AccruedAt time.Time  `json:"accrued_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	Loan      Loan       `gorm:"foreignKey:LoanID" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Loan) TableName() string {
	return "loans"
}

func (Fine) TableName() string {
	return "fines"
}
