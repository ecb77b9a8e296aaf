package models

import "time"

// TransactionStatus represents the state of a ledger entry.
// pending holds the funds while the ride runs; completed releases them.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Transaction is a ledger entry from a paying driver to a receiving driver.
type Transaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Reference string `gorm:"uniqueIndex;size:50;not null" json:"reference"`

	PayeurID       uint    `gorm:"index;not null" json:"payeur_id"`
	Payeur         *Driver `gorm:"foreignKey:PayeurID" json:"payeur,omitempty"`
	BeneficiaireID uint    `gorm:"index;not null" json:"beneficiaire_id"`
	Beneficiaire   *Driver `gorm:"foreignKey:BeneficiaireID" json:"beneficiaire,omitempty"`

	RideID *uint `gorm:"index" json:"ride_id,omitempty"`
	Ride   *Ride `gorm:"foreignKey:RideID" json:"ride,omitempty"`

	Montant     float64           `gorm:"type:decimal(10,2);not null" json:"montant"`
	Status      TransactionStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Description string            `gorm:"size:500" json:"description,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// IsPending reports whether the funds are still held.
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionPending
}
