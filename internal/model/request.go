package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestType enum constants
const (
	RequestTypeExpense       = "EXPENSE"
	RequestTypePurchaseOrder = "PURCHASE_ORDER"
)

// RequestStatus enum constants. A request holds exactly one status; approved
// and rejected are terminal (no reopen).
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Request is a spend request under approval: an expense reimbursement or a
// purchase order. Expenses carry an entered total; purchase order totals are
// derived from their items.
type Request struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestType string    `gorm:"type:varchar(20);not null;index" json:"request_type"` // EXPENSE, PURCHASE_ORDER
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(50);index" json:"category"`
	CostCenter  string    `gorm:"type:varchar(50);index" json:"cost_center"`

	Status          string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	IsPaid          bool   `gorm:"not null;default:false" json:"is_paid"` // meaningful only when status = approved
	RejectionReason string `gorm:"type:text" json:"rejection_reason"`

	SubmittedBy uuid.UUID  `gorm:"type:uuid;not null;index" json:"submitted_by"`
	Submitter   *User      `gorm:"foreignKey:SubmittedBy" json:"submitter,omitempty"`
	ApprovedBy  *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	Approver    *User      `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	RejectedBy  *uuid.UUID `gorm:"type:uuid" json:"rejected_by"`
	Rejecter    *User      `gorm:"foreignKey:RejectedBy" json:"rejecter,omitempty"`
	DecidedAt   *time.Time `json:"decided_at"`

	// Stored as entered for expenses; kept in sync with item totals for
	// purchase orders but always recomputed from items on read.
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"`

	PaymentDueDate *time.Time `json:"payment_due_date"`

	Items    []RequestItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Receipts []Receipt     `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"receipts,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemBacked reports whether TotalAmount is derived from line items.
func (r *Request) ItemBacked() bool {
	return r.RequestType == RequestTypePurchaseOrder
}

// ItemsTotal sums the derived total of the loaded line items.
func (r *Request) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Total())
	}
	return total
}

// RequestItem is a purchase order line. TotalPrice is never stored; it is
// recomputed from quantity and unit price on every read.
type RequestItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"request_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Total is quantity × unit price.
func (i RequestItem) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Receipt associates an uploaded evidentiary file with a request. StoragePath
// is an opaque handle into the blob store and is never sent to clients; access
// goes through a freshly issued time-limited signed URL.
type Receipt struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	FileName    string    `gorm:"type:varchar(255);not null" json:"file_name"`
	FileType    string    `gorm:"type:varchar(100)" json:"file_type"`
	StoragePath string    `gorm:"type:text;not null" json:"-"`
	UploadedBy  uuid.UUID `gorm:"type:uuid" json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}
