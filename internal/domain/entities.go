// Package domain contains the core entities, error taxonomy and ports of
// the bakery operations backend.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Role is the authorization role of an actor.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCashier:
		return true
	}
	return false
}

// Branch is a physical operating location. Deactivation is soft.
type Branch struct {
	ID        int64
	Name      string
	Address   string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
}

// Actor is an authenticated principal. BranchID is the home branch; the
// actor_branches mapping permits multi-branch access.
type Actor struct {
	ID              int64
	Username        string
	Email           string
	PasswordHash    string
	Role            Role
	BranchID        *int64
	IsActive        bool
	HireDate        time.Time
	TerminationDate *time.Time
	CreatedAt       time.Time
}

// RolePreference enumerates the staffing preference of an HR profile.
type RolePreference string

const (
	PrefCashier RolePreference = "cashier"
	PrefManager RolePreference = "manager"
	PrefOther   RolePreference = "other"
)

// StaffProfile is an HR record that may or may not be linked to a login
// actor. A profile is linked to at most one active actor and vice versa.
type StaffProfile struct {
	ID              int64
	FullName        string
	PhoneNumber     string
	NationalID      *string
	Age             *int
	MonthlySalary   float64
	RolePreference  RolePreference
	JobTitle        *string
	BranchID        int64
	LinkedActorID   *int64
	IsActive        bool
	HireDate        time.Time
	TerminationDate *time.Time
	CreatedAt       time.Time
}

// Category groups products in the global catalog.
type Category struct {
	ID   int64
	Name string
}

// Product is a catalog entry, global across branches.
type Product struct {
	ID         int64
	Name       string
	CategoryID int64
	Price      float64
	Cost       *float64
	Unit       string
	IsActive   bool
	CreatedAt  time.Time
}

// StockSource distinguishes how units entered stock.
type StockSource string

const (
	SourceBaked     StockSource = "baked"
	SourcePurchased StockSource = "purchased"
)

// StockLevel is the derived per-(branch, product) quantity. It is never
// mutated directly; it changes only as the side effect of a ledger movement.
type StockLevel struct {
	BranchID    int64
	ProductID   int64
	Quantity    int64
	Source      StockSource
	LastUpdated time.Time
}

// MovementType enumerates ledger movement kinds.
type MovementType string

const (
	MovementBatchIn          MovementType = "batch_in"
	MovementSaleOut          MovementType = "sale_out"
	MovementVoidOut          MovementType = "void_out"
	MovementManualAdjustment MovementType = "manual_adjustment"
)

// Movement is one append-only row in the inventory ledger.
type Movement struct {
	ID             int64
	BranchID       int64
	ProductID      int64
	MovementType   MovementType
	QuantityChange int64
	Source         StockSource
	ReferenceType  string
	ReferenceID    int64
	ActorID        int64
	Metadata       Metadata
	CreatedAt      time.Time
}

// Metadata is a typed bag of scalar-or-nested values attached to ledger
// rows and events. Domain logic never branches on its shape.
type Metadata map[string]any

// JSON renders the metadata for storage; nil maps become "{}".
func (m Metadata) JSON() []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// BatchStatus enumerates the batch lifecycle.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchSent     BatchStatus = "sent"
	BatchReceived BatchStatus = "received"
	BatchEdited   BatchStatus = "edited"
	BatchVoided   BatchStatus = "voided"
)

// Batch is a production event that increases stock at a branch.
type Batch struct {
	ID               int64
	BranchID         int64
	CreatorActorID   int64
	BatchDate        time.Time
	Status           BatchStatus
	Notes            string
	IsOffline        bool
	SyncedByActorID  *int64
	SyncedAt         *time.Time
	CreatedAt        time.Time
}

// BatchItem is one produced line; unique per (batch, product, source).
type BatchItem struct {
	ID        int64
	BatchID   int64
	ProductID int64
	Quantity  int64
	Source    StockSource
}

// PaymentMethod enumerates how a sale was paid.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "cash"
	PayCard   PaymentMethod = "card"
	PayMobile PaymentMethod = "mobile"
)

// Valid reports whether p is a known payment method.
func (p PaymentMethod) Valid() bool {
	switch p {
	case PayCash, PayCard, PayMobile:
		return true
	}
	return false
}

// Sale is a committed point-of-sale transaction. Sales are created and
// committed atomically; no edit, only void.
type Sale struct {
	ID            int64
	BranchID      int64
	CashierID     int64
	TotalAmount   float64
	PaymentMethod PaymentMethod
	IsOffline     bool
	IsVoided      bool
	SaleDate      time.Time
	ReceiptNumber string
}

// SaleItem is one sold line.
type SaleItem struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Quantity  int64
	UnitPrice float64
	Subtotal  float64
}

// Expense is a per-branch ledger row.
type Expense struct {
	ID        int64
	BranchID  int64
	Amount    float64
	Date      time.Time
	Category  string
	Notes     string
	CreatedBy int64
	CreatedAt time.Time
}

// StaffPayment is a per-branch payroll ledger row.
type StaffPayment struct {
	ID             int64
	BranchID       int64
	StaffProfileID int64
	Amount         float64
	Date           time.Time
	PaymentType    string
	Notes          string
	CreatedBy      int64
	CreatedAt      time.Time
}

// IdempotencyRecord is the stored outcome of an admitted mutating request.
type IdempotencyRecord struct {
	ActorID         int64
	Key             string
	Endpoint        string
	ResponsePayload []byte
	CreatedAt       time.Time
}

// MaxIdempotencyKeyLen bounds client-generated idempotency keys.
const MaxIdempotencyKeyLen = 120

// KpiEvent is an append-only domain event used for dashboards and alerts.
type KpiEvent struct {
	ID         int64
	BranchID   int64
	ActorID    int64
	EventType  string
	MetricKey  string
	EventValue float64
	DurationMS *int64
	Metadata   Metadata
	CreatedAt  time.Time
}

// Well-known KPI event types.
const (
	EventSaleCompleted   = "sale_completed"
	EventCashierDuration = "cashier_order_duration"
	EventHighSale        = "high_sale"
	EventLowStock        = "low_stock"
)

// AlertRule triggers notifications when a matching event crosses its
// threshold. A nil BranchID applies the rule to every branch.
type AlertRule struct {
	ID        int64
	BranchID  *int64
	EventType string
	Threshold float64
	Enabled   bool
}

// Notification is a per-recipient message produced by rule evaluation or
// system events (archive summaries, reminders).
type Notification struct {
	ID               int64
	RecipientActorID int64
	BranchID         int64
	Title            string
	Message          string
	Type             string
	IsRead           bool
	CreatedAt        time.Time
}

// ArchiveSettings is the per-branch archival policy.
type ArchiveSettings struct {
	BranchID               int64
	Enabled                bool
	RetentionMonths        int
	ColdStorageAfterMonths int
	LastRunAt              *time.Time
	LastReminderAt         *time.Time
	ConfirmationPhrase     string
}

// DefaultConfirmationPhrase builds the confirmation sentence operators must
// type before a manual archive run.
func DefaultConfirmationPhrase(retentionMonths int) string {
	return fmt.Sprintf("archive all records older than %d months", retentionMonths)
}

// ArchiveRunStatus enumerates archive run outcomes.
type ArchiveRunStatus string

const (
	ArchiveSuccess ArchiveRunStatus = "success"
	ArchiveFailed  ArchiveRunStatus = "failed"
	ArchiveSkipped ArchiveRunStatus = "skipped"
)

// ArchiveRun records one archival execution for a branch.
type ArchiveRun struct {
	ID          int64
	BranchID    int64
	TriggeredBy *int64
	RunType     string // scheduled | manual
	Status      ArchiveRunStatus
	CutoffAt    time.Time
	Details     Metadata
	ErrorMsg    string
	CreatedAt   time.Time
}

// ActivityEntry is an audit row for administrative actions.
type ActivityEntry struct {
	ID        int64
	BranchID  int64
	ActorID   int64
	Action    string
	Details   Metadata
	CreatedAt time.Time
}

// Advisory lock key namespace. Keys are enumerated here; do not invent
// ad-hoc keys elsewhere.
const (
	LockArchiveScheduler int64 = 7201
)

// Context aliases context.Context so ports read uniformly; adapters pass
// the standard context through.
type Context = context.Context
