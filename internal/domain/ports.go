package domain

import "time"

// Store is the unit-of-work port over the relational store. Every mutating
// request runs inside exactly one WithTx call; repositories obtained from
// the StoreTx share that transaction.
type Store interface {
	// WithTx begins a READ COMMITTED transaction, runs fn and commits on
	// nil error. Transient BEGIN failures are retried with jitter.
	WithTx(ctx Context, fn func(ctx Context, tx StoreTx) error) error
	// WithAdvisoryLock runs fn while holding the process-wide advisory
	// lock identified by key. acquired=false means another holder is
	// active and fn was not run.
	WithAdvisoryLock(ctx Context, key int64, fn func(ctx Context) error) (acquired bool, err error)
	// Ping reports store reachability for readiness probes.
	Ping(ctx Context) error
}

// StoreTx exposes the per-aggregate repositories bound to one transaction.
type StoreTx interface {
	Idempotency() IdempotencyRepo
	Inventory() InventoryRepo
	Branches() BranchRepo
	Products() ProductRepo
	Batches() BatchRepo
	Sales() SaleRepo
	Actors() ActorRepo
	Staff() StaffRepo
	Finance() FinanceRepo
	Events() EventRepo
	Notifications() NotificationRepo
	Archive() ArchiveRepo
	Activity() ActivityRepo
}

// IdempotencyRepo is the admission gate storage (§4.1).
type IdempotencyRepo interface {
	// Reserve inserts (actor, key, endpoint) and reports whether this call
	// won the admission; a false result means the key already exists.
	Reserve(ctx Context, actorID int64, key, endpoint string) (bool, error)
	// Lookup returns the stored record for (actor, key).
	Lookup(ctx Context, actorID int64, key string) (IdempotencyRecord, error)
	// StoreResponse fills the reserved row's payload before commit.
	StoreResponse(ctx Context, actorID int64, key string, payload []byte) error
}

// InventoryRepo is the transactional inventory ledger (§4.2).
type InventoryRepo interface {
	// ApplyMovements atomically validates, appends and upserts stock for
	// all movements; it returns the post-movement stock level per touched
	// (branch, product) pair. Rows are locked in sorted pair order.
	ApplyMovements(ctx Context, movements []Movement) ([]StockLevel, error)
	// StockByBranch lists current stock for a branch.
	StockByBranch(ctx Context, branchID int64) ([]StockLevel, error)
	// Stock returns the level for one pair; ok=false when no row exists.
	Stock(ctx Context, branchID, productID int64) (StockLevel, bool, error)
	// MovementsByReference lists ledger rows for an aggregate reference.
	MovementsByReference(ctx Context, refType string, refID int64) ([]Movement, error)
}

// BranchRepo persists branches (locations).
type BranchRepo interface {
	Create(ctx Context, b *Branch) (int64, error)
	Get(ctx Context, id int64) (Branch, error)
	List(ctx Context, activeOnly bool) ([]Branch, error)
	Update(ctx Context, b Branch) error
	SetActive(ctx Context, id int64, active bool) error
}

// ProductRepo persists the global catalog.
type ProductRepo interface {
	Create(ctx Context, p *Product) (int64, error)
	Get(ctx Context, id int64) (Product, error)
	GetActive(ctx Context, id int64) (Product, error)
	List(ctx Context, activeOnly bool) ([]Product, error)
	Update(ctx Context, p Product) error
	SetActive(ctx Context, id int64, active bool) error
}

// BatchRepo persists production batches.
type BatchRepo interface {
	Create(ctx Context, b *Batch) (int64, error)
	Get(ctx Context, id int64) (Batch, error)
	Items(ctx Context, batchID int64) ([]BatchItem, error)
	InsertItems(ctx Context, batchID int64, items []BatchItem) error
	ReplaceItems(ctx Context, batchID int64, items []BatchItem) error
	UpdateStatus(ctx Context, id int64, status BatchStatus) error
	ListByBranch(ctx Context, branchID int64, limit, offset int) ([]Batch, error)
}

// SaleRepo persists sales and receipt sequencing.
type SaleRepo interface {
	// Create inserts the sale; a receipt_number unique violation is
	// returned as a RECEIPT_COLLISION coded conflict for bounded retry.
	Create(ctx Context, s *Sale) (int64, error)
	InsertItems(ctx Context, saleID int64, items []SaleItem) error
	Get(ctx Context, id int64) (Sale, error)
	ItemsBySale(ctx Context, saleID int64) ([]SaleItem, error)
	// MaxReceiptSeq returns the highest per-day sequence already issued
	// for the given YYYYMMDD day token.
	MaxReceiptSeq(ctx Context, day string) (int, error)
	MarkVoided(ctx Context, id int64) error
	ListByBranch(ctx Context, branchID int64, limit, offset int) ([]Sale, error)
}

// ActorRepo persists login principals and branch access.
type ActorRepo interface {
	Create(ctx Context, a *Actor) (int64, error)
	Get(ctx Context, id int64) (Actor, error)
	FindByUsernameOrEmail(ctx Context, username, email string) (Actor, bool, error)
	FindByUsername(ctx Context, username string) (Actor, bool, error)
	Update(ctx Context, a Actor) error
	Reactivate(ctx Context, id int64, passwordHash string, role Role, branchID int64) error
	SetActive(ctx Context, id int64, active bool, terminatedAt *time.Time) error
	UpsertBranchAccess(ctx Context, actorID, branchID int64) error
	ClearBranchAccess(ctx Context, actorID int64) error
	HasBranchAccess(ctx Context, actorID, branchID int64) (bool, error)
	BranchStaff(ctx Context, branchID int64, roles []Role) ([]Actor, error)
}

// StaffRepo persists HR profiles.
type StaffRepo interface {
	Create(ctx Context, p *StaffProfile) (int64, error)
	Get(ctx Context, id int64) (StaffProfile, error)
	Update(ctx Context, p StaffProfile) error
	Link(ctx Context, profileID, actorID int64) error
	UnlinkByActor(ctx Context, actorID int64) error
	FindByLinkedActor(ctx Context, actorID int64) (StaffProfile, bool, error)
	SetActive(ctx Context, id int64, active bool, terminatedAt *time.Time) error
	ListByBranch(ctx Context, branchID int64, activeOnly bool) ([]StaffProfile, error)
}

// FinanceRepo persists expenses and staff payments.
type FinanceRepo interface {
	CreateExpense(ctx Context, e *Expense) (int64, error)
	UpdateExpense(ctx Context, e Expense) error
	DeleteExpense(ctx Context, id int64) error
	ListExpenses(ctx Context, branchID int64, from, to time.Time) ([]Expense, error)
	CreatePayment(ctx Context, p *StaffPayment) (int64, error)
	DeletePayment(ctx Context, id int64) error
	ListPayments(ctx Context, branchID int64, from, to time.Time) ([]StaffPayment, error)
}

// EventRepo appends KPI events.
type EventRepo interface {
	Insert(ctx Context, e KpiEvent) (int64, error)
}

// NotificationRepo persists notifications and alert rules.
type NotificationRepo interface {
	Insert(ctx Context, n Notification) (int64, error)
	ListByRecipient(ctx Context, actorID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx Context, id, actorID int64) error
	RulesByEvent(ctx Context, branchID int64, eventType string) ([]AlertRule, error)
	CreateRule(ctx Context, r *AlertRule) (int64, error)
	UpdateRule(ctx Context, r AlertRule) error
	DeleteRule(ctx Context, id int64) error
	ListRules(ctx Context, branchID int64) ([]AlertRule, error)
}

// ArchiveRepo implements the history lifecycle storage (§4.6). Each
// ArchiveX call copies matching rows into the mirror table with ON
// CONFLICT DO NOTHING and deletes them from the hot table, children first
// within the surrounding transaction.
type ArchiveRepo interface {
	Settings(ctx Context, branchID int64) (ArchiveSettings, error)
	UpsertSettings(ctx Context, s ArchiveSettings) error
	SetLastRun(ctx Context, branchID int64, at time.Time) error
	SetLastReminder(ctx Context, branchID int64, at time.Time) error
	ArchiveBatches(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	ArchiveSales(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	ArchiveMovements(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	ArchiveActivity(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	ArchiveExpenses(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	ArchivePayments(ctx Context, branchID int64, cutoff time.Time) (int64, error)
	RecordRun(ctx Context, run ArchiveRun) (int64, error)
	ListRuns(ctx Context, branchID int64, limit int) ([]ArchiveRun, error)
}

// ActivityRepo appends audit entries.
type ActivityRepo interface {
	Insert(ctx Context, e ActivityEntry) (int64, error)
}
