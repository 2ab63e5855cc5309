// Package memory is an in-memory implementation of the domain store used
// by tests and local development. Transactions snapshot state and restore
// it when fn fails, so rollback-dependent behavior is observable without a
// database.
package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

type pair struct{ BranchID, ProductID int64 }

type state struct {
	Idem          map[string]domain.IdempotencyRecord
	Stock         map[pair]domain.StockLevel
	Movements     []domain.Movement
	Branches      map[int64]domain.Branch
	Products      map[int64]domain.Product
	Batches       map[int64]domain.Batch
	BatchItems    map[int64][]domain.BatchItem
	Sales         map[int64]domain.Sale
	SaleItems     map[int64][]domain.SaleItem
	Actors        map[int64]domain.Actor
	ActorBranches map[pair]bool // BranchID field reused as actorID key half
	Staff         map[int64]domain.StaffProfile
	Expenses      map[int64]domain.Expense
	Payments      map[int64]domain.StaffPayment
	Events        []domain.KpiEvent
	Rules         map[int64]domain.AlertRule
	Notifications []domain.Notification
	ArchSettings  map[int64]domain.ArchiveSettings
	ArchRuns      []domain.ArchiveRun
	Activity      []domain.ActivityEntry

	SalesArchive     []domain.Sale
	BatchesArchive   []domain.Batch
	MovementsArchive []domain.Movement

	Seq int64
}

func newState() *state {
	return &state{
		Idem:          map[string]domain.IdempotencyRecord{},
		Stock:         map[pair]domain.StockLevel{},
		Branches:      map[int64]domain.Branch{},
		Products:      map[int64]domain.Product{},
		Batches:       map[int64]domain.Batch{},
		BatchItems:    map[int64][]domain.BatchItem{},
		Sales:         map[int64]domain.Sale{},
		SaleItems:     map[int64][]domain.SaleItem{},
		Actors:        map[int64]domain.Actor{},
		ActorBranches: map[pair]bool{},
		Staff:         map[int64]domain.StaffProfile{},
		Expenses:      map[int64]domain.Expense{},
		Payments:      map[int64]domain.StaffPayment{},
		Rules:         map[int64]domain.AlertRule{},
		ArchSettings:  map[int64]domain.ArchiveSettings{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.Idem {
		c.Idem[k] = v
	}
	for k, v := range s.Stock {
		c.Stock[k] = v
	}
	c.Movements = append([]domain.Movement(nil), s.Movements...)
	for k, v := range s.Branches {
		c.Branches[k] = v
	}
	for k, v := range s.Products {
		c.Products[k] = v
	}
	for k, v := range s.Batches {
		c.Batches[k] = v
	}
	for k, v := range s.BatchItems {
		c.BatchItems[k] = append([]domain.BatchItem(nil), v...)
	}
	for k, v := range s.Sales {
		c.Sales[k] = v
	}
	for k, v := range s.SaleItems {
		c.SaleItems[k] = append([]domain.SaleItem(nil), v...)
	}
	for k, v := range s.Actors {
		c.Actors[k] = v
	}
	for k, v := range s.ActorBranches {
		c.ActorBranches[k] = v
	}
	for k, v := range s.Staff {
		c.Staff[k] = v
	}
	for k, v := range s.Expenses {
		c.Expenses[k] = v
	}
	for k, v := range s.Payments {
		c.Payments[k] = v
	}
	c.Events = append([]domain.KpiEvent(nil), s.Events...)
	for k, v := range s.Rules {
		c.Rules[k] = v
	}
	c.Notifications = append([]domain.Notification(nil), s.Notifications...)
	for k, v := range s.ArchSettings {
		c.ArchSettings[k] = v
	}
	c.ArchRuns = append([]domain.ArchiveRun(nil), s.ArchRuns...)
	c.Activity = append([]domain.ActivityEntry(nil), s.Activity...)
	c.SalesArchive = append([]domain.Sale(nil), s.SalesArchive...)
	c.BatchesArchive = append([]domain.Batch(nil), s.BatchesArchive...)
	c.MovementsArchive = append([]domain.Movement(nil), s.MovementsArchive...)
	c.Seq = s.Seq
	return c
}

// Store implements domain.Store over process memory.
type Store struct {
	mu    sync.Mutex
	st    *state
	locks map[int64]bool
	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState(), locks: map[int64]bool{}, Now: func() time.Time { return time.Now().UTC() }}
}

// WithTx snapshots the state, runs fn and restores the snapshot when fn
// fails, approximating transactional rollback.
func (m *Store) WithTx(ctx domain.Context, fn func(ctx domain.Context, tx domain.StoreTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// WithAdvisoryLock emulates pg advisory locks per key.
func (m *Store) WithAdvisoryLock(ctx domain.Context, key int64, fn func(ctx domain.Context) error) (bool, error) {
	m.mu.Lock()
	if m.locks[key] {
		m.mu.Unlock()
		return false, nil
	}
	m.locks[key] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}()
	return true, fn(ctx)
}

// Ping always succeeds.
func (m *Store) Ping(domain.Context) error { return nil }

// Seed runs fn against the raw state under the lock; tests use it to
// install fixtures without going through repositories.
func (m *Store) Seed(fn func(tx domain.StoreTx)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&memTx{m: m})
}

// Dump exposes read-only views for assertions.
func (m *Store) Dump(fn func(tx domain.StoreTx)) { m.Seed(fn) }

func (m *Store) nextID() int64 {
	m.st.Seq++
	return m.st.Seq
}

type memTx struct{ m *Store }

func (t *memTx) Idempotency() domain.IdempotencyRepo    { return (*idemRepo)(t) }
func (t *memTx) Inventory() domain.InventoryRepo        { return (*invRepo)(t) }
func (t *memTx) Branches() domain.BranchRepo            { return (*branchRepo)(t) }
func (t *memTx) Products() domain.ProductRepo           { return (*productRepo)(t) }
func (t *memTx) Batches() domain.BatchRepo              { return (*batchRepo)(t) }
func (t *memTx) Sales() domain.SaleRepo                 { return (*saleRepo)(t) }
func (t *memTx) Actors() domain.ActorRepo               { return (*actorRepo)(t) }
func (t *memTx) Staff() domain.StaffRepo                { return (*staffRepo)(t) }
func (t *memTx) Finance() domain.FinanceRepo            { return (*financeRepo)(t) }
func (t *memTx) Events() domain.EventRepo               { return (*eventRepo)(t) }
func (t *memTx) Notifications() domain.NotificationRepo { return (*notifRepo)(t) }
func (t *memTx) Archive() domain.ArchiveRepo            { return (*archiveRepo)(t) }
func (t *memTx) Activity() domain.ActivityRepo          { return (*activityRepo)(t) }

// --- idempotency ---

type idemRepo memTx

func idemKey(actorID int64, key string) string { return strconv.FormatInt(actorID, 10) + "|" + key }

func (r *idemRepo) Reserve(_ domain.Context, actorID int64, key, endpoint string) (bool, error) {
	k := idemKey(actorID, key)
	if _, ok := r.m.st.Idem[k]; ok {
		return false, nil
	}
	r.m.st.Idem[k] = domain.IdempotencyRecord{ActorID: actorID, Key: key, Endpoint: endpoint, CreatedAt: r.m.Now()}
	return true, nil
}

func (r *idemRepo) Lookup(_ domain.Context, actorID int64, key string) (domain.IdempotencyRecord, error) {
	rec, ok := r.m.st.Idem[idemKey(actorID, key)]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (r *idemRepo) StoreResponse(_ domain.Context, actorID int64, key string, payload []byte) error {
	k := idemKey(actorID, key)
	rec, ok := r.m.st.Idem[k]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ResponsePayload = payload
	r.m.st.Idem[k] = rec
	return nil
}

// --- inventory ---

type invRepo memTx

func (r *invRepo) ApplyMovements(_ domain.Context, movements []domain.Movement) ([]domain.StockLevel, error) {
	if len(movements) == 0 {
		return nil, fmt.Errorf("no movements: %w", domain.ErrInvalidArgument)
	}
	sums := map[pair]int64{}
	lastSource := map[pair]domain.StockSource{}
	for _, mv := range movements {
		if mv.QuantityChange == 0 {
			return nil, fmt.Errorf("zero quantity_change: %w", domain.ErrInvalidArgument)
		}
		p := pair{mv.BranchID, mv.ProductID}
		sums[p] += mv.QuantityChange
		lastSource[p] = mv.Source
	}
	pairs := make([]pair, 0, len(sums))
	for p := range sums {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].BranchID != pairs[j].BranchID {
			return pairs[i].BranchID < pairs[j].BranchID
		}
		return pairs[i].ProductID < pairs[j].ProductID
	})
	levels := make([]domain.StockLevel, 0, len(pairs))
	for _, p := range pairs {
		current := r.m.st.Stock[p].Quantity
		next := current + sums[p]
		if next < 0 {
			return nil, domain.InsufficientStock(p.ProductID, current, -sums[p])
		}
		lvl := domain.StockLevel{
			BranchID: p.BranchID, ProductID: p.ProductID,
			Quantity: next, Source: lastSource[p], LastUpdated: r.m.Now(),
		}
		r.m.st.Stock[p] = lvl
		levels = append(levels, lvl)
	}
	for _, mv := range movements {
		mv.ID = r.m.nextID()
		mv.CreatedAt = r.m.Now()
		r.m.st.Movements = append(r.m.st.Movements, mv)
	}
	return levels, nil
}

func (r *invRepo) StockByBranch(_ domain.Context, branchID int64) ([]domain.StockLevel, error) {
	var out []domain.StockLevel
	for p, lvl := range r.m.st.Stock {
		if p.BranchID == branchID {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *invRepo) Stock(_ domain.Context, branchID, productID int64) (domain.StockLevel, bool, error) {
	lvl, ok := r.m.st.Stock[pair{branchID, productID}]
	return lvl, ok, nil
}

func (r *invRepo) MovementsByReference(_ domain.Context, refType string, refID int64) ([]domain.Movement, error) {
	var out []domain.Movement
	for _, mv := range r.m.st.Movements {
		if mv.ReferenceType == refType && mv.ReferenceID == refID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// --- branches ---

type branchRepo memTx

func (r *branchRepo) Create(_ domain.Context, b *domain.Branch) (int64, error) {
	b.ID = r.m.nextID()
	b.IsActive = true
	b.CreatedAt = r.m.Now()
	r.m.st.Branches[b.ID] = *b
	return b.ID, nil
}

func (r *branchRepo) Get(_ domain.Context, id int64) (domain.Branch, error) {
	b, ok := r.m.st.Branches[id]
	if !ok {
		return domain.Branch{}, domain.ErrNotFound
	}
	return b, nil
}

func (r *branchRepo) List(_ domain.Context, activeOnly bool) ([]domain.Branch, error) {
	var out []domain.Branch
	for _, b := range r.m.st.Branches {
		if !activeOnly || b.IsActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *branchRepo) Update(_ domain.Context, b domain.Branch) error {
	existing, ok := r.m.st.Branches[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Name, existing.Address, existing.Phone = b.Name, b.Address, b.Phone
	r.m.st.Branches[b.ID] = existing
	return nil
}

func (r *branchRepo) SetActive(_ domain.Context, id int64, active bool) error {
	b, ok := r.m.st.Branches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.IsActive = active
	r.m.st.Branches[id] = b
	return nil
}

// --- products ---

type productRepo memTx

func (r *productRepo) Create(_ domain.Context, p *domain.Product) (int64, error) {
	p.ID = r.m.nextID()
	p.IsActive = true
	p.CreatedAt = r.m.Now()
	r.m.st.Products[p.ID] = *p
	return p.ID, nil
}

func (r *productRepo) Get(_ domain.Context, id int64) (domain.Product, error) {
	p, ok := r.m.st.Products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *productRepo) GetActive(ctx domain.Context, id int64) (domain.Product, error) {
	p, err := r.Get(ctx, id)
	if err != nil || !p.IsActive {
		return domain.Product{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeProductUnavailable,
			fmt.Sprintf("product %d is not available", id)).
			WithDetails(map[string]any{"product_id": id})
	}
	return p, nil
}

func (r *productRepo) List(_ domain.Context, activeOnly bool) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range r.m.st.Products {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *productRepo) Update(_ domain.Context, p domain.Product) error {
	existing, ok := r.m.st.Products[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Name, existing.CategoryID, existing.Price, existing.Cost, existing.Unit =
		p.Name, p.CategoryID, p.Price, p.Cost, p.Unit
	r.m.st.Products[p.ID] = existing
	return nil
}

func (r *productRepo) SetActive(_ domain.Context, id int64, active bool) error {
	p, ok := r.m.st.Products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = active
	r.m.st.Products[id] = p
	return nil
}

// --- batches ---

type batchRepo memTx

func (r *batchRepo) Create(_ domain.Context, b *domain.Batch) (int64, error) {
	b.ID = r.m.nextID()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.m.Now()
	}
	r.m.st.Batches[b.ID] = *b
	return b.ID, nil
}

func (r *batchRepo) Get(_ domain.Context, id int64) (domain.Batch, error) {
	b, ok := r.m.st.Batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return b, nil
}

func (r *batchRepo) Items(_ domain.Context, batchID int64) ([]domain.BatchItem, error) {
	return append([]domain.BatchItem(nil), r.m.st.BatchItems[batchID]...), nil
}

func (r *batchRepo) InsertItems(_ domain.Context, batchID int64, items []domain.BatchItem) error {
	for _, it := range items {
		it.ID = r.m.nextID()
		it.BatchID = batchID
		r.m.st.BatchItems[batchID] = append(r.m.st.BatchItems[batchID], it)
	}
	return nil
}

func (r *batchRepo) ReplaceItems(ctx domain.Context, batchID int64, items []domain.BatchItem) error {
	r.m.st.BatchItems[batchID] = nil
	return r.InsertItems(ctx, batchID, items)
}

func (r *batchRepo) UpdateStatus(_ domain.Context, id int64, status domain.BatchStatus) error {
	b, ok := r.m.st.Batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	r.m.st.Batches[id] = b
	return nil
}

func (r *batchRepo) ListByBranch(_ domain.Context, branchID int64, limit, offset int) ([]domain.Batch, error) {
	var out []domain.Batch
	for _, b := range r.m.st.Batches {
		if b.BranchID == branchID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

// --- sales ---

type saleRepo memTx

func (r *saleRepo) Create(_ domain.Context, s *domain.Sale) (int64, error) {
	for _, existing := range r.m.st.Sales {
		if existing.ReceiptNumber == s.ReceiptNumber {
			return 0, domain.Coded(domain.ErrConflict, domain.CodeReceiptCollision,
				fmt.Sprintf("receipt number %s already issued", s.ReceiptNumber))
		}
	}
	s.ID = r.m.nextID()
	r.m.st.Sales[s.ID] = *s
	return s.ID, nil
}

func (r *saleRepo) InsertItems(_ domain.Context, saleID int64, items []domain.SaleItem) error {
	for _, it := range items {
		it.ID = r.m.nextID()
		it.SaleID = saleID
		r.m.st.SaleItems[saleID] = append(r.m.st.SaleItems[saleID], it)
	}
	return nil
}

func (r *saleRepo) Get(_ domain.Context, id int64) (domain.Sale, error) {
	s, ok := r.m.st.Sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *saleRepo) ItemsBySale(_ domain.Context, saleID int64) ([]domain.SaleItem, error) {
	return append([]domain.SaleItem(nil), r.m.st.SaleItems[saleID]...), nil
}

func (r *saleRepo) MaxReceiptSeq(_ domain.Context, day string) (int, error) {
	prefix := "R" + day
	maxSeq := 0
	for _, s := range r.m.st.Sales {
		if strings.HasPrefix(s.ReceiptNumber, prefix) {
			if n, err := strconv.Atoi(s.ReceiptNumber[len(prefix):]); err == nil && n > maxSeq {
				maxSeq = n
			}
		}
	}
	return maxSeq, nil
}

func (r *saleRepo) MarkVoided(_ domain.Context, id int64) error {
	s, ok := r.m.st.Sales[id]
	if !ok || s.IsVoided {
		return domain.ErrConflict
	}
	s.IsVoided = true
	r.m.st.Sales[id] = s
	return nil
}

func (r *saleRepo) ListByBranch(_ domain.Context, branchID int64, limit, offset int) ([]domain.Sale, error) {
	var out []domain.Sale
	for _, s := range r.m.st.Sales {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleDate.After(out[j].SaleDate) })
	return window(out, limit, offset), nil
}

// --- actors ---

type actorRepo memTx

func (r *actorRepo) Create(_ domain.Context, a *domain.Actor) (int64, error) {
	for _, existing := range r.m.st.Actors {
		if existing.Username == a.Username {
			return 0, domain.Coded(domain.ErrConflict, domain.CodeAccountExists,
				fmt.Sprintf("an account named %q already exists", a.Username))
		}
	}
	a.ID = r.m.nextID()
	a.IsActive = true
	a.CreatedAt = r.m.Now()
	r.m.st.Actors[a.ID] = *a
	return a.ID, nil
}

func (r *actorRepo) Get(_ domain.Context, id int64) (domain.Actor, error) {
	a, ok := r.m.st.Actors[id]
	if !ok {
		return domain.Actor{}, domain.ErrNotFound
	}
	return a, nil
}

func (r *actorRepo) FindByUsername(_ domain.Context, username string) (domain.Actor, bool, error) {
	for _, a := range r.m.st.Actors {
		if a.Username == username {
			return a, true, nil
		}
	}
	return domain.Actor{}, false, nil
}

func (r *actorRepo) FindByUsernameOrEmail(_ domain.Context, username, email string) (domain.Actor, bool, error) {
	var inactive *domain.Actor
	for _, a := range r.m.st.Actors {
		if a.Username != username && a.Email != email {
			continue
		}
		if a.IsActive {
			return a, true, nil
		}
		cp := a
		if inactive == nil {
			inactive = &cp
		}
	}
	if inactive != nil {
		return *inactive, true, nil
	}
	return domain.Actor{}, false, nil
}

func (r *actorRepo) Update(_ domain.Context, a domain.Actor) error {
	existing, ok := r.m.st.Actors[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Username, existing.Email, existing.PasswordHash = a.Username, a.Email, a.PasswordHash
	existing.Role, existing.BranchID = a.Role, a.BranchID
	r.m.st.Actors[a.ID] = existing
	return nil
}

func (r *actorRepo) Reactivate(_ domain.Context, id int64, passwordHash string, role domain.Role, branchID int64) error {
	a, ok := r.m.st.Actors[id]
	if !ok || a.IsActive {
		return domain.ErrConflict
	}
	a.IsActive = true
	a.TerminationDate = nil
	a.PasswordHash = passwordHash
	a.Role = role
	a.BranchID = &branchID
	a.HireDate = r.m.Now()
	r.m.st.Actors[id] = a
	return nil
}

func (r *actorRepo) SetActive(_ domain.Context, id int64, active bool, terminatedAt *time.Time) error {
	a, ok := r.m.st.Actors[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsActive = active
	a.TerminationDate = terminatedAt
	r.m.st.Actors[id] = a
	return nil
}

func (r *actorRepo) UpsertBranchAccess(_ domain.Context, actorID, branchID int64) error {
	r.m.st.ActorBranches[pair{actorID, branchID}] = true
	return nil
}

func (r *actorRepo) ClearBranchAccess(_ domain.Context, actorID int64) error {
	for k := range r.m.st.ActorBranches {
		if k.BranchID == actorID { // first half of the pair is the actor
			delete(r.m.st.ActorBranches, k)
		}
	}
	return nil
}

func (r *actorRepo) HasBranchAccess(_ domain.Context, actorID, branchID int64) (bool, error) {
	if r.m.st.ActorBranches[pair{actorID, branchID}] {
		return true, nil
	}
	a, ok := r.m.st.Actors[actorID]
	return ok && a.BranchID != nil && *a.BranchID == branchID, nil
}

func (r *actorRepo) BranchStaff(_ domain.Context, branchID int64, roles []domain.Role) ([]domain.Actor, error) {
	roleSet := map[domain.Role]bool{}
	for _, ro := range roles {
		roleSet[ro] = true
	}
	var out []domain.Actor
	for _, a := range r.m.st.Actors {
		if !a.IsActive || !roleSet[a.Role] {
			continue
		}
		home := a.BranchID != nil && *a.BranchID == branchID
		if home || r.m.st.ActorBranches[pair{a.ID, branchID}] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- staff ---

type staffRepo memTx

func (r *staffRepo) Create(_ domain.Context, p *domain.StaffProfile) (int64, error) {
	p.ID = r.m.nextID()
	p.IsActive = true
	p.CreatedAt = r.m.Now()
	r.m.st.Staff[p.ID] = *p
	return p.ID, nil
}

func (r *staffRepo) Get(_ domain.Context, id int64) (domain.StaffProfile, error) {
	p, ok := r.m.st.Staff[id]
	if !ok {
		return domain.StaffProfile{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *staffRepo) Update(_ domain.Context, p domain.StaffProfile) error {
	existing, ok := r.m.st.Staff[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.FullName, existing.PhoneNumber, existing.MonthlySalary = p.FullName, p.PhoneNumber, p.MonthlySalary
	existing.RolePreference, existing.JobTitle, existing.BranchID = p.RolePreference, p.JobTitle, p.BranchID
	r.m.st.Staff[p.ID] = existing
	return nil
}

func (r *staffRepo) Link(_ domain.Context, profileID, actorID int64) error {
	for _, other := range r.m.st.Staff {
		if other.LinkedActorID != nil && *other.LinkedActorID == actorID && other.ID != profileID {
			return domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
				fmt.Sprintf("actor %d is already linked to a staff profile", actorID))
		}
	}
	p, ok := r.m.st.Staff[profileID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.LinkedActorID != nil {
		return domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
			fmt.Sprintf("profile %d is already linked", profileID))
	}
	p.LinkedActorID = &actorID
	r.m.st.Staff[profileID] = p
	return nil
}

func (r *staffRepo) UnlinkByActor(_ domain.Context, actorID int64) error {
	for id, p := range r.m.st.Staff {
		if p.LinkedActorID != nil && *p.LinkedActorID == actorID {
			p.LinkedActorID = nil
			r.m.st.Staff[id] = p
		}
	}
	return nil
}

func (r *staffRepo) FindByLinkedActor(_ domain.Context, actorID int64) (domain.StaffProfile, bool, error) {
	for _, p := range r.m.st.Staff {
		if p.LinkedActorID != nil && *p.LinkedActorID == actorID {
			return p, true, nil
		}
	}
	return domain.StaffProfile{}, false, nil
}

func (r *staffRepo) SetActive(_ domain.Context, id int64, active bool, terminatedAt *time.Time) error {
	p, ok := r.m.st.Staff[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = active
	p.TerminationDate = terminatedAt
	r.m.st.Staff[id] = p
	return nil
}

func (r *staffRepo) ListByBranch(_ domain.Context, branchID int64, activeOnly bool) ([]domain.StaffProfile, error) {
	var out []domain.StaffProfile
	for _, p := range r.m.st.Staff {
		if p.BranchID == branchID && (!activeOnly || p.IsActive) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- finance ---

type financeRepo memTx

func (r *financeRepo) CreateExpense(_ domain.Context, e *domain.Expense) (int64, error) {
	e.ID = r.m.nextID()
	e.CreatedAt = r.m.Now()
	r.m.st.Expenses[e.ID] = *e
	return e.ID, nil
}

func (r *financeRepo) UpdateExpense(_ domain.Context, e domain.Expense) error {
	existing, ok := r.m.st.Expenses[e.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Amount, existing.Date, existing.Category, existing.Notes = e.Amount, e.Date, e.Category, e.Notes
	r.m.st.Expenses[e.ID] = existing
	return nil
}

func (r *financeRepo) DeleteExpense(_ domain.Context, id int64) error {
	if _, ok := r.m.st.Expenses[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m.st.Expenses, id)
	return nil
}

func (r *financeRepo) ListExpenses(_ domain.Context, branchID int64, from, to time.Time) ([]domain.Expense, error) {
	var out []domain.Expense
	for _, e := range r.m.st.Expenses {
		if e.BranchID == branchID && !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *financeRepo) CreatePayment(_ domain.Context, p *domain.StaffPayment) (int64, error) {
	p.ID = r.m.nextID()
	p.CreatedAt = r.m.Now()
	r.m.st.Payments[p.ID] = *p
	return p.ID, nil
}

func (r *financeRepo) DeletePayment(_ domain.Context, id int64) error {
	if _, ok := r.m.st.Payments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m.st.Payments, id)
	return nil
}

func (r *financeRepo) ListPayments(_ domain.Context, branchID int64, from, to time.Time) ([]domain.StaffPayment, error) {
	var out []domain.StaffPayment
	for _, p := range r.m.st.Payments {
		if p.BranchID == branchID && !p.Date.Before(from) && p.Date.Before(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- events, notifications, rules ---

type eventRepo memTx

func (r *eventRepo) Insert(_ domain.Context, e domain.KpiEvent) (int64, error) {
	e.ID = r.m.nextID()
	e.CreatedAt = r.m.Now()
	r.m.st.Events = append(r.m.st.Events, e)
	return e.ID, nil
}

type notifRepo memTx

func (r *notifRepo) Insert(_ domain.Context, n domain.Notification) (int64, error) {
	n.ID = r.m.nextID()
	n.CreatedAt = r.m.Now()
	r.m.st.Notifications = append(r.m.st.Notifications, n)
	return n.ID, nil
}

func (r *notifRepo) ListByRecipient(_ domain.Context, actorID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range r.m.st.Notifications {
		if n.RecipientActorID == actorID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *notifRepo) MarkRead(_ domain.Context, id, actorID int64) error {
	for i, n := range r.m.st.Notifications {
		if n.ID == id && n.RecipientActorID == actorID {
			r.m.st.Notifications[i].IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *notifRepo) RulesByEvent(_ domain.Context, branchID int64, eventType string) ([]domain.AlertRule, error) {
	var out []domain.AlertRule
	for _, rule := range r.m.st.Rules {
		if !rule.Enabled || rule.EventType != eventType {
			continue
		}
		if rule.BranchID == nil || *rule.BranchID == branchID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *notifRepo) CreateRule(_ domain.Context, rule *domain.AlertRule) (int64, error) {
	rule.ID = r.m.nextID()
	r.m.st.Rules[rule.ID] = *rule
	return rule.ID, nil
}

func (r *notifRepo) UpdateRule(_ domain.Context, rule domain.AlertRule) error {
	if _, ok := r.m.st.Rules[rule.ID]; !ok {
		return domain.ErrNotFound
	}
	r.m.st.Rules[rule.ID] = rule
	return nil
}

func (r *notifRepo) DeleteRule(_ domain.Context, id int64) error {
	if _, ok := r.m.st.Rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.m.st.Rules, id)
	return nil
}

func (r *notifRepo) ListRules(_ domain.Context, branchID int64) ([]domain.AlertRule, error) {
	var out []domain.AlertRule
	for _, rule := range r.m.st.Rules {
		if rule.BranchID == nil || *rule.BranchID == branchID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- archive ---

type archiveRepo memTx

func (r *archiveRepo) Settings(_ domain.Context, branchID int64) (domain.ArchiveSettings, error) {
	s, ok := r.m.st.ArchSettings[branchID]
	if !ok {
		return domain.ArchiveSettings{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *archiveRepo) UpsertSettings(_ domain.Context, s domain.ArchiveSettings) error {
	existing := r.m.st.ArchSettings[s.BranchID]
	s.LastRunAt, s.LastReminderAt = existing.LastRunAt, existing.LastReminderAt
	r.m.st.ArchSettings[s.BranchID] = s
	return nil
}

func (r *archiveRepo) SetLastRun(_ domain.Context, branchID int64, at time.Time) error {
	s := r.m.st.ArchSettings[branchID]
	s.BranchID = branchID
	s.LastRunAt = &at
	r.m.st.ArchSettings[branchID] = s
	return nil
}

func (r *archiveRepo) SetLastReminder(_ domain.Context, branchID int64, at time.Time) error {
	s := r.m.st.ArchSettings[branchID]
	s.BranchID = branchID
	s.LastReminderAt = &at
	r.m.st.ArchSettings[branchID] = s
	return nil
}

func (r *archiveRepo) ArchiveBatches(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var n int64
	for id, b := range r.m.st.Batches {
		if b.BranchID == branchID && b.CreatedAt.Before(cutoff) {
			r.m.st.BatchesArchive = append(r.m.st.BatchesArchive, b)
			delete(r.m.st.Batches, id)
			delete(r.m.st.BatchItems, id)
			n++
		}
	}
	return n, nil
}

func (r *archiveRepo) ArchiveSales(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range r.m.st.Sales {
		if s.BranchID == branchID && s.SaleDate.Before(cutoff) {
			r.m.st.SalesArchive = append(r.m.st.SalesArchive, s)
			delete(r.m.st.Sales, id)
			delete(r.m.st.SaleItems, id)
			n++
		}
	}
	return n, nil
}

func (r *archiveRepo) ArchiveMovements(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var kept []domain.Movement
	var n int64
	for _, mv := range r.m.st.Movements {
		if mv.BranchID == branchID && mv.CreatedAt.Before(cutoff) {
			r.m.st.MovementsArchive = append(r.m.st.MovementsArchive, mv)
			n++
			continue
		}
		kept = append(kept, mv)
	}
	r.m.st.Movements = kept
	return n, nil
}

func (r *archiveRepo) ArchiveActivity(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var kept []domain.ActivityEntry
	var n int64
	for _, e := range r.m.st.Activity {
		if e.BranchID == branchID && e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.m.st.Activity = kept
	return n, nil
}

func (r *archiveRepo) ArchiveExpenses(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var n int64
	for id, e := range r.m.st.Expenses {
		if e.BranchID == branchID && e.Date.Before(cutoff) {
			delete(r.m.st.Expenses, id)
			n++
		}
	}
	return n, nil
}

func (r *archiveRepo) ArchivePayments(_ domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	var n int64
	for id, p := range r.m.st.Payments {
		if p.BranchID == branchID && p.Date.Before(cutoff) {
			delete(r.m.st.Payments, id)
			n++
		}
	}
	return n, nil
}

func (r *archiveRepo) RecordRun(_ domain.Context, run domain.ArchiveRun) (int64, error) {
	run.ID = r.m.nextID()
	run.CreatedAt = r.m.Now()
	r.m.st.ArchRuns = append(r.m.st.ArchRuns, run)
	return run.ID, nil
}

func (r *archiveRepo) ListRuns(_ domain.Context, branchID int64, limit int) ([]domain.ArchiveRun, error) {
	var out []domain.ArchiveRun
	for _, run := range r.m.st.ArchRuns {
		if run.BranchID == branchID {
			out = append(out, run)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- activity ---

type activityRepo memTx

func (r *activityRepo) Insert(_ domain.Context, e domain.ActivityEntry) (int64, error) {
	e.ID = r.m.nextID()
	e.CreatedAt = r.m.Now()
	r.m.st.Activity = append(r.m.st.Activity, e)
	return e.ID, nil
}

func window[T any](in []T, limit, offset int) []T {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}
