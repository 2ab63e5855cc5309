package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// receiptRetries bounds the internal retry on receipt number collisions.
const receiptRetries = 3

// SaleService commits and voids point-of-sale transactions. Commit is the
// whole §sale write path in one transaction: idempotency admission, price
// resolution, ledger deduction, receipt, KPI events, alert evaluation and
// response capture.
type SaleService struct {
	Store domain.Store
	Now   func() time.Time
}

// NewSaleService constructs a SaleService.
func NewSaleService(store domain.Store) SaleService {
	return SaleService{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// SaleLine is one requested line of a sale.
type SaleLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1"`
}

// CommitSaleInput carries a sale command with its auth context.
type CommitSaleInput struct {
	ActorID         int64
	Role            domain.Role
	BranchID        int64
	Items           []SaleLine
	PaymentMethod   domain.PaymentMethod
	CashierTimingMS *int64
	IdempotencyKey  string
	Endpoint        string
	IsOffline       bool
}

// SaleReceipt is the committed-sale response; it is what gets persisted
// against the idempotency key, so replays bit-match.
type SaleReceipt struct {
	ID            int64             `json:"id"`
	ReceiptNumber string            `json:"receipt_number"`
	TotalAmount   float64           `json:"total_amount"`
	Items         []SaleReceiptItem `json:"items"`
}

// SaleReceiptItem is one priced line of the receipt.
type SaleReceiptItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// CommitResult carries the response payload and whether it was a replay.
type CommitResult = MutationResult

// Commit executes the sale write path. A receipt collision rolls back the
// whole transaction (idempotency reservation included) and re-runs with
// the next sequence, up to a small bound.
func (s SaleService) Commit(ctx domain.Context, in CommitSaleInput) (CommitResult, error) {
	var res CommitResult
	var err error
	for attempt := 0; attempt < receiptRetries; attempt++ {
		res, err = s.commitOnce(ctx, in)
		if err == nil || domain.CodeOf(err) != domain.CodeReceiptCollision {
			return res, err
		}
	}
	return res, err
}

func (s SaleService) commitOnce(ctx domain.Context, in CommitSaleInput) (CommitResult, error) {
	if !domain.Can(in.Role, domain.ActionCommitSale) {
		return CommitResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not commit sales")
	}
	if len(in.Items) == 0 {
		return CommitResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "a sale needs at least one item")
	}
	if !in.PaymentMethod.Valid() {
		return CommitResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			fmt.Sprintf("unknown payment method %q", in.PaymentMethod))
	}
	for _, line := range in.Items {
		if line.Quantity < 1 {
			return CommitResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				fmt.Sprintf("quantity must be >= 1 for product %d", line.ProductID))
		}
	}

	var out CommitResult
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		adm, err := Admit(ctx, tx, in.ActorID, in.IdempotencyKey, in.Endpoint)
		if err != nil {
			return err
		}
		if adm.Replayed {
			out = CommitResult{Replayed: true, Payload: adm.Payload}
			return nil
		}

		now := s.Now()
		movements := make([]domain.Movement, 0, len(in.Items))
		receiptItems := make([]domain.SaleItem, 0, len(in.Items))
		var total float64
		for _, line := range in.Items {
			p, err := tx.Products().GetActive(ctx, line.ProductID)
			if err != nil {
				return err
			}
			subtotal := Round2(float64(line.Quantity) * p.Price)
			total += subtotal
			receiptItems = append(receiptItems, domain.SaleItem{
				ProductID: p.ID, Quantity: line.Quantity, UnitPrice: p.Price, Subtotal: subtotal,
			})
			movements = append(movements, domain.Movement{
				BranchID:       in.BranchID,
				ProductID:      p.ID,
				MovementType:   domain.MovementSaleOut,
				QuantityChange: -line.Quantity,
				Source:         stockSource(ctx, tx, in.BranchID, p.ID),
				ReferenceType:  "sale",
				ActorID:        in.ActorID,
			})
		}
		total = Round2(total)

		day := now.Format("20060102")
		seq, err := tx.Sales().MaxReceiptSeq(ctx, day)
		if err != nil {
			return err
		}
		sale := domain.Sale{
			BranchID:      in.BranchID,
			CashierID:     in.ActorID,
			TotalAmount:   total,
			PaymentMethod: in.PaymentMethod,
			IsOffline:     in.IsOffline,
			SaleDate:      now,
			ReceiptNumber: fmt.Sprintf("R%s%06d", day, seq+1),
		}
		if _, err := tx.Sales().Create(ctx, &sale); err != nil {
			return err
		}
		for i := range movements {
			movements[i].ReferenceID = sale.ID
		}
		levels, err := tx.Inventory().ApplyMovements(ctx, movements)
		if err != nil {
			return err
		}
		for i := range receiptItems {
			receiptItems[i].SaleID = sale.ID
		}
		if err := tx.Sales().InsertItems(ctx, sale.ID, receiptItems); err != nil {
			return err
		}

		if _, err := tx.Events().Insert(ctx, domain.KpiEvent{
			BranchID: in.BranchID, ActorID: in.ActorID,
			EventType: domain.EventSaleCompleted, EventValue: total,
		}); err != nil {
			return err
		}
		if in.CashierTimingMS != nil {
			if _, err := tx.Events().Insert(ctx, domain.KpiEvent{
				BranchID: in.BranchID, ActorID: in.ActorID,
				EventType: domain.EventCashierDuration, MetricKey: "cashier_order_ms",
				EventValue: float64(*in.CashierTimingMS), DurationMS: in.CashierTimingMS,
			}); err != nil {
				return err
			}
		}
		if err := EvaluateHighSale(ctx, tx, in.BranchID, total); err != nil {
			return err
		}
		if err := EvaluateLowStock(ctx, tx, in.BranchID, levels); err != nil {
			return err
		}

		receipt := SaleReceipt{ID: sale.ID, ReceiptNumber: sale.ReceiptNumber, TotalAmount: total}
		for _, it := range receiptItems {
			receipt.Items = append(receipt.Items, SaleReceiptItem{
				ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Subtotal: it.Subtotal,
			})
		}
		payload, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("op=sale.encode_receipt: %w", err)
		}
		if err := adm.StoreResponse(ctx, tx, payload); err != nil {
			return err
		}
		out = CommitResult{Payload: payload}
		return nil
	})
	return out, err
}

// Void compensates a committed sale: one positive void_out movement per
// line, then the voided flag. Sales have no edit window; void is the only
// allowed post-commit change.
func (s SaleService) Void(ctx domain.Context, g Gate, role domain.Role, saleID int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionVoidSale) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not void sales")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		sale, err := tx.Sales().Get(ctx, saleID)
		if err != nil {
			return nil, err
		}
		if sale.IsVoided {
			return nil, domain.Coded(domain.ErrConflict, domain.CodeConflict, "sale already voided")
		}
		if role != domain.RoleAdmin && sale.CashierID != g.ActorID {
			return nil, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "only the cashier of record or an admin may void")
		}
		items, err := tx.Sales().ItemsBySale(ctx, saleID)
		if err != nil {
			return nil, err
		}
		movements := make([]domain.Movement, 0, len(items))
		for _, it := range items {
			movements = append(movements, domain.Movement{
				BranchID:       sale.BranchID,
				ProductID:      it.ProductID,
				MovementType:   domain.MovementVoidOut,
				QuantityChange: it.Quantity,
				Source:         stockSource(ctx, tx, sale.BranchID, it.ProductID),
				ReferenceType:  "sale",
				ReferenceID:    sale.ID,
				ActorID:        g.ActorID,
			})
		}
		if _, err := tx.Inventory().ApplyMovements(ctx, movements); err != nil {
			return nil, err
		}
		if err := tx.Sales().MarkVoided(ctx, saleID); err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: sale.BranchID, ActorID: g.ActorID, Action: "sale.void",
			Details: domain.Metadata{"sale_id": sale.ID, "receipt_number": sale.ReceiptNumber},
		}); err != nil {
			return nil, err
		}
		return map[string]any{"id": saleID, "voided": true}, nil
	})
}

// ListByBranch pages committed sales for a branch.
func (s SaleService) ListByBranch(ctx domain.Context, branchID int64, limit, offset int) ([]domain.Sale, error) {
	var out []domain.Sale
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Sales().ListByBranch(ctx, branchID, limit, offset)
		return err
	})
	return out, err
}

// Round2 rounds to currency precision, half away from zero.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// stockSource reads the current source tag for a pair so movements keep
// it stable; first-ever touches default to baked.
func stockSource(ctx domain.Context, tx domain.StoreTx, branchID, productID int64) domain.StockSource {
	lvl, ok, err := tx.Inventory().Stock(ctx, branchID, productID)
	if err != nil || !ok {
		return domain.SourceBaked
	}
	return lvl.Source
}
