package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// ArchiveService moves aged history into the archive mirror tables. Both
// the daily scheduled sweep and manual runs funnel through runBranch under
// the process-wide advisory lock; a second concurrent run reports skipped.
type ArchiveService struct {
	Store domain.Store
	Now   func() time.Time
	// DefaultRetentionMonths seeds settings for branches without a row.
	DefaultRetentionMonths int
	DefaultColdAfterMonths int
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(store domain.Store, retentionMonths, coldAfterMonths int) ArchiveService {
	if retentionMonths <= 0 {
		retentionMonths = 6
	}
	if coldAfterMonths <= 0 {
		coldAfterMonths = 24
	}
	return ArchiveService{
		Store:                  store,
		Now:                    func() time.Time { return time.Now().UTC() },
		DefaultRetentionMonths: retentionMonths,
		DefaultColdAfterMonths: coldAfterMonths,
	}
}

// Settings returns the branch's archive policy, materializing defaults
// when the branch has no row yet.
func (s ArchiveService) Settings(ctx domain.Context, branchID int64) (domain.ArchiveSettings, error) {
	var out domain.ArchiveSettings
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = s.settingsOrDefault(ctx, tx, branchID)
		return err
	})
	return out, err
}

// UpdateSettings stores the branch's archive policy. An empty confirmation
// phrase resets to the default sentence for the retention window.
func (s ArchiveService) UpdateSettings(ctx domain.Context, g Gate, role domain.Role, in domain.ArchiveSettings) (MutationResult, error) {
	if !domain.Can(role, domain.ActionRunArchive) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage archival")
	}
	if in.RetentionMonths < 1 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "retention_months must be >= 1")
	}
	if in.ColdStorageAfterMonths < in.RetentionMonths {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			"cold_storage_after_months must be >= retention_months")
	}
	if in.ConfirmationPhrase == "" {
		in.ConfirmationPhrase = domain.DefaultConfirmationPhrase(in.RetentionMonths)
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if _, err := tx.Branches().Get(ctx, in.BranchID); err != nil {
			return nil, err
		}
		if err := tx.Archive().UpsertSettings(ctx, in); err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: in.BranchID, ActorID: g.ActorID, Action: "archive.update_settings",
			Details: domain.Metadata{"retention_months": in.RetentionMonths, "enabled": in.Enabled},
		}); err != nil {
			return nil, err
		}
		return map[string]any{"branch_id": in.BranchID}, nil
	})
}

// ArchiveRunView is the manual-run response shape. It is what gets stored
// against the idempotency key, so replays bit-match.
type ArchiveRunView struct {
	ID          int64          `json:"id"`
	BranchID    int64          `json:"branch_id"`
	RunType     string         `json:"run_type"`
	Status      string         `json:"status"`
	CutoffAt    time.Time      `json:"cutoff_at"`
	Details     map[string]any `json:"details,omitempty"`
	TriggeredBy *int64         `json:"triggered_by,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func runView(run domain.ArchiveRun) ArchiveRunView {
	return ArchiveRunView{
		ID:          run.ID,
		BranchID:    run.BranchID,
		RunType:     run.RunType,
		Status:      string(run.Status),
		CutoffAt:    run.CutoffAt,
		Details:     map[string]any(run.Details),
		TriggeredBy: run.TriggeredBy,
		Error:       run.ErrorMsg,
	}
}

// RunManual archives one branch on operator demand. The confirmation
// phrase must match the stored one exactly. A lock contention reports a
// skipped run without consuming the idempotency key, so the operator can
// retry with the same key once the other run finishes.
func (s ArchiveService) RunManual(ctx domain.Context, g Gate, role domain.Role, branchID int64, confirmation string) (MutationResult, error) {
	if !domain.Can(role, domain.ActionRunArchive) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not run archival")
	}

	var settings domain.ArchiveSettings
	if err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		settings, err = s.settingsOrDefault(ctx, tx, branchID)
		return err
	}); err != nil {
		return MutationResult{}, err
	}
	if confirmation != settings.ConfirmationPhrase {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeArchiveConfirmation,
			"confirmation phrase does not match")
	}

	var out MutationResult
	var run domain.ArchiveRun
	started := false
	acquired, err := s.Store.WithAdvisoryLock(ctx, domain.LockArchiveScheduler, func(ctx domain.Context) error {
		res, err := g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
			started = true
			var ferr error
			run, ferr = s.runBranchTx(ctx, tx, branchID, settings, "manual", &g.ActorID)
			if ferr != nil {
				return nil, ferr
			}
			return runView(run), nil
		})
		out = res
		return err
	})
	if err != nil {
		if started {
			// Record the failure outside the rolled-back transaction.
			run.Status = domain.ArchiveFailed
			run.ErrorMsg = err.Error()
			_ = s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
				_, rerr := tx.Archive().RecordRun(ctx, run)
				return rerr
			})
		}
		return MutationResult{}, err
	}
	if !acquired {
		skipped, serr := s.recordSkipped(ctx, branchID, &g.ActorID, "manual")
		if serr != nil {
			return MutationResult{}, serr
		}
		payload, merr := json.Marshal(runView(skipped))
		if merr != nil {
			return MutationResult{}, fmt.Errorf("op=archive.encode_run: %w", merr)
		}
		return MutationResult{Payload: payload}, nil
	}
	return out, nil
}

// RunScheduled sweeps every active branch under the advisory lock; it is
// what the daily scheduler calls. Branches with archival disabled are
// passed over silently.
func (s ArchiveService) RunScheduled(ctx domain.Context, log *slog.Logger) error {
	acquired, err := s.Store.WithAdvisoryLock(ctx, domain.LockArchiveScheduler, func(ctx domain.Context) error {
		var branches []domain.Branch
		if err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
			var err error
			branches, err = tx.Branches().List(ctx, true)
			return err
		}); err != nil {
			return err
		}
		for _, b := range branches {
			var settings domain.ArchiveSettings
			if err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
				var err error
				settings, err = s.settingsOrDefault(ctx, tx, b.ID)
				return err
			}); err != nil {
				return err
			}
			if err := s.maybeRemind(ctx, b.ID, settings); err != nil {
				log.Error("archive reminder failed", slog.Int64("branch_id", b.ID), slog.Any("error", err))
			}
			if !settings.Enabled {
				continue
			}
			run, err := s.runBranch(ctx, b.ID, settings, "scheduled", nil)
			if err != nil {
				log.Error("scheduled archive failed", slog.Int64("branch_id", b.ID), slog.Any("error", err))
				continue
			}
			log.Info("scheduled archive complete",
				slog.Int64("branch_id", b.ID), slog.String("status", string(run.Status)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !acquired {
		log.Info("archive sweep skipped, another run holds the lock")
	}
	return nil
}

// runBranchTx is the per-branch archival work inside one transaction:
// children first, counts recorded, settings stamped, admins notified. It
// returns the partially built run even on error so callers can record the
// failure in a fresh transaction.
func (s ArchiveService) runBranchTx(ctx domain.Context, tx domain.StoreTx, branchID int64, settings domain.ArchiveSettings, runType string, triggeredBy *int64) (domain.ArchiveRun, error) {
	cutoff := s.Now().AddDate(0, -settings.RetentionMonths, 0)
	run := domain.ArchiveRun{
		BranchID:    branchID,
		TriggeredBy: triggeredBy,
		RunType:     runType,
		Status:      domain.ArchiveSuccess,
		CutoffAt:    cutoff,
	}

	counts := domain.Metadata{}
	steps := []struct {
		name string
		fn   func(domain.Context, int64, time.Time) (int64, error)
	}{
		{"batches", tx.Archive().ArchiveBatches},
		{"sales", tx.Archive().ArchiveSales},
		{"movements", tx.Archive().ArchiveMovements},
		{"activity", tx.Archive().ArchiveActivity},
		{"expenses", tx.Archive().ArchiveExpenses},
		{"payments", tx.Archive().ArchivePayments},
	}
	for _, step := range steps {
		n, err := step.fn(ctx, branchID, cutoff)
		if err != nil {
			return run, fmt.Errorf("op=archive.%s: %w", step.name, err)
		}
		counts[step.name] = n
	}
	run.Details = counts

	if err := tx.Archive().SetLastRun(ctx, branchID, s.Now()); err != nil {
		return run, err
	}
	id, err := tx.Archive().RecordRun(ctx, run)
	if err != nil {
		return run, err
	}
	run.ID = id

	msg := fmt.Sprintf("Archived records older than %s: batches=%v sales=%v movements=%v.",
		cutoff.Format("2006-01-02"), counts["batches"], counts["sales"], counts["movements"])
	if err := notifyBranchManagers(ctx, tx, branchID, "Archive run complete", msg, "archive_summary"); err != nil {
		return run, err
	}
	return run, nil
}

// runBranch wraps runBranchTx for the scheduled sweep.
func (s ArchiveService) runBranch(ctx domain.Context, branchID int64, settings domain.ArchiveSettings, runType string, triggeredBy *int64) (domain.ArchiveRun, error) {
	var run domain.ArchiveRun
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		run, err = s.runBranchTx(ctx, tx, branchID, settings, runType, triggeredBy)
		return err
	})
	if err != nil {
		// Record the failure outside the rolled-back transaction.
		run.Status = domain.ArchiveFailed
		run.ErrorMsg = err.Error()
		_ = s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
			_, rerr := tx.Archive().RecordRun(ctx, run)
			return rerr
		})
		return run, err
	}
	return run, nil
}

// maybeRemind fires the twice-yearly archival reminder regardless of the
// enabled flag.
func (s ArchiveService) maybeRemind(ctx domain.Context, branchID int64, settings domain.ArchiveSettings) error {
	now := s.Now()
	if settings.LastReminderAt != nil && now.Sub(*settings.LastReminderAt) < 6*30*24*time.Hour {
		return nil
	}
	return s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		msg := fmt.Sprintf("Records older than %d months are eligible for archival. Review your archive settings.",
			settings.RetentionMonths)
		if err := notifyBranchManagers(ctx, tx, branchID, "Archival reminder", msg, "archive_reminder"); err != nil {
			return err
		}
		return tx.Archive().SetLastReminder(ctx, branchID, now)
	})
}

// Runs pages past archive runs for a branch.
func (s ArchiveService) Runs(ctx domain.Context, branchID int64, limit int) ([]domain.ArchiveRun, error) {
	var out []domain.ArchiveRun
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Archive().ListRuns(ctx, branchID, limit)
		return err
	})
	return out, err
}

func (s ArchiveService) settingsOrDefault(ctx domain.Context, tx domain.StoreTx, branchID int64) (domain.ArchiveSettings, error) {
	settings, err := tx.Archive().Settings(ctx, branchID)
	if err == nil {
		return settings, nil
	}
	if domain.CodeOf(err) != domain.CodeNotFound {
		return domain.ArchiveSettings{}, err
	}
	return domain.ArchiveSettings{
		BranchID:               branchID,
		Enabled:                true,
		RetentionMonths:        s.DefaultRetentionMonths,
		ColdStorageAfterMonths: s.DefaultColdAfterMonths,
		ConfirmationPhrase:     domain.DefaultConfirmationPhrase(s.DefaultRetentionMonths),
	}, nil
}

func (s ArchiveService) recordSkipped(ctx domain.Context, branchID int64, triggeredBy *int64, runType string) (domain.ArchiveRun, error) {
	run := domain.ArchiveRun{
		BranchID: branchID, TriggeredBy: triggeredBy, RunType: runType,
		Status: domain.ArchiveSkipped, CutoffAt: s.Now(),
		Details: domain.Metadata{"reason": "another archive run is in progress"},
	}
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		id, err := tx.Archive().RecordRun(ctx, run)
		run.ID = id
		return err
	})
	return run, err
}
