package usecase

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/breadworks/bakeops/internal/domain"
)

// StaffService implements the staff and account lifecycle: HR profiles,
// account creation with inactive-duplicate reuse, linking, and archival.
type StaffService struct {
	Store domain.Store
	Now   func() time.Time
}

// NewStaffService constructs a StaffService.
func NewStaffService(store domain.Store) StaffService {
	return StaffService{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateProfile inserts an HR profile, not yet linked to any login.
func (s StaffService) CreateProfile(ctx domain.Context, g Gate, role domain.Role, p *domain.StaffProfile) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageStaff) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage staff")
	}
	if p.FullName == "" {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "full_name is required")
	}
	if p.HireDate.IsZero() {
		p.HireDate = s.Now()
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if _, err := tx.Branches().Get(ctx, p.BranchID); err != nil {
			return nil, err
		}
		id, err := tx.Staff().Create(ctx, p)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: p.BranchID, ActorID: g.ActorID, Action: "staff.create_profile",
			Details: domain.Metadata{"staff_profile_id": id},
		}); err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// CreateAccountInput carries the create-account-for-profile command.
type CreateAccountInput struct {
	Role           domain.Role
	StaffProfileID int64
	Username       string
	Password       string
	AccountRole    domain.Role
	BranchID       int64
}

// CreateAccount gives a staff profile a login. An inactive actor matching
// the username or the phone-derived email is revived in place instead of
// creating a duplicate; an active match fails ACCOUNT_ALREADY_EXISTS.
func (s StaffService) CreateAccount(ctx domain.Context, g Gate, in CreateAccountInput) (MutationResult, error) {
	if !domain.Can(in.Role, domain.ActionManageStaff) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage staff")
	}
	if in.Username == "" || len(in.Password) < 8 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			"username and a password of at least 8 chars are required")
	}
	if !in.AccountRole.Valid() {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			fmt.Sprintf("unknown role %q", in.AccountRole))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return MutationResult{}, fmt.Errorf("op=staff.hash_password: %w", err)
	}

	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		profile, err := tx.Staff().Get(ctx, in.StaffProfileID)
		if err != nil {
			return nil, err
		}
		if !profile.IsActive {
			return nil, domain.Coded(domain.ErrConflict, domain.CodeConflict, "staff profile is archived")
		}
		if profile.LinkedActorID != nil {
			return nil, domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
				fmt.Sprintf("profile %d already has an account", profile.ID))
		}
		if profile.RolePreference == domain.PrefOther {
			return nil, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				"profiles with role preference 'other' cannot hold accounts")
		}

		derived := derivedEmail(profile.PhoneNumber)
		existing, found, err := tx.Actors().FindByUsernameOrEmail(ctx, in.Username, derived)
		if err != nil {
			return nil, err
		}
		branchID := in.BranchID
		var actorOut int64
		switch {
		case found && existing.IsActive:
			return nil, domain.Coded(domain.ErrConflict, domain.CodeAccountExists,
				fmt.Sprintf("an active account named %q already exists", existing.Username))
		case found:
			// Inactive duplicate: revive it unless another profile owns it.
			if other, linked, err := tx.Staff().FindByLinkedActor(ctx, existing.ID); err != nil {
				return nil, err
			} else if linked && other.ID != profile.ID {
				return nil, domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
					fmt.Sprintf("actor %d belongs to another staff profile", existing.ID))
			}
			if err := tx.Actors().Reactivate(ctx, existing.ID, string(hash), in.AccountRole, branchID); err != nil {
				return nil, err
			}
			actorOut = existing.ID
		default:
			a := domain.Actor{
				Username: in.Username, Email: derived, PasswordHash: string(hash),
				Role: in.AccountRole, BranchID: &branchID, HireDate: s.Now(),
			}
			if _, err := tx.Actors().Create(ctx, &a); err != nil {
				return nil, err
			}
			actorOut = a.ID
		}

		if err := tx.Actors().UpsertBranchAccess(ctx, actorOut, branchID); err != nil {
			return nil, err
		}
		if err := tx.Staff().Link(ctx, profile.ID, actorOut); err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: branchID, ActorID: g.ActorID, Action: "staff.create_account",
			Details: domain.Metadata{"staff_profile_id": profile.ID, "created_actor_id": actorOut},
		}); err != nil {
			return nil, err
		}
		return map[string]any{"actor_id": actorOut}, nil
	})
}

// ArchiveAccount deactivates an actor, unlinks its profile and clears its
// branch mappings. Admin accounts are never archivable.
func (s StaffService) ArchiveAccount(ctx domain.Context, g Gate, role domain.Role, actorID int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageStaff) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage staff")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		target, err := tx.Actors().Get(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if target.Role == domain.RoleAdmin {
			return nil, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "admin accounts cannot be archived")
		}
		now := s.Now()
		if err := tx.Actors().SetActive(ctx, actorID, false, &now); err != nil {
			return nil, err
		}
		if err := tx.Staff().UnlinkByActor(ctx, actorID); err != nil {
			return nil, err
		}
		if err := tx.Actors().ClearBranchAccess(ctx, actorID); err != nil {
			return nil, err
		}
		branchID := int64(0)
		if target.BranchID != nil {
			branchID = *target.BranchID
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: branchID, ActorID: g.ActorID, Action: "staff.archive_account",
			Details: domain.Metadata{"archived_actor_id": actorID},
		}); err != nil {
			return nil, err
		}
		return map[string]any{"actor_id": actorID, "active": false}, nil
	})
}

// ArchiveProfile soft-deletes an HR profile. It fails while the profile is
// linked to an active actor; archive the account first.
func (s StaffService) ArchiveProfile(ctx domain.Context, g Gate, role domain.Role, profileID int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageStaff) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage staff")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		profile, err := tx.Staff().Get(ctx, profileID)
		if err != nil {
			return nil, err
		}
		if profile.LinkedActorID != nil {
			linked, err := tx.Actors().Get(ctx, *profile.LinkedActorID)
			if err != nil {
				return nil, err
			}
			if linked.IsActive {
				return nil, domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
					"profile is linked to an active account; archive the account first")
			}
		}
		now := s.Now()
		if err := tx.Staff().SetActive(ctx, profileID, false, &now); err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: profile.BranchID, ActorID: g.ActorID, Action: "staff.archive_profile",
			Details: domain.Metadata{"staff_profile_id": profileID},
		}); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// UpdateAccount changes role, branch or password of an existing actor.
func (s StaffService) UpdateAccount(ctx domain.Context, g Gate, role domain.Role, a domain.Actor, newPassword string) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageStaff) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage staff")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		existing, err := tx.Actors().Get(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if newPassword != "" {
			if len(newPassword) < 8 {
				return nil, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "password must be at least 8 chars")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("op=staff.hash_password: %w", err)
			}
			existing.PasswordHash = string(hash)
		}
		if a.Username != "" {
			existing.Username = a.Username
		}
		if a.Email != "" {
			existing.Email = a.Email
		}
		if a.Role != "" {
			if !a.Role.Valid() {
				return nil, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, fmt.Sprintf("unknown role %q", a.Role))
			}
			existing.Role = a.Role
		}
		if a.BranchID != nil {
			existing.BranchID = a.BranchID
			if err := tx.Actors().UpsertBranchAccess(ctx, existing.ID, *a.BranchID); err != nil {
				return nil, err
			}
		}
		if err := tx.Actors().Update(ctx, existing); err != nil {
			return nil, err
		}
		return map[string]any{"actor_id": a.ID}, nil
	})
}

// ListProfiles lists HR profiles for a branch.
func (s StaffService) ListProfiles(ctx domain.Context, branchID int64, activeOnly bool) ([]domain.StaffProfile, error) {
	var out []domain.StaffProfile
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Staff().ListByBranch(ctx, branchID, activeOnly)
		return err
	})
	return out, err
}

// derivedEmail builds the synthetic identity used to detect duplicate
// accounts created from the same phone number.
func derivedEmail(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + "@phone.local"
}
