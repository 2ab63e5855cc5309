package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// StaffRepo persists HR profiles, independent of login actors.
type StaffRepo struct{ Q Querier }

const staffCols = `id, full_name, phone_number, national_id, age, monthly_salary, role_preference, job_title,
	branch_id, linked_actor_id, is_active, hire_date, termination_date, created_at`

func scanStaff(row pgx.Row) (domain.StaffProfile, error) {
	var p domain.StaffProfile
	err := row.Scan(&p.ID, &p.FullName, &p.PhoneNumber, &p.NationalID, &p.Age, &p.MonthlySalary,
		&p.RolePreference, &p.JobTitle, &p.BranchID, &p.LinkedActorID, &p.IsActive,
		&p.HireDate, &p.TerminationDate, &p.CreatedAt)
	return p, err
}

func (r *StaffRepo) Create(ctx domain.Context, p *domain.StaffProfile) (int64, error) {
	tracer := otel.Tracer("repo.staff")
	ctx, span := tracer.Start(ctx, "staff.Create")
	defer span.End()
	q := `INSERT INTO staff_profiles (full_name, phone_number, national_id, age, monthly_salary, role_preference,
	        job_title, branch_id, linked_actor_id, is_active, hire_date, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true,$10,now()) RETURNING id, created_at`
	err := r.Q.QueryRow(ctx, q, p.FullName, p.PhoneNumber, p.NationalID, p.Age, p.MonthlySalary,
		p.RolePreference, p.JobTitle, p.BranchID, p.LinkedActorID, p.HireDate).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("op=staff.create: %w", err)
	}
	p.IsActive = true
	return p.ID, nil
}

func (r *StaffRepo) Get(ctx domain.Context, id int64) (domain.StaffProfile, error) {
	p, err := scanStaff(r.Q.QueryRow(ctx, `SELECT `+staffCols+` FROM staff_profiles WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StaffProfile{}, fmt.Errorf("op=staff.get: %w", domain.ErrNotFound)
		}
		return domain.StaffProfile{}, fmt.Errorf("op=staff.get: %w", err)
	}
	return p, nil
}

func (r *StaffRepo) Update(ctx domain.Context, p domain.StaffProfile) error {
	q := `UPDATE staff_profiles SET full_name=$2, phone_number=$3, national_id=$4, age=$5,
	        monthly_salary=$6, role_preference=$7, job_title=$8, branch_id=$9 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, p.ID, p.FullName, p.PhoneNumber, p.NationalID, p.Age,
		p.MonthlySalary, p.RolePreference, p.JobTitle, p.BranchID)
	if err != nil {
		return fmt.Errorf("op=staff.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=staff.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Link attaches a login actor to a profile. The partial unique index on
// linked_actor_id keeps an actor linked to at most one active profile.
func (r *StaffRepo) Link(ctx domain.Context, profileID, actorID int64) error {
	q := `UPDATE staff_profiles SET linked_actor_id=$2 WHERE id=$1 AND linked_actor_id IS NULL`
	tag, err := r.Q.Exec(ctx, q, profileID, actorID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
				fmt.Sprintf("actor %d is already linked to a staff profile", actorID))
		}
		return fmt.Errorf("op=staff.link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Coded(domain.ErrConflict, domain.CodeStaffAlreadyLinked,
			fmt.Sprintf("profile %d is already linked", profileID))
	}
	return nil
}

func (r *StaffRepo) UnlinkByActor(ctx domain.Context, actorID int64) error {
	q := `UPDATE staff_profiles SET linked_actor_id=NULL WHERE linked_actor_id=$1`
	if _, err := r.Q.Exec(ctx, q, actorID); err != nil {
		return fmt.Errorf("op=staff.unlink_by_actor: %w", err)
	}
	return nil
}

func (r *StaffRepo) FindByLinkedActor(ctx domain.Context, actorID int64) (domain.StaffProfile, bool, error) {
	p, err := scanStaff(r.Q.QueryRow(ctx, `SELECT `+staffCols+` FROM staff_profiles WHERE linked_actor_id=$1`, actorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StaffProfile{}, false, nil
		}
		return domain.StaffProfile{}, false, fmt.Errorf("op=staff.find_by_actor: %w", err)
	}
	return p, true, nil
}

func (r *StaffRepo) SetActive(ctx domain.Context, id int64, active bool, terminatedAt *time.Time) error {
	q := `UPDATE staff_profiles SET is_active=$2, termination_date=$3 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, id, active, terminatedAt)
	if err != nil {
		return fmt.Errorf("op=staff.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=staff.set_active: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *StaffRepo) ListByBranch(ctx domain.Context, branchID int64, activeOnly bool) ([]domain.StaffProfile, error) {
	q := `SELECT ` + staffCols + ` FROM staff_profiles WHERE branch_id=$1`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY id`
	rows, err := r.Q.Query(ctx, q, branchID)
	if err != nil {
		return nil, fmt.Errorf("op=staff.list: %w", err)
	}
	defer rows.Close()
	var out []domain.StaffProfile
	for rows.Next() {
		var p domain.StaffProfile
		if err := rows.Scan(&p.ID, &p.FullName, &p.PhoneNumber, &p.NationalID, &p.Age, &p.MonthlySalary,
			&p.RolePreference, &p.JobTitle, &p.BranchID, &p.LinkedActorID, &p.IsActive,
			&p.HireDate, &p.TerminationDate, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=staff.list_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=staff.list_rows: %w", err)
	}
	return out, nil
}
