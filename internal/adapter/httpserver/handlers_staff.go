package httpserver

import (
	"net/http"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

type staffProfileRequest struct {
	FullName       string   `json:"full_name" validate:"required"`
	PhoneNumber    string   `json:"phone_number" validate:"required"`
	NationalID     *string  `json:"national_id,omitempty"`
	Age            *int     `json:"age,omitempty" validate:"omitempty,gte=14,lte=100"`
	MonthlySalary  float64  `json:"monthly_salary" validate:"gte=0"`
	RolePreference string   `json:"role_preference" validate:"required,oneof=cashier manager other"`
	JobTitle       *string  `json:"job_title,omitempty"`
	BranchID       int64    `json:"branch_id" validate:"required,gt=0"`
	HireDate       string   `json:"hire_date,omitempty"`
}

// CreateStaffProfileHandler inserts an HR profile.
func (s *Server) CreateStaffProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req staffProfileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		var hire time.Time
		if req.HireDate != "" {
			t, err := parseDate(req.HireDate)
			if err != nil {
				writeError(w, r, err)
				return
			}
			hire = t
		}
		p := domain.StaffProfile{
			FullName: req.FullName, PhoneNumber: req.PhoneNumber, NationalID: req.NationalID,
			Age: req.Age, MonthlySalary: req.MonthlySalary,
			RolePreference: domain.RolePreference(req.RolePreference),
			JobTitle:       req.JobTitle, BranchID: req.BranchID, IsActive: true, HireDate: hire,
		}
		endpoint := "POST /v1/admin/staff"
		res, err := s.Staff.CreateProfile(r.Context(), mutationGate(r, endpoint), id.Role, &p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// ListStaffProfilesHandler lists HR profiles for the acting branch.
func (s *Server) ListStaffProfilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		activeOnly := r.URL.Query().Get("active") != "false"
		profiles, err := s.Staff.ListProfiles(r.Context(), id.BranchID, activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": profiles})
	}
}

// ArchiveStaffProfileHandler soft-deletes an HR profile.
func (s *Server) ArchiveStaffProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		pid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/admin/staff/{id}"
		res, err := s.Staff.ArchiveProfile(r.Context(), mutationGate(r, endpoint), id.Role, pid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

type createAccountRequest struct {
	StaffProfileID int64  `json:"staff_profile_id" validate:"required,gt=0"`
	Username       string `json:"username" validate:"required,min=3"`
	Password       string `json:"password" validate:"required,min=8"`
	Role           string `json:"role" validate:"required,oneof=admin manager cashier"`
	BranchID       int64  `json:"branch_id" validate:"required,gt=0"`
}

// CreateAccountHandler gives a staff profile a login, reviving inactive
// duplicates in place.
func (s *Server) CreateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req createAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "POST /v1/admin/users"
		res, err := s.Staff.CreateAccount(r.Context(), mutationGate(r, endpoint), usecase.CreateAccountInput{
			Role:           id.Role,
			StaffProfileID: req.StaffProfileID,
			Username:       req.Username,
			Password:       req.Password,
			AccountRole:    domain.Role(req.Role),
			BranchID:       req.BranchID,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

type accountStatusRequest struct {
	Active bool `json:"active"`
}

// SetAccountStatusHandler archives an account. Reactivation goes through
// account creation so the duplicate-reuse rules apply.
func (s *Server) SetAccountStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		actorID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req accountStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Active {
			writeError(w, r, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				"reactivation goes through account creation for the staff profile"))
			return
		}
		endpoint := "PATCH /v1/admin/users/{id}/status"
		res, err := s.Staff.ArchiveAccount(r.Context(), mutationGate(r, endpoint), id.Role, actorID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

type updateAccountRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=admin manager cashier"`
	BranchID *int64 `json:"branch_id,omitempty" validate:"omitempty,gt=0"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8"`
}

// UpdateAccountHandler changes role, branch, identity fields or password.
func (s *Server) UpdateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		actorID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req updateAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a := domain.Actor{
			ID: actorID, Username: req.Username, Email: req.Email,
			Role: domain.Role(req.Role), BranchID: req.BranchID,
		}
		endpoint := "PUT /v1/admin/users/{id}"
		res, err := s.Staff.UpdateAccount(r.Context(), mutationGate(r, endpoint), id.Role, a, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}
