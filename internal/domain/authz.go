package domain

// Action names a capability checked against a role. All capability checks
// go through Can; roles are a flat tagged enumeration, not a hierarchy.
type Action string

const (
	ActionCommitSale     Action = "sale.commit"
	ActionVoidSale       Action = "sale.void"
	ActionCreateBatch    Action = "batch.create"
	ActionEditBatch      Action = "batch.edit"
	ActionVoidBatch      Action = "batch.void"
	ActionAdjustStock    Action = "inventory.adjust"
	ActionManageCatalog  Action = "catalog.manage"
	ActionManageBranches Action = "branch.manage"
	ActionManageExpenses Action = "expense.manage"
	ActionManagePayroll  Action = "payroll.manage"
	ActionManageStaff    Action = "staff.manage"
	ActionManageRules    Action = "alert_rule.manage"
	ActionRunArchive     Action = "archive.run"
	ActionReviewQueue    Action = "queue.review"
)

var capabilities = map[Role]map[Action]bool{
	RoleCashier: {
		ActionCommitSale: true,
		// Voiding is further restricted to the cashier of record at the
		// service layer.
		ActionVoidSale: true,
	},
	RoleManager: {
		ActionCommitSale:     true,
		ActionVoidSale:       true,
		ActionCreateBatch:    true,
		ActionEditBatch:      true,
		ActionVoidBatch:      true,
		ActionAdjustStock:    true,
		ActionManageExpenses: true,
	},
	RoleAdmin: nil, // admins can do everything
}

// Can reports whether role may perform action.
func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	caps, ok := capabilities[role]
	if !ok {
		return false
	}
	return caps[action]
}
