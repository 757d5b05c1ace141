package auth

const (
	PermPayrollRead    = "payroll.read"
	PermPayrollRun     = "payroll.run"
	PermPayrollApprove = "payroll.approve"
	PermTimeWrite      = "time.write"
	PermPaymentsCreate = "payments.create"
	PermPaymentsRead   = "payments.read"
	PermPaymentsStatus = "payments.status"
	PermTaxRead        = "tax.read"
	PermTaxWrite       = "tax.write"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollRun,
	PermPayrollApprove,
	PermTimeWrite,
	PermPaymentsCreate,
	PermPaymentsRead,
	PermPaymentsStatus,
	PermTaxRead,
	PermTaxWrite,
	PermAuditRead,
}

// RolePermissions is the static grant table. The payment gateway only reads
// payments and reports their outcome.
var RolePermissions = map[string][]string{
	RoleEmployer: {
		PermPayrollRead,
		PermPayrollRun,
		PermPayrollApprove,
		PermTimeWrite,
		PermPaymentsCreate,
		PermPaymentsRead,
		PermTaxRead,
		PermTaxWrite,
		PermAuditRead,
	},
	RoleGateway: {
		PermPaymentsRead,
		PermPaymentsStatus,
	},
}

func HasPermission(role, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	return false
}
