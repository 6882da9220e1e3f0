package rbac

const (
	RoleLearner    = "LEARNER"
	RoleSupervisor = "SUPERVISOR"
	RoleAdmin      = "ADMIN"
)

var learnerPerms = []string{
	"course:view",
	"module:play",
	"attempt:*",
	"certificate:view-own",
	"user:change_password",
}

// Supervisors hold every learner permission plus read access across their org.
var supervisorPerms = append(append([]string{}, learnerPerms...),
	"certificate:view-org",
	"report:view",
	"incident:create",
	"incident:view",
	"users:list",
)

// RolePermissions is the fixed role to permission table.
var RolePermissions = map[string][]string{
	RoleLearner:    learnerPerms,
	RoleSupervisor: supervisorPerms,
	RoleAdmin:      {"*"},
}
