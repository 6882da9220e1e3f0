package users

type Role string

const (
	RoleLearner    Role = "LEARNER"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole accepts any letter case and defaults to LEARNER when empty.
func ParseRole(s string) (Role, bool) {
	switch Role(upper(s)) {
	case "":
		return RoleLearner, true
	case RoleLearner:
		return RoleLearner, true
	case RoleSupervisor:
		return RoleSupervisor, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

type User struct {
	ID           string `json:"id"`
	OrgID        string `json:"orgId"`
	SiteID       string `json:"siteId,omitempty"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Name         string `json:"name" validate:"required,max=200"`
	Role         Role   `json:"role" validate:"required,oneof=LEARNER SUPERVISOR ADMIN"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"createdAt"`
}
