package access

import (
	"fmt"
	"sort"

	"dineflow/internal/domain"
)

// Operation data-access operation kind
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
	OpExport Operation = "export"
	// OpList paging through many rows; checked by services, never issued by the gateway
	OpList Operation = "list"
)

// Subject what the evaluator needs to know about the caller
type Subject interface {
	EffectiveRole() domain.Role
}

// Decision evaluation outcome; Reason is set when denied
type Decision struct {
	Allowed bool
	Reason  string
}

// rules minimum role per (entity, operation). Pairs that are absent are denied:
// AuditLog is append-only through the recorder, OrderItem is immutable once placed,
// Membership is deactivated rather than deleted.
var rules = map[domain.Entity]map[Operation]domain.Role{
	domain.EntityRestaurant: {
		OpRead:   domain.RoleCustomer,
		OpUpdate: domain.RoleAdmin,
		OpDelete: domain.RoleOwner,
	},
	domain.EntityMembership: {
		OpRead:   domain.RoleStaff,
		OpCreate: domain.RoleAdmin,
		OpUpsert: domain.RoleAdmin,
		OpUpdate: domain.RoleAdmin,
	},
	domain.EntityTable: {
		OpRead:   domain.RoleCustomer,
		OpCreate: domain.RoleManager,
		OpUpdate: domain.RoleManager,
		OpDelete: domain.RoleAdmin,
	},
	domain.EntityMenuVersion: {
		OpRead:   domain.RoleCustomer,
		OpCreate: domain.RoleManager,
		OpUpdate: domain.RoleManager,
		OpDelete: domain.RoleAdmin,
	},
	domain.EntityMenuItem: {
		OpRead:   domain.RoleCustomer,
		OpCreate: domain.RoleManager,
		OpUpdate: domain.RoleManager,
		OpDelete: domain.RoleManager,
	},
	domain.EntityOrder: {
		OpRead:   domain.RoleCustomer,
		OpList:   domain.RoleStaff,
		OpCreate: domain.RoleCustomer,
		OpUpdate: domain.RoleStaff,
		OpDelete: domain.RoleManager,
		OpExport: domain.RoleManager,
	},
	domain.EntityOrderItem: {
		OpRead:   domain.RoleCustomer,
		OpCreate: domain.RoleCustomer,
	},
	domain.EntityAuditLog: {
		OpRead:   domain.RoleAdmin,
		OpExport: domain.RoleOwner,
	},
	domain.EntityUser: {
		OpRead: domain.RoleStaff,
	},
}

// MinimumRole returns the rule for (entity, op); ok is false when no rule exists.
func MinimumRole(entity domain.Entity, op Operation) (domain.Role, bool) {
	ops, ok := rules[entity]
	if !ok {
		return "", false
	}
	role, ok := ops[op]
	return role, ok
}

// Evaluate decides whether subject may perform op on entity. Unlisted pairs deny.
func Evaluate(subject Subject, entity domain.Entity, op Operation) Decision {
	if subject == nil {
		return Decision{Reason: "no tenant context"}
	}
	min, ok := MinimumRole(entity, op)
	if !ok {
		return Decision{Reason: fmt.Sprintf("no access rule for %s.%s", entity, op)}
	}
	role := subject.EffectiveRole()
	if !role.AtLeast(min) {
		return Decision{Reason: fmt.Sprintf("%s.%s requires %s, caller is %q", entity, op, min, role)}
	}
	return Decision{Allowed: true}
}

// PermissionsFor lists "<entity>:<op>" strings granted to role, sorted.
func PermissionsFor(role domain.Role) []string {
	perms := []string{}
	for entity, ops := range rules {
		for op, min := range ops {
			if role.AtLeast(min) {
				perms = append(perms, entity.String()+":"+string(op))
			}
		}
	}
	sort.Strings(perms)
	return perms
}
