package domain

// Membership user <-> restaurant join with a role. Deactivated, never deleted.
type Membership struct {
	ID           string
	UserID       string
	RestaurantID string
	Role         Role
	IsActive     bool
	InvitedBy    *string
}
