package domain

// Entity closed set of persisted entity kinds. Access rules, tenant scoping and
// auditing are keyed by this type rather than by table-name strings.
type Entity int

const (
	EntityRestaurant Entity = iota + 1
	EntityMembership
	EntityTable
	EntityMenuVersion
	EntityMenuItem
	EntityOrder
	EntityOrderItem
	EntityAuditLog
	EntityUser
)

// AllEntities in declaration order
var AllEntities = []Entity{
	EntityRestaurant,
	EntityMembership,
	EntityTable,
	EntityMenuVersion,
	EntityMenuItem,
	EntityOrder,
	EntityOrderItem,
	EntityAuditLog,
	EntityUser,
}

// ScopeColumnRestaurant column holding the owning restaurant on scoped tables
const ScopeColumnRestaurant = "restaurant_id"

// Scope how rows of an entity are tied to a restaurant.
// Either Column holds the restaurant id directly, or Column references the primary
// key of Via, which is itself directly scoped.
type Scope struct {
	Column string
	Via    Entity
}

// UniqueConstraint mirrors a database unique index; Name matches the index name.
type UniqueConstraint struct {
	Name    string
	Columns []string
}

// EntityMeta static description of an entity's storage
type EntityMeta struct {
	Name    string
	Table   string
	Columns []string
	Scope   *Scope
	Audited bool
	// AppendOnly rows are never updated or deleted
	AppendOnly bool
	Unique     []UniqueConstraint
}

var entityMeta = map[Entity]EntityMeta{
	EntityRestaurant: {
		Name:    "Restaurant",
		Table:   "restaurants",
		Columns: []string{"id", "name", "timezone", "tax_rate", "status", "created_at", "updated_at"},
		Scope:   &Scope{Column: "id"},
		Audited: true,
	},
	EntityMembership: {
		Name:    "Membership",
		Table:   "memberships",
		Columns: []string{"id", "user_id", "restaurant_id", "role", "is_active", "invited_by", "created_at", "updated_at"},
		Scope:   &Scope{Column: ScopeColumnRestaurant},
		Audited: true,
		Unique: []UniqueConstraint{
			{Name: "memberships_user_restaurant_key", Columns: []string{"user_id", "restaurant_id"}},
		},
	},
	EntityTable: {
		Name:    "Table",
		Table:   "restaurant_tables",
		Columns: []string{"id", "restaurant_id", "label", "is_active", "created_at", "updated_at"},
		Scope:   &Scope{Column: ScopeColumnRestaurant},
		Audited: true,
	},
	EntityMenuVersion: {
		Name:    "MenuVersion",
		Table:   "menu_versions",
		Columns: []string{"id", "restaurant_id", "name", "status", "created_at", "updated_at"},
		Scope:   &Scope{Column: ScopeColumnRestaurant},
		Audited: true,
	},
	EntityMenuItem: {
		Name:  "MenuItem",
		Table: "menu_items",
		Columns: []string{"id", "restaurant_id", "menu_version_id", "name", "price", "status",
			"prep_time_minutes", "created_at", "updated_at"},
		Scope:   &Scope{Column: ScopeColumnRestaurant},
		Audited: true,
	},
	EntityOrder: {
		Name:  "Order",
		Table: "orders",
		Columns: []string{"id", "restaurant_id", "table_id", "order_number", "status", "version",
			"customer_name", "customer_phone", "notes", "subtotal", "tax", "total", "estimated_time",
			"request_id", "placed_by", "placed_at", "confirmed_at", "completed_at", "created_at", "updated_at"},
		Scope:   &Scope{Column: ScopeColumnRestaurant},
		Audited: true,
		Unique: []UniqueConstraint{
			{Name: "orders_order_number_key", Columns: []string{"restaurant_id", "order_number"}},
			{Name: "orders_request_id_key", Columns: []string{"request_id"}},
		},
	},
	EntityOrderItem: {
		Name:  "OrderItem",
		Table: "order_items",
		Columns: []string{"id", "order_id", "menu_item_id", "name", "quantity", "unit_price",
			"total_price", "special_requests", "created_at"},
		Scope: &Scope{Column: "order_id", Via: EntityOrder},
	},
	EntityAuditLog: {
		Name:  "AuditLogEntry",
		Table: "audit_logs",
		Columns: []string{"id", "user_id", "restaurant_id", "order_id", "action", "table_name",
			"record_id", "before_state", "after_state", "ip_address", "user_agent", "metadata", "created_at"},
		Scope:      &Scope{Column: ScopeColumnRestaurant},
		AppendOnly: true,
	},
	EntityUser: {
		Name:    "User",
		Table:   "users",
		Columns: []string{"id", "email", "display_name", "password_hash", "created_at", "updated_at"},
		Audited: true,
	},
}

// Meta returns the static metadata; ok is false for values outside the enum.
func (e Entity) Meta() (EntityMeta, bool) {
	m, ok := entityMeta[e]
	return m, ok
}

func (e Entity) String() string {
	if m, ok := entityMeta[e]; ok {
		return m.Name
	}
	return "Unknown"
}

// Table name, empty for unknown entities
func (e Entity) Table() string {
	return entityMeta[e].Table
}

// TenantScoped reports whether rows belong to a restaurant
func (e Entity) TenantScoped() bool {
	return entityMeta[e].Scope != nil
}

// Audited reports whether mutations are captured in the audit trail
func (e Entity) Audited() bool {
	return entityMeta[e].Audited
}

// HasColumn reports whether col is a known column of e
func (e Entity) HasColumn(col string) bool {
	for _, c := range entityMeta[e].Columns {
		if c == col {
			return true
		}
	}
	return false
}
