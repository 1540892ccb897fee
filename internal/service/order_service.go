package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dineflow/internal/access"
	"dineflow/internal/domain"
	"dineflow/internal/gateway"
	"dineflow/internal/idempotency"
	"dineflow/internal/notify"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

const (
	constraintOrderNumber = "orders_order_number_key"
	constraintRequestID   = "orders_request_id_key"

	maxListLimit     = 100
	defaultListLimit = 20

	// column widths in orders
	maxRequestIDLength     = 128
	maxCustomerNameLength  = 255
	maxCustomerPhoneLength = 50
)

// EventPublisher receives order events after commit
type EventPublisher interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// OrderServiceConfig order lifecycle tuning
type OrderServiceConfig struct {
	TaxRate                decimal.Decimal
	OrderNumberMaxAttempts int
}

// OrderService Order Lifecycle Manager: pricing, numbering, status transitions
// under optimistic concurrency. All data access goes through the gateway.
type OrderService struct {
	gw     *gateway.Gateway
	idem   *idempotency.Coordinator
	events EventPublisher
	cfg    OrderServiceConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewOrderService(gw *gateway.Gateway, idem *idempotency.Coordinator, events EventPublisher, cfg OrderServiceConfig, logger *zap.Logger) *OrderService {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	if cfg.OrderNumberMaxAttempts <= 0 {
		cfg.OrderNumberMaxAttempts = 3
	}
	return &OrderService{
		gw:     gw,
		idem:   idem,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CreateOrderItem requested line
type CreateOrderItem struct {
	MenuItemID      string
	Quantity        int
	SpecialRequests *string
}

// CreateOrderRequest create-order input
type CreateOrderRequest struct {
	TableID       *string
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
	Items         []CreateOrderItem
	RequestID     string
}

// CreateOrder places an order. With a RequestID, retries and concurrent duplicates
// return the first committed order with IsFromCache set.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*idempotency.Result[*domain.Order], error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	if !tc.Scoped() {
		return nil, fmt.Errorf("%w: order creation requires a restaurant context", domain.ErrPermissionDenied)
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	idemReq := idempotency.Request{
		RequestID:    req.RequestID,
		Endpoint:     "/api/v1/orders",
		Method:       "POST",
		UserID:       tc.UserID,
		RestaurantID: tc.RestaurantID,
	}
	var lookup idempotency.Lookup[*domain.Order]
	if req.RequestID != "" {
		lookup = func(ctx context.Context) (*domain.Order, bool, error) {
			order, err := s.findByRequestID(ctx, req.RequestID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			if !placedBy(order, tc) {
				return nil, false, errRequestIDTaken
			}
			return order, true, nil
		}
	}

	return idempotency.Execute(ctx, s.idem, idemReq, lookup, func(ctx context.Context) (*domain.Order, error) {
		return s.createWithRetry(ctx, req)
	})
}

var errRequestIDTaken = fmt.Errorf("%w: requestId has already been used", domain.ErrInvalidInput)

// placedBy reports whether tc placed order. Guest orders have no owner and match
// only guest callers.
func placedBy(order *domain.Order, tc tenant.Context) bool {
	return deref(order.PlacedBy) == tc.UserID
}

func validateCreate(req CreateOrderRequest) error {
	if len(req.RequestID) > maxRequestIDLength {
		return fmt.Errorf("%w: requestId must be at most %d characters", domain.ErrInvalidInput, maxRequestIDLength)
	}
	if req.CustomerName != nil && len(*req.CustomerName) > maxCustomerNameLength {
		return fmt.Errorf("%w: customerName must be at most %d characters", domain.ErrInvalidInput, maxCustomerNameLength)
	}
	if req.CustomerPhone != nil && len(*req.CustomerPhone) > maxCustomerPhoneLength {
		return fmt.Errorf("%w: customerPhone must be at most %d characters", domain.ErrInvalidInput, maxCustomerPhoneLength)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrInvalidInput)
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.MenuItemID) == "" {
			return fmt.Errorf("%w: items[%d].menuItemId is required", domain.ErrInvalidInput, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1", domain.ErrInvalidInput, i)
		}
	}
	return nil
}

// createWithRetry reruns the creation transaction when a concurrent order took the
// same order number.
func (s *OrderService) createWithRetry(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.createOnce(ctx, req)
		if err == nil {
			return order, nil
		}

		retryable := repository.IsUniqueViolation(err, constraintOrderNumber) ||
			errors.Is(err, repository.ErrSerialization)
		if retryable && attempt < s.cfg.OrderNumberMaxAttempts {
			s.logger.Debug("Retrying order creation",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		if retryable {
			return nil, fmt.Errorf("%w: order creation gave up after %d attempts: %w", domain.ErrConflict, attempt, err)
		}
		if repository.IsUniqueViolation(err, constraintRequestID) {
			existing, ferr := s.findByRequestID(ctx, req.RequestID)
			if ferr == nil {
				tc, _ := tenant.FromContext(ctx)
				if !placedBy(existing, tc) {
					return nil, errRequestIDTaken
				}
				return existing, nil
			}
			if errors.Is(ferr, domain.ErrNotFound) {
				return nil, errRequestIDTaken
			}
			return nil, ferr
		}
		return nil, err
	}
}

func (s *OrderService) createOnce(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	tc, _ := tenant.FromContext(ctx)
	var order *domain.Order

	err := s.gw.InTx(ctx, func(ctx context.Context, tx *gateway.Gateway) error {
		lines, err := s.loadLines(ctx, tx, tc.RestaurantID, req.Items)
		if err != nil {
			return err
		}

		if req.TableID != nil && *req.TableID != "" {
			n, err := tx.Count(ctx, domain.EntityTable,
				repository.Eq("id", *req.TableID),
				repository.Eq("is_active", true),
			)
			if errors.Is(err, repository.ErrInvalidValue) {
				return fmt.Errorf("%w: %s", domain.ErrTableUnavailable, *req.TableID)
			}
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", domain.ErrTableUnavailable, *req.TableID)
			}
		}

		taxRate, err := s.taxRate(ctx, tx)
		if err != nil {
			return err
		}
		subtotal, tax, total := priceOrder(lines, taxRate)

		now := s.now().UTC()
		dayStart, dayEnd := dayWindow(now)
		placedToday, err := tx.Count(ctx, domain.EntityOrder,
			repository.Gte("placed_at", dayStart),
			repository.Lt("placed_at", dayEnd),
		)
		if err != nil {
			return err
		}

		rec := repository.Record{
			"id":             uuid.NewString(),
			"table_id":       emptyToNil(req.TableID),
			"order_number":   formatOrderNumber(now, placedToday+1),
			"status":         string(domain.OrderStatusPending),
			"version":        int64(1),
			"customer_name":  req.CustomerName,
			"customer_phone": req.CustomerPhone,
			"notes":          req.Notes,
			"subtotal":       subtotal,
			"tax":            tax,
			"total":          total,
			"estimated_time": int64(estimateMinutes(lines)),
			"placed_at":      now,
			"created_at":     now,
			"updated_at":     now,
		}
		if req.RequestID != "" {
			rec["request_id"] = req.RequestID
		}
		if tc.UserID != "" {
			rec["placed_by"] = tc.UserID
		}
		created, err := tx.Create(ctx, domain.EntityOrder, rec)
		if err != nil {
			return err
		}
		order = orderFromRecord(created)

		for _, l := range lines {
			item, err := tx.Create(ctx, domain.EntityOrderItem, repository.Record{
				"id":               uuid.NewString(),
				"order_id":         order.ID,
				"menu_item_id":     l.MenuItemID,
				"name":             l.Name,
				"quantity":         int64(l.Quantity),
				"unit_price":       l.UnitPrice,
				"total_price":      l.total(),
				"special_requests": l.SpecialRequests,
				"created_at":       now,
			})
			if err != nil {
				return err
			}
			order.Items = append(order.Items, orderItemFromRecord(item))
		}

		gateway.AfterCommit(ctx, func(ctx context.Context) {
			s.publish(ctx, notify.EventOrderCreated, order, "")
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("restaurant_id", order.RestaurantID),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// loadLines resolves requested items against the restaurant's active menu. Every
// distinct menu item id must be available on an active menu version.
func (s *OrderService) loadLines(ctx context.Context, tx *gateway.Gateway, restaurantID string, items []CreateOrderItem) ([]pricedLine, error) {
	ids := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, it := range items {
		if !seen[it.MenuItemID] {
			seen[it.MenuItemID] = true
			ids = append(ids, it.MenuItemID)
		}
	}

	recs, err := tx.Find(ctx, domain.EntityMenuItem, repository.Query{
		Where: []repository.Cond{
			repository.In("id", ids),
			repository.Eq("status", domain.MenuItemStatusAvailable),
			repository.InSelect("menu_version_id", repository.SubSelect{
				Entity: domain.EntityMenuVersion,
				Column: "id",
				Where: []repository.Cond{
					repository.Eq("restaurant_id", restaurantID),
					repository.Eq("status", domain.MenuVersionStatusActive),
				},
			}),
		},
	})
	if errors.Is(err, repository.ErrInvalidValue) {
		return nil, fmt.Errorf("%w: %v", domain.ErrItemsUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	if len(recs) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d requested items are not orderable", domain.ErrItemsUnavailable, len(ids)-len(recs), len(ids))
	}

	menu := make(map[string]domain.MenuItem, len(recs))
	for _, rec := range recs {
		mi := menuItemFromRecord(rec)
		menu[mi.ID] = mi
	}
	lines := make([]pricedLine, 0, len(items))
	for _, it := range items {
		mi := menu[it.MenuItemID]
		lines = append(lines, pricedLine{
			MenuItemID:      mi.ID,
			Name:            mi.Name,
			UnitPrice:       mi.Price,
			Quantity:        it.Quantity,
			PrepTimeMinutes: mi.PrepTimeMinutes,
			SpecialRequests: it.SpecialRequests,
		})
	}
	return lines, nil
}

// taxRate the restaurant's own rate when set, otherwise the configured default
func (s *OrderService) taxRate(ctx context.Context, tx *gateway.Gateway) (decimal.Decimal, error) {
	tc, _ := tenant.FromContext(ctx)
	recs, err := tx.Find(ctx, domain.EntityRestaurant, repository.Query{
		Where: []repository.Cond{repository.Eq("id", tc.RestaurantID)},
		Limit: 1,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if len(recs) == 1 && recs[0]["tax_rate"] != nil {
		return repository.AsDecimal(recs[0]["tax_rate"]), nil
	}
	return s.cfg.TaxRate, nil
}

func (s *OrderService) findByRequestID(ctx context.Context, requestID string) (*domain.Order, error) {
	rec, err := s.gw.FindOne(ctx, domain.EntityOrder, repository.Eq("request_id", requestID))
	if err != nil {
		return nil, err
	}
	order := orderFromRecord(rec)
	if err := s.attachItems(ctx, s.gw, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatusRequest status transition input
type UpdateStatusRequest struct {
	OrderID       string
	Status        string
	Version       int64
	EstimatedTime *int
	Notes         *string
}

// UpdateStatus moves an order along the lifecycle. The caller's version must match
// the stored one; the write is conditioned on it, so of two racing updaters with the
// same version exactly one succeeds.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*domain.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrInvalidInput)
	}
	target, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, req.Status)
	}
	if req.Version < 1 {
		return nil, fmt.Errorf("%w: version is required", domain.ErrInvalidInput)
	}
	if req.EstimatedTime != nil && *req.EstimatedTime < 0 {
		return nil, fmt.Errorf("%w: estimatedTime must not be negative", domain.ErrInvalidInput)
	}

	var updated *domain.Order
	err := s.gw.InTx(ctx, func(ctx context.Context, tx *gateway.Gateway) error {
		rec, err := tx.FindOne(ctx, domain.EntityOrder, repository.Eq("id", req.OrderID))
		if err != nil {
			return orderLookupError(err, req.OrderID)
		}
		current := orderFromRecord(rec)

		if current.Version != req.Version {
			return fmt.Errorf("%w: order %s is at version %d, not %d", domain.ErrVersionConflict, current.ID, current.Version, req.Version)
		}
		if !domain.CanTransition(current.Status, target) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
		}

		now := s.now().UTC()
		set := repository.Record{
			"status":     string(target),
			"version":    current.Version + 1,
			"updated_at": now,
		}
		switch target {
		case domain.OrderStatusConfirmed:
			set["confirmed_at"] = now
		case domain.OrderStatusDelivered, domain.OrderStatusCancelled:
			set["completed_at"] = now
		}
		if req.EstimatedTime != nil {
			set["estimated_time"] = int64(*req.EstimatedTime)
		}
		if req.Notes != nil {
			set["notes"] = *req.Notes
		}

		recs, err := tx.Update(ctx, domain.EntityOrder, set,
			repository.Eq("id", current.ID),
			repository.Eq("version", current.Version),
		)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("%w: order %s changed concurrently", domain.ErrVersionConflict, current.ID)
		}
		updated = orderFromRecord(recs[0])

		previous := string(current.Status)
		gateway.AfterCommit(ctx, func(ctx context.Context) {
			s.publish(ctx, notify.EventOrderStatusChanged, updated, previous)
		})
		return nil
	})
	if errors.Is(err, repository.ErrSerialization) {
		return nil, fmt.Errorf("%w: %v", domain.ErrVersionConflict, err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.Int64("version", updated.Version),
	)
	return updated, nil
}

// GetOrder single order with items, scoped to the caller's restaurant
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrInvalidInput)
	}
	rec, err := s.gw.FindOne(ctx, domain.EntityOrder, repository.Eq("id", orderID))
	if err != nil {
		return nil, orderLookupError(err, orderID)
	}
	order := orderFromRecord(rec)
	// customers see only their own orders; staff see the whole restaurant
	if tc, _ := tenant.FromContext(ctx); !tc.EffectiveRole().AtLeast(domain.RoleStaff) && !placedBy(order, tc) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if err := s.attachItems(ctx, s.gw, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// orderLookupError an id the store cannot even parse names no order
func orderLookupError(err error, orderID string) error {
	if errors.Is(err, repository.ErrInvalidValue) {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return err
}

// ListOrdersRequest list filters; zero values mean "no filter"
type ListOrdersRequest struct {
	Page          int
	Limit         int
	Status        string
	TableID       string
	CustomerPhone string
	FromDate      *time.Time
	ToDate        *time.Time
}

// ListOrdersResponse one page
type ListOrdersResponse struct {
	Orders     []*domain.Order
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// ListOrders pages through the restaurant's orders; it exposes other diners'
// contact details, so it needs the Order list permission (STAFF and above).
func (s *OrderService) ListOrders(ctx context.Context, req ListOrdersRequest) (*ListOrdersResponse, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	if d := access.Evaluate(tc, domain.EntityOrder, access.OpList); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, d.Reason)
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}
	where, err := listFilter(req)
	if err != nil {
		return nil, err
	}

	total, err := s.gw.Count(ctx, domain.EntityOrder, where...)
	if err != nil {
		return nil, err
	}
	recs, err := s.gw.Find(ctx, domain.EntityOrder, repository.Query{
		Where:   where,
		OrderBy: []repository.OrderBy{{Column: "placed_at", Desc: true}, {Column: "order_number", Desc: true}},
		Limit:   req.Limit,
		Offset:  (req.Page - 1) * req.Limit,
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(recs))
	for _, rec := range recs {
		orders = append(orders, orderFromRecord(rec))
	}
	if err := s.attachItems(ctx, s.gw, orders); err != nil {
		return nil, err
	}

	return &ListOrdersResponse{
		Orders:     orders,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: (total + req.Limit - 1) / req.Limit,
	}, nil
}

func listFilter(req ListOrdersRequest) ([]repository.Cond, error) {
	where := []repository.Cond{}
	if req.Status != "" {
		st, ok := domain.ParseOrderStatus(req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, req.Status)
		}
		where = append(where, repository.Eq("status", string(st)))
	}
	if req.TableID != "" {
		where = append(where, repository.Eq("table_id", req.TableID))
	}
	if req.CustomerPhone != "" {
		where = append(where, repository.Eq("customer_phone", req.CustomerPhone))
	}
	if req.FromDate != nil {
		where = append(where, repository.Gte("placed_at", req.FromDate.UTC()))
	}
	if req.ToDate != nil {
		where = append(where, repository.Lt("placed_at", req.ToDate.UTC()))
	}
	return where, nil
}

func (s *OrderService) attachItems(ctx context.Context, gw *gateway.Gateway, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}
	recs, err := gw.Find(ctx, domain.EntityOrderItem, repository.Query{
		Where:   []repository.Cond{repository.In("order_id", ids)},
		OrderBy: []repository.OrderBy{{Column: "created_at"}},
	})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		item := orderItemFromRecord(rec)
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *domain.Order, previous string) {
	if s.events == nil {
		return
	}
	ev := notify.Event{
		Type:           eventType,
		RestaurantID:   order.RestaurantID,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		PreviousStatus: previous,
		Version:        order.Version,
		Total:          order.Total.StringFixed(2),
		OccurredAt:     s.now().UTC(),
	}
	if order.TableID != nil {
		ev.TableID = *order.TableID
	}
	s.events.Dispatch(ctx, ev)
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
