package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dineflow/internal/domain"
	"dineflow/internal/repository"
)

// ErrorBody error part of the envelope. Retryable tells the client to resend the
// same request (same requestId).
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// Pagination list metadata
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type orderResponse struct {
	Success     bool      `json:"success"`
	Order       *OrderDTO `json:"order"`
	IsFromCache bool      `json:"isFromCache,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
}

type ordersResponse struct {
	Success    bool        `json:"success"`
	Orders     []*OrderDTO `json:"orders"`
	Pagination Pagination  `json:"pagination"`
}

type membershipResponse struct {
	Success    bool           `json:"success"`
	Membership *MembershipDTO `json:"membership"`
}

// OrderDTO wire shape of an order
type OrderDTO struct {
	ID            string          `json:"id"`
	RestaurantID  string          `json:"restaurantId"`
	OrderNumber   string          `json:"orderNumber"`
	Status        string          `json:"status"`
	Version       int64           `json:"version"`
	TableID       *string         `json:"tableId,omitempty"`
	CustomerName  *string         `json:"customerName,omitempty"`
	CustomerPhone *string         `json:"customerPhone,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	Subtotal      json.Number     `json:"subtotal"`
	Tax           json.Number     `json:"tax"`
	Total         json.Number     `json:"total"`
	EstimatedTime int             `json:"estimatedTime"`
	PlacedAt      time.Time       `json:"placedAt"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Items         []*OrderItemDTO `json:"items"`
}

// OrderItemDTO wire shape of an order line
type OrderItemDTO struct {
	ID              string      `json:"id"`
	MenuItemID      string      `json:"menuItemId"`
	Name            string      `json:"name"`
	Quantity        int         `json:"quantity"`
	UnitPrice       json.Number `json:"unitPrice"`
	TotalPrice      json.Number `json:"totalPrice"`
	SpecialRequests *string     `json:"specialRequests,omitempty"`
}

// MembershipDTO wire shape of a membership
type MembershipDTO struct {
	ID           string  `json:"id"`
	UserID       string  `json:"userId"`
	RestaurantID string  `json:"restaurantId"`
	Role         string  `json:"role"`
	IsActive     bool    `json:"isActive"`
	InvitedBy    *string `json:"invitedBy,omitempty"`
}

func toOrderDTO(o *domain.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:            o.ID,
		RestaurantID:  o.RestaurantID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		Version:       o.Version,
		TableID:       o.TableID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Notes:         o.Notes,
		Subtotal:      json.Number(o.Subtotal.StringFixed(2)),
		Tax:           json.Number(o.Tax.StringFixed(2)),
		Total:         json.Number(o.Total.StringFixed(2)),
		EstimatedTime: o.EstimatedTime,
		PlacedAt:      o.PlacedAt,
		ConfirmedAt:   o.ConfirmedAt,
		CompletedAt:   o.CompletedAt,
		UpdatedAt:     o.UpdatedAt,
		Items:         make([]*OrderItemDTO, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, &OrderItemDTO{
			ID:              it.ID,
			MenuItemID:      it.MenuItemID,
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitPrice:       json.Number(it.UnitPrice.StringFixed(2)),
			TotalPrice:      json.Number(it.TotalPrice.StringFixed(2)),
			SpecialRequests: it.SpecialRequests,
		})
	}
	return dto
}

func toMembershipDTO(m *domain.Membership) *MembershipDTO {
	return &MembershipDTO{
		ID:           m.ID,
		UserID:       m.UserID,
		RestaurantID: m.RestaurantID,
		Role:         string(m.Role),
		IsActive:     m.IsActive,
		InvitedBy:    m.InvitedBy,
	}
}

// statusFor maps the error taxonomy onto HTTP
func statusFor(err error) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		body.Code = "UNAUTHENTICATED"
		return http.StatusUnauthorized, body
	case errors.Is(err, domain.ErrPermissionDenied):
		body.Code = "PERMISSION_DENIED"
		return http.StatusForbidden, body
	case errors.Is(err, domain.ErrNotFound):
		body.Code = "NOT_FOUND"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrVersionConflict):
		body.Code = "VERSION_CONFLICT"
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, repository.ErrUniqueViolation),
		errors.Is(err, repository.ErrSerialization):
		// lost a race on a unique key or a snapshot; the same request can be resent
		body.Code = "CONFLICT"
		body.Retryable = true
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrInvalidTransition):
		body.Code = "INVALID_TRANSITION"
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrItemsUnavailable):
		body.Code = "ITEMS_UNAVAILABLE"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrTableUnavailable):
		body.Code = "TABLE_UNAVAILABLE"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, repository.ErrInvalidValue):
		body.Code = "INVALID_INPUT"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrLockTimeout):
		body.Code = "LOCK_TIMEOUT"
		body.Retryable = true
		return http.StatusServiceUnavailable, body
	}
	body.Code = "INTERNAL"
	body.Message = "internal server error"
	return http.StatusInternalServerError, body
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.Int("status", status), zap.String("code", body.Code), zap.Error(err))
	}
	if body.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrorBody{Code: "INVALID_INPUT", Message: message}})
}
