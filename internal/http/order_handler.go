package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dineflow/internal/service"
)

const ordersPath = "/api/v1/orders"

// OrderHandler order endpoints
type OrderHandler struct {
	orders   *service.OrderService
	recorder service.EventRecorder
	logger   *zap.Logger
}

func NewOrderHandler(orders *service.OrderService, recorder service.EventRecorder, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, recorder: recorder, logger: logger}
}

// ServeHTTP dispatches /api/v1/orders and /api/v1/orders/...
func (h *OrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == ordersPath && r.Method == http.MethodPost:
		h.CreateOrder(w, r)
	case path == ordersPath && r.Method == http.MethodGet:
		h.ListOrders(w, r)
	case path == ordersPath+"/export" && r.Method == http.MethodGet:
		h.ExportOrders(w, r)
	case strings.HasPrefix(path, ordersPath+"/"):
		id, rest := pathParam(path, ordersPath+"/")
		switch {
		case rest == "status" && r.Method == http.MethodPatch:
			h.UpdateStatus(w, r, id)
		case rest == "" && r.Method == http.MethodGet:
			h.GetOrder(w, r, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type createOrderBody struct {
	TableID       *string `json:"tableId"`
	CustomerName  *string `json:"customerName"`
	CustomerPhone *string `json:"customerPhone"`
	Notes         *string `json:"notes"`
	Items         []struct {
		MenuItemID      string  `json:"menuItemId"`
		Quantity        int     `json:"quantity"`
		SpecialRequests *string `json:"specialRequests"`
	} `json:"items"`
	RequestID string `json:"requestId"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.RequestID == "" {
		body.RequestID = r.Header.Get("Idempotency-Key")
	}

	req := service.CreateOrderRequest{
		TableID:       body.TableID,
		CustomerName:  body.CustomerName,
		CustomerPhone: body.CustomerPhone,
		Notes:         body.Notes,
		RequestID:     body.RequestID,
	}
	for _, it := range body.Items {
		req.Items = append(req.Items, service.CreateOrderItem{
			MenuItemID:      it.MenuItemID,
			Quantity:        it.Quantity,
			SpecialRequests: it.SpecialRequests,
		})
	}

	res, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.IsFromCache {
		status = http.StatusOK
	}
	writeJSON(w, status, orderResponse{
		Success:     true,
		Order:       toOrderDTO(res.Data),
		IsFromCache: res.IsFromCache,
		RequestID:   res.RequestID,
	})
}

type updateStatusBody struct {
	Status        string  `json:"status"`
	Version       int64   `json:"version"`
	EstimatedTime *int    `json:"estimatedTime"`
	Notes         *string `json:"notes"`
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, orderID string) {
	var body updateStatusBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID:       orderID,
		Status:        strings.ToUpper(strings.TrimSpace(body.Status)),
		Version:       body.Version,
		EstimatedTime: body.EstimatedTime,
		Notes:         body.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: toOrderDTO(order)})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: toOrderDTO(order)})
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	req, err := listRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	res, err := h.orders.ListOrders(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := ordersResponse{
		Success: true,
		Orders:  make([]*OrderDTO, 0, len(res.Orders)),
		Pagination: Pagination{
			Page:       res.Page,
			Limit:      res.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages,
		},
	}
	for _, o := range res.Orders {
		out.Orders = append(out.Orders, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrderHandler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	req, err := listRequest(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	data, rows, err := h.orders.ExportOrders(r.Context(), req, h.recorder)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filename := fmt.Sprintf("orders_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("X-Export-Rows", fmt.Sprint(rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func listRequest(r *http.Request) (service.ListOrdersRequest, error) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("fromDate"))
	if err != nil {
		return service.ListOrdersRequest{}, fmt.Errorf("invalid fromDate")
	}
	to, err := parseTime(q.Get("toDate"))
	if err != nil {
		return service.ListOrdersRequest{}, fmt.Errorf("invalid toDate")
	}
	return service.ListOrdersRequest{
		Page:          parseInt(q.Get("page"), 1),
		Limit:         parseInt(q.Get("limit"), 20),
		Status:        strings.ToUpper(q.Get("status")),
		TableID:       q.Get("tableId"),
		CustomerPhone: q.Get("customerPhone"),
		FromDate:      from,
		ToDate:        to,
	}, nil
}
