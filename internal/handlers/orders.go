package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-market/api/internal/platform/auth"
	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/services"
)

// OrderHandlers exposes checkout and order endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	cfg    handlerConfig
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...HandlerOption) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
		cfg:    newHandlerConfig(opts),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.With(h.cfg.mutating()...).Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.With(h.cfg.mutating()...).Post("/{orderID}:cancel", h.cancelOrder)
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type createOrderRequest struct {
	Items           []orderLineRequest `json:"items"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	BillingAddress  *addressPayload    `json:"billingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	CouponCode      string             `json:"couponCode"`
	Notes           string             `json:"notes"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:          identity.UID,
		Items:           make([]services.OrderLineCommand, 0, len(req.Items)),
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineCommand{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Size:      line.Size,
			Color:     line.Color,
		})
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := createOrderResponse{
		OrderID: result.Order.ID,
		Order:   buildOrderPayload(result.Order),
		Items:   buildOrderItemPayloads(result.Items),
	}
	if rejection := result.CouponRejection; rejection != nil {
		resp.CouponRejection = &couponRejectionPayload{
			Code:    rejection.Code,
			Reason:  rejection.Reason,
			Message: rejection.Message,
		}
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := pagination.Parse(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID:     identity.UID,
		Status:     parseFilterValues(query["status"]),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	detail, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		ActorID:      identity.UID,
		RequireOwner: true,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderDetailResponse(detail))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		Reason:       req.Reason,
		ActorID:      identity.UID,
		RequireOwner: true,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type createOrderResponse struct {
	OrderID         string                  `json:"orderId"`
	Order           orderPayload            `json:"order"`
	Items           []orderItemPayload      `json:"items"`
	CouponRejection *couponRejectionPayload `json:"couponRejection,omitempty"`
}

type couponRejectionPayload struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailResponse struct {
	Order orderPayload       `json:"order"`
	Items []orderItemPayload `json:"items"`
}

type orderPayload struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	Status             string         `json:"status"`
	PaymentStatus      string         `json:"paymentStatus"`
	ShippingStatus     string         `json:"shippingStatus"`
	PaymentMethod      string         `json:"paymentMethod"`
	Currency           string         `json:"currency"`
	Subtotal           int64          `json:"subtotal"`
	Tax                int64          `json:"tax"`
	Shipping           int64          `json:"shipping"`
	Discount           int64          `json:"discount"`
	Total              int64          `json:"total"`
	CouponCode         *string        `json:"couponCode,omitempty"`
	ShippingAddress    addressPayload `json:"shippingAddress"`
	BillingAddress     addressPayload `json:"billingAddress"`
	Notes              string         `json:"notes,omitempty"`
	ItemCount          int            `json:"itemCount"`
	TrackingNumber     *string        `json:"trackingNumber,omitempty"`
	CancellationReason *string        `json:"cancellationReason,omitempty"`
	DeliveredAt        string         `json:"deliveredAt,omitempty"`
	CreatedAt          string         `json:"createdAt"`
	UpdatedAt          string         `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage,omitempty"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
	Size         string `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`
	SellerID     string `json:"sellerId,omitempty"`
	ShopID       string `json:"shopId,omitempty"`
	Total        int64  `json:"total"`
	Status       string `json:"status"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

func (a addressPayload) toDomain() services.Address {
	return services.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func buildAddressPayload(address services.Address) addressPayload {
	return addressPayload{
		Name:       address.Name,
		Phone:      address.Phone,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:                 order.ID,
		UserID:             order.UserID,
		Status:             string(order.Status),
		PaymentStatus:      order.PaymentStatus,
		ShippingStatus:     order.ShippingStatus,
		PaymentMethod:      order.PaymentMethod,
		Currency:           strings.ToUpper(order.Currency),
		Subtotal:           order.Subtotal,
		Tax:                order.Tax,
		Shipping:           order.Shipping,
		Discount:           order.Discount,
		Total:              order.Total,
		CouponCode:         order.CouponCode,
		ShippingAddress:    buildAddressPayload(order.ShippingAddress),
		BillingAddress:     buildAddressPayload(order.BillingAddress),
		Notes:              order.Notes,
		ItemCount:          order.ItemCount,
		TrackingNumber:     order.TrackingNumber,
		CancellationReason: order.CancellationReason,
		DeliveredAt:        formatTimePtr(order.DeliveredAt),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
	}
}

func buildOrderItemPayloads(items []services.OrderItem) []orderItemPayload {
	payloads := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, orderItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Price:        item.Price,
			Quantity:     item.Quantity,
			Size:         item.Size,
			Color:        item.Color,
			SellerID:     item.SellerID,
			ShopID:       item.ShopID,
			Total:        item.Total,
			Status:       string(item.Status),
		})
	}
	return payloads
}

func buildOrderDetailResponse(detail services.OrderDetail) orderDetailResponse {
	return orderDetailResponse{
		Order: buildOrderPayload(detail.Order),
		Items: buildOrderItemPayloads(detail.Items),
	}
}
