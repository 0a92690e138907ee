package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/platform/pagination"
	"github.com/vastra-market/api/internal/platform/textutil"
	"github.com/vastra-market/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventCouponDropped    = "order.coupon.dropped"
	orderEventStatusChanged    = "order.status.changed"
	orderEventCancelled        = "order.cancelled"
	notificationEventFailed    = "notification.failed"
	orderIDPrefix              = "ord_"
	orderItemIDPrefix          = "oit_"
	defaultPaymentStatus       = "pending"
	defaultShippingStatus      = "pending"
	maxOrderNotesRunes         = 500
	maxVariantRunes            = 32
	maxOrderLines              = 50
	maxCancellationReasonRunes = 500
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Items         repositories.OrderItemRepository
	Coupons       repositories.CouponRepository
	Products      repositories.ProductRepository
	Carts         repositories.CartRepository
	UnitOfWork    repositories.UnitOfWork
	Validator     CouponValidator
	Pricing       *PricingCalculator
	Notifications NotificationSink
	Metrics       CommerceMetrics
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	items         repositories.OrderItemRepository
	coupons       repositories.CouponRepository
	products      repositories.ProductRepository
	carts         repositories.CartRepository
	unitOfWork    repositories.UnitOfWork
	validator     CouponValidator
	pricing       *PricingCalculator
	notifications NotificationSink
	metrics       CommerceMetrics
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Items == nil:
		return nil, errors.New("order service: order item repository is required")
	case deps.Coupons == nil:
		return nil, errors.New("order service: coupon repository is required")
	case deps.Products == nil:
		return nil, errors.New("order service: product repository is required")
	case deps.Carts == nil:
		return nil, errors.New("order service: cart repository is required")
	case deps.Validator == nil:
		return nil, errors.New("order service: coupon validator is required")
	}

	pricing := deps.Pricing
	if pricing == nil {
		var err error
		if pricing, err = NewPricingCalculator(PricingPolicy{}); err != nil {
			return nil, err
		}
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		items:         deps.Items,
		coupons:       deps.Coupons,
		products:      deps.Products,
		carts:         deps.Carts,
		unitOfWork:    unit,
		validator:     deps.Validator,
		pricing:       pricing,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		clock:         func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	userID, err := validateCreateOrder(cmd)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.clock()
	orderID := orderIDPrefix + s.newID()
	items := make([]OrderItem, 0, len(cmd.Items))
	productIDs := make([]string, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		productID := strings.TrimSpace(line.ProductID)
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			if isRepositoryNotFound(err) {
				return CreateOrderResult{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
			}
			return CreateOrderResult{}, mapRepositoryError(err, nil)
		}
		lineTotal, ok := mulInt64(product.Price, int64(line.Quantity))
		if !ok || product.Price < 0 {
			return CreateOrderResult{}, fmt.Errorf("%w: invalid price for product %s", ErrInvalidInput, productID)
		}
		items = append(items, OrderItem{
			ID:           orderItemIDPrefix + s.newID(),
			OrderID:      orderID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.Thumbnail(),
			Price:        product.Price,
			Quantity:     line.Quantity,
			Size:         strings.TrimSpace(line.Size),
			Color:        strings.TrimSpace(line.Color),
			SellerID:     product.SellerID,
			ShopID:       product.ShopID,
			Total:        lineTotal,
			Status:       domain.OrderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		productIDs = append(productIDs, product.ID)
	}

	lines := priceLines(items)
	base, err := s.pricing.Price(lines, 0)
	if err != nil {
		return CreateOrderResult{}, err
	}

	var (
		quote     *CouponQuote
		rejection *CouponRejection
	)
	if code := normaliseCouponCode(cmd.CouponCode); code != "" {
		q, err := s.validator.Validate(ctx, CouponValidationCommand{
			Code:       code,
			UserID:     userID,
			Subtotal:   base.Subtotal,
			ProductIDs: productIDs,
		})
		switch {
		case err == nil:
			quote = &q
		case errors.Is(err, context.Canceled):
			return CreateOrderResult{}, err
		case KindOf(err) == KindUnavailable || KindOf(err) == KindInternal:
			return CreateOrderResult{}, err
		default:
			rejection = couponRejection(code, err)
		}
	}

	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}
	template := Order{
		ID:              orderID,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   defaultPaymentStatus,
		ShippingStatus:  defaultShippingStatus,
		PaymentMethod:   strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)),
		Currency:        domain.Currency,
		ShippingAddress: normaliseAddress(cmd.ShippingAddress),
		BillingAddress:  normaliseAddress(billing),
		Notes:           textutil.PlainText(cmd.Notes, maxOrderNotesRunes),
		ItemCount:       len(items),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var order Order
	validationRejection := rejection
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		// Firestore may retry this function; start every attempt from the same inputs.
		order = template
		attemptRejection := validationRejection
		discount := int64(0)

		if quote != nil {
			_, err := s.coupons.Redeem(txCtx, domain.CouponRedemption{
				Code:       quote.Code,
				UserID:     userID,
				OrderID:    orderID,
				RedeemedAt: now,
			})
			switch code, isRedemption := repositories.CouponRedemptionCode(err); {
			case err == nil:
				discount = quote.Discount
				couponCode := quote.Code
				order.CouponCode = &couponCode
			case isRedemption:
				attemptRejection = redemptionRejection(quote.Code, code)
			case isRepositoryNotFound(err):
				attemptRejection = couponRejection(quote.Code, ErrCouponNotFound)
			default:
				return mapRepositoryError(err, nil)
			}
		}

		totals, err := s.pricing.Price(lines, discount)
		if err != nil {
			return err
		}
		order.Subtotal = totals.Subtotal
		order.Tax = totals.Tax
		order.Shipping = totals.Shipping
		order.Discount = totals.Discount
		order.Total = totals.Total
		rejection = attemptRejection

		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		if err := s.items.InsertAll(txCtx, orderID, items); err != nil {
			return mapRepositoryError(err, nil)
		}
		if err := s.carts.Clear(txCtx, userID); err != nil {
			return mapRepositoryError(err, nil)
		}
		return nil
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	if rejection != nil {
		s.logger(ctx, orderEventCouponDropped, map[string]any{
			"orderId": orderID,
			"code":    rejection.Code,
			"reason":  rejection.Reason,
		})
		if quote != nil && s.metrics != nil && order.CouponCode == nil {
			s.metrics.CouponRejected(ctx, rejection.Reason)
		}
	}
	if s.metrics != nil {
		s.metrics.OrderCreated(ctx, order.Total, order.CouponCode != nil)
	}
	s.logger(ctx, orderEventCreated, map[string]any{
		"orderId":   orderID,
		"userId":    userID,
		"total":     order.Total,
		"itemCount": order.ItemCount,
	})
	s.notify(ctx, orderPlacedNotification(order))

	return CreateOrderResult{Order: order, Items: items, CouponRejection: rejection}, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (OrderDetail, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderDetail{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderDetail{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if cmd.RequireOwner && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return OrderDetail{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	items, err := s.items.ListByOrder(ctx, orderID)
	if err != nil {
		return OrderDetail{}, mapRepositoryError(err, nil)
	}
	return OrderDetail{Order: order, Items: items}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	statuses := make([]string, 0, len(filter.Status))
	for _, raw := range filter.Status {
		status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status == "" {
			continue
		}
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
		}
		statuses = append(statuses, string(status))
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: statuses,
		Pagination: Pagination{
			PageSize:  pagination.Limit(filter.Pagination.PageSize),
			PageToken: filter.Pagination.PageToken,
		},
	})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *orderService) notify(ctx context.Context, notification Notification) {
	if s.notifications == nil || notification.UserID == "" {
		return
	}
	if err := s.notifications.Notify(ctx, notification); err != nil {
		s.logger(ctx, notificationEventFailed, map[string]any{
			"type":   notification.Type,
			"userId": notification.UserID,
			"error":  err.Error(),
		})
	}
}

func validateCreateOrder(cmd CreateOrderCommand) (string, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return "", fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if len(cmd.Items) > maxOrderLines {
		return "", fmt.Errorf("%w: at most %d items are allowed", ErrInvalidInput, maxOrderLines)
	}
	for i, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return "", fmt.Errorf("%w: items[%d].productId is required", ErrInvalidInput, i)
		}
		if line.Quantity < 1 {
			return "", fmt.Errorf("%w: items[%d].quantity must be at least 1", ErrInvalidInput, i)
		}
		if !validVariant(line.Size) {
			return "", fmt.Errorf("%w: items[%d].size is invalid", ErrInvalidInput, i)
		}
		if !validVariant(line.Color) {
			return "", fmt.Errorf("%w: items[%d].color is invalid", ErrInvalidInput, i)
		}
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return "", fmt.Errorf("%w: payment method is required", ErrInvalidInput)
	}
	if err := validateAddress("shippingAddress", cmd.ShippingAddress); err != nil {
		return "", err
	}
	if cmd.BillingAddress != nil {
		if err := validateAddress("billingAddress", *cmd.BillingAddress); err != nil {
			return "", err
		}
	}
	return userID, nil
}

func validateAddress(field string, address Address) error {
	required := []struct{ name, value string }{
		{"name", address.Name},
		{"line1", address.Line1},
		{"city", address.City},
		{"state", address.State},
		{"postalCode", address.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s.%s is required", ErrInvalidInput, field, f.name)
		}
	}
	return nil
}

func normaliseAddress(address Address) Address {
	address.Name = strings.TrimSpace(address.Name)
	address.Phone = strings.TrimSpace(address.Phone)
	address.Line1 = strings.TrimSpace(address.Line1)
	address.Line2 = strings.TrimSpace(address.Line2)
	address.City = strings.TrimSpace(address.City)
	address.State = strings.TrimSpace(address.State)
	address.PostalCode = strings.TrimSpace(address.PostalCode)
	address.Country = strings.ToUpper(strings.TrimSpace(address.Country))
	if address.Country == "" {
		address.Country = "IN"
	}
	return address
}

func validVariant(value string) bool {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxVariantRunes {
		return false
	}
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func couponRejection(code string, err error) *CouponRejection {
	reason := CodeOf(err)
	message := "coupon could not be applied"
	for _, entry := range errorCatalogue {
		if errors.Is(err, entry.err) {
			message = entry.err.Error()
			break
		}
	}
	return &CouponRejection{Code: code, Reason: reason, Message: message}
}

func redemptionRejection(code string, reason repositories.CouponRedemptionErrorCode) *CouponRejection {
	switch reason {
	case repositories.CouponRedemptionDuplicate:
		return couponRejection(code, ErrCouponAlreadyUsed)
	case repositories.CouponRedemptionExhausted:
		return couponRejection(code, ErrCouponExhausted)
	default:
		return couponRejection(code, ErrInvalidInput)
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
