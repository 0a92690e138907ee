package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vastra-market/api"

// CommerceMetrics records business counters for order placement and coupon outcomes.
type CommerceMetrics struct {
	ordersCreated    metric.Int64Counter
	orderValue       metric.Int64Histogram
	couponsRejected  metric.Int64Counter
	statusTransition metric.Int64Counter
}

// NewCommerceMetrics registers counters on the supplied meter provider. A nil provider uses the global one.
func NewCommerceMetrics(provider metric.MeterProvider) (*CommerceMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	ordersCreated, err := meter.Int64Counter("orders.created", metric.WithDescription("Orders placed"))
	if err != nil {
		return nil, err
	}
	orderValue, err := meter.Int64Histogram("orders.total", metric.WithDescription("Order totals in minor currency units"), metric.WithUnit("{INR}"))
	if err != nil {
		return nil, err
	}
	couponsRejected, err := meter.Int64Counter("coupons.rejected", metric.WithDescription("Coupon codes rejected during validation or redemption"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("orders.status_transitions", metric.WithDescription("Order lifecycle transitions"))
	if err != nil {
		return nil, err
	}
	return &CommerceMetrics{
		ordersCreated:    ordersCreated,
		orderValue:       orderValue,
		couponsRejected:  couponsRejected,
		statusTransition: transitions,
	}, nil
}

// OrderCreated records a placed order.
func (m *CommerceMetrics) OrderCreated(ctx context.Context, total int64, withCoupon bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("coupon", withCoupon))
	m.ordersCreated.Add(ctx, 1, attrs)
	m.orderValue.Record(ctx, total, attrs)
}

// CouponRejected records a coupon rejection keyed by reason code.
func (m *CommerceMetrics) CouponRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.couponsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// StatusChanged records an order status transition.
func (m *CommerceMetrics) StatusChanged(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.statusTransition.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}
