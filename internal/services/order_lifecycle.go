package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/platform/textutil"
)

const maxStatusLabelRunes = 32

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if cmd.Status == nil && cmd.PaymentStatus == nil && cmd.ShippingStatus == nil && cmd.TrackingNumber == nil {
		return Order{}, fmt.Errorf("%w: at least one field must be provided", ErrInvalidInput)
	}

	var target OrderStatus
	if cmd.Status != nil {
		target = OrderStatus(strings.ToLower(strings.TrimSpace(*cmd.Status)))
		if !target.Valid() {
			return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *cmd.Status)
		}
	}
	paymentStatus, err := statusLabel("paymentStatus", cmd.PaymentStatus)
	if err != nil {
		return Order{}, err
	}
	shippingStatus, err := statusLabel("shippingStatus", cmd.ShippingStatus)
	if err != nil {
		return Order{}, err
	}

	var (
		order    Order
		previous OrderStatus
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		items, err := s.items.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}

		order = current
		previous = current.Status
		now := s.clock()
		if target != "" && target != current.Status {
			if !CanTransition(current.Status, target) {
				return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current.Status, target)
			}
			order.Status = target
			if target == domain.OrderStatusDelivered {
				order.DeliveredAt = &now
			}
		}
		if paymentStatus != nil {
			order.PaymentStatus = *paymentStatus
		}
		if shippingStatus != nil {
			order.ShippingStatus = *shippingStatus
		}
		if cmd.TrackingNumber != nil {
			order.TrackingNumber = nil
			if tracking := textutil.PlainText(*cmd.TrackingNumber, 64); tracking != "" {
				order.TrackingNumber = &tracking
			}
		}
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if order.Status != previous {
			if err := s.items.UpdateStatus(txCtx, orderID, itemIDs(items), order.Status, now); err != nil {
				return mapRepositoryError(err, nil)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if order.Status != previous {
		s.statusChanged(ctx, order, previous, cmd.ActorID)
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if cmd.RequireOwner && actorID == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	reason := textutil.PlainText(cmd.Reason, maxCancellationReasonRunes)

	var (
		order    Order
		previous OrderStatus
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if cmd.RequireOwner && current.UserID != actorID {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderNotCancellable, current.Status)
		}
		items, err := s.items.ListByOrder(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, nil)
		}

		now := s.clock()
		order = current
		previous = current.Status
		order.Status = domain.OrderStatusCancelled
		order.CancellationReason = nil
		if reason != "" {
			order.CancellationReason = &reason
		}
		order.UpdatedAt = now

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if err := s.items.UpdateStatus(txCtx, orderID, itemIDs(items), domain.OrderStatusCancelled, now); err != nil {
			return mapRepositoryError(err, nil)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.statusChanged(ctx, order, previous, actorID)
	return order, nil
}

func (s *orderService) statusChanged(ctx context.Context, order Order, previous OrderStatus, actorID string) {
	if s.metrics != nil {
		s.metrics.StatusChanged(ctx, string(previous), string(order.Status))
	}
	event := orderEventStatusChanged
	if order.Status == domain.OrderStatusCancelled {
		event = orderEventCancelled
	}
	s.logger(ctx, event, map[string]any{
		"orderId":        order.ID,
		"previousStatus": string(previous),
		"status":         string(order.Status),
		"actorId":        strings.TrimSpace(actorID),
	})
	if order.Status == domain.OrderStatusCancelled {
		s.notify(ctx, orderCancelledNotification(order))
		return
	}
	s.notify(ctx, orderStatusNotification(order, previous))
}

func statusLabel(field string, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	label := strings.ToLower(strings.TrimSpace(*value))
	if label == "" || len(label) > maxStatusLabelRunes {
		return nil, fmt.Errorf("%w: %s must be 1-%d characters", ErrInvalidInput, field, maxStatusLabelRunes)
	}
	for _, r := range label {
		if (r < 'a' || r > 'z') && r != '_' {
			return nil, fmt.Errorf("%w: %s must contain only letters and underscores", ErrInvalidInput, field)
		}
	}
	return &label, nil
}

func itemIDs(items []OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}
