package services

import (
	"fmt"
	"strings"

	domain "github.com/vastra-market/api/internal/domain"
	"github.com/vastra-market/api/internal/platform/textutil"
)

var statusHeadlines = map[OrderStatus]string{
	domain.OrderStatusConfirmed:  "Order confirmed",
	domain.OrderStatusProcessing: "Order is being packed",
	domain.OrderStatusShipped:    "Order shipped",
	domain.OrderStatusDelivered:  "Order delivered",
}

func orderPlacedNotification(order Order) Notification {
	return Notification{
		UserID:  order.UserID,
		Type:    domain.NotificationOrderPlaced,
		Title:   "Order placed",
		Message: fmt.Sprintf("Your order %s for %s has been placed.", order.ID, textutil.FormatINR(order.Total)),
		Data: map[string]string{
			"orderId": order.ID,
			"status":  string(order.Status),
			"total":   fmt.Sprintf("%d", order.Total),
		},
	}
}

func orderStatusNotification(order Order, previous OrderStatus) Notification {
	title, ok := statusHeadlines[order.Status]
	if !ok {
		title = "Order updated"
	}
	message := fmt.Sprintf("Your order %s is now %s.", order.ID, order.Status)
	if order.Status == domain.OrderStatusShipped && order.TrackingNumber != nil {
		message = fmt.Sprintf("Your order %s has shipped. Tracking number: %s.", order.ID, *order.TrackingNumber)
	}
	return Notification{
		UserID:  order.UserID,
		Type:    domain.NotificationOrderStatus,
		Title:   title,
		Message: message,
		Data: map[string]string{
			"orderId":        order.ID,
			"status":         string(order.Status),
			"previousStatus": string(previous),
		},
	}
}

func orderCancelledNotification(order Order) Notification {
	message := fmt.Sprintf("Your order %s has been cancelled.", order.ID)
	data := map[string]string{
		"orderId": order.ID,
		"status":  string(order.Status),
	}
	if order.CancellationReason != nil {
		reason := strings.TrimSpace(*order.CancellationReason)
		message = fmt.Sprintf("Your order %s has been cancelled: %s", order.ID, reason)
		data["reason"] = reason
	}
	return Notification{
		UserID:  order.UserID,
		Type:    domain.NotificationOrderCancelled,
		Title:   "Order cancelled",
		Message: message,
		Data:    data,
	}
}
