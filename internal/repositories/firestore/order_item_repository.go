package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vastra-market/api/internal/domain"
	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
	"github.com/vastra-market/api/internal/repositories"
)

const orderItemsSubcollection = "items"

// OrderItemRepository stores line items in orders/{orderId}/items.
type OrderItemRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderItemRepository = (*OrderItemRepository)(nil)

// NewOrderItemRepository constructs a Firestore-backed order item repository.
func NewOrderItemRepository(provider *pfirestore.Provider) (*OrderItemRepository, error) {
	if provider == nil {
		return nil, errors.New("order item repository requires firestore provider")
	}
	return &OrderItemRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

type orderItemDocument struct {
	ProductID    string    `firestore:"productId"`
	ProductName  string    `firestore:"productName"`
	ProductImage string    `firestore:"productImage,omitempty"`
	Price        int64     `firestore:"price"`
	Quantity     int       `firestore:"quantity"`
	Size         string    `firestore:"size,omitempty"`
	Color        string    `firestore:"color,omitempty"`
	SellerID     string    `firestore:"sellerId"`
	ShopID       string    `firestore:"shopId"`
	Total        int64     `firestore:"total"`
	Status       string    `firestore:"status"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (r *OrderItemRepository) items(orderID string) *pfirestore.Collection[orderItemDocument] {
	return pfirestore.Sub[orderItemDocument](r.orders, orderID, orderItemsSubcollection)
}

// InsertAll creates every item under the order. Outside a transaction the writes are grouped in one.
func (r *OrderItemRepository) InsertAll(ctx context.Context, orderID string, items []domain.OrderItem) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order item repository: order id is required")
	}
	if len(items) == 0 {
		return nil
	}
	coll := r.items(orderID)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, item := range items {
			id := strings.TrimSpace(item.ID)
			if id == "" {
				return errors.New("order item repository: item id is required")
			}
			if err := coll.Create(ctx, id, encodeOrderItem(item)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByOrder returns the items of the order in insertion order.
func (r *OrderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order item repository: order id is required")
	}
	docs, err := r.items(orderID).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderItem(orderID, doc.ID, doc.Data))
	}
	return items, nil
}

// UpdateStatus writes the status onto each listed item.
func (r *OrderItemRepository) UpdateStatus(ctx context.Context, orderID string, itemIDs []string, status domain.OrderStatus, now time.Time) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order item repository: order id is required")
	}
	if len(itemIDs) == 0 {
		return nil
	}
	coll := r.items(orderID)
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, id := range itemIDs {
			if err := coll.Update(ctx, id, updates); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeOrderItem(item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
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
		CreatedAt:    item.CreatedAt.UTC(),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}
}

func decodeOrderItem(orderID, id string, doc orderItemDocument) domain.OrderItem {
	return domain.OrderItem{
		ID:           id,
		OrderID:      orderID,
		ProductID:    doc.ProductID,
		ProductName:  doc.ProductName,
		ProductImage: doc.ProductImage,
		Price:        doc.Price,
		Quantity:     doc.Quantity,
		Size:         doc.Size,
		Color:        doc.Color,
		SellerID:     doc.SellerID,
		ShopID:       doc.ShopID,
		Total:        doc.Total,
		Status:       domain.OrderStatus(doc.Status),
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}
