package httpx

import (
	"time"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

// Uang dikirim sebagai string 2 desimal supaya tidak lewat float.

type itemView struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Size      string `json:"size,omitempty"`
}

type orderView struct {
	ID            string     `json:"id"`
	ExternalID    string     `json:"external_id,omitempty"`
	OrderNumber   string     `json:"order_number"`
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	Items         []itemView `json:"items"`
	Subtotal      string     `json:"subtotal"`
	Discount      string     `json:"discount"`
	Shipping      string     `json:"shipping"`
	Total         string     `json:"total"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	OrderDate     time.Time  `json:"order_date"`
	DeliveredDate *time.Time `json:"delivered_date,omitempty"`
}

func toOrderView(o domain.Order) orderView {
	items := make([]itemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemView{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice.StringFixed(2), Size: it.Size})
	}
	return orderView{
		ID:            o.ID,
		ExternalID:    o.ExternalID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Email:         o.Email,
		Items:         items,
		Subtotal:      o.Subtotal.StringFixed(2),
		Discount:      o.Discount.StringFixed(2),
		Shipping:      o.Shipping.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		CouponCode:    o.CouponCode,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		Notes:         o.Notes,
		OrderDate:     o.OrderDate,
		DeliveredDate: o.DeliveredDate,
	}
}

type productView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	StockCount   int    `json:"stock_count"`
	InStock      bool   `json:"in_stock"`
	InitialStock int    `json:"initial_stock"`
}

func toProductView(p domain.Product) productView {
	return productView{ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), StockCount: p.StockCount, InStock: p.InStock, InitialStock: p.InitialStock}
}

type movementView struct {
	ID            string    `json:"id"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toMovementView(m domain.InventoryMovement) movementView {
	return movementView{ID: m.ID, Delta: m.Delta, Reason: string(m.Reason), ReferenceType: m.ReferenceType,
		ReferenceID: m.ReferenceID, Notes: m.Notes, ActorID: m.ActorID, CreatedAt: m.CreatedAt}
}

type couponView struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	Type              string    `json:"type"`
	Value             string    `json:"value"`
	MinOrderAmount    *string   `json:"min_order_amount,omitempty"`
	MaxDiscountAmount *string   `json:"max_discount_amount,omitempty"`
	UsageLimit        *int      `json:"usage_limit,omitempty"`
	PerUserLimit      *int      `json:"per_user_limit,omitempty"`
	UsageCount        int       `json:"usage_count"`
	ValidFrom         time.Time `json:"valid_from"`
	ValidTo           time.Time `json:"valid_to"`
	Status            string    `json:"status"`
}

func toCouponView(c domain.Coupon) couponView {
	v := couponView{ID: c.ID, Code: c.Code, Type: string(c.Type), Value: c.Value.StringFixed(2),
		UsageLimit: c.UsageLimit, PerUserLimit: c.PerUserLimit, UsageCount: c.UsageCount,
		ValidFrom: c.ValidFrom, ValidTo: c.ValidTo, Status: string(c.Status)}
	if c.MinOrderAmount != nil {
		s := c.MinOrderAmount.StringFixed(2)
		v.MinOrderAmount = &s
	}
	if c.MaxDiscountAmount != nil {
		s := c.MaxDiscountAmount.StringFixed(2)
		v.MaxDiscountAmount = &s
	}
	return v
}
