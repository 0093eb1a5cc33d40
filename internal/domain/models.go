package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	StockCount   int
	InStock      bool // selalu StockCount > 0
	InitialStock int  // baseline ledger saat produk dibuat
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MovementReason string

const (
	ReasonPurchase   MovementReason = "PURCHASE"
	ReasonReturn     MovementReason = "RETURN"
	ReasonDamage     MovementReason = "DAMAGE"
	ReasonTheft      MovementReason = "THEFT"
	ReasonAdjustment MovementReason = "ADJUSTMENT"
	ReasonRestock    MovementReason = "RESTOCK"
)

func (r MovementReason) Valid() bool {
	switch r {
	case ReasonPurchase, ReasonReturn, ReasonDamage, ReasonTheft, ReasonAdjustment, ReasonRestock:
		return true
	}
	return false
}

// Reference links a movement to the order or admin action that caused it.
type Reference struct {
	Type string // ORDER | ADMIN | ...
	ID   string
}

type InventoryMovement struct {
	ID            string
	ProductID     string
	Delta         int
	Reason        MovementReason
	ReferenceType string
	ReferenceID   string
	Notes         string
	ActorID       string
	CreatedAt     time.Time
}

type StockAlert struct {
	ProductID     string
	Threshold     int
	Active        bool
	LastAlertedAt *time.Time
	CreatedAt     time.Time
}

type CouponType string

const (
	CouponPercentage   CouponType = "PERCENTAGE"
	CouponFixedAmount  CouponType = "FIXED_AMOUNT"
	CouponFreeShipping CouponType = "FREE_SHIPPING"
	CouponBuyXGetY     CouponType = "BUY_X_GET_Y"
)

func (t CouponType) Valid() bool {
	switch t {
	case CouponPercentage, CouponFixedAmount, CouponFreeShipping, CouponBuyXGetY:
		return true
	}
	return false
}

type CouponStatus string

const (
	CouponActive   CouponStatus = "ACTIVE"
	CouponInactive CouponStatus = "INACTIVE"
	CouponExpired  CouponStatus = "EXPIRED"
)

type Coupon struct {
	ID                string
	Code              string // selalu uppercase
	Type              CouponType
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	PerUserLimit      *int
	UsageCount        int
	ValidFrom         time.Time
	ValidTo           time.Time
	Status            CouponStatus
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasHeadroom reports whether another redemption fits under UsageLimit.
func (c Coupon) HasHeadroom() bool {
	return c.UsageLimit == nil || c.UsageCount < *c.UsageLimit
}

// InWindow reports now ∈ [ValidFrom, ValidTo).
func (c Coupon) InWindow(now time.Time) bool {
	return !now.Before(c.ValidFrom) && now.Before(c.ValidTo)
}

func (c Coupon) IsValid(now time.Time) bool {
	return c.Status == CouponActive && c.InWindow(now) && c.HasHeadroom()
}

type CouponUsage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderPacked     OrderStatus = "PACKED"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Size      string
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Order struct {
	ID            string
	ExternalID    string // idempotency key dari client
	OrderNumber   string
	UserID        string
	Email         string
	Phone         string // optional, enables SMS status updates
	Items         []OrderItem
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	CouponCode    string
	PaymentMethod string
	Status        OrderStatus
	Notes         string // append-only
	OrderDate     time.Time
	DeliveredDate *time.Time
	UpdatedAt     time.Time
}

type ChannelType string

const (
	ChannelEmail ChannelType = "EMAIL"
	ChannelSMS   ChannelType = "SMS"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

type OutboxEntry struct {
	ID         string
	Type       ChannelType
	Recipient  string
	TemplateID string
	Payload    []byte // JSON object
	Status     OutboxStatus
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SentAt     *time.Time
	// ClaimedUntil is set while a dispatcher owns the entry.
	ClaimedUntil *time.Time
}

type Template struct {
	ID           string
	Name         string
	Type         ChannelType
	Subject      string
	BodyTemplate string
	Active       bool
}

type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
