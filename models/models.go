package models

import "time"

// CartItem is a snapshot of a product at the moment it was added to a cart.
// Name, price and image are captured, not live references; checkout re-fetches
// prices from the product record before charging.
type CartItem struct {
	ProductID string  `json:"productId" bson:"productId"`
	Name      string  `json:"name" bson:"name"`
	Price     float64 `json:"price" bson:"price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Size      string  `json:"size,omitempty" bson:"size,omitempty"`
	Color     string  `json:"color,omitempty" bson:"color,omitempty"`
	Image     string  `json:"image,omitempty" bson:"image,omitempty"`
}

type Cart struct {
	ID               string     `json:"cartId" bson:"_id"`
	CustomerID       string     `json:"customerId,omitempty" bson:"customerId,omitempty"`
	SessionID        string     `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	Items            []CartItem `json:"items" bson:"items"`
	Subtotal         float64    `json:"subtotal" bson:"subtotal"`
	DiscountCode     string     `json:"discountCode,omitempty" bson:"discountCode,omitempty"`
	DiscountAmount   float64    `json:"discountAmount" bson:"discountAmount"`
	GiftCardCode     string     `json:"giftCardCode,omitempty" bson:"giftCardCode,omitempty"`
	GiftCardAmount   float64    `json:"giftCardAmount" bson:"giftCardAmount"`
	AbandonedAt      time.Time  `json:"abandonedAt,omitempty" bson:"abandonedAt,omitempty"`
	NotificationSent bool       `json:"notificationSent" bson:"notificationSent"`
	CreatedAt        time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" bson:"updatedAt"`
}

type Address struct {
	Name    string `json:"name,omitempty" bson:"name,omitempty"`
	Street  string `json:"street,omitempty" bson:"street,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	State   string `json:"state,omitempty" bson:"state,omitempty"`
	Zip     string `json:"zip,omitempty" bson:"zip,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
}

// Order statuses. Payment-specific states (refunded) are recorded on the
// PaymentStatus field, not on Status.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Order is an immutable snapshot created only after a confirmed payment.
// Totals are computed server-side at creation and never client-supplied:
// total == subtotal + tax + shipping - discountAmount - giftCardUsed.
type Order struct {
	ID             string     `json:"orderId" bson:"_id"`
	CartID         string     `json:"cartId,omitempty" bson:"cartId,omitempty"`
	CustomerID     string     `json:"customerId" bson:"customerId"`
	Email          string     `json:"email,omitempty" bson:"email,omitempty"`
	Items          []CartItem `json:"items" bson:"items"`
	Subtotal       float64    `json:"subtotal" bson:"subtotal"`
	Tax            float64    `json:"tax" bson:"tax"`
	Shipping       float64    `json:"shipping" bson:"shipping"`
	Total          float64    `json:"total" bson:"total"`
	DiscountCode   string     `json:"discountCode,omitempty" bson:"discountCode,omitempty"`
	DiscountAmount float64    `json:"discountAmount" bson:"discountAmount"`
	GiftCardUsed   float64    `json:"giftCardUsed" bson:"giftCardUsed"`
	PaymentID      string     `json:"paymentId,omitempty" bson:"paymentId,omitempty"`
	PaymentMethod  string     `json:"paymentMethod,omitempty" bson:"paymentMethod,omitempty"`
	PaymentStatus  string     `json:"paymentStatus,omitempty" bson:"paymentStatus,omitempty"`
	Status         string     `json:"status" bson:"status"`
	ShippingAddr   Address    `json:"shippingAddress" bson:"shippingAddress"`
	TrackingNumber string     `json:"trackingNumber,omitempty" bson:"trackingNumber,omitempty"`
	Notes          string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
}

type SizePreferences struct {
	Tops    []string `json:"tops,omitempty" bson:"tops,omitempty"`
	Bottoms []string `json:"bottoms,omitempty" bson:"bottoms,omitempty"`
	Sets    []string `json:"sets,omitempty" bson:"sets,omitempty"`
	Dresses []string `json:"dresses,omitempty" bson:"dresses,omitempty"`
}

type Preferences struct {
	Sizes  SizePreferences `json:"sizes,omitempty" bson:"sizes,omitempty"`
	Colors []string        `json:"colors,omitempty" bson:"colors,omitempty"`
}

type Customer struct {
	ID                string      `json:"customerId" bson:"_id"`
	ProcessorRef      string      `json:"processorRef,omitempty" bson:"processorRef,omitempty"`
	Email             string      `json:"email" bson:"email"`
	Role              string      `json:"role" bson:"role"` // customer or admin
	FirstName         string      `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName          string      `json:"lastName,omitempty" bson:"lastName,omitempty"`
	PhoneNumber       string      `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	Address           Address     `json:"address,omitempty" bson:"address,omitempty"`
	Preferences       Preferences `json:"preferences,omitempty" bson:"preferences,omitempty"`
	NewsletterOptIn   bool        `json:"subscribedToNewsletter" bson:"subscribedToNewsletter"`
	SalesOptIn        bool        `json:"subscribedToSales" bson:"subscribedToSales"`
	GiftCardBalance   float64     `json:"giftCardBalance" bson:"giftCardBalance"`
	Orders            []string    `json:"orders" bson:"orders"`
	Favorites         []string    `json:"favorites" bson:"favorites"`
	PasswordHash      string      `json:"-" bson:"passwordHash,omitempty"`
	SessionToken      string      `json:"-" bson:"sessionToken,omitempty"`
	SessionExpiry     time.Time   `json:"-" bson:"sessionExpiry,omitempty"`
	LastPasswordReset time.Time   `json:"lastPasswordReset,omitempty" bson:"lastPasswordReset,omitempty"`
	CreatedAt         time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// InventoryRecord tracks stock per (product, size, color, sku).
// Quantity never goes below zero; adjustments are atomic per-row.
type InventoryRecord struct {
	ID               string    `json:"inventoryId" bson:"_id"`
	ProductID        string    `json:"productId" bson:"productId"`
	SKU              string    `json:"sku" bson:"sku"`
	Size             string    `json:"size,omitempty" bson:"size,omitempty"`
	Color            string    `json:"color,omitempty" bson:"color,omitempty"`
	Quantity         int       `json:"quantity" bson:"quantity"`
	Reserved         int       `json:"reserved" bson:"reserved"`
	RestockThreshold int       `json:"restockThreshold" bson:"restockThreshold"`
	LastRestocked    time.Time `json:"lastRestocked,omitempty" bson:"lastRestocked,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`
}

const (
	GiftCardActive   = "active"
	GiftCardRedeemed = "redeemed"
	GiftCardExpired  = "expired"
)

type GiftCardParty struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

// GiftCard invariants: balance <= amount; status flips to redeemed only when
// the balance reaches exactly zero.
type GiftCard struct {
	ID         string        `json:"giftCardId" bson:"_id"`
	Code       string        `json:"code" bson:"code"`
	Amount     float64       `json:"amount" bson:"amount"`
	Balance    float64       `json:"balance" bson:"balance"`
	Type       string        `json:"type" bson:"type"` // digital or physical
	Recipient  GiftCardParty `json:"recipient,omitempty" bson:"recipient,omitempty"`
	Sender     GiftCardParty `json:"sender,omitempty" bson:"sender,omitempty"`
	Message    string        `json:"message,omitempty" bson:"message,omitempty"`
	Status     string        `json:"status" bson:"status"`
	ExpiresAt  time.Time     `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	RedeemedAt time.Time     `json:"redeemedAt,omitempty" bson:"redeemedAt,omitempty"`
	// SettledCarts lists the carts this card has already paid for, keying
	// checkout settlement so a replay cannot deduct twice.
	SettledCarts []string  `json:"settledCarts,omitempty" bson:"settledCarts,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

type ProductImage struct {
	ID  string `json:"imageId,omitempty" bson:"imageId,omitempty"`
	URL string `json:"url" bson:"url"`
	Alt string `json:"alt,omitempty" bson:"alt,omitempty"`
}

type ProductSize struct {
	Size  string `json:"size" bson:"size"`
	SKU   string `json:"sku,omitempty" bson:"sku,omitempty"`
	Stock int    `json:"stock" bson:"stock"`
}

type Product struct {
	ID           string         `json:"productId" bson:"_id"`
	Name         string         `json:"name" bson:"name"`
	Description  string         `json:"description" bson:"description"`
	Price        float64        `json:"price" bson:"price"`
	SalePrice    float64        `json:"salePrice,omitempty" bson:"salePrice,omitempty"`
	Category     string         `json:"category" bson:"category"`
	Images       []ProductImage `json:"images" bson:"images"`
	Sizes        []ProductSize  `json:"sizes" bson:"sizes"`
	Colors       []string       `json:"colors" bson:"colors"`
	Material     string         `json:"material,omitempty" bson:"material,omitempty"`
	Rating       float64        `json:"rating" bson:"rating"`
	Reviews      int            `json:"reviews" bson:"reviews"`
	Care         string         `json:"care,omitempty" bson:"care,omitempty"`
	IsNewArrival bool           `json:"isNewArrival" bson:"isNewArrival"`
	IsSale       bool           `json:"isSale" bson:"isSale"`
	CreatedAt    time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// CheckoutPrice returns the price a buyer pays right now: the sale price when
// one is set, the list price otherwise.
func (p *Product) CheckoutPrice() float64 {
	if p.SalePrice > 0 {
		return p.SalePrice
	}
	return p.Price
}

// IdempotencyRecord stores one replayable response per Idempotency-Key.
type IdempotencyRecord struct {
	Key         string                 `bson:"key" json:"key"`
	Method      string                 `bson:"method" json:"method"`
	Path        string                 `bson:"path" json:"path"`
	UserID      string                 `bson:"userid" json:"userid"`
	RequestHash string                 `bson:"request_hash" json:"request_hash"`
	Response    map[string]interface{} `bson:"response,omitempty" json:"response,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time              `bson:"expires_at" json:"expires_at"`
}

// OrderEvent is published to Redis whenever an order is created or changes
// status; the admin dashboard subscribes over a websocket.
type OrderEvent struct {
	Type       string    `json:"type"` // order_created, order_status
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId,omitempty"`
	Status     string    `json:"status"`
	Total      float64   `json:"total,omitempty"`
	At         time.Time `json:"at"`
}
