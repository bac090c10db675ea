package domain

import "time"

type Product struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Image       string    `json:"image,omitempty" bson:"image,omitempty"`
	Price       float64   `json:"price" bson:"price"`
	Quantity    int       `json:"quantity" bson:"quantity"` // stok tersedia, tidak pernah < 0
	Rating      float64   `json:"rating" bson:"rating"`     // rata-rata review, turunan
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
}

// User is the owner of an order collection. Records are upserted from the
// authenticated principal; creation order drives the admin report ordering.
type User struct {
	ID        string      `json:"id" bson:"_id"`
	Name      string      `json:"name" bson:"name"`
	Email     string      `json:"email" bson:"email"`
	Role      string      `json:"role" bson:"role"`
	ReviewIDs []string    `json:"reviews" bson:"reviews"`
	QueryIDs  []string    `json:"queries" bson:"queries"`
	Orders    []OrderLine `json:"orders" bson:"orders"`
	CreatedAt time.Time   `json:"createdAt" bson:"created_at"`
}

// OrderLine snapshots the product name and price at add-to-cart time so later
// catalog edits do not rewrite order history.
type OrderLine struct {
	ID           string    `json:"id" bson:"id"`
	ProductID    string    `json:"productId" bson:"product_id"`
	Quantity     int       `json:"quantity" bson:"quantity"`
	Status       Status    `json:"status" bson:"status"`
	ProductName  string    `json:"productName" bson:"product_name"`
	ProductPrice float64   `json:"productPrice" bson:"product_price"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

type Review struct {
	ID        string    `json:"id" bson:"_id"`
	Rating    int       `json:"rating" bson:"rating"`
	Text      string    `json:"review" bson:"review"`
	UserName  string    `json:"name" bson:"name"`
	UserID    string    `json:"user" bson:"user_id"`
	ProductID string    `json:"product" bson:"product_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Query is a customer message to the support desk.
type Query struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone" bson:"phone"`
	Email     string    `json:"email" bson:"email"`
	Message   string    `json:"message" bson:"message"`
	UserID    string    `json:"userId" bson:"user_id"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// UserOrders is one row of a whole-collection scan over users.
type UserOrders struct {
	UserID    string
	UserName  string
	Email     string
	CreatedAt time.Time
	Lines     []OrderLine
}
