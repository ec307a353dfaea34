package orders

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/safar/storefront-api/internal/models"
	"github.com/shopspring/decimal"
)

const maxCartLines = 100

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type AddressInput struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type CreateOrderRequest struct {
	CustomerEmail   string        `json:"customer_email"`
	CustomerName    string        `json:"customer_name"`
	Notes           string        `json:"notes"`
	Items           []CartItem    `json:"items"`
	BillingAddress  AddressInput  `json:"billing_address"`
	ShippingAddress *AddressInput `json:"shipping_address,omitempty"`
}

type CreateOrderResult struct {
	OrderID             int64              `json:"order_id"`
	OrderNumber         string             `json:"order_number"`
	Total               decimal.Decimal    `json:"total"`
	Totals              Totals             `json:"totals"`
	ItemsForReservation []models.OrderItem `json:"items_for_reservation"`
}

// Normalize trims every free-text field in place.
func (r *CreateOrderRequest) Normalize() {
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.Notes = strings.TrimSpace(r.Notes)
	r.BillingAddress.normalize()
	if r.ShippingAddress != nil {
		r.ShippingAddress.normalize()
	}
}

func (r *CreateOrderRequest) Validate() error {
	fields := map[string]string{}

	if r.CustomerEmail == "" {
		fields["customer_email"] = "is required"
	} else if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
		fields["customer_email"] = "is not a valid email address"
	}

	switch {
	case len(r.Items) == 0:
		fields["items"] = "at least one item is required"
	case len(r.Items) > maxCartLines:
		fields["items"] = "too many items"
	}
	for i, item := range r.Items {
		if item.ProductID <= 0 {
			fields[indexed("items", i, "product_id")] = "is required"
		}
		if item.Quantity <= 0 {
			fields[indexed("items", i, "quantity")] = "must be greater than zero"
		}
	}

	r.BillingAddress.validate("billing_address", fields)
	if r.ShippingAddress != nil {
		r.ShippingAddress.validate("shipping_address", fields)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (a *AddressInput) normalize() {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Company = strings.TrimSpace(a.Company)
	a.Street = strings.TrimSpace(a.Street)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.City = strings.TrimSpace(a.City)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)
	a.Email = strings.TrimSpace(a.Email)
}

func (a *AddressInput) validate(prefix string, fields map[string]string) {
	required := map[string]string{
		"first_name":  a.FirstName,
		"last_name":   a.LastName,
		"street":      a.Street,
		"postal_code": a.PostalCode,
		"city":        a.City,
		"country":     a.Country,
	}
	for name, value := range required {
		if value == "" {
			fields[prefix+"."+name] = "is required"
		}
	}
}

func (a AddressInput) toModel() *models.Address {
	return &models.Address{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Company:    a.Company,
		Street:     a.Street,
		PostalCode: a.PostalCode,
		City:       a.City,
		Country:    a.Country,
		Phone:      a.Phone,
		Email:      a.Email,
	}
}

func indexed(prefix string, i int, field string) string {
	return prefix + "[" + strconv.Itoa(i) + "]." + field
}
