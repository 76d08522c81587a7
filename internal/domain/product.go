package domain

// Product is the read-side view of a catalog product consumed by checkout.
// Catalog management itself lives outside this service; checkout only
// reads price/name/image and mutates stock through the inventory gate.
type Product struct {
	ID        int64
	Name      string
	ImageURL  string
	Price     int64
	SalePrice *int64
	Stock     int32
}

// CurrentPrice returns the sale price when one is set, otherwise the
// regular price.
func (p Product) CurrentPrice() int64 {
	if p.SalePrice != nil && *p.SalePrice > 0 && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

// CartItem is one line of a user's cart as consumed by checkout: a
// product reference plus the requested quantity. Cart storage mechanics
// belong to the cart collaborator.
type CartItem struct {
	ProductID int64
	Quantity  int32
}
