package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// CartTTL — срок жизни корзины с момента последнего изменения.
	CartTTL = 30 * 24 * time.Hour
	// maxCartItemQuantity — максимальное количество одной позиции в корзине.
	maxCartItemQuantity int32 = 99
)

// CartItem — позиция корзины со снимком данных товара.
type CartItem struct {
	ID             string
	ProductID      string
	ProductName    string
	UnitPriceMinor int64
	Quantity       int32
}

// Cart — корзина покупателя. Сага трогает её только одним способом:
// полным удалением после успешного оформления заказа.
type Cart struct {
	ID        string
	BuyerID   string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// NewCart создаёт пустую корзину покупателя с 30-дневным TTL.
func NewCart(buyerID string) Cart {
	now := time.Now().UTC()
	return Cart{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(CartTTL),
	}
}

// AddItem добавляет товар в корзину; существующая позиция увеличивается,
// количество ограничено сверху maxCartItemQuantity.
func (c *Cart) AddItem(productID, productName string, unitPriceMinor int64, quantity int32) error {
	if quantity < 1 {
		return ErrItemQuantityInvalid
	}
	if unitPriceMinor < 0 {
		return ErrItemPriceInvalid
	}

	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			total := c.Items[i].Quantity + quantity
			if total > maxCartItemQuantity {
				total = maxCartItemQuantity
			}
			c.Items[i].Quantity = total
			c.refresh()
			return nil
		}
	}

	if quantity > maxCartItemQuantity {
		quantity = maxCartItemQuantity
	}
	c.Items = append(c.Items, CartItem{
		ID:             uuid.NewString(),
		ProductID:      productID,
		ProductName:    productName,
		UnitPriceMinor: unitPriceMinor,
		Quantity:       quantity,
	})
	c.refresh()
	return nil
}

func (c *Cart) refresh() {
	now := time.Now().UTC()
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(CartTTL)
}
