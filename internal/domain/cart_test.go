package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

func TestCartAddItem(t *testing.T) {
	cart := domain.NewCart("buyer-1")

	if err := cart.AddItem("product-1", "Keyboard", 2500, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := cart.AddItem("product-1", "Keyboard", 2500, 3); err != nil {
		t.Fatalf("add item again: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("items = %d, want 1 merged position", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", cart.Items[0].Quantity)
	}
}

func TestCartAddItem_CapsQuantity(t *testing.T) {
	cart := domain.NewCart("buyer-1")

	if err := cart.AddItem("product-1", "Keyboard", 2500, 90); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := cart.AddItem("product-1", "Keyboard", 2500, 50); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if cart.Items[0].Quantity != 99 {
		t.Fatalf("quantity = %d, want cap 99", cart.Items[0].Quantity)
	}
}

func TestCartAddItem_Validation(t *testing.T) {
	cart := domain.NewCart("buyer-1")

	if err := cart.AddItem("product-1", "Keyboard", 2500, 0); !errors.Is(err, domain.ErrItemQuantityInvalid) {
		t.Fatalf("err = %v, want ErrItemQuantityInvalid", err)
	}
	if err := cart.AddItem("product-1", "Keyboard", -5, 1); !errors.Is(err, domain.ErrItemPriceInvalid) {
		t.Fatalf("err = %v, want ErrItemPriceInvalid", err)
	}
}
