package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

const cartKeyPrefix = "cart:"

// CartStore хранит корзины покупателей в Redis как JSON под ключом
// cart:{buyer_id}. TTL ключа привязан к ExpiresAt корзины, так что
// брошенные корзины Redis снимает сам.
type CartStore struct {
	client *goredis.Client
}

// NewClient открывает подключение к Redis и проверяет его доступность.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewCartStore создаёт Redis-реализацию CartStore.
func NewCartStore(client *goredis.Client) *CartStore {
	return &CartStore{client: client}
}

type cartRecord struct {
	ID        string           `json:"id"`
	BuyerID   string           `json:"buyer_id"`
	Items     []cartItemRecord `json:"items"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type cartItemRecord struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Quantity       int32  `json:"quantity"`
}

func (s *CartStore) Get(ctx context.Context, buyerID string) (domain.Cart, error) {
	raw, err := s.client.Get(ctx, cartKey(buyerID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("get cart from redis: %w", err)
	}

	var record cartRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart record: %w", err)
	}

	cart := recordToCart(record)
	if !cart.ExpiresAt.After(time.Now().UTC()) {
		return domain.Cart{}, domain.ErrCartNotFound
	}

	return cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	record := cartToRecord(cart)
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode cart record: %w", err)
	}

	ttl := time.Until(cart.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, cartKey(cart.BuyerID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save cart to redis: %w", err)
	}

	return nil
}

func (s *CartStore) DeleteByBuyer(ctx context.Context, buyerID string) error {
	if err := s.client.Del(ctx, cartKey(buyerID)).Err(); err != nil {
		return fmt.Errorf("delete cart from redis: %w", err)
	}
	return nil
}

func cartKey(buyerID string) string {
	return cartKeyPrefix + buyerID
}

func cartToRecord(cart domain.Cart) cartRecord {
	record := cartRecord{
		ID:        cart.ID,
		BuyerID:   cart.BuyerID,
		Items:     make([]cartItemRecord, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		ExpiresAt: cart.ExpiresAt,
	}
	for _, item := range cart.Items {
		record.Items = append(record.Items, cartItemRecord{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		})
	}
	return record
}

func recordToCart(record cartRecord) domain.Cart {
	cart := domain.Cart{
		ID:        record.ID,
		BuyerID:   record.BuyerID,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		ExpiresAt: record.ExpiresAt,
	}
	for _, item := range record.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceMinor: item.UnitPriceMinor,
			Quantity:       item.Quantity,
		})
	}
	return cart
}

var _ domain.CartStore = (*CartStore)(nil)
