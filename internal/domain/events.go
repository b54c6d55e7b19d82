package domain

import "time"

// OrderSubmitted — тонкое доменное событие создания заказа: несёт только ID.
// Потребитель-мост перечитывает полный заказ перед публикацией CheckoutStarted,
// поэтому вход саги авторитетен на момент чтения, а не на момент события.
type OrderSubmitted struct {
	OrderID string
}

// TimelineEvent описывает событие в истории оформления заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
