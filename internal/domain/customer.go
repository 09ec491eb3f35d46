package domain

import "time"

// Customer — клиент оптовика. Для ядра заказов запись только читается.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdTimestamp"`
}
