package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem — одна позиция заказа. Отрицательное количество или цена означают возврат.
type LineItem struct {
	Title     string          `json:"title"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal возвращает qty*price со знаком.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// IsReturn сообщает, что позиция является возвратом: отрицательны количество или цена.
// Позиция с обоими отрицательными значениями тоже считается возвратом.
func (li LineItem) IsReturn() bool {
	return li.Quantity.IsNegative() || li.UnitPrice.IsNegative()
}

// LineItemInput — позиция в том виде, в каком её прислал клиент: числа строками.
type LineItemInput struct {
	Title     string `json:"title"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

// ParseLineItems разбирает числовые поля позиций. Нечисловые значения не приводятся
// к нулю, а возвращаются как ErrMalformedQuantity/ErrMalformedPrice.
func ParseLineItems(inputs []LineItemInput) ([]LineItem, error) {
	items := make([]LineItem, 0, len(inputs))
	for idx, in := range inputs {
		qty, err := decimal.NewFromString(strings.TrimSpace(in.Quantity))
		if err != nil {
			return nil, fmt.Errorf("line_items[%d] %q: %w", idx, in.Quantity, ErrMalformedQuantity)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(in.UnitPrice))
		if err != nil {
			return nil, fmt.Errorf("line_items[%d] %q: %w", idx, in.UnitPrice, ErrMalformedPrice)
		}
		items = append(items, LineItem{
			Title:     strings.TrimSpace(in.Title),
			Quantity:  qty,
			UnitPrice: price,
		})
	}
	return items, nil
}

// SumLineItems считает сумму позиций со знаком.
func SumLineItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// SignatureRecord — подпись получателя при доставке.
type SignatureRecord struct {
	SignedBy string `json:"signedBy"`
	// ImageURL пуст, пока изображение не сохранено в object store.
	ImageURL string `json:"imageUrl,omitempty"`
}

// HasImage сообщает, есть ли сохранённое изображение подписи.
func (s *SignatureRecord) HasImage() bool {
	return s != nil && s.ImageURL != ""
}

// Order — заказ на доставку. Принадлежит ровно одному CustomerOrderLedger.
type Order struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"createdAt"`
	IsOpen     bool             `json:"isOpen"`
	TotalPrice decimal.Decimal  `json:"totalPrice"`
	LineItems  []LineItem       `json:"lineItems"`
	Signature  *SignatureRecord `json:"signature,omitempty"`
}

// ComputeTotal возвращает сумму позиций заказа.
func (o *Order) ComputeTotal() decimal.Decimal {
	return SumLineItems(o.LineItems)
}

// ValidateTotal проверяет инвариант totalPrice == Σ qty*price.
func (o *Order) ValidateTotal() error {
	if expected := o.ComputeTotal(); !expected.Equal(o.TotalPrice) {
		return fmt.Errorf("order %s: total %s, line items %s: %w",
			o.ID, o.TotalPrice.StringFixed(2), expected.StringFixed(2), ErrTotalMismatch)
	}
	return nil
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	if o.LineItems != nil {
		items := make([]LineItem, len(o.LineItems))
		copy(items, o.LineItems)
		o.LineItems = items
	}
	if o.Signature != nil {
		sig := *o.Signature
		o.Signature = &sig
	}
	return o
}

// CustomerOrderLedger агрегирует все заказы одного клиента.
type CustomerOrderLedger struct {
	CustomerID string `json:"customerId"`
	// LastOrderID — кэш последнего выданного номера заказа (глобально, не только для клиента).
	LastOrderID string  `json:"lastOrderId"`
	Orders      []Order `json:"orders"`
	// Version — токен optimistic locking; 0 означает ещё не сохранённый ledger.
	Version int64 `json:"-"`
}

// NewLedger создаёт пустой ledger клиента.
func NewLedger(customerID string) CustomerOrderLedger {
	return CustomerOrderLedger{CustomerID: customerID, Orders: []Order{}}
}

// FindOrder возвращает индекс заказа в ledger или -1.
func (l *CustomerOrderLedger) FindOrder(orderID string) int {
	for i := range l.Orders {
		if l.Orders[i].ID == orderID {
			return i
		}
	}
	return -1
}

// AddOrder добавляет заказ. LastOrderID только растёт: заказ с меньшим номером
// (например, после повтора при конфликте версий) его не откатывает.
func (l *CustomerOrderLedger) AddOrder(order Order) {
	l.Orders = append(l.Orders, order)
	if orderIDAfter(order.ID, l.LastOrderID) {
		l.LastOrderID = order.ID
	}
}

// orderIDAfter сообщает, что номер next численно больше current.
// Пустой или нечисловой current всегда уступает.
func orderIDAfter(next, current string) bool {
	cur, err := strconv.ParseInt(strings.TrimSpace(current), 10, 64)
	if err != nil {
		return true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(next), 10, 64)
	if err != nil {
		return false
	}
	return n > cur
}

// RemoveOrder удаляет все заказы с указанным номером и сообщает, было ли что-то удалено.
func (l *CustomerOrderLedger) RemoveOrder(orderID string) bool {
	kept := make([]Order, 0, len(l.Orders))
	removed := false
	for _, order := range l.Orders {
		if order.ID == orderID {
			removed = true
			continue
		}
		kept = append(kept, order)
	}
	l.Orders = kept
	return removed
}

// Clone возвращает копию ledger, не разделяющую память с оригиналом.
func (l CustomerOrderLedger) Clone() CustomerOrderLedger {
	orders := make([]Order, len(l.Orders))
	for i, order := range l.Orders {
		orders[i] = order.Clone()
	}
	l.Orders = orders
	return l
}

// EnrichedOrder — заказ вместе с идентификатором и именем владельца.
type EnrichedOrder struct {
	Order
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
}
