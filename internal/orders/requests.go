package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// CreateOrderRequest — данные нового заказа в том виде, в каком их передаёт клиент.
type CreateOrderRequest struct {
	CustomerID string                 `json:"customerId"`
	LineItems  []domain.LineItemInput `json:"lineItems"`
	IsOpen     bool                   `json:"isOpen"`
	// SignatureBase64 — изображение подписи; пустая строка означает, что подписи нет.
	SignatureBase64 string `json:"signature,omitempty"`
	Signee          string `json:"signee,omitempty"`
}

// Validate проверяет запрос до любых обращений к хранилищу.
func (r CreateOrderRequest) Validate() error {
	_, err := r.parse()
	return err
}

func (r CreateOrderRequest) parse() ([]domain.LineItem, error) {
	if strings.TrimSpace(r.CustomerID) == "" {
		return nil, domain.ErrCustomerIDRequired
	}
	return domain.ParseLineItems(r.LineItems)
}

// OrderPatch описывает изменение заказа; nil-поля не меняются.
type OrderPatch struct {
	TotalPrice *string                 `json:"totalPrice,omitempty"`
	IsOpen     *bool                   `json:"isOpen,omitempty"`
	LineItems  []domain.LineItemInput  `json:"lineItems,omitempty"`
	Signature  *domain.SignatureRecord `json:"signature,omitempty"`
}

// parsedPatch — OrderPatch с разобранными числами.
type parsedPatch struct {
	total     *decimal.Decimal
	isOpen    *bool
	lineItems []domain.LineItem
	signature *domain.SignatureRecord
}

// Validate проверяет числовые поля патча.
func (p OrderPatch) Validate() error {
	_, err := p.parse()
	return err
}

func (p OrderPatch) parse() (parsedPatch, error) {
	out := parsedPatch{isOpen: p.IsOpen}
	if p.TotalPrice != nil {
		total, err := decimal.NewFromString(strings.TrimSpace(*p.TotalPrice))
		if err != nil {
			return parsedPatch{}, fmt.Errorf("%w: total_price %q is not a number", domain.ErrValidation, *p.TotalPrice)
		}
		out.total = &total
	}
	if p.LineItems != nil {
		items, err := domain.ParseLineItems(p.LineItems)
		if err != nil {
			return parsedPatch{}, err
		}
		out.lineItems = items
	}
	if p.Signature != nil {
		sig := *p.Signature
		out.signature = &sig
	}
	return out, nil
}

// apply применяет патч к заказу. Если позиции заменены, а сумма не передана,
// сумма пересчитывается; явная сумма обязана совпасть с позициями.
func (p parsedPatch) apply(order *domain.Order) error {
	if p.isOpen != nil {
		order.IsOpen = *p.isOpen
	}
	if p.lineItems != nil {
		order.LineItems = p.lineItems
		order.TotalPrice = domain.SumLineItems(p.lineItems)
	}
	if p.total != nil {
		if expected := order.ComputeTotal(); !expected.Equal(*p.total) {
			return fmt.Errorf("order %s: total %s, line items %s: %w",
				order.ID, p.total.StringFixed(2), expected.StringFixed(2), domain.ErrPatchTotalMismatch)
		}
		order.TotalPrice = *p.total
	}
	if p.signature != nil {
		order.Signature = p.signature
	}
	return nil
}

// SendReceiptRequest описывает отправку квитанции.
//
// Без OrderID и с Create заказ сначала создаётся; с OrderID и Patch сначала обновляется.
// Без OrderID и без Create квитанция отправляется по последнему заказу клиента.
type SendReceiptRequest struct {
	CustomerID string              `json:"customerId"`
	OrderID    string              `json:"orderId,omitempty"`
	Create     *CreateOrderRequest `json:"create,omitempty"`
	Patch      *OrderPatch         `json:"patch,omitempty"`
	// Locale — BCP 47 тег; пустой означает локаль по умолчанию.
	Locale string `json:"locale,omitempty"`
}

// Validate проверяет согласованность полей запроса.
func (r SendReceiptRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return domain.ErrCustomerIDRequired
	}
	if r.Create != nil {
		if r.OrderID != "" {
			return fmt.Errorf("%w: create and order_id are mutually exclusive", domain.ErrValidation)
		}
		create := *r.Create
		if create.CustomerID == "" {
			create.CustomerID = r.CustomerID
		}
		if create.CustomerID != r.CustomerID {
			return fmt.Errorf("%w: create.customer_id differs from customer_id", domain.ErrValidation)
		}
		if err := create.Validate(); err != nil {
			return err
		}
	}
	if r.Patch != nil {
		if r.OrderID == "" {
			return domain.ErrOrderIDRequired
		}
		if err := r.Patch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReceiptResult — итог отправки квитанции.
type ReceiptResult struct {
	OrderID string
	Subject string
	// Queued сообщает, что письмо не ушло сразу и поставлено в очередь повторной отправки.
	Queued bool
}
