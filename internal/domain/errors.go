package domain

import (
	"context"
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки ниже оборачивают один из них,
// поэтому вызывающий код может проверять как errors.Is(err, ErrOrderNotFound),
// так и errors.Is(err, ErrNotFound).
var (
	// ErrValidation — отсутствует или некорректен обязательный параметр запроса. Не ретраится.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound — клиент, ledger или заказ отсутствуют.
	ErrNotFound = errors.New("not found")
	// ErrAllocation — не удалось выдать номер заказа.
	ErrAllocation = errors.New("order id allocation failed")
	// ErrStorageUnavailable — ошибка транспорта document/object store. Можно повторить с backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrRender — некорректные числовые данные при построении квитанции.
	ErrRender = errors.New("receipt render failed")
	// ErrEmailDelivery — почтовый сервис не принял письмо. Изменение заказа не откатывается.
	ErrEmailDelivery = errors.New("email delivery failed")
	// ErrConflict — конфликт версий при условной записи.
	ErrConflict = errors.New("conflict")
	// ErrTimeout — операция не уложилась в отведённый дедлайн.
	ErrTimeout = errors.New("operation timed out")
)

var (
	ErrCustomerIDRequired = fmt.Errorf("%w: customer_id is required", ErrValidation)
	ErrOrderIDRequired    = fmt.Errorf("%w: order_id is required", ErrValidation)
	// ErrPatchTotalMismatch возвращается, если явно переданная сумма расходится с позициями.
	ErrPatchTotalMismatch = fmt.Errorf("%w: total_price does not match line items", ErrValidation)
	// ErrInvalidSignatureData — подпись не является корректным base64.
	ErrInvalidSignatureData = fmt.Errorf("%w: invalid signature data", ErrValidation)

	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrLedgerNotFound   = fmt.Errorf("ledger %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если в ledger клиента нет заказа с таким номером.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrOutboxMessageNotFound возвращается при отметке несуществующей записи outbox.
	ErrOutboxMessageNotFound = fmt.Errorf("outbox message %w", ErrNotFound)

	// ErrInvalidLastOrderID — lastOrderId одного из ledger не парсится как целое число.
	ErrInvalidLastOrderID = fmt.Errorf("%w: last_order_id is not an integer", ErrAllocation)
	// ErrAllocationRace — исчерпаны попытки compare-and-swap счётчика.
	ErrAllocationRace = fmt.Errorf("%w: concurrent allocation retries exhausted", ErrAllocation)

	ErrMalformedQuantity = fmt.Errorf("%w: malformed line item quantity", ErrRender)
	ErrMalformedPrice    = fmt.Errorf("%w: malformed line item price", ErrRender)
	// ErrTotalMismatch — сумма заказа не равна сумме qty*price по позициям.
	ErrTotalMismatch = fmt.Errorf("%w: total price does not match line items", ErrRender)

	// ErrLedgerVersionConflict сигнализирует, что ledger был изменён параллельно.
	ErrLedgerVersionConflict = fmt.Errorf("ledger version %w", ErrConflict)
	// ErrSequenceVersionConflict сигнализирует о параллельном изменении счётчика.
	ErrSequenceVersionConflict = fmt.Errorf("sequence version %w", ErrConflict)
)

// Kind — машиночитаемый вид ошибки для логов, метрик и внешнего транспорта.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindAllocation         Kind = "allocation"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindRender             Kind = "render"
	KindEmailDelivery      Kind = "email_delivery"
	KindConflict           Kind = "conflict"
	KindTimeout            Kind = "timeout"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrAllocation, KindAllocation},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrRender, KindRender},
	{ErrEmailDelivery, KindEmailDelivery},
	{ErrConflict, KindConflict},
	{ErrTimeout, KindTimeout},
}

// KindOf возвращает вид ошибки. Для nil возвращается пустая строка.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsRetryable сообщает, имеет ли смысл повторить операцию целиком.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrAllocationRace),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Unavailable оборачивает ошибку транспорта хранилища в ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorageUnavailable, err))
}

// FromContext переводит ошибку дедлайна в ErrTimeout, остальные ошибки возвращает как есть.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
