package domain

import (
	"context"
	"time"
)

// OrderRepository — document store двух агрегатов: Customer и CustomerOrderLedger.
// Оба ключуются идентификатором клиента.
type OrderRepository interface {
	// GetCustomer возвращает клиента или ErrCustomerNotFound.
	GetCustomer(ctx context.Context, id string) (Customer, error)
	// SaveCustomer создаёт или перезаписывает клиента.
	SaveCustomer(ctx context.Context, customer Customer) error
	// ListCustomers возвращает всех клиентов, отсортированных по имени.
	ListCustomers(ctx context.Context) ([]Customer, error)
	// GetLedger возвращает ledger клиента или ErrLedgerNotFound.
	GetLedger(ctx context.Context, customerID string) (CustomerOrderLedger, error)
	// ScanLedgers читает коллекцию ledger целиком.
	ScanLedgers(ctx context.Context) ([]CustomerOrderLedger, error)
	// SaveLedger выполняет условную запись: Version==0 создаёт новый ledger,
	// иначе версия в хранилище должна совпасть. Возвращает ledger с новой версией
	// или ErrLedgerVersionConflict.
	SaveLedger(ctx context.Context, ledger CustomerOrderLedger) (CustomerOrderLedger, error)
	// DeleteLedger удаляет ledger клиента целиком. Отсутствие ledger не ошибка.
	DeleteLedger(ctx context.Context, customerID string) error
}

// Sequence — именованный монотонный счётчик с версией для compare-and-swap.
type Sequence struct {
	Name    string
	Value   int64
	Version int64
}

// SequenceRepository хранит счётчики, через которые сериализуется выдача номеров.
type SequenceRepository interface {
	// Get возвращает счётчик; found=false, если его ещё нет.
	Get(ctx context.Context, name string) (seq Sequence, found bool, err error)
	// CompareAndSet записывает value, если текущая версия равна expectedVersion
	// (0 — счётчик должен отсутствовать). Иначе ErrSequenceVersionConflict.
	CompareAndSet(ctx context.Context, name string, expectedVersion, value int64) (Sequence, error)
}

// ObjectStore сохраняет бинарные объекты (изображения подписей).
type ObjectStore interface {
	// Put сохраняет объект и возвращает URL, по которому его можно получить.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// Email — полностью собранное письмо для почтового сервиса.
type Email struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	Bcc      []string `json:"bcc,omitempty"`
	ReplyTo  []string `json:"replyTo,omitempty"`
	Subject  string   `json:"subject"`
	HTMLBody string   `json:"htmlBody"`
	TextBody string   `json:"textBody"`
}

// Mailer передаёт письмо сервису доставки почты.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// OutboxMessage хранит данные для отложенной отправки.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository — очередь писем, которые не удалось отправить сразу.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher доставляет сообщение из outbox; должен быть идемпотентным.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}
