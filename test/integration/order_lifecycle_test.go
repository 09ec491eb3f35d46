package integration

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
	"github.com/vladislavdragonenkov/delivery/internal/mail"
	"github.com/vladislavdragonenkov/delivery/internal/objectstore"
	"github.com/vladislavdragonenkov/delivery/internal/orders"
	"github.com/vladislavdragonenkov/delivery/internal/receipt"
	"github.com/vladislavdragonenkov/delivery/internal/service/outbox"
	"github.com/vladislavdragonenkov/delivery/internal/signature"
	"github.com/vladislavdragonenkov/delivery/internal/storage/memory"
)

// flakyMailer отказывает, пока failures > 0.
type flakyMailer struct {
	mu       sync.Mutex
	failures int
	sent     []domain.Email
}

func (m *flakyMailer) Send(_ context.Context, email domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.Join(domain.ErrEmailDelivery, errors.New("relay unavailable"))
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *flakyMailer) Sent() []domain.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Email(nil), m.sent...)
}

// OrderLifecycleTestSuite прогоняет заказ от создания до квитанции и удаления.
type OrderLifecycleTestSuite struct {
	suite.Suite
	repo       domain.OrderRepository
	outboxRepo domain.OutboxRepository
	store      *objectstore.MemoryStore
	mailer     *flakyMailer
	workflow   *orders.Workflow
	aggregator *orders.Aggregator
	worker     *outbox.Worker
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	suite.repo = memory.NewOrderRepository()
	suite.outboxRepo = memory.NewOutboxRepository()
	sequences := memory.NewSequenceRepository()
	suite.store = objectstore.NewMemoryStore("https://{bucket}.objects.test")
	suite.mailer = &flakyMailer{}

	suite.workflow = orders.NewWorkflow(
		suite.repo,
		orders.NewAllocator(suite.repo, sequences),
		signature.NewArchiver(suite.store, "signatures", logger),
		receipt.NewRenderer(),
		suite.mailer,
		orders.Config{
			MailFrom:         "orders@maoproduce.co.nz",
			MailBcc:          []string{"office@maoproduce.co.nz"},
			DefaultLocale:    "en-NZ",
			OperationTimeout: 5 * time.Second,
			MaxSaveAttempts:  5,
		},
		orders.WithLogger(logger),
		orders.WithReceiptQueue(mail.NewQueue(suite.outboxRepo)),
	)
	suite.aggregator = orders.NewAggregator(suite.repo, logger, nil)
	suite.worker = outbox.NewWorker(
		suite.outboxRepo,
		mail.NewRetryPublisher(suite.mailer),
		outbox.WithLogger(logger),
		outbox.WithMaxAttempts(1),
		outbox.WithRetryBaseDelay(time.Millisecond),
	)

	ctx := context.Background()
	suite.Require().NoError(suite.repo.SaveCustomer(ctx, domain.Customer{
		ID: "c1", Name: "Alice's Deli", Email: "alice@example.com", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	suite.Require().NoError(suite.repo.SaveCustomer(ctx, domain.Customer{
		ID: "c2", Name: "Bob's Grocer", Email: "bob@example.com", CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
}

func (suite *OrderLifecycleTestSuite) TestFullOrderLifecycle() {
	ctx := context.Background()

	// 1. Открытый заказ без подписи
	firstID, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{
		CustomerID: "c1",
		IsOpen:     true,
		LineItems: []domain.LineItemInput{
			{Title: "Royal Gala apples", Quantity: "10", UnitPrice: "2.40"},
			{Title: "Crate return", Quantity: "-2", UnitPrice: "3.00"},
		},
	})
	suite.Require().NoError(err)
	suite.Equal("17050", firstID)

	// 2. Второй клиент получает следующий номер
	secondID, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{
		CustomerID: "c2",
		LineItems:  []domain.LineItemInput{{Title: "Kiwifruit", Quantity: "4", UnitPrice: "1.50"}},
	})
	suite.Require().NoError(err)
	suite.Equal("17051", secondID)

	// 3. Открытые заказы видны в сводке с именем клиента
	open, err := suite.aggregator.ListOrders(ctx, true)
	suite.Require().NoError(err)
	suite.Require().Len(open, 1)
	suite.Equal(firstID, open[0].ID)
	suite.Equal("Alice's Deli", open[0].CustomerName)
	suite.Equal("18.00", open[0].TotalPrice.StringFixed(2))

	all, err := suite.aggregator.ListOrders(ctx, false)
	suite.Require().NoError(err)
	suite.Len(all, 2)

	// 4. Доставка: подпись и закрытие заказа
	closed := false
	suite.Require().NoError(suite.workflow.UpdateOrder(ctx, "c1", firstID, orders.OrderPatch{
		IsOpen:    &closed,
		Signature: &domain.SignatureRecord{SignedBy: "Alice"},
	}))

	open, err = suite.aggregator.ListOrders(ctx, true)
	suite.Require().NoError(err)
	suite.Empty(open)

	// 5. Квитанция по последнему заказу клиента
	result, err := suite.workflow.SendReceipt(ctx, orders.SendReceiptRequest{CustomerID: "c1"})
	suite.Require().NoError(err)
	suite.Equal(firstID, result.OrderID)
	suite.False(result.Queued)

	sent := suite.mailer.Sent()
	suite.Require().Len(sent, 1)
	suite.Equal([]string{"alice@example.com"}, sent[0].To)
	suite.Equal([]string{"office@maoproduce.co.nz"}, sent[0].Bcc)
	suite.Contains(sent[0].Subject, firstID)
	suite.Contains(sent[0].TextBody, "Alice's Deli")
	suite.Contains(sent[0].HTMLBody, "Crate return")

	// 6. Удаление заказа
	suite.Require().NoError(suite.workflow.RemoveOrder(ctx, "c1", firstID))
	remaining, err := suite.aggregator.ListOrdersForCustomer(ctx, "c1", false)
	suite.Require().NoError(err)
	suite.Empty(remaining)

	// Номер удалённого заказа повторно не выдаётся
	nextID, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{CustomerID: "c1"})
	suite.Require().NoError(err)
	suite.Equal("17052", nextID)
}

func (suite *OrderLifecycleTestSuite) TestSignedDeliveryArchivesImage() {
	ctx := context.Background()
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("\x00\x00\x00\rIHDR")...)

	orderID, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{
		CustomerID:      "c2",
		LineItems:       []domain.LineItemInput{{Title: "Feijoa", Quantity: "3", UnitPrice: "1.20"}},
		SignatureBase64: base64.StdEncoding.EncodeToString(png),
		Signee:          "Bob",
	})
	suite.Require().NoError(err)

	list, err := suite.aggregator.ListOrdersForCustomer(ctx, "c2", false)
	suite.Require().NoError(err)
	suite.Require().Len(list, 1)
	sig := list[0].Signature
	suite.Require().True(sig.HasImage())
	suite.Equal("Bob", sig.SignedBy)
	suite.True(strings.HasPrefix(sig.ImageURL, "https://signatures.objects.test/"+orderID+"-"))

	key := strings.TrimPrefix(sig.ImageURL, "https://signatures.objects.test/")
	obj, ok := suite.store.Get("signatures", key)
	suite.Require().True(ok)
	suite.Equal(png, obj.Data)
}

func (suite *OrderLifecycleTestSuite) TestReceiptRedeliveredFromOutbox() {
	ctx := context.Background()
	suite.mailer.failures = 1

	result, err := suite.workflow.SendReceipt(ctx, orders.SendReceiptRequest{
		CustomerID: "c2",
		Create: &orders.CreateOrderRequest{
			LineItems: []domain.LineItemInput{{Title: "Avocado", Quantity: "6", UnitPrice: "2.00"}},
		},
	})
	suite.Require().ErrorIs(err, domain.ErrEmailDelivery)
	suite.True(result.Queued)
	suite.Equal("17050", result.OrderID)
	suite.Empty(suite.mailer.Sent())

	stats, err := suite.outboxRepo.Stats(ctx)
	suite.Require().NoError(err)
	suite.Equal(1, stats.PendingCount)

	suite.worker.ProcessOnce(ctx)

	sent := suite.mailer.Sent()
	suite.Require().Len(sent, 1)
	suite.Equal([]string{"bob@example.com"}, sent[0].To)

	stats, err = suite.outboxRepo.Stats(ctx)
	suite.Require().NoError(err)
	suite.Zero(stats.PendingCount)
}

func (suite *OrderLifecycleTestSuite) TestConcurrentCreatesGetDistinctIDs() {
	ctx := context.Background()
	const perCustomer = 10

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make(map[string]struct{})
		errs []error
	)
	for _, customerID := range []string{"c1", "c2"} {
		for range perCustomer {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{CustomerID: customerID})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids[id] = struct{}{}
			}()
		}
	}
	wg.Wait()

	for _, err := range errs {
		suite.True(domain.IsRetryable(err), "unexpected non-retryable error: %v", err)
	}
	suite.Len(ids, 2*perCustomer-len(errs))

	all, err := suite.aggregator.ListOrders(ctx, false)
	suite.Require().NoError(err)
	suite.Len(all, len(ids))
}

func (suite *OrderLifecycleTestSuite) TestErrorsAreClassified() {
	ctx := context.Background()

	_, err := suite.workflow.CreateOrder(ctx, orders.CreateOrderRequest{
		CustomerID: "c1",
		LineItems:  []domain.LineItemInput{{Title: "Pears", Quantity: "a dozen", UnitPrice: "1"}},
	})
	suite.Equal(domain.KindRender, domain.KindOf(err))

	err = suite.workflow.UpdateOrder(ctx, "c1", "99999", orders.OrderPatch{})
	suite.Equal(domain.KindNotFound, domain.KindOf(err))

	_, err = suite.aggregator.ListOrdersForCustomer(ctx, "ghost", true)
	suite.Equal(domain.KindNotFound, domain.KindOf(err))

	_, err = suite.workflow.SendReceipt(ctx, orders.SendReceiptRequest{})
	suite.Equal(domain.KindValidation, domain.KindOf(err))
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
