package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryCount     = 2
)

// HTTPStore загружает объекты HTTP PUT-запросом в S3-совместимое хранилище.
type HTTPStore struct {
	client   *resty.Client
	endpoint string
	logger   *log.Entry
}

// HTTPOption настраивает HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient подменяет resty-клиент (используется в тестах).
func WithHTTPClient(client *resty.Client) HTTPOption {
	return func(s *HTTPStore) {
		if client != nil {
			s.client = client
		}
	}
}

// WithHTTPLogger задаёт logger.
func WithHTTPLogger(logger *log.Entry) HTTPOption {
	return func(s *HTTPStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHTTPStore создаёт клиент object store для endpoint вида https://{bucket}.example.com.
func NewHTTPStore(endpoint string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		client: resty.New().
			SetTimeout(defaultRequestTimeout).
			SetRetryCount(defaultRetryCount).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() >= http.StatusInternalServerError
			}),
		endpoint: endpoint,
		logger:   log.WithField("component", "object-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put загружает объект и возвращает его URL.
func (s *HTTPStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	target := ObjectURL(s.endpoint, bucket, key)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Put(target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.FromContext(fmt.Errorf("put %s: %w", key, err))
		}
		return "", domain.Unavailable("put object "+key, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		s.logger.WithFields(log.Fields{
			"bucket": bucket,
			"key":    key,
			"bytes":  len(data),
		}).Debug("object stored")
		return target, nil
	default:
		return "", domain.Unavailable("put object "+key, fmt.Errorf("unexpected status %d", resp.StatusCode()))
	}
}

// Check проверяет доступность endpoint для health checker. Любой HTTP-ответ считается доступностью.
func (s *HTTPStore) Check(ctx context.Context, bucket string) error {
	_, err := s.client.R().SetContext(ctx).Head(ObjectURL(s.endpoint, bucket, ""))
	if err != nil {
		return domain.Unavailable("object store head", err)
	}
	return nil
}

var _ domain.ObjectStore = (*HTTPStore)(nil)
