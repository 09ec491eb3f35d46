package signature

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/delivery/internal/domain"
)

// DefaultContentType используется, если тип изображения не удалось определить.
const DefaultContentType = "image/png"

// keyTimeLayout — ddMMyyyyhhmmss и AM/PM.
const keyTimeLayout = "02012006030405PM"

// ObjectKey возвращает ключ изображения подписи: <orderId>-<ddMMyyyyhhmmssPM>.png.
func ObjectKey(orderID string, at time.Time) string {
	return fmt.Sprintf("%s-%s.png", orderID, at.Format(keyTimeLayout))
}

// Archiver сохраняет изображения подписей в object store.
type Archiver struct {
	store  domain.ObjectStore
	bucket string
	logger *log.Entry
}

// NewArchiver создаёт Archiver для указанного bucket.
func NewArchiver(store domain.ObjectStore, bucket string, logger *log.Entry) *Archiver {
	if logger == nil {
		logger = log.WithField("component", "signature-archiver")
	}
	return &Archiver{store: store, bucket: bucket, logger: logger}
}

// Archive декодирует base64-изображение, загружает его под ключом key и возвращает URL.
func (a *Archiver) Archive(ctx context.Context, data, key string) (string, error) {
	raw, err := Decode(data)
	if err != nil {
		return "", err
	}

	contentType := DetectContentType(raw)
	url, err := a.store.Put(ctx, a.bucket, key, raw, contentType)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageUnavailable) && !errors.Is(err, domain.ErrTimeout) {
			err = domain.Unavailable("archive signature", domain.FromContext(err))
		}
		return "", fmt.Errorf("archive signature %s: %w", key, err)
	}

	a.logger.WithFields(log.Fields{
		"key":          key,
		"content_type": contentType,
		"bytes":        len(raw),
	}).Info("signature archived")
	return url, nil
}

// Decode принимает стандартный base64 с выравниванием или без, а также data URL
// вида data:image/png;base64,....
func Decode(data string) ([]byte, error) {
	payload := strings.TrimSpace(data)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 || !strings.HasSuffix(payload[:idx], ";base64") {
			return nil, fmt.Errorf("unsupported data url: %w", domain.ErrInvalidSignatureData)
		}
		payload = payload[idx+1:]
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, fmt.Errorf("empty payload: %w", domain.ErrInvalidSignatureData)
	}

	encoding := base64.StdEncoding
	if !strings.HasSuffix(payload, "=") && len(payload)%4 != 0 {
		encoding = base64.RawStdEncoding
	}
	raw, err := encoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignatureData, err)
	}
	return raw, nil
}

// DetectContentType определяет MIME-тип изображения по содержимому.
func DetectContentType(data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return DefaultContentType
}
