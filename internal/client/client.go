// Package client реализует HTTP-клиент к peer-устройству: проверка
// доступности, pull экспорта и push локальных изменений.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/forwardsync/internal/backup"
	"github.com/iudanet/forwardsync/internal/models"
	"github.com/iudanet/forwardsync/pkg/api"
)

// NetworkError - отказ сети или peer-а: не удалось соединиться, peer
// ответил не тем статусом или не тем телом. StatusCode равен 0, если
// ответа не было вовсе.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: peer returned status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NormalizeAddress приводит адрес peer-а к базовому URL: дописывает схему
// http:// и порт по умолчанию, если они не указаны. Пользователь обычно
// вводит голый IP из экрана другого устройства.
func NormalizeAddress(addr string, defaultPort int) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	// Порт уже указан, если после схемы есть двоеточие.
	rest := addr[strings.Index(addr, "://")+3:]
	if !strings.Contains(rest, ":") {
		addr = addr + ":" + strconv.Itoa(defaultPort)
	}

	return addr
}

// Client представляет HTTP клиент для обмена с peer-устройством
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает клиент к peer-у. baseURL должен быть нормализован
// через NormalizeAddress.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// BaseURL возвращает базовый URL peer-а.
func (c *Client) BaseURL() string { return c.baseURL }

// Status проверяет, что по адресу отвечает peer-устройство: GET /status
// должен вернуть фиксированную строку.
func (c *Client) Status(ctx context.Context) error {
	url := c.baseURL + "/status"

	body, err := c.get(ctx, "status", url)
	if err != nil {
		return err
	}

	if strings.TrimSpace(string(body)) != api.StatusOK {
		return &NetworkError{
			Op:  "status",
			URL: url,
			Err: fmt.Errorf("unexpected status body %q", truncate(string(body), 64)),
		}
	}

	return nil
}

// Pull запрашивает экспорт peer-а. since > 0 запрашивает дельту
// (записи с updatedAt > since), иначе полный снапшот.
func (c *Client) Pull(ctx context.Context, since models.Timestamp) (*backup.Document, error) {
	url := c.baseURL + "/export"
	if since > 0 {
		url = fmt.Sprintf("%s?deltaSince=%d", url, since)
	}

	body, err := c.get(ctx, "pull", url)
	if err != nil {
		return nil, err
	}

	doc, err := backup.Decode(body)
	if err != nil {
		return nil, &NetworkError{Op: "pull", URL: url, Err: err}
	}

	return doc, nil
}

// Push отправляет документ с локальными изменениями на peer.
func (c *Client) Push(ctx context.Context, doc *backup.Document) (*api.ImportResponse, error) {
	url := c.baseURL + "/import"

	data, err := doc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "push", URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "push", URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{
			Op:         "push",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", peerErrorMessage(body)),
		}
	}

	var result api.ImportResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &NetworkError{Op: "push", URL: url, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &result, nil
}

func (c *Client) get(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{
			Op:         op,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", peerErrorMessage(body)),
		}
	}

	return body, nil
}

// peerErrorMessage достает сообщение из JSON-ошибки peer-а, иначе
// возвращает усеченное сырое тело.
func peerErrorMessage(body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return truncate(string(body), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
