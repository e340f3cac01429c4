package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config содержит настройки подключения к платёжному шлюзу
// Заполняется из переменных окружения через caarlos0/env
type Config struct {
	// Endpoint - URL API шлюза (Pay/CancelToken/GetTransactionStatus)
	Endpoint string `env:"GATEWAY_ENDPOINT" envDefault:"https://fps.sandbox.payments.example.com/"`
	// PipelineEndpoint - URL co-branded UI шлюза (выдача токенов через redirect)
	PipelineEndpoint string `env:"GATEWAY_PIPELINE_ENDPOINT" envDefault:"https://authorize.sandbox.payments.example.com/cobranded-ui/actions/start"`
	// AccessKey - публичный ключ доступа
	AccessKey string `env:"GATEWAY_ACCESS_KEY"`
	// SecretKey - секретный ключ для подписи запросов
	SecretKey string `env:"GATEWAY_SECRET_KEY"`
	// Timeout - таймаут одного запроса к шлюзу
	Timeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
}

// Имена pipeline-ов co-branded UI
const (
	pipelineRecipient = "Recipient"
	pipelineMultiUse  = "MultiUse"
)

// Client выполняет подписанные вызовы API платёжного шлюза.
// Каждый вызов - ровно один исходящий HTTP запрос, без внутренних retry:
// решение о повторе принимает state machine, а не транспортный слой.
type Client struct {
	logger *zap.Logger
	cfg    Config
	client *http.Client
}

// NewClient создаёт новый клиент шлюза
func NewClient(logger *zap.Logger, cfg Config) *Client {
	return &Client{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Pay выполняет списание по платёжному токену в пользу получателя
func (c *Client) Pay(ctx context.Context, paymentToken, recipientAccountID string, amount int64) (*Response, error) {
	params := c.defaultParams()
	params["Action"] = "Pay"
	params["SenderTokenId"] = paymentToken
	params["RecipientAccountId"] = recipientAccountID
	params["TransactionAmount"] = strconv.FormatInt(amount, 10)

	return c.send(ctx, params)
}

// CancelToken отменяет платёжный токен (и незавершённый платёж по нему)
func (c *Client) CancelToken(ctx context.Context, paymentToken string) (*Response, error) {
	params := c.defaultParams()
	params["Action"] = "CancelToken"
	params["TokenId"] = paymentToken

	return c.send(ctx, params)
}

// GetTransactionStatus запрашивает текущий статус транзакции
func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (*Response, error) {
	params := c.defaultParams()
	params["Action"] = "GetTransactionStatus"
	params["TransactionId"] = transactionID

	return c.send(ctx, params)
}

// RecipientOnboardingURL строит redirect URL для привязки счёта получателя
// (владелец проекта уходит на шлюз и возвращается на returnURL).
// Сетевых вызовов нет - URL строится и подписывается локально.
func (c *Client) RecipientOnboardingURL(returnURL string) (string, error) {
	params := map[string]string{
		"callerKey":       c.cfg.AccessKey,
		"pipelineName":    pipelineRecipient,
		"returnURL":       returnURL,
		"callerReference": uuid.NewString(),
	}

	return c.pipelineURL(params)
}

// PaymentTokenURL строит redirect URL для выдачи multi-use платёжного токена
// на указанную сумму. Сетевых вызовов нет.
func (c *Client) PaymentTokenURL(returnURL string, amount int64) (string, error) {
	params := map[string]string{
		"callerKey":         c.cfg.AccessKey,
		"pipelineName":      pipelineMultiUse,
		"returnURL":         returnURL,
		"transactionAmount": strconv.FormatInt(amount, 10),
		"callerReference":   uuid.NewString(),
	}

	return c.pipelineURL(params)
}

// defaultParams возвращает обязательные параметры каждого вызова API.
// CallerReference генерируется заново на каждый запрос: повтор того же
// подписанного запроса шлюз отвергает как replay.
func (c *Client) defaultParams() map[string]string {
	return map[string]string{
		"AccessKey":        c.cfg.AccessKey,
		"SignatureMethod":  SignatureMethod,
		"SignatureVersion": SignatureVersion,
		"Timestamp":        time.Now().UTC().Format(time.RFC3339),
		"CallerReference":  uuid.NewString(),
	}
}

// send подписывает параметры и выполняет GET запрос к API шлюза.
// Возвращает ошибку только при транспортном сбое или нечитаемом ответе;
// ошибки уровня шлюза приходят внутри Response.Errors.
func (c *Client) send(ctx context.Context, params map[string]string) (*Response, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}

	signature, err := Sign(params, c.cfg.SecretKey, http.MethodGet, u.Host, u.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	params[SignatureKey] = signature

	// Собираем query-строку
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Ровно один исходящий вызов
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed",
			zap.Error(err),
			zap.String("action", params["Action"]),
		)
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	// Шлюз возвращает JSON конверт и при успехе, и при ошибке,
	// поэтому тело декодируем независимо от HTTP статуса
	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	c.logger.Debug("gateway response received",
		zap.String("action", params["Action"]),
		zap.Int("http_status", resp.StatusCode),
		zap.Bool("has_errors", parsed.HasErrors()),
	)

	return &parsed, nil
}

// pipelineURL подписывает параметры co-branded UI и собирает итоговый URL
func (c *Client) pipelineURL(params map[string]string) (string, error) {
	u, err := url.Parse(c.cfg.PipelineEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid pipeline endpoint: %w", err)
	}

	signature, err := Sign(params, c.cfg.SecretKey, http.MethodGet, u.Host, u.Path)
	if err != nil {
		return "", fmt.Errorf("failed to sign pipeline url: %w", err)
	}
	params[SignatureKey] = signature

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
