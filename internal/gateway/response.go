package gateway

import "errors"

// ErrMalformedResponse возвращается, когда ответ шлюза содержит Errors,
// но в нём нет кода ошибки - такой ответ нельзя классифицировать,
// ошибка фатальная и поднимается наверх для ручного разбора
var ErrMalformedResponse = errors.New("gateway response could not be parsed")

// Статусы транзакции, которые шлюз возвращает в TransactionStatus
const (
	TransactionStatusSuccess = "Success"
	TransactionStatusPending = "Pending"
	TransactionStatusFailure = "Failure"
)

// Response - разобранный ответ шлюза на один из трёх вызовов API.
// Errors присутствует только при ошибке; PayResult и
// GetTransactionStatusResult заполняются в зависимости от операции.
type Response struct {
	Errors                     *ErrorsEnvelope `json:"Errors,omitempty"`
	PayResult                  *PayResult      `json:"PayResult,omitempty"`
	GetTransactionStatusResult *TxStatusResult `json:"GetTransactionStatusResult,omitempty"`
}

// ErrorsEnvelope - конверт с ошибкой в ответе шлюза
type ErrorsEnvelope struct {
	Error *ErrorDetail `json:"Error"`
}

// ErrorDetail содержит код и сообщение ошибки шлюза
type ErrorDetail struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// PayResult - результат операции Pay
type PayResult struct {
	TransactionID     string `json:"TransactionId"`
	TransactionStatus string `json:"TransactionStatus"`
}

// TxStatusResult - результат операции GetTransactionStatus
type TxStatusResult struct {
	TransactionStatus string `json:"TransactionStatus"`
}

// HasErrors сообщает, содержит ли ответ конверт с ошибкой
func (r *Response) HasErrors() bool {
	return r.Errors != nil
}

// GatewayError разбирает конверт Errors и классифицирует код ошибки.
// Если конверт есть, но код в нём отсутствует - ErrMalformedResponse.
func (r *Response) GatewayError() (GatewayError, error) {
	if r.Errors == nil || r.Errors.Error == nil || r.Errors.Error.Code == "" {
		return GatewayError{}, ErrMalformedResponse
	}

	ge := Classify(r.Errors.Error.Code)
	ge.Message = r.Errors.Error.Message
	return ge, nil
}
