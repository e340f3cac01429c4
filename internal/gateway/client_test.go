package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flattenQuery берёт первое значение каждого query-параметра
func flattenQuery(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func TestClient_Pay(t *testing.T) {
	var received map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = flattenQuery(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"PayResult":{"TransactionId":"T1","TransactionStatus":"Success"}}`))
	}))
	defer server.Close()

	client := NewClient(zap.NewNop(), Config{
		Endpoint:  server.URL + "/",
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "secret-key",
	})

	resp, err := client.Pay(context.Background(), "token-123", "account-456", 1000)
	require.NoError(t, err)

	// Ответ разобран
	require.NotNil(t, resp.PayResult)
	assert.Equal(t, "T1", resp.PayResult.TransactionID)
	assert.Equal(t, TransactionStatusSuccess, resp.PayResult.TransactionStatus)
	assert.False(t, resp.HasErrors())

	// Обязательные параметры запроса
	assert.Equal(t, "Pay", received["Action"])
	assert.Equal(t, "token-123", received["SenderTokenId"])
	assert.Equal(t, "account-456", received["RecipientAccountId"])
	assert.Equal(t, "1000", received["TransactionAmount"])
	assert.Equal(t, "AKIAEXAMPLE", received["AccessKey"])
	assert.Equal(t, SignatureMethod, received["SignatureMethod"])
	assert.NotEmpty(t, received["CallerReference"])
	assert.NotEmpty(t, received["Timestamp"])

	// Подпись запроса проверяется тем же секретом по тому же endpoint
	assert.True(t, Verify(received, received[SignatureKey], "secret-key", server.URL+"/", http.MethodGet))
}

func TestClient_FreshCallerReferencePerCall(t *testing.T) {
	var references []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		references = append(references, r.URL.Query().Get("CallerReference"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(zap.NewNop(), Config{
		Endpoint:  server.URL + "/",
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "secret-key",
	})

	_, err := client.CancelToken(context.Background(), "token-123")
	require.NoError(t, err)
	_, err = client.CancelToken(context.Background(), "token-123")
	require.NoError(t, err)

	// Каждый вызов получает новый CallerReference - повтор запроса
	// шлюз отвергает как replay
	require.Len(t, references, 2)
	assert.NotEqual(t, references[0], references[1])
}

func TestClient_GatewayErrorEnvelope(t *testing.T) {
	// Шлюз возвращает конверт с ошибкой и HTTP 400: тело всё равно
	// декодируется, транспортной ошибки нет
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"Errors":{"Error":{"Code":"InvalidTokenId","Message":"bad token"}}}`))
	}))
	defer server.Close()

	client := NewClient(zap.NewNop(), Config{
		Endpoint:  server.URL + "/",
		SecretKey: "secret-key",
	})

	resp, err := client.GetTransactionStatus(context.Background(), "T1")
	require.NoError(t, err)
	require.True(t, resp.HasErrors())

	ge, err := resp.GatewayError()
	require.NoError(t, err)
	assert.Equal(t, "InvalidTokenId", ge.Code)
	assert.Equal(t, ClassFatal, ge.Classification)
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // сервер уже закрыт - соединение не установится

	client := NewClient(zap.NewNop(), Config{
		Endpoint:  server.URL + "/",
		SecretKey: "secret-key",
	})

	_, err := client.Pay(context.Background(), "token-123", "account-456", 1000)
	assert.Error(t, err)
}

func TestClient_PaymentTokenURL(t *testing.T) {
	client := NewClient(zap.NewNop(), Config{
		PipelineEndpoint: "https://authorize.example.com/cobranded-ui/actions/start",
		AccessKey:        "AKIAEXAMPLE",
		SecretKey:        "secret-key",
	})

	redirect, err := client.PaymentTokenURL("https://app.example.com/callbacks/payment-token", 2500)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "authorize.example.com", u.Host)

	q := flattenQuery(u.Query())
	assert.Equal(t, "MultiUse", q["pipelineName"])
	assert.Equal(t, "2500", q["transactionAmount"])
	assert.Equal(t, "https://app.example.com/callbacks/payment-token", q["returnURL"])
	assert.NotEmpty(t, q["callerReference"])

	// URL подписан и подпись сходится
	assert.True(t, Verify(q, q[SignatureKey], "secret-key",
		"https://authorize.example.com/cobranded-ui/actions/start", http.MethodGet))
}

func TestClient_RecipientOnboardingURL(t *testing.T) {
	client := NewClient(zap.NewNop(), Config{
		PipelineEndpoint: "https://authorize.example.com/cobranded-ui/actions/start",
		AccessKey:        "AKIAEXAMPLE",
		SecretKey:        "secret-key",
	})

	redirect, err := client.RecipientOnboardingURL("https://app.example.com/callbacks/recipient")
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)

	q := flattenQuery(u.Query())
	assert.Equal(t, "Recipient", q["pipelineName"])
	assert.NotEmpty(t, q[SignatureKey])
}
