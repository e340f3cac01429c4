package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	// SignatureKey - имя параметра, в котором передаётся подпись запроса
	SignatureKey = "Signature"
	// SignatureMethod - алгоритм подписи, передаётся в каждом запросе
	SignatureMethod = "HmacSHA256"
	// SignatureVersion - версия схемы подписи
	SignatureVersion = "2"
)

// Sign вычисляет подпись для набора параметров запроса к платёжному шлюзу.
// Каноническая форма: METHOD\nhost\npath\nотсортированная query-строка.
// Параметры сортируются по ключу, поэтому один и тот же набор параметров
// всегда даёт одну и ту же подпись. Входная map не изменяется.
func Sign(params map[string]string, secretKey, httpMethod, host, path string) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("secret key is required")
	}
	if httpMethod == "" || host == "" {
		return "", fmt.Errorf("http method and host are required")
	}
	if path == "" {
		path = "/"
	}

	canonical := canonicalQuery(params)

	// Строка для подписи: метод, host в нижнем регистре, путь, query
	stringToSign := strings.ToUpper(httpMethod) + "\n" +
		strings.ToLower(host) + "\n" +
		path + "\n" +
		canonical

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(stringToSign))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify проверяет подпись входящего запроса (redirect/callback от шлюза).
// Берёт копию параметров, удаляет из копии саму подпись, пересчитывает её
// по endpoint URL и сравнивает constant-time сравнением.
// Исходная map параметров не изменяется.
func Verify(params map[string]string, signature, secretKey, endpointURL, httpMethod string) bool {
	if signature == "" || secretKey == "" {
		return false
	}

	u, err := url.Parse(endpointURL)
	if err != nil || u.Host == "" {
		return false
	}

	// Копируем параметры, чтобы не трогать map вызывающего кода
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	// Подпись не участвует в вычислении самой себя
	delete(copied, SignatureKey)

	expected, err := Sign(copied, secretKey, httpMethod, u.Host, u.Path)
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(signature), []byte(expected))
}

// canonicalQuery собирает каноническую query-строку:
// ключи сортируются, ключи и значения кодируются по RFC 3986
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, encodeRFC3986(k)+"="+encodeRFC3986(params[k]))
	}

	return strings.Join(pairs, "&")
}

// encodeRFC3986 кодирует строку по RFC 3986
// (url.QueryEscape кодирует пробел как "+", шлюз ожидает "%20")
func encodeRFC3986(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%7E", "~")
	return escaped
}
