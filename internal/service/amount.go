package service

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ronaldocpontes/contribute/internal/repository"
)

// ErrAmountNotWhole возвращается, когда сумма не является целым числом
var ErrAmountNotWhole = errors.New("amount must be a whole number")

// ErrAmountTooSmall возвращается, когда сумма меньше минимальной
var ErrAmountTooSmall = errors.New("amount must be at least 1")

// ParseAmount нормализует введённую пользователем сумму.
// Разделители тысяч убираются ("1,000" -> 1000), сумма должна быть
// положительным целым числом не меньше минимума. Хранится всегда
// нормализованное целое, никогда исходная строка.
func ParseAmount(raw string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, ErrAmountNotWhole
	}

	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, ErrAmountNotWhole
	}

	if amount < repository.MinContributionAmount {
		return 0, ErrAmountTooSmall
	}

	return amount, nil
}
