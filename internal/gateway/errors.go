package gateway

// Classification - в какую категорию попадает код ошибки шлюза.
// От категории зависит поведение state machine: повторять операцию,
// завершить контрибуцию с FAILURE или отдать на ручной разбор.
type Classification string

const (
	// ClassRetriable - известная временная ошибка, операцию можно повторить
	ClassRetriable Classification = "RETRIABLE"
	// ClassFatal - известная невосстановимая ошибка
	ClassFatal Classification = "FATAL"
	// ClassUnknown - незнакомый код, консервативно считаем невосстановимым
	ClassUnknown Classification = "UNKNOWN"
)

// GatewayError - классифицированная ошибка шлюза
type GatewayError struct {
	Code           string
	Message        string
	Classification Classification
	Retriable      bool
}

// errorTable - статическая таблица известных кодов ошибок шлюза.
// Коды, которых здесь нет, классифицируются как UNKNOWN.
var errorTable = map[string]Classification{
	// Временные ошибки на стороне шлюза - повторяем
	"ServiceUnavailable":    ClassRetriable,
	"InternalError":         ClassRetriable,
	"RequestThrottled":      ClassRetriable,
	"AccountLimitsExceeded": ClassRetriable,
	"TemporaryDecline":      ClassRetriable,

	// Невосстановимые ошибки - повтор бессмысленен
	"InvalidTokenId":          ClassFatal,
	"TokenNotActive":          ClassFatal,
	"TokenUsageError":         ClassFatal,
	"TransactionDenied":       ClassFatal,
	"DuplicateRequest":        ClassFatal,
	"SignatureDoesNotMatch":   ClassFatal,
	"InvalidAccountState":     ClassFatal,
	"PaymentMethodNotDefined": ClassFatal,
}

// Classify возвращает классификацию для кода ошибки шлюза.
// Незнакомый код попадает в UNKNOWN с retriable=false.
func Classify(code string) GatewayError {
	class, known := errorTable[code]
	if !known {
		return GatewayError{
			Code:           code,
			Classification: ClassUnknown,
			Retriable:      false,
		}
	}

	return GatewayError{
		Code:           code,
		Classification: class,
		Retriable:      class == ClassRetriable,
	}
}
