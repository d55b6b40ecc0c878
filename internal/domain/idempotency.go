package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	// Ответ хранится и отдаётся повторам до истечения TTL.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// DefaultIdempotencyTTL — срок хранения ответа по ключу, если TTL не задан.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencySource — транспорт, принявший ключ.
type IdempotencySource string

const (
	// IdempotencySourceGRPC — metadata idempotency-key в OrderService.
	IdempotencySourceGRPC IdempotencySource = "grpc"
	// IdempotencySourceHTTP — заголовок Idempotency-Key в JSON API.
	IdempotencySourceHTTP IdempotencySource = "http"
)

// IdempotencySources перечисляет транспорты витрины.
var IdempotencySources = []IdempotencySource{IdempotencySourceGRPC, IdempotencySourceHTTP}

// Valid проверяет, что транспорт известен.
func (s IdempotencySource) Valid() bool {
	return s == IdempotencySourceGRPC || s == IdempotencySourceHTTP
}

// IdempotencyKey — ключ клиента в пространстве имён транспорта: одинаковые
// значения из gRPC и HTTP относятся к разным запросам.
type IdempotencyKey struct {
	Source IdempotencySource
	Value  string
}

// GRPCKey строит ключ из metadata gRPC-запроса.
func GRPCKey(value string) IdempotencyKey {
	return IdempotencyKey{Source: IdempotencySourceGRPC, Value: value}
}

// HTTPKey строит ключ из заголовка HTTP-запроса.
func HTTPKey(value string) IdempotencyKey {
	return IdempotencyKey{Source: IdempotencySourceHTTP, Value: value}
}

// Normalize обрезает пробелы и проверяет ключ.
func (k IdempotencyKey) Normalize() (IdempotencyKey, error) {
	k.Value = strings.TrimSpace(k.Value)
	if k.Value == "" {
		return IdempotencyKey{}, ErrIdempotencyKeyRequired
	}
	if !k.Source.Valid() {
		return IdempotencyKey{}, ErrIdempotencySourceInvalid
	}
	return k, nil
}

func (k IdempotencyKey) String() string {
	return string(k.Source) + ":" + k.Value
}

// IdempotencyRecord хранит состояние обработки запроса с ключом идемпотентности.
// StatusCode — код ответа транспорта (gRPC code или HTTP status).
type IdempotencyRecord struct {
	Key          IdempotencyKey
	RequestHash  string
	ResponseBody []byte
	StatusCode   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProcessingRecord создаёт запись о принятом запросе. Нулевой ttlAt
// заменяется на now + DefaultIdempotencyTTL.
func NewProcessingRecord(key IdempotencyKey, requestHash string, ttlAt, now time.Time) IdempotencyRecord {
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Claim проверяет, может ли новый запрос с хешем requestHash занять ключ этой записи.
// Истёкшая запись ключ не держит.
func (r IdempotencyRecord) Claim(requestHash string, now time.Time) error {
	if r.Expired(now) {
		return nil
	}
	if r.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// IdempotencyPurge — число удалённых просроченных записей по транспортам.
type IdempotencyPurge map[IdempotencySource]int

// Total возвращает общее число удалённых записей.
func (p IdempotencyPurge) Total() int {
	total := 0
	for _, n := range p {
		total += n
	}
	return total
}

// Merge прибавляет other к p.
func (p IdempotencyPurge) Merge(other IdempotencyPurge) {
	for source, n := range other {
		p[source] += n
	}
}
