package logger

import (
	"time"

	"go.uber.org/zap"
)

// RequestID поле с ID запроса
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method поле с HTTP методом
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path поле с путем запроса
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status поле со статусом HTTP ответа
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration поле с длительностью
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Repository поле с именем репозитория
func Repository(v string) zap.Field {
	return zap.String("repository", v)
}

// Operation поле с операцией репозитория
func Operation(v string) zap.Field {
	return zap.String("operation", v)
}

// Collection поле с коллекцией хранилища
func Collection(v string) zap.Field {
	return zap.String("collection", v)
}

// EntityID поле с ID сущности
func EntityID(v string) zap.Field {
	return zap.String("entity_id", v)
}

// Count поле с количеством
func Count(v int) zap.Field {
	return zap.Int("count", v)
}
