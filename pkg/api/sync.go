// Package api содержит wire-типы HTTP-обмена между устройствами.
// Сам backup-документ описан в internal/backup и передается как есть.
package api

// StatusOK - фиксированное тело ответа GET /status. Клиент сверяет его,
// чтобы убедиться, что по адресу отвечает именно peer-устройство,
// а не случайный HTTP-сервер.
const StatusOK = "forwardsync-peer"

// ImportResponse представляет итог применения POST /import
type ImportResponse struct {
	// Applied - число сохраненных записей
	Applied int `json:"applied"`
	// Stale - число записей, отклоненных как устаревшие
	Stale int `json:"stale"`
	// Skipped - число записей, пропущенных из-за неразрешимых родителей
	Skipped int `json:"skipped"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"` // описание ошибки
}
