package engine

import (
	"errors"
	"fmt"
)

// ErrMissingDatabase - документ разобрался, но секции database в нем нет.
// Такой импорт отклоняется целиком.
var ErrMissingDatabase = errors.New("backup document has no database section")

// StorageError - отказ локального хранилища во время операции движка.
// Батч при этом не применен даже частично (хранилище транзакционно),
// состояние движка переходит в StateError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
