// Package jsonstore хранит локальное состояние агента в JSON-файлах:
// статус подписки, настройки, гистограмму использования, дневной лимит и кеш лицензии.
package jsonstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/cohost-credits/internal/lib/jsonfile"
	"github.com/magabrotheeeer/cohost-credits/internal/lib/sl"
)

// ErrNotExist файл хранилища ещё не создан.
var ErrNotExist = jsonfile.ErrNotExist

// Store один JSON-файл с сериализованным чтением-изменением-записью внутри процесса.
type Store[T any] struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// New создаёт хранилище для файла path.
func New[T any](path string, log *slog.Logger) *Store[T] {
	return &Store[T]{path: path, log: log}
}

// Path путь к файлу.
func (s *Store[T]) Path() string {
	return s.path
}

// Load читает файл. Для отсутствующего файла возвращает нулевое значение
// и ошибку, удовлетворяющую errors.Is(err, ErrNotExist).
func (s *Store[T]) Load() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store[T]) load() (T, error) {
	var v T
	if err := jsonfile.Read(s.path, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// LoadOrZero читает файл, а при любой ошибке возвращает нулевое значение.
// Повреждённый файл логируется.
func (s *Store[T]) LoadOrZero() T {
	v, err := s.Load()
	if err != nil && !errors.Is(err, ErrNotExist) {
		s.log.Warn("corrupted state file, using defaults", slog.String("path", s.path), sl.Err(err))
	}
	return v
}

// Save атомарно перезаписывает файл.
func (s *Store[T]) Save(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jsonfile.Write(s.path, v)
}

// Update читает текущее значение (нулевое, если файла нет или он повреждён),
// применяет fn и сохраняет результат. Если fn вернула ошибку, файл не меняется.
func (s *Store[T]) Update(fn func(v *T) error) (T, error) {
	const op = "jsonstore.Update"
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load()
	if err != nil && !errors.Is(err, ErrNotExist) {
		s.log.Warn("corrupted state file, starting from defaults", slog.String("path", s.path), sl.Err(err))
	}
	if err := fn(&v); err != nil {
		var zero T
		return zero, err
	}
	if err := jsonfile.Write(s.path, v); err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Exists файл существует.
func (s *Store[T]) Exists() bool {
	return jsonfile.Exists(s.path)
}

// Remove удаляет файл.
func (s *Store[T]) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jsonfile.Remove(s.path)
}
