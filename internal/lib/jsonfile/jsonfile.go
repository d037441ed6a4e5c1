// Package jsonfile читает и атомарно записывает JSON-файлы агента.
// Запись идёт во временный файл рядом с целевым, затем fsync и rename,
// поэтому прерванная запись не оставляет наполовину записанный файл.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotExist файл отсутствует.
var ErrNotExist = fs.ErrNotExist

// Read разбирает JSON из path в v. Для отсутствующего файла возвращает ошибку,
// удовлетворяющую errors.Is(err, ErrNotExist).
func Read(path string, v any) error {
	const op = "jsonfile.Read"
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return nil
}

// Write сериализует v с отступами и атомарно заменяет path.
func Write(path string, v any) error {
	const op = "jsonfile.Write"
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Remove удаляет файл. Отсутствие файла ошибкой не считается.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("jsonfile.Remove: %w", err)
	}
	return nil
}

// Exists файл существует.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
