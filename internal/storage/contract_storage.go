package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ContractStorage отвечает за файловое хранилище документов договоров.
type ContractStorage struct {
	rootPath string
}

// NewContractStorage создаёт файловое хранилище.
func NewContractStorage(rootPath string) (*ContractStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}
	return &ContractStorage{rootPath: rootPath}, nil
}

// Save сохраняет документ договора и возвращает относительный путь.
// Запись идёт во временный файл с последующим переименованием: читатель
// никогда не увидит недописанный документ.
func (s *ContractStorage) Save(ctx context.Context, orderID uuid.UUID, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.rootPath, orderID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: не удалось создать каталог договора: %w", err)
	}

	fileName := fmt.Sprintf("contract_%d.txt", time.Now().UnixNano())
	targetPath := filepath.Join(dir, fileName)
	tempPath := targetPath + ".tmp"

	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return "", fmt.Errorf("storage: ошибка записи договора: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return filepath.Join(orderID.String(), fileName), nil
}

// Read возвращает содержимое документа по относительному пути.
func (s *ContractStorage) Read(ctx context.Context, relativePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.rootPath, relativePath))
	if err != nil {
		return nil, fmt.Errorf("storage: не удалось прочитать договор: %w", err)
	}
	return data, nil
}
