package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/stickerlab/stickerlab/pkg/config"
)

type testModel struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := OpenSQLiteMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.DB().AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return client
}

func TestPing(t *testing.T) {
	client := newTestClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	if client.Dialect() != "sqlite" {
		t.Fatalf("unexpected dialect %q", client.Dialect())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	client := newTestClient(t)
	db := client.DB()

	if err := db.Create(&testModel{ID: 1, Name: "first"}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err := db.Create(&testModel{ID: 1, Name: "second"}).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(nil) || IsUniqueViolation(errors.New("connection reset")) {
		t.Fatal("unexpected unique violation match")
	}
	if !IsUniqueViolation(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey)) {
		t.Fatal("expected wrapped gorm duplicate to match")
	}
}

func TestNew_SQLiteFileCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := config.DBConfig{
		Driver: config.StoreDriverSQLite,
		DSN:    "file:" + filepath.Join(dir, "stickerlab.db"),
	}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
