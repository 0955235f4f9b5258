package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileDB(t *testing.T) (string, *DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "source.db")
	logger := zerolog.Nop()
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return dbPath, db
}

func TestBackupService(t *testing.T) {
	dbPath, db := fileDB(t)
	_, err := db.CreateBooking(context.Background(), testBooking(models.NewDate(2024, 5, 12), "court1", "10:00", 60), testParticipants())
	require.NoError(t, err)

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{Enabled: true, StoragePath: storagePath, RetentionDays: 1}
	logger := zerolog.Nop()
	s := NewBackupService(dbPath, cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(context.Background())
		require.NoError(t, err)
		assert.FileExists(t, path)

		restored, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer restored.Close()
		bookings, err := restored.ListBookings(context.Background())
		require.NoError(t, err)
		assert.Len(t, bookings, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "keep-me.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())
		assert.NoFileExists(t, oldFile)
		assert.FileExists(t, foreign)

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})
}

func TestBackupService_FallbackCopy(t *testing.T) {
	dbPath, _ := fileDB(t)
	storagePath := t.TempDir()
	logger := zerolog.Nop()
	s := NewBackupService(dbPath, config.BackupConfig{Enabled: true, StoragePath: storagePath}, &logger)

	backupPath := filepath.Join(storagePath, "fallback_test.db")
	require.NoError(t, s.copyFile(backupPath))
	assert.FileExists(t, backupPath)
}

func TestBackupService_Loop(t *testing.T) {
	dbPath, _ := fileDB(t)
	storagePath := filepath.Join(t.TempDir(), "loop")
	logger := zerolog.Nop()
	s := NewBackupService(dbPath, config.BackupConfig{Enabled: true, Schedule: "10ms", StoragePath: storagePath}, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	files, err := os.ReadDir(storagePath)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
}

func TestBackupService_BadStoragePath(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, nil, 0o644))

	logger := zerolog.Nop()
	s := NewBackupService(":memory:", config.BackupConfig{Enabled: true, StoragePath: tmpFile + "/subdir"}, &logger)

	_, err := s.PerformBackup(context.Background())
	assert.Error(t, err)
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService("any", config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
