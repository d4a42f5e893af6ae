package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
)

func TestWithEnvPath(t *testing.T) {
	common.SetTestLoggerNop()

	if os.Getenv(common.EnvKeyRunIntegrationTests) != "true" {
		t.Skip("Skipping integration test: RUN_INTEGRATION_TESTS environment variable not set")
	}

	testPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv(common.EnvKeyDbPath, testPath)

	instance, err := Open(UseSqliteDialector())
	if err != nil || instance == nil || instance.Conn == nil {
		t.Fatalf("Expected non-nil DB connection, got err %v", err)
	}

	if _, err := os.Stat(testPath); os.IsNotExist(err) {
		t.Errorf("Expected database file to be created at %s", testPath)
	}
}
