package notes

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func mustOwner(t *testing.T, id, email string) vault.Owner {
	t.Helper()
	owner, err := vault.NewOwner(id, email)
	if err != nil {
		t.Fatalf("unexpected owner error: %v", err)
	}
	return owner
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newServiceForTest(t *testing.T) (*Service, *gorm.DB, *observer.ObservedLogs) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}); err != nil {
		t.Fatalf("failed to migrate notes: %v", err)
	}
	core, logs := observer.New(zap.ErrorLevel)
	clock := &tickingClock{now: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: vault.NewUUIDProvider(),
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db, logs
}
