package notes

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{}); vault.ErrorCode(err) != "notes.service.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestCreateRequiresTitleAndContent(t *testing.T) {
	service, _, _ := newServiceForTest(t)
	owner := mustOwner(t, "owner-1", "owner@example.com")

	_, err := service.Create(context.Background(), owner, Draft{Title: " ", Content: "body"})
	if !errors.Is(err, ErrMissingTitle) || !errors.Is(err, vault.ErrInvalidInput) {
		t.Fatalf("expected missing title, got %v", err)
	}
	_, err = service.Create(context.Background(), owner, Draft{Title: "Title", Content: "\n"})
	if !errors.Is(err, ErrMissingContent) {
		t.Fatalf("expected missing content, got %v", err)
	}
}

func TestCreateSplitsAndStoresTags(t *testing.T) {
	service, db, _ := newServiceForTest(t)
	owner := mustOwner(t, "owner-1", "owner@example.com")

	note, err := service.Create(context.Background(), owner, Draft{
		Title:   " Packing ",
		Content: "passport, charger",
		Tags:    vault.SplitTags("travel, todo ,,travel"),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var stored Note
	if err := db.Where("id = ?", note.ID).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load note: %v", err)
	}
	if stored.Title != "Packing" {
		t.Fatalf("expected trimmed title, got %q", stored.Title)
	}
	if !reflect.DeepEqual(stored.Tags, []string{"travel", "todo"}) {
		t.Fatalf("unexpected tags %#v", stored.Tags)
	}
	if stored.OwnerID != "owner-1" {
		t.Fatalf("unexpected owner %q", stored.OwnerID)
	}
}

func TestListOrdersByRecentUpdateAndFiltersByTag(t *testing.T) {
	service, _, _ := newServiceForTest(t)
	ctx := context.Background()
	owner := mustOwner(t, "owner-1", "owner@example.com")

	first, err := service.Create(ctx, owner, Draft{Title: "First", Content: "a", Tags: []string{"work"}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Create(ctx, owner, Draft{Title: "Second", Content: "b", Tags: []string{"home"}}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Update(ctx, owner, mustNoteID(t, first.ID), Draft{Title: "First edited", Content: "a2", Tags: []string{"work", "urgent"}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	notes, err := service.List(ctx, owner, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(notes) != 2 || notes[0].Title != "First edited" || notes[1].Title != "Second" {
		t.Fatalf("unexpected order: %#v", notes)
	}

	work, err := service.List(ctx, owner, "work")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(work) != 1 || work[0].ID != first.ID {
		t.Fatalf("unexpected tag filter result: %#v", work)
	}

	tags, err := service.Tags(ctx, owner)
	if err != nil {
		t.Fatalf("tags failed: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"home", "urgent", "work"}) {
		t.Fatalf("unexpected tags %#v", tags)
	}
}

func TestNotesAreOwnerScoped(t *testing.T) {
	service, _, _ := newServiceForTest(t)
	ctx := context.Background()
	owner := mustOwner(t, "owner-1", "owner@example.com")
	stranger := mustOwner(t, "owner-2", "stranger@example.com")

	note, err := service.Create(ctx, owner, Draft{Title: "Private", Content: "mine"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	listed, err := service.List(ctx, stranger, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("stranger must not see notes, got %d", len(listed))
	}
	if _, err := service.Update(ctx, stranger, mustNoteID(t, note.ID), Draft{Title: "x", Content: "y"}); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected not found for stranger update, got %v", err)
	}
	if err := service.Delete(ctx, stranger, mustNoteID(t, note.ID)); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected not found for stranger delete, got %v", err)
	}
	if err := service.Delete(ctx, owner, mustNoteID(t, note.ID)); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
}

func TestServiceLogsDatabaseFailures(t *testing.T) {
	service, db, logs := newServiceForTest(t)
	owner := mustOwner(t, "owner-1", "owner@example.com")
	if err := db.Migrator().DropTable(&Note{}); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	_, err := service.List(context.Background(), owner, "")
	if vault.ErrorCode(err) != "notes.list.note_select_failed" {
		t.Fatalf("expected select failure code, got %v", err)
	}
	entries := logs.FilterMessage("notes service failure").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged failure, got %d", len(entries))
	}
	if entries[0].ContextMap()["reason"] != "note_select_failed" {
		t.Fatalf("unexpected log context %#v", entries[0].ContextMap())
	}
}

func TestNewNoteIDValidates(t *testing.T) {
	if _, err := NewNoteID("   "); !errors.Is(err, ErrInvalidNoteID) {
		t.Fatalf("expected invalid note id, got %v", err)
	}
	id := mustNoteID(t, " note-1 ")
	if id.String() != "note-1" {
		t.Fatalf("unexpected id %q", id)
	}
}
