package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeMedia struct {
	mu       sync.Mutex
	deleted  []string
	failFile string
}

func (f *fakeMedia) Delete(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fileID == f.failFile {
		return errors.New("media offline")
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeMedia, vault.Owner) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Collection{}, &CollectionPhoto{}))

	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	media := &fakeMedia{}
	service, err := NewService(ServiceConfig{
		Database: db,
		Media:    media,
		Clock: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			now = now.Add(time.Second)
			return now
		},
	})
	require.NoError(t, err)
	owner, err := vault.NewOwner("owner-1", "owner@example.com")
	require.NoError(t, err)
	return service, media, owner
}

func recordID(t *testing.T, raw string) vault.RecordID {
	t.Helper()
	id, err := vault.NewRecordID(raw)
	require.NoError(t, err)
	return id
}

func photo(name string) PhotoInput {
	return PhotoInput{
		FileID:       "vault/owner-1/" + name + ".jpg",
		URL:          "https://cdn.example.com/" + name + ".jpg",
		ThumbnailURL: "https://cdn.example.com/" + name + ".jpg?tr=w-400",
		Caption:      name,
	}
}

func TestCreateRequiresName(t *testing.T) {
	service, _, owner := newTestService(t)
	_, err := service.Create(context.Background(), owner, CreateInput{Name: "  "})
	require.ErrorIs(t, err, vault.ErrInvalidInput)
}

func TestFirstPhotoBecomesCover(t *testing.T) {
	service, _, owner := newTestService(t)
	ctx := context.Background()
	collection, err := service.Create(ctx, owner, CreateInput{Name: "Summer", Description: "2025"})
	require.NoError(t, err)
	id := recordID(t, collection.ID)

	updated, err := service.AddPhotos(ctx, owner, id, []PhotoInput{photo("a"), photo("b")})
	require.NoError(t, err)
	require.Len(t, updated.Photos, 2)
	require.Equal(t, photo("a").ThumbnailURL, updated.CoverPhotoURL)
	require.Equal(t, 0, updated.Photos[0].Position)
	require.Equal(t, 1, updated.Photos[1].Position)

	updated, err = service.AddPhotos(ctx, owner, id, []PhotoInput{photo("c"), photo("a")})
	require.NoError(t, err)
	require.Len(t, updated.Photos, 3)
	require.Equal(t, "vault/owner-1/c.jpg", updated.Photos[2].FileID)
	require.Equal(t, photo("a").ThumbnailURL, updated.CoverPhotoURL)
}

func TestRemovingCoverPhotoClearsCover(t *testing.T) {
	service, media, owner := newTestService(t)
	ctx := context.Background()
	collection, err := service.Create(ctx, owner, CreateInput{Name: "Trip"})
	require.NoError(t, err)
	id := recordID(t, collection.ID)
	_, err = service.AddPhotos(ctx, owner, id, []PhotoInput{photo("a"), photo("b")})
	require.NoError(t, err)

	updated, err := service.RemovePhoto(ctx, owner, id, "vault/owner-1/b.jpg")
	require.NoError(t, err)
	require.Equal(t, photo("a").ThumbnailURL, updated.CoverPhotoURL)
	require.Len(t, updated.Photos, 1)

	updated, err = service.RemovePhoto(ctx, owner, id, "vault/owner-1/a.jpg")
	require.NoError(t, err)
	require.Empty(t, updated.CoverPhotoURL)
	require.Empty(t, updated.Photos)
	require.Equal(t, []string{"vault/owner-1/b.jpg", "vault/owner-1/a.jpg"}, media.deleted)

	_, err = service.RemovePhoto(ctx, owner, id, "vault/owner-1/a.jpg")
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestRemovePhotoKeepsEntryWhenMediaFails(t *testing.T) {
	service, media, owner := newTestService(t)
	ctx := context.Background()
	collection, err := service.Create(ctx, owner, CreateInput{Name: "Trip"})
	require.NoError(t, err)
	id := recordID(t, collection.ID)
	_, err = service.AddPhotos(ctx, owner, id, []PhotoInput{photo("a")})
	require.NoError(t, err)

	media.failFile = "vault/owner-1/a.jpg"
	_, err = service.RemovePhoto(ctx, owner, id, "vault/owner-1/a.jpg")
	require.Error(t, err)

	loaded, err := service.Get(ctx, owner, id)
	require.NoError(t, err)
	require.Len(t, loaded.Photos, 1)
}

func TestSetCoverMustMatchPhoto(t *testing.T) {
	service, _, owner := newTestService(t)
	ctx := context.Background()
	collection, err := service.Create(ctx, owner, CreateInput{Name: "Trip"})
	require.NoError(t, err)
	id := recordID(t, collection.ID)
	_, err = service.AddPhotos(ctx, owner, id, []PhotoInput{photo("a"), photo("b")})
	require.NoError(t, err)

	_, err = service.SetCover(ctx, owner, id, "https://elsewhere.example.com/x.jpg")
	require.ErrorIs(t, err, vault.ErrInvalidInput)

	updated, err := service.SetCover(ctx, owner, id, photo("b").ThumbnailURL)
	require.NoError(t, err)
	require.Equal(t, photo("b").ThumbnailURL, updated.CoverPhotoURL)

	cleared, err := service.SetCover(ctx, owner, id, "")
	require.NoError(t, err)
	require.Empty(t, cleared.CoverPhotoURL)
}

func TestDeleteRemovesMediaOneByOne(t *testing.T) {
	service, media, owner := newTestService(t)
	ctx := context.Background()
	collection, err := service.Create(ctx, owner, CreateInput{Name: "Trip"})
	require.NoError(t, err)
	id := recordID(t, collection.ID)
	_, err = service.AddPhotos(ctx, owner, id, []PhotoInput{photo("a"), photo("b"), photo("c")})
	require.NoError(t, err)

	media.failFile = "vault/owner-1/b.jpg"
	_, err = service.Delete(ctx, owner, id)
	require.Error(t, err)
	partial, err := service.Get(ctx, owner, id)
	require.NoError(t, err)
	require.Len(t, partial.Photos, 2)
	require.Empty(t, partial.CoverPhotoURL)

	media.failFile = ""
	_, err = service.Delete(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, []string{"vault/owner-1/a.jpg", "vault/owner-1/b.jpg", "vault/owner-1/c.jpg"}, media.deleted)
	_, err = service.Get(ctx, owner, id)
	require.ErrorIs(t, err, vault.ErrNotFound)
}

func TestListIsOwnerScopedNewestFirst(t *testing.T) {
	service, _, owner := newTestService(t)
	ctx := context.Background()
	_, err := service.Create(ctx, owner, CreateInput{Name: "First"})
	require.NoError(t, err)
	_, err = service.Create(ctx, owner, CreateInput{Name: "Second"})
	require.NoError(t, err)
	stranger, err := vault.NewOwner("owner-2", "stranger@example.com")
	require.NoError(t, err)
	_, err = service.Create(ctx, stranger, CreateInput{Name: "Hidden"})
	require.NoError(t, err)

	listed, err := service.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "Second", listed[0].Name)
	require.Equal(t, "First", listed[1].Name)
}

func TestForgetFileDetachesEverywhere(t *testing.T) {
	service, media, owner := newTestService(t)
	ctx := context.Background()
	first, err := service.Create(ctx, owner, CreateInput{Name: "One"})
	require.NoError(t, err)
	second, err := service.Create(ctx, owner, CreateInput{Name: "Two"})
	require.NoError(t, err)
	_, err = service.AddPhotos(ctx, owner, recordID(t, first.ID), []PhotoInput{photo("shared")})
	require.NoError(t, err)
	_, err = service.AddPhotos(ctx, owner, recordID(t, second.ID), []PhotoInput{photo("other"), photo("shared")})
	require.NoError(t, err)

	changed, err := service.ForgetFile(ctx, owner, "vault/owner-1/shared.jpg")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{first.ID, second.ID}, changed)
	require.Empty(t, media.deleted)

	reloaded, err := service.Get(ctx, owner, recordID(t, first.ID))
	require.NoError(t, err)
	require.Empty(t, reloaded.Photos)
	require.Empty(t, reloaded.CoverPhotoURL)

	reloaded, err = service.Get(ctx, owner, recordID(t, second.ID))
	require.NoError(t, err)
	require.Len(t, reloaded.Photos, 1)
	require.Equal(t, photo("other").ThumbnailURL, reloaded.CoverPhotoURL)
}
