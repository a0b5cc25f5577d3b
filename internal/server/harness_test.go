package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/auth"
	"github.com/MarcoPoloResearchLab/photovault/internal/autolock"
	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/media"
	"github.com/MarcoPoloResearchLab/photovault/internal/notecipher"
	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	"github.com/MarcoPoloResearchLab/photovault/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testFolder     = "vault"
	testCDN        = "https://cdn.example.com"
	testOwnerEmail = "owner@example.com"
	testPassword   = "correct horse battery"
	testCookieName = "photovault_session"
	testLockWindow = 10 * time.Minute
)

type fakeMediaStore struct {
	mu        sync.Mutex
	deleteErr error
	uploadErr error
	deleted   []string
	calls     int
}

func (f *fakeMediaStore) CheckOwnership(owner, fileID string) error {
	return media.CheckOwnership(testFolder, owner, fileID)
}

func (f *fakeMediaStore) AuthorizeUpload(_ context.Context, owner, fileName, _ string) (media.UploadAuthorization, error) {
	f.record()
	fileID := media.BuildFileID(testFolder, owner, "upload-1", ".jpg")
	return media.UploadAuthorization{
		FileID:       fileID,
		UploadURL:    "https://bucket.example.com/" + fileID + "?X-Amz-Signature=abc",
		Method:       http.MethodPut,
		Headers:      http.Header{"Content-Type": []string{"image/jpeg"}},
		URL:          testCDN + "/" + fileID,
		ThumbnailURL: testCDN + "/" + fileID + "?tr=w-400",
		ExpiresAt:    time.Date(2025, 1, 1, 12, 15, 0, 0, time.UTC),
	}, nil
}

func (f *fakeMediaStore) Upload(_ context.Context, owner, fileName string, body []byte) (media.StoredObject, error) {
	f.record()
	if f.uploadErr != nil {
		return media.StoredObject{}, f.uploadErr
	}
	metadata, err := media.Inspect(body)
	if err != nil {
		return media.StoredObject{}, err
	}
	fileID := media.BuildFileID(testFolder, owner, strings.TrimSuffix(fileName, ".png"), ".png")
	return media.StoredObject{
		FileID:       fileID,
		URL:          testCDN + "/" + fileID,
		ThumbnailURL: testCDN + "/" + fileID + "?tr=w-400",
		Metadata:     metadata,
	}, nil
}

func (f *fakeMediaStore) SignedURL(_ context.Context, fileID string, ttl time.Duration) (string, time.Time, error) {
	f.record()
	return "https://bucket.example.com/" + fileID + "?X-Amz-Expires=" + fmt.Sprint(int(ttl.Seconds())), time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC), nil
}

func (f *fakeMediaStore) Delete(_ context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeMediaStore) DeleteMany(ctx context.Context, fileIDs []string) []media.DeleteOutcome {
	outcomes := make([]media.DeleteOutcome, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		outcomes = append(outcomes, media.DeleteOutcome{FileID: fileID, Err: f.Delete(ctx, fileID)})
	}
	return outcomes
}

func (f *fakeMediaStore) record() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeMediaStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	handler    http.Handler
	db         *gorm.DB
	media      *fakeMediaStore
	clock      *autolock.ManualClock
	sessions   *session.Registry
	tokens     *auth.TokenIssuer
	gallery    *gallery.Service
	dispatcher *realtime.Dispatcher
	account    users.Account
}

type testEnvOptions struct {
	heartbeat time.Duration
	// unpublishedSessions keeps session lock and end events off the realtime dispatcher.
	unpublishedSessions bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOptions(t, testEnvOptions{})
}

func newTestEnvWithOptions(t *testing.T, options testEnvOptions) *testEnv {
	t.Helper()
	if options.heartbeat <= 0 {
		options.heartbeat = time.Hour
	}
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&users.Account{},
		&gallery.Image{},
		&collections.Collection{},
		&collections.CollectionPhoto{},
		&notes.Note{},
	))

	logger := zap.NewNop()
	gate := auth.NewGate([]string{testOwnerEmail})
	clock := autolock.NewManualClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	dispatcher := realtime.NewDispatcher()
	store := &fakeMediaStore{}

	userService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Whitelist: gate,
		HashCost:  bcrypt.MinCost,
		Logger:    logger,
	})
	require.NoError(t, err)
	account, err := userService.SetPassword(context.Background(), testOwnerEmail, "Owner", testPassword)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Tokens: tokens, CookieName: testCookieName})
	require.NoError(t, err)

	var sessionPublisher realtime.Publisher = dispatcher
	if options.unpublishedSessions {
		sessionPublisher = nil
	}
	registry := session.NewRegistry(session.RegistryConfig{
		Window:    testLockWindow,
		Clock:     clock,
		Publisher: sessionPublisher,
		Logger:    logger,
	})
	t.Cleanup(registry.Close)
	signIn, err := session.NewSignInService(session.SignInConfig{
		Whitelist:   gate,
		Credentials: userService,
		Tokens:      tokens,
		Registry:    registry,
		Logger:      logger,
	})
	require.NoError(t, err)

	cipher, err := notecipher.New("test-encryption-secret")
	require.NoError(t, err)
	galleryService, err := gallery.NewService(gallery.ServiceConfig{Database: db, Cipher: cipher, Media: store, Logger: logger})
	require.NoError(t, err)
	collectionService, err := collections.NewService(collections.ServiceConfig{Database: db, Media: store, Logger: logger})
	require.NoError(t, err)
	noteService, err := notes.NewService(notes.ServiceConfig{Database: db, IDProvider: &sequentialIDs{}, Logger: logger})
	require.NoError(t, err)

	handler, err := NewHTTPHandler(Dependencies{
		Validator:         validator,
		SignIn:            signIn,
		Sessions:          registry,
		Whitelist:         gate,
		Media:             store,
		Gallery:           galleryService,
		Collections:       collectionService,
		Notes:             noteService,
		Realtime:          dispatcher,
		HeartbeatInterval: options.heartbeat,
		Logger:            logger,
	})
	require.NoError(t, err)

	return &testEnv{
		handler:    handler,
		db:         db,
		media:      store,
		clock:      clock,
		sessions:   registry,
		tokens:     tokens,
		gallery:    galleryService,
		dispatcher: dispatcher,
		account:    account,
	}
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("note-%03d", s.next), nil
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	recorder := e.do(t, http.MethodPost, "/api/session/login", "", map[string]string{
		"email":    "Owner@Example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var response loginResponsePayload
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.NotEmpty(t, response.AccessToken)
	return response.AccessToken
}

// tokenFor starts a session for an arbitrary owner, bypassing sign-in.
func (e *testEnv) tokenFor(t *testing.T, owner session.Owner) (string, string) {
	t.Helper()
	snapshot, err := e.sessions.Start(owner)
	require.NoError(t, err)
	token, _, err := e.tokens.IssueSessionToken(context.Background(), auth.Principal{
		AccountID: owner.AccountID,
		Email:     owner.Email,
		SessionID: snapshot.ID,
	})
	require.NoError(t, err)
	return token, snapshot.ID
}

func (e *testEnv) ownerFileID(name string) string {
	return media.BuildFileID(testFolder, e.account.ID, name, ".jpg")
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload), recorder.Body.String())
	return payload
}
