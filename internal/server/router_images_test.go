package server

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/stretchr/testify/require"
)

func TestImageNoteIsEncryptedAtRestAndRevealed(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	fileID := env.ownerFileID("harbour")

	recorder := env.do(t, http.MethodPost, "/api/images", token, map[string]any{
		"fileId":       fileID,
		"url":          testCDN + "/" + fileID,
		"thumbnailUrl": testCDN + "/" + fileID + "?tr=w-400",
		"title":        "Harbour",
		"tags":         "travel, evening",
		"note":         "meet at 9",
		"encrypt":      true,
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	created := decodeBody(t, recorder)
	require.Equal(t, true, created["noteEncrypted"])
	require.Empty(t, created["note"])
	require.Equal(t, []any{"travel", "evening"}, created["tags"])
	id := created["id"].(string)

	var stored gallery.Image
	require.NoError(t, env.db.Where("id = ?", id).Take(&stored).Error)
	require.NotEmpty(t, stored.EncryptedNote)
	require.NotContains(t, stored.EncryptedNote, "meet at 9")
	require.Empty(t, stored.PlainNote)

	recorder = env.do(t, http.MethodPost, "/api/images/"+id+"/note/reveal", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.Equal(t, "meet at 9", decodeBody(t, recorder)["note"])
}

func TestRevealCorruptedNoteAnswersUnprocessable(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	seeded := env.seedImage(t, env.ownerFileID("harbour"))
	require.NoError(t, env.db.Model(&gallery.Image{}).Where("id = ?", seeded.ID).
		Update("encrypted_note", "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0LWF0LWFsbA==").Error)

	recorder := env.do(t, http.MethodPost, "/api/images/"+seeded.ID+"/note/reveal", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	payload := decodeBody(t, recorder)
	require.Equal(t, "decryption_failed", payload["error"])
	require.Equal(t, "gallery.reveal_note.decrypt_failed", payload["code"])
}

func TestPlainNoteWhenEncryptionDisabled(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	seeded := env.seedImage(t, env.ownerFileID("harbour"))

	recorder := env.do(t, http.MethodPut, "/api/images/"+seeded.ID+"/note", token, map[string]any{
		"note":    "left the keys with Ana",
		"encrypt": false,
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	payload := decodeBody(t, recorder)
	require.Equal(t, false, payload["noteEncrypted"])
	require.Equal(t, "left the keys with Ana", payload["note"])
}

func TestCreateImageRejectsForeignFileID(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	recorder := env.do(t, http.MethodPost, "/api/images", token, map[string]any{
		"fileId": "vault/someone-else/a.jpg",
		"url":    testCDN + "/vault/someone-else/a.jpg",
	})
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestListImagesFiltersByTagAndQuery(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	for _, seed := range []struct{ name, title, tags string }{
		{"one", "Lisbon tram", "travel"},
		{"two", "Birthday cake", "family"},
	} {
		fileID := env.ownerFileID(seed.name)
		recorder := env.do(t, http.MethodPost, "/api/images", token, map[string]any{
			"fileId": fileID,
			"url":    testCDN + "/" + fileID,
			"title":  seed.title,
			"tags":   seed.tags,
		})
		require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	}

	recorder := env.do(t, http.MethodGet, "/api/images?tag=family", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	images := decodeBody(t, recorder)["images"].([]any)
	require.Len(t, images, 1)
	require.Equal(t, "Birthday cake", images[0].(map[string]any)["title"])

	recorder = env.do(t, http.MethodGet, "/api/images?q=lisbon", token, nil)
	images = decodeBody(t, recorder)["images"].([]any)
	require.Len(t, images, 1)

	recorder = env.do(t, http.MethodGet, "/api/images/tags", token, nil)
	require.Equal(t, []any{"family", "travel"}, decodeBody(t, recorder)["tags"])
}

func TestUpdateImageDetails(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	seeded := env.seedImage(t, env.ownerFileID("harbour"))

	recorder := env.do(t, http.MethodPatch, "/api/images/"+seeded.ID, token, map[string]any{
		"title": "Harbour at dusk",
		"tags":  []string{"sea"},
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	payload := decodeBody(t, recorder)
	require.Equal(t, "Harbour at dusk", payload["title"])
	require.Equal(t, []any{"sea"}, payload["tags"])
}

func TestDeleteImageRecordRemovesObject(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	fileID := env.ownerFileID("harbour")
	seeded := env.seedImage(t, fileID)

	recorder := env.do(t, http.MethodDelete, "/api/images/"+seeded.ID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	require.Equal(t, []string{fileID}, env.media.deleted)

	recorder = env.do(t, http.MethodGet, "/api/images/"+seeded.ID, token, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestUploadImagesCreatesRecords(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	var encoded bytes.Buffer
	canvas := image.NewRGBA(image.Rect(0, 0, 4, 3))
	canvas.Set(0, 0, color.RGBA{R: 255, A: 255})
	require.NoError(t, png.Encode(&encoded, canvas))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", "sunrise.png")
	require.NoError(t, err)
	_, err = part.Write(encoded.Bytes())
	require.NoError(t, err)
	textPart, err := writer.CreateFormFile("files", "readme.txt")
	require.NoError(t, err)
	_, err = textPart.Write([]byte("plain text, not an image"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("note", "first light"))
	require.NoError(t, writer.WriteField("tags", "morning"))
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/api/images/upload", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	results := decodeBody(t, recorder)["results"].([]any)
	require.Len(t, results, 2)
	uploaded := results[0].(map[string]any)
	require.Equal(t, true, uploaded["ok"])
	record := uploaded["image"].(map[string]any)
	require.Equal(t, "image/png", record["mimeType"])
	require.EqualValues(t, 4, record["width"])
	require.EqualValues(t, 3, record["height"])
	require.Equal(t, true, record["noteEncrypted"])
	require.Equal(t, false, results[1].(map[string]any)["ok"])
}

func (e *testEnv) uploadFiles(t *testing.T, token string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	request := httptest.NewRequest(http.MethodPost, "/api/images/upload", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func encodedPNG(t *testing.T) []byte {
	t.Helper()
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return encoded.Bytes()
}

func TestUploadOfOnlyNonImagesIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	recorder := env.uploadFiles(t, token, map[string][]byte{
		"readme.txt": []byte("plain text, not an image"),
		"notes.csv":  []byte("a,b,c"),
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code, recorder.Body.String())
	results := decodeBody(t, recorder)["results"].([]any)
	require.Len(t, results, 2)
	for _, result := range results {
		require.Equal(t, false, result.(map[string]any)["ok"])
	}
}

func TestUploadStorageFailureIsServerError(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.media.uploadErr = errors.New("bucket unavailable")

	recorder := env.uploadFiles(t, token, map[string][]byte{"sunrise.png": encodedPNG(t)})
	require.Equal(t, http.StatusInternalServerError, recorder.Code, recorder.Body.String())
}
