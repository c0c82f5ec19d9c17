package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/middleware"
	"lan-chat/internal/models"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	gifHeader = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

type memAttachments struct {
	saved []models.Attachment
}

func (m *memAttachments) Save(_ context.Context, a models.Attachment) (models.Attachment, error) {
	a.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, a)
	return a, nil
}

func newTestStore(t *testing.T, maxBytes int64) (*Store, *memAttachments) {
	t.Helper()
	repo := &memAttachments{}
	store, err := NewStore(t.TempDir(), "/uploads", maxBytes, repo)
	require.NoError(t, err)
	return store, repo
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("IMAGE")
	require.NoError(t, err)
	assert.Equal(t, KindImage, k)

	_, err = ParseKind("exe")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSaveAcceptsMatchingContent(t *testing.T) {
	store, repo := newTestStore(t, 1<<20)

	att, err := store.Save(context.Background(), "u1", KindImage, "../../cat.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", att.MimeType)
	assert.Equal(t, "cat.png", att.OriginalName)
	assert.Equal(t, int64(len(pngHeader)), att.Size)
	assert.True(t, strings.HasPrefix(att.URL, "/uploads/image/"))
	assert.True(t, strings.HasSuffix(att.URL, ".png"))
	require.Len(t, repo.saved, 1)

	written, err := os.ReadFile(filepath.Join(store.Dir(), "image", filepath.Base(att.URL)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
}

func TestSaveRejectsMismatchedContent(t *testing.T) {
	store, repo := newTestStore(t, 1<<20)

	_, err := store.Save(context.Background(), "u1", KindImage, "notes.png", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = store.Save(context.Background(), "u1", KindGIF, "cat.gif", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrValidationFailed)

	assert.Empty(t, repo.saved)
}

func TestSaveGIFAndFile(t *testing.T) {
	store, _ := newTestStore(t, 1<<20)

	att, err := store.Save(context.Background(), "u1", KindGIF, "cat.gif", bytes.NewReader(gifHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", att.MimeType)

	att, err = store.Save(context.Background(), "u1", KindFile, "notes.txt", strings.NewReader("meeting at 3"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(att.MimeType, "text/plain"))
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	store, repo := newTestStore(t, 8)

	_, err := store.Save(context.Background(), "u1", KindFile, "big.txt", strings.NewReader("this is longer than eight bytes"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, repo.saved)
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func setupUploadRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "u1")
		c.Next()
	})
	r.POST("/api/upload/:kind", h.Upload)
	return r
}

func TestUploadHandler(t *testing.T) {
	store, _ := newTestStore(t, 1<<20)
	router := setupUploadRouter(NewHandler(store))

	body, ct := multipartBody(t, "cat.png", pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool `json:"success"`
		File    struct {
			URL          string `json:"url"`
			OriginalName string `json:"originalName"`
			Size         int64  `json:"size"`
			Mimetype     string `json:"mimetype"`
		} `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "cat.png", resp.File.OriginalName)
	assert.Equal(t, "image/png", resp.File.Mimetype)
}

func TestUploadHandlerValidationFailure(t *testing.T) {
	store, _ := newTestStore(t, 1<<20)
	router := setupUploadRouter(NewHandler(store))

	body, ct := multipartBody(t, "fake.png", []byte("plain text pretending"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeValidationFailed)
}

func TestUploadHandlerUnknownKind(t *testing.T) {
	store, _ := newTestStore(t, 1<<20)
	router := setupUploadRouter(NewHandler(store))

	body, ct := multipartBody(t, "x.bin", []byte{0x01})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/binary", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
