package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/invoicer/internal/application/dto"
	"github.com/turtacn/invoicer/internal/config"
	"github.com/turtacn/invoicer/internal/infrastructure/audit"
	"github.com/turtacn/invoicer/internal/infrastructure/crypto"
	"github.com/turtacn/invoicer/internal/interfaces/http/middleware"
	"github.com/turtacn/invoicer/pkg/constants"
	"github.com/turtacn/invoicer/pkg/logger"
)

type fileFixture struct {
	router    *gin.Engine
	signer    *crypto.URLSigner
	root      string
	publisher *capturePublisher
}

func newFileFixture(t *testing.T) *fileFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "invoices"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "invoices", "42.pdf"), []byte("%PDF-invoice-42"), 0o644))
	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	t.Cleanup(func() { _ = os.Remove(outside) })

	signer, err := crypto.NewURLSigner(handlerKey)
	require.NoError(t, err)
	publisher := &capturePublisher{}
	recorder := audit.NewRecorder(publisher, []byte("audit"), log)
	h := NewFileHandler(signer, config.SignedURLConfig{TTL: time.Minute, BaseURL: "https://billing.example.com", StorageRoot: root}, recorder, log)

	r := gin.New()
	r.GET("/files/*path", middleware.SignedPathFromParam("path"), middleware.RequireSignedURL(signer, nil, recorder), h.Serve)
	r.POST("/api/v1/files/links", h.Link)

	return &fileFixture{router: r, signer: signer, root: root, publisher: publisher}
}

func (f *fileFixture) get(target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (f *fileFixture) signedQuery(path string) string {
	exp := time.Now().Add(time.Minute).Unix()
	return url.Values{
		"expires":   {strconv.FormatInt(exp, 10)},
		"signature": {f.signer.Sign(path, exp)},
	}.Encode()
}

func TestFileHandler_ServeSigned(t *testing.T) {
	f := newFileFixture(t)

	w := f.get("/files/invoices/42.pdf?" + f.signedQuery("invoices/42.pdf"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-invoice-42", w.Body.String())
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
}

func TestFileHandler_ServeUnsigned(t *testing.T) {
	f := newFileFixture(t)

	w := f.get("/files/invoices/42.pdf")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"The temporary link is invalid or has expired."}`, w.Body.String())
	assert.Equal(t, []constants.AuditEventType{constants.AuditEventSignedURLRejected}, f.publisher.types())
}

func TestFileHandler_ServesVerifiedPathOnly(t *testing.T) {
	f := newFileFixture(t)

	// a signature for a path outside the storage root is still refused
	q := f.signedQuery("../outside.txt") + "&path=../outside.txt"
	w := f.get("/files/invoices/42.pdf?" + q)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"The temporary link is invalid or has expired."}`, w.Body.String())
}

func TestFileHandler_ServeMissing(t *testing.T) {
	f := newFileFixture(t)

	w := f.get("/files/invoices/43.pdf?" + f.signedQuery("invoices/43.pdf"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.get("/files/invoices?" + f.signedQuery("invoices"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func (f *fileFixture) link(body interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/links", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestFileHandler_LinkRoundTrip(t *testing.T) {
	f := newFileFixture(t)

	w := f.link(dto.SignedLinkRequest{Path: "/invoices/42.pdf", TTLSeconds: 120})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.SignedLinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), resp.ExpiresAt, 2*time.Second)

	link, err := url.Parse(resp.URL)
	require.NoError(t, err)
	assert.Equal(t, "billing.example.com", link.Host)
	assert.Equal(t, "/files/invoices/42.pdf", link.Path)

	w = f.get(link.RequestURI())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-invoice-42", w.Body.String())
	assert.Contains(t, f.publisher.types(), constants.AuditEventSignedURLGenerated)
}

func TestFileHandler_LinkRejects(t *testing.T) {
	f := newFileFixture(t)

	assert.Equal(t, http.StatusUnprocessableEntity, f.link(map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.link(dto.SignedLinkRequest{Path: "../outside.txt"}).Code)
	assert.Equal(t, http.StatusNotFound, f.link(dto.SignedLinkRequest{Path: "invoices/nope.pdf"}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.link(dto.SignedLinkRequest{Path: "invoices/42.pdf", TTLSeconds: 10_000_000}).Code)
}

func TestLocate(t *testing.T) {
	h := NewFileHandler(nil, config.SignedURLConfig{StorageRoot: "/srv/files"}, nil, logger.NewNoopLogger())

	full, ok := h.locate("invoices/42.pdf")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("/srv/files", "invoices", "42.pdf"), full)

	for _, bad := range []string{"", "..", "../etc/passwd", "a/../../b", "a\\..\\b", "."} {
		_, ok := h.locate(bad)
		assert.False(t, ok, bad)
	}
}
