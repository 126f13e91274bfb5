package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePlugin checks the source is readable and returns fixed predictions
type fakePlugin struct {
	name   string
	points []*types.Point
}

func (f *fakePlugin) Name() string { return f.name }
func (f *fakePlugin) Close() error { return nil }

func (f *fakePlugin) Process(ctx context.Context, src types.Source, point *types.Point) ([]types.Prediction, error) {
	f.points = append(f.points, point)
	if src.Reader != nil {
		data, _ := io.ReadAll(src.Reader)
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return nil, types.ErrTransform
		}
	}
	if src.Path == "/boom.png" {
		return nil, errors.New("session crashed")
	}
	return []types.Prediction{
		{Label: "red", Score: 0.82},
		{Label: "grey", Score: 0.09},
		{Label: "white", Score: 0.07},
	}, nil
}

func setupRouter(t *testing.T, opts Options) (*gin.Engine, *fakePlugin) {
	t.Helper()
	colors := &fakePlugin{name: "builtinColors"}
	r, err := registry.New([]registry.Result{
		{Name: "builtinColors", Plugin: colors},
		{Name: "dropinColors", Unavailable: types.ErrModelUnavailable},
	})
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	return NewRouter(registry.NewDispatcher(r, 2, nil, transform.Limits{}), opts), colors
}

func createUpload(t *testing.T, fields map[string]string, withImage bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if withImage {
		part, _ := w.CreateFormFile(fieldImageFile, "mark.png")
		png.Encode(part, image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func perform(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	r, _ := setupRouter(t, Options{})

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/", http.StatusNotImplemented},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/services", http.StatusNotFound},
		{http.MethodGet, "/services/classify/builtinColors", http.StatusNotImplemented},
		{http.MethodPost, "/services/classify", http.StatusMethodNotAllowed},
		{http.MethodPost, "/services/classify/unknown", http.StatusBadRequest},
		{http.MethodPost, "/services/classify/dropinColors", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := perform(r, tt.method, tt.path, nil, "")
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestListPlugins(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	w := perform(r, http.MethodGet, "/services/classify", nil, "")

	var resp struct {
		Names []string `json:"configured_plugin_names"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Names) != 1 || resp.Names[0] != "builtinColors" {
		t.Errorf("Expected only builtinColors, got %v", resp.Names)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestClassifyUpload(t *testing.T) {
	r, colors := setupRouter(t, Options{MaxConcurrent: 1, MaxUploadBytes: 1 << 20})
	body, contentType := createUpload(t, map[string]string{"x": "40", "y": "60"}, true)

	w := perform(r, http.MethodPost, "/services/classify/builtinColors", body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var got []plugin.Formatted
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	expected := []plugin.Formatted{{Label: "red", Score: "82.00%"}, {Label: "grey", Score: "9.00%"}}
	if len(got) != len(expected) || got[0] != expected[0] || got[1] != expected[1] {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if p := colors.points[0]; p == nil || p.X != 40 || p.Y != 60 {
		t.Errorf("Expected point (40,60), got %v", p)
	}
}

func TestClassifyImagePath(t *testing.T) {
	r, colors := setupRouter(t, Options{})
	form := url.Values{"imagePath": {"/data/mark.png"}}

	w := perform(r, http.MethodPost, "/services/classify/builtinColors",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if colors.points[0] != nil {
		t.Errorf("Expected no point, got %v", colors.points[0])
	}
}

func TestClassifyBadRequests(t *testing.T) {
	r, _ := setupRouter(t, Options{})

	tests := []struct {
		name      string
		fields    map[string]string
		withImage bool
		status    int
	}{
		{"no image", map[string]string{"x": "1", "y": "2"}, false, http.StatusBadRequest},
		{"x not an integer", map[string]string{"x": "left", "y": "2"}, true, http.StatusBadRequest},
		{"y out of range", map[string]string{"x": "1", "y": "120"}, true, http.StatusBadRequest},
		{"both sources", map[string]string{"imagePath": "/data/a.png"}, true, http.StatusBadRequest},
		{"engine failure", map[string]string{"imagePath": "/boom.png"}, false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := createUpload(t, tt.fields, tt.withImage)
			w := perform(r, http.MethodPost, "/services/classify/builtinColors", body, contentType)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestClassifyGenericErrorHidesDetails(t *testing.T) {
	r, _ := setupRouter(t, Options{})
	body, contentType := createUpload(t, map[string]string{"imagePath": "/boom.png"}, false)

	w := perform(r, http.MethodPost, "/services/classify/builtinColors", body, contentType)
	if strings.Contains(w.Body.String(), "session crashed") {
		t.Errorf("Expected internal details to be hidden, got %s", w.Body.String())
	}
}

func TestClassifyUploadTooLarge(t *testing.T) {
	r, _ := setupRouter(t, Options{MaxUploadBytes: 64})
	body, contentType := createUpload(t, map[string]string{"note": strings.Repeat("a", 1024)}, true)

	w := perform(r, http.MethodPost, "/services/classify/builtinColors", body, contentType)
	if w.Code != http.StatusRequestEntityTooLarge && w.Code != http.StatusBadRequest {
		t.Errorf("Expected the upload to be rejected, got %d", w.Code)
	}
}
