package http

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbsk/ml"
)

func TestFormRendersSchema(t *testing.T) {
	env := newTestEnv(t, testPipeline(t), nil)

	for _, path := range []string{"/", "/predict"} {
		rr := env.serve(httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
		body := rr.Body.String()
		for _, f := range ml.Fields() {
			assert.Contains(t, body, fmt.Sprintf(`name="%s"`, f.Name))
		}
		assert.Contains(t, body, `<option value="pusat">`, "vocabulary offered for categorical fields")
		assert.NotContains(t, body, "Model belum tersedia")
	}

	empty := newTestEnv(t, nil, nil)
	rr := empty.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rr.Body.String(), "Model belum tersedia")
}

func postForm(env *testEnv, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.serve(req)
}

func TestFormPredict(t *testing.T) {
	p := testPipeline(t)
	env := newTestEnv(t, p, nil)

	rr := postForm(env, testValues().Encode())
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `id="prediction"`)
	assert.Contains(t, body, fmt.Sprintf("%.2f", expectedValue(t, p, testRecord())))
	assert.Contains(t, body, `name="kode_korwil" value="K1"`, "submitted values are kept")
}

func TestFormPredictErrors(t *testing.T) {
	env := newTestEnv(t, testPipeline(t), nil)

	values := testValues()
	values.Set("toilet", "abc")
	rr := postForm(env, values.Encode())
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `id="error"`)
	assert.Contains(t, rr.Body.String(), "<code>toilet</code>")
	assert.Contains(t, rr.Body.String(), `value="abc"`)

	values = testValues()
	values.Set("kode_korwil", "K9")
	rr = postForm(env, values.Encode())
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Kategori tidak dikenal: kode_korwil")

	empty := newTestEnv(t, nil, nil)
	rr = postForm(empty, testValues().Encode())
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "ModelUnavailable")
}

func TestFormRecordIgnoresUnknownFields(t *testing.T) {
	values := testValues()
	values.Set("csrf", "x")
	values.Del("lobby")
	rec := formRecord(values)
	assert.NotContains(t, rec, "csrf")
	assert.NotContains(t, rec, "lobby")
	assert.Equal(t, "A", rec["kode_eselon_i"])
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadPreview(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	var csv strings.Builder
	csv.WriteString("Tipe Kantor,Toilet,Luas SBSK\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&csv, "pusat,%d,%d\n", i, 100+i)
	}

	rr := env.serve(uploadRequest(t, "../../Data SBSK.csv", csv.String()))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "<th>tipe_kantor</th>")
	assert.Contains(t, body, "8 baris")
	assert.Equal(t, 1+previewRows, strings.Count(body, "<tr>"))
	assert.Contains(t, body, "<td>104</td>")
	assert.NotContains(t, body, "<td>105</td>")

	saved := filepath.Join(env.cfg.Http.UploadDir, "Data_SBSK.csv")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, csv.String(), string(data))
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rr := env.serve(uploadRequest(t, "", ""))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "no file selected")

	rr = env.serve(uploadRequest(t, "payload.exe", "MZ"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unsupported file type")

	rr = env.serve(uploadRequest(t, "broken.xlsx", "not a zip"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.serve(httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `enctype="multipart/form-data"`)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "SBSK_GK_KKEFI.xlsx", want: "SBSK_GK_KKEFI.xlsx", ok: true},
		{in: "../../etc/passwd.csv", want: "passwd.csv", ok: true},
		{in: `C:\Users\budi\data kantor.xlsm`, want: "data_kantor.xlsm", ok: true},
		{in: ".hidden.csv", want: "hidden.csv", ok: true},
		{in: "data.XLSX", want: "data.XLSX", ok: true},
		{in: "data.xls", ok: false},
		{in: "..", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sanitizeFilename(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
