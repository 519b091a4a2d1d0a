package http

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sbsk/ml"
	"sbsk/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const previewRows = 5

var (
	unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	uploadTypes    = map[string]bool{".xlsx": true, ".xlsm": true, ".csv": true}
	titleCaser     = cases.Title(language.Indonesian)
)

type formField struct {
	Name    string
	Label   string
	Kind    string
	Value   string
	Options []string
}

type formResult struct {
	OK     bool
	Value  string
	Kind   string
	Field  string
	Detail string
	Unseen []string
}

type formPage struct {
	Fields      []formField
	ModelLoaded bool
	Result      *formResult
}

type uploadPage struct {
	Filename  string
	Columns   []string
	Rows      [][]string
	TotalRows int
	Error     string
}

func fieldLabel(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// formFields lists the schema in order with the submitted values. Categorical
// fields offer the loaded model's vocabulary as suggestions.
func (s *Server) formFields(values url.Values) []formField {
	var vocab [][]string
	if p := s.predictor.Model(); p != nil {
		vocab = p.Transformer.Encoder.Categories
	}
	out := make([]formField, 0, len(ml.Fields()))
	cat := 0
	for _, f := range ml.Fields() {
		field := formField{
			Name:  f.Name,
			Label: fieldLabel(f.Name),
			Kind:  f.Kind.String(),
			Value: values.Get(f.Name),
		}
		if f.Kind == ml.Categorical {
			if cat < len(vocab) {
				field.Options = vocab[cat]
			}
			cat++
		}
		out = append(out, field)
	}
	return out
}

// formRecord copies only schema fields; absent fields stay absent.
func formRecord(values url.Values) ml.Record {
	rec := ml.Record{}
	for _, f := range ml.Fields() {
		if v, ok := values[f.Name]; ok && len(v) > 0 {
			rec[f.Name] = v[0]
		}
	}
	return rec
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("template render failed", zap.String("template", name), zap.Error(err))
	}
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "form.html", formPage{
		Fields:      s.formFields(nil),
		ModelLoaded: s.predictor.Available(),
	})
}

func (s *Server) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "form.html", formPage{
			Fields:      s.formFields(nil),
			ModelLoaded: s.predictor.Available(),
			Result:      &formResult{Kind: KindBadRequest, Detail: err.Error()},
		})
		return
	}

	out := s.predict(r.Context(), formRecord(r.PostForm), "form")
	result := &formResult{
		OK:     out.OK(),
		Kind:   string(out.Kind),
		Field:  out.Field,
		Detail: out.Detail,
		Unseen: out.Unseen,
	}
	if out.OK() {
		result.Value = strconv.FormatFloat(*out.Value, 'f', 2, 64)
	}
	s.render(w, outcomeStatus(out), "form.html", formPage{
		Fields:      s.formFields(r.PostForm),
		ModelLoaded: s.predictor.Available(),
		Result:      result,
	})
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "upload.html", uploadPage{})
}

// handleUpload stores the spreadsheet under the upload directory and renders
// its first rows.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fail := func(code int, msg string) {
		s.render(w, code, "upload.html", uploadPage{Error: msg})
	}

	if err := r.ParseMultipartForm(s.cfg.Http.MaxUploadMB << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.cfg.Http.MaxUploadMB))
			return
		}
		fail(http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			fail(http.StatusBadRequest, "no file selected")
			return
		}
		fail(http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	name, err := sanitizeFilename(header.Filename)
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.storeUpload(name, file)
	if err != nil {
		s.log.Error("failed to store upload", zap.String("file", name), zap.Error(err))
		fail(http.StatusInternalServerError, "failed to store file")
		return
	}

	ds, err := s.loader.Load(path)
	if err != nil {
		s.log.Info("uploaded file unreadable", zap.String("file", name), zap.Error(err))
		fail(http.StatusUnprocessableEntity, err.Error())
		return
	}
	preview := pipeline.Preview(ds, previewRows)
	s.log.Info("file uploaded",
		zap.String("file", name),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)),
	)
	s.render(w, http.StatusOK, "upload.html", uploadPage{
		Filename:  name,
		Columns:   preview.Columns,
		Rows:      preview.Rows,
		TotalRows: len(ds.Rows),
	})
}

func (s *Server) storeUpload(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.Http.UploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.Http.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

// sanitizeFilename keeps the base name, replaces anything outside
// [A-Za-z0-9._-] and rejects hidden or unsupported files.
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeFilename.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if ext := strings.ToLower(filepath.Ext(base)); !uploadTypes[ext] {
		return "", fmt.Errorf("unsupported file type %q: upload .xlsx, .xlsm or .csv", ext)
	}
	return base, nil
}
