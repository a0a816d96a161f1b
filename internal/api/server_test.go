package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/notenscan/internal/config"
	"github.com/dgallion1/notenscan/internal/export"
	"github.com/dgallion1/notenscan/internal/layout"
	"github.com/dgallion1/notenscan/internal/ocr"
	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/pipeline"
	"github.com/dgallion1/notenscan/internal/taskdb"
	"github.com/dgallion1/notenscan/internal/template"
	"github.com/dgallion1/notenscan/internal/voices"
)

const apiKey = "secret"

var pageBounds = image.Rect(0, 0, 1000, 1400)

// fakeEngine answers Words with fixed tokens and Text through a callback.
type fakeEngine struct {
	words []ocr.Token
	text  func(img []byte) string
	err   error
}

func (e *fakeEngine) Words(context.Context, []byte) ([]ocr.Token, error) {
	return e.words, e.err
}

func (e *fakeEngine) Text(_ context.Context, img []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if e.text == nil {
		return "", nil
	}
	return e.text(img), nil
}

// fakePage crops to "<file>|<rect>" so the engine can tell regions apart.
type fakePage struct{ name string }

func (p *fakePage) Bounds() image.Rectangle { return pageBounds }

func (p *fakePage) CropPNG(r image.Rectangle) ([]byte, error) {
	return []byte(p.name + "|" + r.String()), nil
}

func (p *fakePage) Rotated(angle float64) ([]byte, error) {
	return []byte(fmt.Sprintf("rotated %g", angle)), nil
}

func (p *fakePage) Close() error { return nil }

func openFake(path string) (PageImage, error) {
	return &fakePage{name: filepath.Base(path)}, nil
}

// nameAssembler writes the base names of the pages.
type nameAssembler struct{}

func (nameAssembler) Assemble(pages []string, w io.Writer) error {
	for _, p := range pages {
		fmt.Fprintln(w, filepath.Base(p))
	}
	return nil
}

type harness struct {
	srv    *Server
	cfg    config.Config
	tasks  *taskdb.Memory
	pages  *pagestore.Store
	tpl    *template.Store
	engine *fakeEngine
}

func newHarness(t *testing.T, tweak func(*config.Config)) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		APIKey:            apiKey,
		StaticDir:         filepath.Join(root, "static"),
		VoicesExportDir:   filepath.Join(root, "static", "voices_export"),
		PublicURL:         "http://scan.local",
		OCRLanguage:       "deu",
		OCRCutoffFraction: 0.25,
		OCRMinConfidence:  70,
		OCRBaseGap:        40,
		WorkerCount:       1,
		PageConcurrency:   2,
		MaxQueueSize:      4,
		MaxUploadBytes:    1 << 20,
		JobTTL:            time.Hour,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pages := pagestore.New(cfg.StaticDir)
	tasks := taskdb.NewMemory()
	templates := template.NewStore(pages)
	engine := &fakeEngine{}
	// The orchestrator is never started; submitted jobs stay queued.
	orch := pipeline.NewOrchestrator(cfg, pipeline.NewWorker(nil, nil, pages, tasks, log, 1, false), log)

	srv := NewServer(Deps{
		Orchestrator: orch,
		Tasks:        tasks,
		Pages:        pages,
		Templates:    templates,
		Exporter:     export.New(pages, nameAssembler{}, cfg.VoicesExportDir, log),
		OCR:          engine,
		OCRStats:     ocr.NewStats(time.Hour),
		OpenPage:     openFake,
	}, log, cfg)
	return &harness{srv: srv, cfg: cfg, tasks: tasks, pages: pages, tpl: templates, engine: engine}
}

// seed creates a finished task with n small stored pages.
func (h *harness) seed(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	id := pipeline.NewTaskID()
	if _, err := h.tasks.Create(ctx, id, "score.pdf"); err != nil {
		t.Fatal(err)
	}
	if err := h.tasks.UpdateStatus(ctx, id, taskdb.StatusDone, taskdb.Int(n), nil); err != nil {
		t.Fatal(err)
	}
	if err := h.pages.Prepare(id); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 100, 140))); err != nil {
		t.Fatal(err)
	}
	for p := 1; p <= n; p++ {
		if err := os.WriteFile(h.pages.PagePath(id, p), buf.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return id
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("expected ok body, got %s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	h := newHarness(t, nil)
	for _, header := range []string{"", "Basic abc", "Bearer wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/pdf_tasks/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for %q, got %d", header, rec.Code)
		}
	}
}

func upload(t *testing.T, h *harness, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pdf_tasks/upload", &body)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	h := newHarness(t, nil)
	pdf := []byte("%PDF-1.7\n% test\n")
	rec := upload(t, h, "../Marsch.pdf", pdf)
	expectStatus(t, rec, http.StatusAccepted)

	resp := decode[map[string]string](t, rec)
	id := resp["task_id"]
	if id == "" || resp["id"] != id || resp["status"] != "processing" {
		t.Fatalf("unexpected upload response %v", resp)
	}

	task, err := h.tasks.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != taskdb.StatusProcessing || task.Filename != "Marsch.pdf" {
		t.Errorf("expected processing task for Marsch.pdf, got %+v", task)
	}
	stored, err := os.ReadFile(h.pages.OriginalPath(id))
	if err != nil || !bytes.Equal(stored, pdf) {
		t.Errorf("expected original to be stored, got %q (%v)", stored, err)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/pdf_tasks/status/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	status := decode[map[string]any](t, rec)
	if status["status"] != "processing" || status["num_pages"] != nil || status["error_message"] != nil {
		t.Errorf("unexpected status response %v", status)
	}
	if _, ok := status["progress"]; !ok {
		t.Error("expected progress of the queued job")
	}
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	h := newHarness(t, nil)
	rec := upload(t, h, "notes.txt", []byte("hello"))
	expectStatus(t, rec, http.StatusBadRequest)
	tasks, _ := h.tasks.List(context.Background())
	if len(tasks) != 0 {
		t.Errorf("expected no task, got %d", len(tasks))
	}
}

func TestUpload_TooLarge(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MaxUploadBytes = 16 })
	rec := upload(t, h, "big.pdf", append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 64)...))
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
}

func TestUpload_QueueFull(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MaxQueueSize = 0 })
	rec := upload(t, h, "score.pdf", []byte("%PDF-1.4\n"))
	expectStatus(t, rec, http.StatusServiceUnavailable)

	tasks, _ := h.tasks.List(context.Background())
	if len(tasks) != 1 || tasks[0].Status != taskdb.StatusError || tasks[0].ErrorMessage == nil {
		t.Errorf("expected one failed task, got %+v", tasks)
	}
}

func TestTaskStatus_Unknown(t *testing.T) {
	h := newHarness(t, nil)
	for _, id := range []string{pipeline.NewTaskID(), "..", "not-a-uuid"} {
		rec := h.do(t, http.MethodGet, "/api/v1/pdf_tasks/status/"+id, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for %q, got %d", id, rec.Code)
		}
	}
}

func TestTaskPages(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 2)

	rec := h.do(t, http.MethodGet, "/api/v1/pdf_tasks/pages/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string][]string](t, rec)["pages"]
	want := []string{
		"http://scan.local/static/" + id + "/pages/" + pagestore.PageFileName(id, 1),
		"http://scan.local/static/" + id + "/pages/" + pagestore.PageFileName(id, 2),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/pdf_tasks/pages/"+pipeline.NewTaskID(), nil)
	expectStatus(t, rec, http.StatusOK)
	if pages := decode[map[string][]string](t, rec)["pages"]; pages == nil || len(pages) != 0 {
		t.Errorf("expected empty page list, got %v", pages)
	}
}

func TestStaticPages(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/"+id+"/pages/"+pagestore.PageFileName(id, 1), nil))
	expectStatus(t, rec, http.StatusOK)
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected png content")
	}
}

func TestListGetDeleteTask(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)

	rec := h.do(t, http.MethodGet, "/api/v1/pdf_tasks/", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decode[[]taskdb.Task](t, rec)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("expected one task %s, got %+v", id, list)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/pdf_tasks/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	task := decode[taskdb.Task](t, rec)
	if task.NumPages == nil || *task.NumPages != 1 || task.Status != taskdb.StatusDone {
		t.Errorf("unexpected task %+v", task)
	}

	rec = h.do(t, http.MethodDelete, "/api/v1/pdf_tasks/"+id, nil)
	expectStatus(t, rec, http.StatusOK)
	if _, err := os.Stat(h.pages.TaskDir(id)); !os.IsNotExist(err) {
		t.Error("expected task directory to be removed")
	}
	rec = h.do(t, http.MethodGet, "/api/v1/pdf_tasks/"+id, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = h.do(t, http.MethodDelete, "/api/v1/pdf_tasks/"+id, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestDeskew(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 2)

	rec := h.do(t, http.MethodPost, "/api/v1/pdf_tasks/deskew", map[string]any{"task_id": id, "page": 2, "angle": 2.5})
	expectStatus(t, rec, http.StatusOK)
	resp := decode[map[string]any](t, rec)
	if resp["status"] != "success" || resp["angle"] != 2.5 {
		t.Errorf("unexpected response %v", resp)
	}
	data, err := os.ReadFile(h.pages.PagePath(id, 2))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "rotated -2.5" {
		t.Errorf("expected page rotated by -2.5, got %q", data)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/pdf_tasks/deskew", map[string]any{"task_id": id, "page": 9, "angle": 1})
	expectStatus(t, rec, http.StatusNotFound)
	rec = h.do(t, http.MethodPost, "/api/v1/pdf_tasks/deskew", map[string]any{"task_id": pipeline.NewTaskID(), "page": 1, "angle": 1})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestTemplate_NothingStored(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)

	rec := h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id+"&page=1", nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decode[map[string]any](t, rec)
	if resp["message"] != "No stored boxes" {
		t.Errorf("expected no stored boxes message, got %v", resp)
	}
	if boxes, ok := resp["boxes"].([]any); !ok || len(boxes) != 0 {
		t.Errorf("expected empty boxes, got %v", resp["boxes"])
	}

	rec = h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id+"&page=4", nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func titleTokens() []ocr.Token {
	return []ocr.Token{
		{Text: "Flöte", X: 5, Y: 5, Width: 20, Height: 8, Confidence: 90, Block: 1, Paragraph: 1, Line: 1},
		{Text: "Marsch", X: 35, Y: 10, Width: 30, Height: 15, Confidence: 95, Block: 1, Paragraph: 1, Line: 2},
		{Text: "Fußnote", X: 5, Y: 120, Width: 30, Height: 8, Confidence: 95, Block: 2, Paragraph: 1, Line: 1},
	}
}

func TestTemplate_TriggerOCRKeepsLabels(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	h.engine.words = titleTokens()

	labels := map[string]any{"Titel": "Marsch"}
	rec := h.do(t, http.MethodPut, "/api/v1/ocr/boxes/", map[string]any{"task_id": id, "boxes": []any{}, "labels": labels})
	expectStatus(t, rec, http.StatusOK)

	rec = h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id+"&page=1&trigger_ocr=true", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[template.Template](t, rec)
	if len(got.Boxes) != 2 {
		t.Fatalf("expected 2 boxes above the cutoff, got %+v", got.Boxes)
	}
	if got.Suggestions[layout.RoleVoice] != "Flöte" || got.Suggestions[layout.RoleTitle] != "Marsch" {
		t.Errorf("unexpected suggestions %v", got.Suggestions)
	}
	if !reflect.DeepEqual(got.Labels, labels) {
		t.Errorf("expected labels %v to survive, got %v", labels, got.Labels)
	}

	stored, found, err := h.tpl.Load(id)
	if err != nil || !found {
		t.Fatalf("expected stored template, got found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(stored, got) {
		t.Errorf("expected stored template %+v, got %+v", got, stored)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id+"&page=1", nil)
	expectStatus(t, rec, http.StatusOK)
	if again := decode[template.Template](t, rec); !reflect.DeepEqual(again, got) {
		t.Errorf("expected stored template on plain GET, got %+v", again)
	}
}

func TestTemplate_TriggerOCRFailure(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	h.engine.err = errors.New("tesseract crashed")

	rec := h.do(t, http.MethodGet, "/api/v1/ocr/?task_id="+id+"&page=1&trigger_ocr=1", nil)
	expectStatus(t, rec, http.StatusInternalServerError)
	if _, found, _ := h.tpl.Load(id); found {
		t.Error("expected nothing stored after a failed recognition")
	}
}

func TestSaveBoxes_UnknownTask(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPut, "/api/v1/ocr/boxes/", map[string]any{"task_id": pipeline.NewTaskID(), "boxes": []any{}})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestExtractText(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	boxes := []layout.Block{
		{X: 10.4, Y: 10, Width: 50, Height: 20, Text: "alt"},
		{X: 600, Y: 10, Width: 80, Height: 20, Text: "bleibt"},
	}
	rec := h.do(t, http.MethodPut, "/api/v1/ocr/boxes/", map[string]any{"task_id": id, "boxes": boxes})
	expectStatus(t, rec, http.StatusOK)

	h.engine.text = func([]byte) string { return "Neu" }
	rec = h.do(t, http.MethodPost, "/api/v1/ocr/extract_text/", map[string]any{
		"task_id": id,
		"page":    1,
		"boxes":   []map[string]int{{"x": 10, "y": 10, "width": 50, "height": 20}},
	})
	expectStatus(t, rec, http.StatusOK)
	resp := decode[struct {
		Boxes       []layout.Block     `json:"boxes"`
		Suggestions layout.Suggestions `json:"suggestions"`
	}](t, rec)
	if len(resp.Boxes) != 1 || resp.Boxes[0].Text != "Neu" {
		t.Fatalf("expected one recognised box, got %+v", resp.Boxes)
	}
	if resp.Suggestions[layout.RoleVoice] != "Neu" {
		t.Errorf("expected suggestions from updated boxes, got %v", resp.Suggestions)
	}

	stored, _, err := h.tpl.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Boxes[0].Text != "Neu" || stored.Boxes[1].Text != "bleibt" {
		t.Errorf("expected only the matching box to change, got %+v", stored.Boxes)
	}
}

func TestExtractText_FailureKeepsTemplate(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	boxes := []layout.Block{{X: 10, Y: 10, Width: 50, Height: 20, Text: "alt"}}
	rec := h.do(t, http.MethodPut, "/api/v1/ocr/boxes/", map[string]any{"task_id": id, "boxes": boxes})
	expectStatus(t, rec, http.StatusOK)

	h.engine.err = errors.New("no language data")
	rec = h.do(t, http.MethodPost, "/api/v1/ocr/extract_text/", map[string]any{
		"task_id": id,
		"page":    1,
		"boxes":   []map[string]int{{"x": 10, "y": 10, "width": 50, "height": 20}},
	})
	expectStatus(t, rec, http.StatusInternalServerError)

	stored, _, _ := h.tpl.Load(id)
	if stored.Boxes[0].Text != "alt" {
		t.Errorf("expected stored text to be untouched, got %q", stored.Boxes[0].Text)
	}
}

func TestRegion(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	h.engine.words = []ocr.Token{
		{Text: "Allegro", X: 2, Y: 3, Width: 30, Height: 10, Confidence: 91, Block: 1, Paragraph: 1, Line: 1},
		{Text: "moderato", X: 40, Y: 3, Width: 40, Height: 10, Confidence: 88, Block: 1, Paragraph: 1, Line: 1},
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ocr/region/", map[string]any{
		"task_id": id,
		"page":    1,
		"box":     map[string]int{"x": 100, "y": 200, "width": 300, "height": 50},
	})
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string][]layout.Block](t, rec)["boxes"]
	if len(got) != 1 {
		t.Fatalf("expected one block, got %+v", got)
	}
	if got[0].Text != "Allegro moderato" || got[0].X != 102 || got[0].Y != 203 {
		t.Errorf("expected page-relative block, got %+v", got[0])
	}

	rec = h.do(t, http.MethodPost, "/api/v1/ocr/region/", map[string]any{
		"task_id": id,
		"page":    1,
		"box":     map[string]int{"x": 5000, "y": 5000, "width": 10, "height": 10},
	})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestDetectVoices(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 3)

	titleBox := voices.Box{X: 400, Y: 50, Width: 200, Height: 40}
	voiceBox := voices.Box{X: 20, Y: 100, Width: 100, Height: 30}
	titleRect := voices.TitleRegion(titleBox, pageBounds).String()
	perPage := map[int]string{1: "Flöte", 2: "", 3: "Tuba"}

	h.engine.text = func(img []byte) string {
		name, rect, _ := strings.Cut(string(img), "|")
		if rect == titleRect {
			return "Marsch\n"
		}
		for n, voice := range perPage {
			if name == pagestore.PageFileName(id, n) {
				return voice
			}
		}
		return "?"
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ocr/voices", map[string]any{
		"task_id":   id,
		"title_box": titleBox,
		"voice_box": voiceBox,
	})
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string][]detectedVoice](t, rec)["voices"]
	want := []detectedVoice{
		{Page: 1, Title: "Marsch", Voice: "Flöte", NumPages: 2},
		{Page: 3, Title: "Marsch", Voice: "Tuba", NumPages: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestSplit(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 3)

	rec := h.do(t, http.MethodPost, "/api/v1/ocr/voices/split", map[string]any{
		"task_id":   id,
		"voices":    []voices.Entry{{Page: 3, Voice: "Tuba"}, {Page: 1, Voice: "Klar. 1."}},
		"title":     "Marsch",
		"komponist": "Fucik",
	})
	expectStatus(t, rec, http.StatusOK)
	resp := decode[struct {
		Status string   `json:"status"`
		Files  []string `json:"pdf_files"`
		Dir    string   `json:"export_dir"`
	}](t, rec)
	want := []string{"Marsch - Klar 1.pdf", "Marsch - Tuba.pdf"}
	if resp.Status != "success" || !reflect.DeepEqual(resp.Files, want) || resp.Dir != h.cfg.VoicesExportDir {
		t.Errorf("unexpected split response %+v", resp)
	}
	index, err := os.ReadFile(filepath.Join(h.cfg.VoicesExportDir, voices.IndexFileName))
	if err != nil {
		t.Fatalf("expected index: %v", err)
	}
	if !strings.Contains(string(index), "<Komponist>Fucik</Komponist>") {
		t.Errorf("expected composer in index, got:\n%s", index)
	}
}

func TestSplitZip(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 2)

	rec := h.do(t, http.MethodPost, "/api/v1/ocr/voices/split_zip", map[string]any{
		"task_id": id,
		"voices":  []voices.Entry{{Page: 1, Voice: "Trp."}},
		"title":   "Die Post",
	})
	expectStatus(t, rec, http.StatusOK)
	url := decode[map[string]string](t, rec)["zip_url"]
	if url != "/static/voices_export/Die_Post.zip" {
		t.Fatalf("unexpected zip url %q", url)
	}

	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	expectStatus(t, rec, http.StatusOK)
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("expected a zip archive")
	}
}

func TestOCRStats(t *testing.T) {
	h := newHarness(t, nil)
	h.srv.OCRStats.Record(120)

	rec := h.do(t, http.MethodGet, "/api/stats/ocr", nil)
	expectStatus(t, rec, http.StatusOK)
	resp := decode[struct {
		Language string            `json:"language"`
		Stats    ocr.StatsSnapshot `json:"stats"`
	}](t, rec)
	if resp.Language != "deu" || resp.Stats.Count != 1 || resp.Stats.MaxMs != 120 {
		t.Errorf("unexpected stats %+v", resp)
	}
}

func TestStatic_NoDirectoryListing(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 1)
	if err := os.MkdirAll(h.cfg.VoicesExportDir, 0o755); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/static/", "/static/" + id + "/", "/static/" + id + "/pages/", "/static/voices_export/"} {
		rec := httptest.NewRecorder()
		h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for %s, got %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), id) {
			t.Errorf("expected %s not to reveal the task id", path)
		}
	}
}

func TestDetectVoices_PanicFailsRequest(t *testing.T) {
	h := newHarness(t, nil)
	id := h.seed(t, 2)
	h.engine.text = func(img []byte) string {
		if strings.HasPrefix(string(img), pagestore.PageFileName(id, 2)) {
			panic("tesseract state corrupted")
		}
		return "Flöte"
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ocr/voices", map[string]any{
		"task_id":   id,
		"title_box": voices.Box{X: 400, Y: 50, Width: 200, Height: 40},
		"voice_box": voices.Box{X: 20, Y: 100, Width: 100, Height: 30},
	})
	expectStatus(t, rec, http.StatusInternalServerError)
	if !strings.Contains(rec.Body.String(), "page 2: panic: tesseract state corrupted") {
		t.Errorf("expected recovered panic in response, got %s", rec.Body.String())
	}
}
