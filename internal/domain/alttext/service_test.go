package alttext_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/domain/status"
	"alt-text-server/internal/domain/thumbnail"
	"alt-text-server/internal/domain/vision"
	"alt-text-server/internal/utils/apperrors"
)

type fakeImageRepo struct {
	mu   sync.Mutex
	docs map[string]*alttext.ImageDocument
}

func newFakeImageRepo() *fakeImageRepo {
	return &fakeImageRepo{docs: map[string]*alttext.ImageDocument{}}
}

func (r *fakeImageRepo) Create(_ context.Context, doc *alttext.ImageDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *doc
	clone.UploadedAt = time.Now()
	r.docs[doc.ID] = &clone
	return nil
}

func (r *fakeImageRepo) GetByID(_ context.Context, id string) (*alttext.ImageDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "image %s not found", id)
	}
	clone := *doc
	return &clone, nil
}

func (r *fakeImageRepo) FindByChecksum(_ context.Context, checksum string) (*alttext.ImageDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.FileChecksum == checksum {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeImageRepo) MarkProcessing(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	now := time.Now()
	doc.ProcessingStatus = status.StatusProcessing
	doc.ProcessingStartedAt = &now
	doc.ProcessingError = nil
	return nil
}

func (r *fakeImageRepo) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	doc.ProcessingStatus = status.StatusCompleted
	doc.ProcessingError = nil
	return nil
}

func (r *fakeImageRepo) MarkFailed(_ context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	doc.ProcessingStatus = status.StatusFailed
	doc.ProcessingError = &message
	return nil
}

func (r *fakeImageRepo) MarkPending(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	doc.ProcessingStatus = status.StatusPending
	doc.ProcessingStartedAt = nil
	doc.ProcessingError = nil
	return nil
}

func (r *fakeImageRepo) SaveThumbnail(_ context.Context, id string, thumb *thumbnail.Thumbnail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	now := time.Now()
	doc.Thumbnail = alttext.Preview{
		Bytes:       thumb.Bytes,
		Width:       &thumb.Width,
		Height:      &thumb.Height,
		GeneratedAt: &now,
	}
	return nil
}

func (r *fakeImageRepo) SaveThumbnailError(_ context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id].Thumbnail = alttext.Preview{Error: &message}
	return nil
}

func (r *fakeImageRepo) ListRetryable(_ context.Context, limit int) ([]*alttext.ImageDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*alttext.ImageDocument
	for _, doc := range r.docs {
		if len(out) >= limit {
			break
		}
		if doc.ProcessingStatus == status.StatusPending || doc.ProcessingStatus == status.StatusProcessing {
			clone := *doc
			out = append(out, &clone)
		}
	}
	return out, nil
}

// racingImageRepo simulates a concurrent identical upload committing its
// record between this caller's checksum lookup and its insert.
type racingImageRepo struct {
	*fakeImageRepo
	winner *alttext.ImageDocument
	raced  bool
}

func (r *racingImageRepo) FindByChecksum(ctx context.Context, checksum string) (*alttext.ImageDocument, error) {
	if !r.raced {
		return nil, nil
	}
	return r.fakeImageRepo.FindByChecksum(ctx, checksum)
}

func (r *racingImageRepo) Create(ctx context.Context, doc *alttext.ImageDocument) error {
	r.raced = true
	r.winner.FileChecksum = doc.FileChecksum
	_ = r.fakeImageRepo.Create(ctx, r.winner)
	return fmt.Errorf("duplicate key value violates unique constraint")
}

type fakeResultRepo struct {
	mu      sync.Mutex
	results map[string]*alttext.Result // keyed by image document ID
	nextID  int
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: map[string]*alttext.Result{}}
}

func (r *fakeResultRepo) byID(id string) *alttext.Result {
	for _, res := range r.results {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (r *fakeResultRepo) GetOrCreate(_ context.Context, imageID string) (*alttext.Result, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[imageID]; ok {
		clone := *res
		return &clone, false, nil
	}
	r.nextID++
	now := time.Now()
	res := &alttext.Result{
		ID:              fmt.Sprintf("result-%d", r.nextID),
		ImageDocumentID: imageID,
		Status:          status.StatusProcessing,
		RequestedAt:     &now,
	}
	r.results[imageID] = res
	clone := *res
	return &clone, true, nil
}

func (r *fakeResultRepo) GetByImageID(_ context.Context, imageID string) (*alttext.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[imageID]
	if !ok {
		return nil, nil
	}
	clone := *res
	return &clone, nil
}

func (r *fakeResultRepo) MarkProcessing(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.byID(id)
	now := time.Now()
	res.Status = status.StatusProcessing
	res.RequestedAt = &now
	res.Error = nil
	return nil
}

func (r *fakeResultRepo) SetPrompt(_ context.Context, id, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID(id).Prompt = prompt
	return nil
}

func (r *fakeResultRepo) PersistSuccess(_ context.Context, id string, raw json.RawMessage, parsed vision.Parsed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.byID(id)
	now := time.Now()
	res.RawResponse = raw
	res.AltText = parsed.AltText
	res.ResponseID = parsed.ResponseID
	res.Provider = parsed.Provider
	res.Model = parsed.Model
	res.FinishReason = parsed.FinishReason
	res.UpstreamCreatedAt = parsed.CreatedAt
	res.PromptTokens = parsed.PromptTokens
	res.CompletionTokens = parsed.CompletionTokens
	res.TotalTokens = parsed.TotalTokens
	res.Cost = parsed.Cost
	res.Status = status.StatusCompleted
	res.CompletedAt = &now
	res.Error = nil
	return nil
}

func (r *fakeResultRepo) PersistFailure(_ context.Context, id, message string, resulting status.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.byID(id)
	res.Status = resulting
	res.Error = &message
	return nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[string][]byte{}}
}

func (f *fakeFileStore) Save(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return key, nil
}

func (f *fakeFileStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[key]
	return ok, nil
}

func (f *fakeFileStore) Read(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (*vision.ChatResponse, error)
}

func (p *fakeProvider) CallModel(ctx context.Context, prompt, apiKey, model string, timeout time.Duration, imageDataURL string) (*vision.ChatResponse, error) {
	return p.CallWithFallback(ctx, prompt, apiKey, []string{model}, timeout, imageDataURL)
}

func (p *fakeProvider) CallWithFallback(_ context.Context, _, _ string, _ []string, _ time.Duration, _ string) (*vision.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.respond(p.calls)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func successResponse(altText string) (*vision.ChatResponse, error) {
	raw := fmt.Sprintf(`{"id":"gen-1","model":"qwen/qwen2.5-vl-72b","choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, altText)
	var resp vision.ChatResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	resp.Raw = json.RawMessage(raw)
	return &resp, nil
}

func testConfig() *config.Config {
	return &config.Config{
		OpenRouterAPIKey:       "sk-or-test",
		OpenRouterModelOrder:   "qwen/qwen2.5-vl-72b,google/gemini-flash",
		OpenRouterSyncTimeout:  time.Second,
		OpenRouterBatchTimeout: 2 * time.Second,
		MaxUploadBytes:         20 * 1024 * 1024,
	}
}

type fixture struct {
	svc      *alttext.Service
	images   *fakeImageRepo
	results  *fakeResultRepo
	files    *fakeFileStore
	provider *fakeProvider
}

func newFixture(cfg *config.Config, respond func(call int) (*vision.ChatResponse, error)) *fixture {
	images := newFakeImageRepo()
	results := newFakeResultRepo()
	files := newFakeFileStore()
	provider := &fakeProvider{respond: respond}
	svc := alttext.NewService(cfg, images, results, files, provider, zerolog.Nop())
	return &fixture{svc: svc, images: images, results: results, files: files, provider: provider}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestUploadSyncSuccess(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) {
		return successResponse("A red kite over a field.")
	})

	doc, deduped, err := fx.svc.Upload(context.Background(), alttext.UploadInput{
		Filename: "kite.png",
		Data:     testPNG(t),
		MimeType: "image/png",
		Submitter: alttext.Submitter{
			FirstName: "Ada",
			Email:     "ada@example.edu",
		},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if deduped {
		t.Error("first upload reported as duplicate")
	}
	if doc.ProcessingStatus != status.StatusCompleted {
		t.Errorf("document status = %s, want completed", doc.ProcessingStatus)
	}
	if doc.ProcessingError != nil {
		t.Errorf("document error = %q, want nil", *doc.ProcessingError)
	}
	if doc.Thumbnail.Bytes == nil {
		t.Error("thumbnail was not stored")
	}

	result, err := fx.results.GetByImageID(context.Background(), doc.ID)
	if err != nil || result == nil {
		t.Fatalf("result row missing: %v", err)
	}
	if result.Status != status.StatusCompleted {
		t.Errorf("result status = %s, want completed", result.Status)
	}
	if result.AltText != "A red kite over a field." {
		t.Errorf("alt text = %q", result.AltText)
	}
	if result.Prompt == "" {
		t.Error("prompt was not persisted")
	}
	if result.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if len(result.RawResponse) == 0 {
		t.Error("raw response not persisted")
	}
}

func TestUploadWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.OpenRouterAPIKey = ""
	fx := newFixture(cfg, func(int) (*vision.ChatResponse, error) {
		t.Error("provider must not be called without credentials")
		return nil, nil
	})

	doc, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{
		Filename: "photo.png",
		Data:     testPNG(t),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ProcessingStatus != status.StatusPending {
		t.Errorf("document status = %s, want pending", doc.ProcessingStatus)
	}
	result, err := fx.results.GetByImageID(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Error("no result row should exist when no attempt was made")
	}
	if fx.provider.callCount() != 0 {
		t.Errorf("provider called %d times", fx.provider.callCount())
	}
}

func TestUploadTimeoutDefersToBatch(t *testing.T) {
	calls := 0
	fx := newFixture(testConfig(), func(call int) (*vision.ChatResponse, error) {
		calls = call
		if call == 1 {
			return nil, apperrors.New(apperrors.KindTimeout, "request timed out")
		}
		return successResponse("A lighthouse at dusk.")
	})

	doc, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{
		Filename: "light.png",
		Data:     testPNG(t),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ProcessingStatus != status.StatusPending {
		t.Errorf("after timeout document status = %s, want pending", doc.ProcessingStatus)
	}
	if doc.ProcessingStartedAt != nil {
		t.Error("started_at not cleared after timeout deferral")
	}
	result, err := fx.results.GetByImageID(context.Background(), doc.ID)
	if err != nil || result == nil {
		t.Fatalf("result row missing: %v", err)
	}
	if result.Status != status.StatusPending {
		t.Errorf("result status = %s, want pending", result.Status)
	}
	if result.Error == nil || !strings.Contains(*result.Error, "timed out") {
		t.Errorf("result error = %v, want timeout deferral message", result.Error)
	}

	// The batch worker picks the record up and succeeds.
	succeeded, failed, err := fx.svc.ProcessPending(context.Background(), 10, false)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if succeeded != 1 || failed != 0 {
		t.Errorf("ProcessPending() = (%d, %d), want (1, 0)", succeeded, failed)
	}
	if calls != 2 {
		t.Errorf("provider calls = %d, want 2", calls)
	}
	doc, result, err = fx.svc.Get(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ProcessingStatus != status.StatusCompleted || result.Status != status.StatusCompleted {
		t.Errorf("statuses = (%s, %s), want completed", doc.ProcessingStatus, result.Status)
	}
	if result.AltText != "A lighthouse at dusk." {
		t.Errorf("alt text = %q", result.AltText)
	}
}

func TestUploadDeduplicatesCompleted(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) {
		return successResponse("First pass.")
	})
	data := testPNG(t)

	first, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{Filename: "a.png", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if first.ProcessingStatus != status.StatusCompleted {
		t.Fatalf("setup: first upload not completed: %s", first.ProcessingStatus)
	}

	second, deduped, err := fx.svc.Upload(context.Background(), alttext.UploadInput{Filename: "renamed.png", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if !deduped {
		t.Error("re-upload not reported as duplicate")
	}
	if second.ID != first.ID {
		t.Errorf("re-upload created new record %s, want %s", second.ID, first.ID)
	}
	if fx.provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1: completed records must not be reprocessed", fx.provider.callCount())
	}
	result, _ := fx.results.GetByImageID(context.Background(), first.ID)
	if result.AltText != "First pass." {
		t.Errorf("alt text changed on duplicate upload: %q", result.AltText)
	}
}

func TestUploadResolvesCreateRaceToWinner(t *testing.T) {
	images := &racingImageRepo{
		fakeImageRepo: newFakeImageRepo(),
		winner: &alttext.ImageDocument{
			ID:               "winner",
			ProcessingStatus: status.StatusCompleted,
		},
	}
	results := newFakeResultRepo()
	files := newFakeFileStore()
	provider := &fakeProvider{respond: func(int) (*vision.ChatResponse, error) {
		return successResponse("should not be generated")
	}}
	svc := alttext.NewService(testConfig(), images, results, files, provider, zerolog.Nop())

	doc, deduped, err := svc.Upload(context.Background(), alttext.UploadInput{Filename: "race.png", Data: testPNG(t)})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !deduped {
		t.Error("racing upload not reported as duplicate")
	}
	if doc.ID != "winner" {
		t.Errorf("upload resolved to record %s, want the concurrent winner", doc.ID)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times, want 0: completed winner must not be reprocessed", provider.callCount())
	}
}

func TestUploadRetriesFailedRecord(t *testing.T) {
	fx := newFixture(testConfig(), func(call int) (*vision.ChatResponse, error) {
		if call == 1 {
			return nil, apperrors.New(apperrors.KindUpstream, "upstream 502")
		}
		return successResponse("Second pass.")
	})
	data := testPNG(t)

	first, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{Filename: "a.png", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if first.ProcessingStatus != status.StatusFailed {
		t.Fatalf("setup: first upload should have failed, got %s", first.ProcessingStatus)
	}

	second, deduped, err := fx.svc.Upload(context.Background(), alttext.UploadInput{Filename: "a.png", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if !deduped || second.ID != first.ID {
		t.Errorf("failed record was not reused: deduped=%v id=%s", deduped, second.ID)
	}
	if second.ProcessingStatus != status.StatusCompleted {
		t.Errorf("retried record status = %s, want completed", second.ProcessingStatus)
	}
	if fx.provider.callCount() != 2 {
		t.Errorf("provider called %d times, want 2", fx.provider.callCount())
	}
}

func TestProcessPendingMissingFile(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) {
		t.Error("provider must not be called when the stored file is gone")
		return nil, nil
	})

	doc := &alttext.ImageDocument{
		ID:               "orphan-1",
		OriginalFilename: "gone.png",
		FileChecksum:     "deadbeef",
		FileExtension:    "png",
		ProcessingStatus: status.StatusPending,
	}
	if err := fx.images.Create(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	succeeded, failed, err := fx.svc.ProcessPending(context.Background(), 5, false)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if succeeded != 0 || failed != 1 {
		t.Errorf("ProcessPending() = (%d, %d), want (0, 1)", succeeded, failed)
	}
	got, _ := fx.images.GetByID(context.Background(), "orphan-1")
	if got.ProcessingStatus != status.StatusFailed {
		t.Errorf("document status = %s, want failed", got.ProcessingStatus)
	}
	if got.ProcessingError == nil || !strings.Contains(*got.ProcessingError, "missing") {
		t.Errorf("document error = %v, want stored-file-missing message", got.ProcessingError)
	}
}

func TestProcessPendingDryRun(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) {
		t.Error("provider must not be called in dry-run mode")
		return nil, nil
	})
	doc := &alttext.ImageDocument{
		ID:               "dry-1",
		FileChecksum:     "cafe",
		ProcessingStatus: status.StatusPending,
	}
	if err := fx.images.Create(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	succeeded, failed, err := fx.svc.ProcessPending(context.Background(), 5, true)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if succeeded != 0 || failed != 0 {
		t.Errorf("dry run counts = (%d, %d), want (0, 0)", succeeded, failed)
	}
	got, _ := fx.images.GetByID(context.Background(), "dry-1")
	if got.ProcessingStatus != status.StatusPending {
		t.Errorf("dry run mutated status to %s", got.ProcessingStatus)
	}
	if res, _ := fx.results.GetByImageID(context.Background(), "dry-1"); res != nil {
		t.Error("dry run created a result row")
	}
}

func TestProcessPendingWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.OpenRouterModelOrder = ""
	fx := newFixture(cfg, func(int) (*vision.ChatResponse, error) { return nil, nil })

	_, _, err := fx.svc.ProcessPending(context.Background(), 5, false)
	if !apperrors.IsConfiguration(err) {
		t.Errorf("ProcessPending() error = %v, want configuration error", err)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) { return nil, nil })
	_, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{Filename: "empty.png"})
	if err != alttext.ErrEmptyUpload {
		t.Errorf("Upload() error = %v, want ErrEmptyUpload", err)
	}
}

func TestUploadNonImageStillAttemptsAltText(t *testing.T) {
	fx := newFixture(testConfig(), func(int) (*vision.ChatResponse, error) {
		return successResponse("A plain text document.")
	})
	doc, _, err := fx.svc.Upload(context.Background(), alttext.UploadInput{
		Filename: "notes.txt",
		Data:     []byte("not an image at all"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Thumbnail.Error == nil {
		t.Error("thumbnail error not recorded for undecodable input")
	}
	if doc.ProcessingStatus != status.StatusCompleted {
		t.Errorf("document status = %s, want completed despite thumbnail failure", doc.ProcessingStatus)
	}
}
