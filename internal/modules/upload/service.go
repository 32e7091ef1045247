package upload

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"permitpilot/internal/cache"
	"permitpilot/internal/domain"
	"permitpilot/internal/storage"
)

// CacheTag groups every cached dashboard read; all mutation paths
// invalidate it before reporting success.
const CacheTag = "uploads"

// maxContentCapture caps the text captured from text/* payloads.
const maxContentCapture = 100_000

// Summarizer produces a short summary of document text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Notifier pushes best-effort change events to the owner's dashboard.
type Notifier interface {
	UploadsChanged(userID int64, action string, uploadID int64)
}

// Limiter caps concurrent summarization calls.
type Limiter interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string)
}

type Page struct {
	Uploads  []domain.Upload `json:"uploads"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type Facets struct {
	Tags      []string `json:"tags"`
	MimeTypes []string `json:"mime_types"`
}

type Service struct {
	repo       Repository
	files      *storage.Store
	cache      *cache.Store
	summarizer Summarizer
	notifier   Notifier
	limiter    Limiter
}

func NewService(repo Repository, files *storage.Store, cacheStore *cache.Store, summarizer Summarizer) *Service {
	return &Service{
		repo:       repo,
		files:      files,
		cache:      cacheStore,
		summarizer: summarizer,
	}
}

// WithNotifier attaches an optional change-event sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithLimiter attaches an optional concurrency cap for summarization.
func (s *Service) WithLimiter(l Limiter) *Service {
	s.limiter = l
	return s
}

// List returns one page of the user's uploads. Results are cached under
// CacheTag until a mutation invalidates them.
func (s *Service) List(ctx context.Context, userID int64, opts ListOptions) (*Page, error) {
	opts = opts.Normalize()
	key := opts.cacheKey(userID)

	if v, ok := s.cache.Get(key); ok {
		if page, ok := v.(*Page); ok {
			return page, nil
		}
	}

	uploads, total, err := s.repo.List(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}

	page := &Page{
		Uploads:  uploads,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
	s.cache.Set(key, page, CacheTag)
	return page, nil
}

// ListFacets returns the distinct tags and mime types across all of the
// user's uploads, each sorted and deduplicated.
func (s *Service) ListFacets(ctx context.Context, userID int64) (*Facets, error) {
	key := fmt.Sprintf("uploads:facets:%d", userID)
	if v, ok := s.cache.Get(key); ok {
		if facets, ok := v.(*Facets); ok {
			return facets, nil
		}
	}

	tags, mimeTypes, err := s.repo.Facets(ctx, userID)
	if err != nil {
		return nil, err
	}

	facets := &Facets{Tags: tags, MimeTypes: mimeTypes}
	s.cache.Set(key, facets, CacheTag)
	return facets, nil
}

// Create stores the file to disk, records the row, and captures text for
// text/* payloads. The summary stays empty until an explicit summarize call.
func (s *Service) Create(ctx context.Context, userID int64, fileHeader *multipart.FileHeader) (*domain.Upload, error) {
	if fileHeader == nil {
		return nil, ErrNoFile
	}

	name := fileHeader.Filename
	if name == "" {
		name = "upload"
	}
	mimeType := declaredMimeType(fileHeader)

	content, err := captureContent(fileHeader, mimeType)
	if err != nil {
		return nil, err
	}

	relPath, url, err := s.saveFile(fileHeader)
	if err != nil {
		return nil, err
	}

	u := &domain.Upload{
		UserID:      userID,
		Name:        name,
		MimeType:    mimeType,
		Size:        fileHeader.Size,
		URL:         &url,
		StoragePath: relPath,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, u); err != nil {
		s.files.Remove(relPath) // roll back the file on DB error
		return nil, fmt.Errorf("failed to save upload record: %w", err)
	}

	s.cache.Invalidate(CacheTag)
	s.notify(userID, "created", u.ID)
	return u, nil
}

// Get returns one owned upload; a foreign or absent row is ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id int64) (*domain.Upload, error) {
	return s.repo.GetForUser(ctx, id, userID)
}

// Update applies a partial {name, summary, tags} patch to an owned row.
func (s *Service) Update(ctx context.Context, userID, id int64, req UpdateRequest) (*domain.Upload, error) {
	u, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		u.Name = name
	}
	if req.Summary != nil {
		u.Summary = req.Summary
	}
	if req.Tags != nil {
		u.Tags = *req.Tags
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.cache.Invalidate(CacheTag)
	s.notify(userID, "updated", u.ID)
	return s.repo.GetForUser(ctx, id, userID)
}

// Delete permanently removes the row, its tags, and the stored bytes.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	u, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.files.Remove(u.StoragePath) // file may already be gone
	s.cache.Invalidate(CacheTag)
	s.notify(userID, "deleted", id)
	return nil
}

// Replace swaps the stored bytes of an owned row and stamps replaced_at.
func (s *Service) Replace(ctx context.Context, userID, id int64, fileHeader *multipart.FileHeader) (*domain.Upload, error) {
	if fileHeader == nil {
		return nil, ErrNoFile
	}

	u, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	relPath, url, err := s.saveFile(fileHeader)
	if err != nil {
		return nil, err
	}

	oldPath := u.StoragePath
	now := time.Now().UTC()

	name := fileHeader.Filename
	if name == "" {
		name = u.Name
	}

	u.Name = name
	u.MimeType = declaredMimeType(fileHeader)
	u.Size = fileHeader.Size
	u.URL = &url
	u.StoragePath = relPath
	u.ReplacedAt = &now

	if err := s.repo.Update(ctx, u); err != nil {
		s.files.Remove(relPath)
		return nil, err
	}

	if oldPath != "" && oldPath != relPath {
		s.files.Remove(oldPath)
	}

	s.cache.Invalidate(CacheTag)
	s.notify(userID, "replaced", u.ID)
	return u, nil
}

// Download resolves an owned upload to its on-disk file path.
func (s *Service) Download(ctx context.Context, userID, id int64) (*domain.Upload, string, error) {
	u, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return nil, "", err
	}
	if u.StoragePath == "" {
		return nil, "", ErrNoStoredFile
	}
	abs := s.files.Abs(u.StoragePath)
	if _, err := os.Stat(abs); err != nil {
		return nil, "", ErrNoStoredFile
	}
	return u, abs, nil
}

// ExportZip streams a zip of the caller-owned subset of ids into w.
// Ids that are not owned, or rows without stored bytes, are skipped.
// Returns the number of files written.
func (s *Service) ExportZip(ctx context.Context, userID int64, ids []int64, w io.Writer) (int, error) {
	uploads, err := s.repo.ListByIDs(ctx, userID, ids)
	if err != nil {
		return 0, err
	}

	exportable := make([]domain.Upload, 0, len(uploads))
	for _, u := range uploads {
		if u.StoragePath == "" {
			continue
		}
		if _, err := os.Stat(s.files.Abs(u.StoragePath)); err != nil {
			continue
		}
		exportable = append(exportable, u)
	}
	if len(exportable) == 0 {
		return 0, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	written := 0
	for _, u := range exportable {
		if err := s.addZipEntry(zw, u); err != nil {
			_ = zw.Close()
			return written, err
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return written, err
	}
	return written, nil
}

func (s *Service) addZipEntry(zw *zip.Writer, u domain.Upload) error {
	src, err := s.files.Open(u.StoragePath)
	if err != nil {
		return err
	}
	defer src.Close()

	entryName := u.Name
	if entryName == "" {
		entryName = fmt.Sprintf("upload-%d", u.ID)
	}

	dst, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Summarize runs the summarizer over the captured content of an owned row
// and persists the result. The row is left untouched on upstream failure.
func (s *Service) Summarize(ctx context.Context, userID, id int64) (string, error) {
	u, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return "", err
	}
	if u.Content == nil || strings.TrimSpace(*u.Content) == "" {
		return "", ErrNoContent
	}

	summary, err := s.SummarizeText(ctx, *u.Content)
	if err != nil {
		return "", err
	}

	u.Summary = &summary
	if err := s.repo.Update(ctx, u); err != nil {
		return "", err
	}

	s.cache.Invalidate(CacheTag)
	s.notify(userID, "summarized", u.ID)
	return summary, nil
}

// SummarizeText summarizes raw text without touching any row.
func (s *Service) SummarizeText(ctx context.Context, text string) (string, error) {
	if s.summarizer == nil {
		return "", ErrSummarizer
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, "summarize"); err != nil {
			return "", err
		}
		defer s.limiter.Release(ctx, "summarize")
	}

	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		return "", errors.Join(ErrSummarizer, err)
	}
	return summary, nil
}

// InvalidateTag services the explicit revalidation endpoint.
func (s *Service) InvalidateTag(tag string) int {
	return s.cache.Invalidate(tag)
}

func (s *Service) notify(userID int64, action string, uploadID int64) {
	if s.notifier != nil {
		s.notifier.UploadsChanged(userID, action, uploadID)
	}
}

func (s *Service) saveFile(fileHeader *multipart.FileHeader) (string, string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	return s.files.Save(fileHeader.Filename, src)
}

func declaredMimeType(fileHeader *multipart.FileHeader) string {
	mimeType := fileHeader.Header.Get("Content-Type")
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// captureContent keeps the first maxContentCapture bytes of text payloads
// so they can be searched and summarized later.
func captureContent(fileHeader *multipart.FileHeader, mimeType string) (*string, error) {
	if !strings.HasPrefix(mimeType, "text/") {
		return nil, nil
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	raw, err := io.ReadAll(io.LimitReader(src, maxContentCapture))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(raw)
	return &content, nil
}
