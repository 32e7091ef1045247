package upload

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"permitpilot/internal/domain"
)

type Repository interface {
	Create(ctx context.Context, u *domain.Upload) error
	GetForUser(ctx context.Context, id, userID int64) (*domain.Upload, error)
	Update(ctx context.Context, u *domain.Upload) error
	Delete(ctx context.Context, id, userID int64) error
	List(ctx context.Context, userID int64, opts ListOptions) ([]domain.Upload, int64, error)
	ListByIDs(ctx context.Context, userID int64, ids []int64) ([]domain.Upload, error)
	Facets(ctx context.Context, userID int64) (tags []string, mimeTypes []string, err error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *domain.Upload) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return replaceTags(tx, u.ID, u.Tags)
	})
}

func (r *repository) GetForUser(ctx context.Context, id, userID int64) (*domain.Upload, error) {
	var u domain.Upload
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&domain.UploadTag{}).
		Where("upload_id = ?", u.ID).
		Order("tag").
		Pluck("tag", &u.Tags).Error; err != nil {
		return nil, err
	}
	if u.Tags == nil {
		u.Tags = []string{}
	}
	return &u, nil
}

// Update persists all columns of u and replaces its tag rows.
func (r *repository) Update(ctx context.Context, u *domain.Upload) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(u).Error; err != nil {
			return err
		}
		return replaceTags(tx, u.ID, u.Tags)
	})
}

func (r *repository) Delete(ctx context.Context, id, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Upload{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("upload_id = ?", id).Delete(&domain.UploadTag{}).Error
	})
}

func (r *repository) List(ctx context.Context, userID int64, opts ListOptions) ([]domain.Upload, int64, error) {
	var total int64
	if err := r.filtered(ctx, userID, opts).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, id DESC"
	if opts.Sort == SortOldest {
		order = "created_at ASC, id ASC"
	}

	var uploads []domain.Upload
	err := r.filtered(ctx, userID, opts).
		Order(order).
		Limit(opts.PageSize).
		Offset((opts.Page - 1) * opts.PageSize).
		Find(&uploads).Error
	if err != nil {
		return nil, 0, err
	}

	if err := r.loadTags(ctx, uploads); err != nil {
		return nil, 0, err
	}
	return uploads, total, nil
}

func (r *repository) ListByIDs(ctx context.Context, userID int64, ids []int64) ([]domain.Upload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var uploads []domain.Upload
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("id").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, uploads); err != nil {
		return nil, err
	}
	return uploads, nil
}

func (r *repository) Facets(ctx context.Context, userID int64) ([]string, []string, error) {
	tags := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&domain.UploadTag{}).
		Distinct().
		Joins("JOIN uploads ON uploads.id = upload_tags.upload_id").
		Where("uploads.user_id = ? AND tag <> ''", userID).
		Order("tag").
		Pluck("tag", &tags).Error
	if err != nil {
		return nil, nil, err
	}

	mimeTypes := make([]string, 0)
	err = r.db.WithContext(ctx).Model(&domain.Upload{}).
		Distinct().
		Where("user_id = ? AND mime_type <> ''", userID).
		Order("mime_type").
		Pluck("mime_type", &mimeTypes).Error
	if err != nil {
		return nil, nil, err
	}

	return tags, mimeTypes, nil
}

// filtered builds the WHERE clause shared by Count and the page select.
// Predicates AND together; membership inside tags/file_types is OR.
func (r *repository) filtered(ctx context.Context, userID int64, opts ListOptions) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&domain.Upload{}).Where("user_id = ?", userID)

	if opts.Search != "" {
		// Escaped so % and _ in the needle match literally.
		needle := escapeLike(strings.ToLower(opts.Search))
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, "%"+needle+"%")
	}
	if len(opts.FileTypes) > 0 {
		q = q.Where("mime_type IN ?", opts.FileTypes)
	}
	if len(opts.Tags) > 0 {
		// At least one shared tag, not containment.
		sub := r.db.Model(&domain.UploadTag{}).
			Select("upload_id").
			Where("tag IN ?", opts.Tags)
		q = q.Where("id IN (?)", sub)
	}

	from, to := opts.dateBounds()
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to)
	}

	return q
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func (r *repository) loadTags(ctx context.Context, uploads []domain.Upload) error {
	if len(uploads) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(uploads))
	for i := range uploads {
		ids = append(ids, uploads[i].ID)
	}

	var rows []domain.UploadTag
	if err := r.db.WithContext(ctx).
		Where("upload_id IN ?", ids).
		Order("tag").
		Find(&rows).Error; err != nil {
		return err
	}

	byUpload := make(map[int64][]string, len(uploads))
	for _, row := range rows {
		byUpload[row.UploadID] = append(byUpload[row.UploadID], row.Tag)
	}
	for i := range uploads {
		tags := byUpload[uploads[i].ID]
		if tags == nil {
			tags = []string{}
		}
		uploads[i].Tags = tags
	}
	return nil
}

func replaceTags(tx *gorm.DB, uploadID int64, tags []string) error {
	if err := tx.Where("upload_id = ?", uploadID).Delete(&domain.UploadTag{}).Error; err != nil {
		return err
	}
	rows := make([]domain.UploadTag, 0, len(tags))
	for _, tag := range normalizeSet(tags) {
		rows = append(rows, domain.UploadTag{UploadID: uploadID, Tag: tag})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}
