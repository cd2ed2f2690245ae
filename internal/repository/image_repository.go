package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"knitkart/internal/models"
)

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

const imageColumns = `id, owner_id, bucket, object_key, format, size_bytes, checksum, signature, created_at`

func scanImages(rows pgx.Rows) ([]models.ProductImage, error) {
	defer rows.Close()

	var images []models.ProductImage
	for rows.Next() {
		var image models.ProductImage
		if err := rows.Scan(
			&image.ID,
			&image.OwnerID,
			&image.Bucket,
			&image.ObjectKey,
			&image.Format,
			&image.SizeBytes,
			&image.Checksum,
			&image.Signature,
			&image.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func (r *ImageRepository) Create(ctx context.Context, image models.ProductImage) error {
	const query = `
		INSERT INTO product_images (
			id, owner_id, bucket, object_key, format, size_bytes, checksum, signature, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.OwnerID,
		image.Bucket,
		image.ObjectKey,
		image.Format,
		image.SizeBytes,
		image.Checksum,
		image.Signature,
		image.CreatedAt,
	)
	return err
}

// ListByOwnerKeys returns the subset of keys that belong to the owner.
func (r *ImageRepository) ListByOwnerKeys(ctx context.Context, ownerID string, keys []string) ([]models.ProductImage, error) {
	query := `SELECT ` + imageColumns + ` FROM product_images WHERE owner_id = $1 AND object_key = ANY($2)`
	rows, err := r.pool.Query(ctx, query, ownerID, keys)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}

func (r *ImageRepository) List(ctx context.Context, limit, offset int) ([]models.ProductImage, error) {
	query := `SELECT ` + imageColumns + ` FROM product_images ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanImages(rows)
}
