package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/civictrack/apiserver/types"
)

// ComplaintRepository handles persistence for complaints.
type ComplaintRepository struct {
	db *sql.DB
}

func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// complaintColumns is shared by every read so scanComplaint stays in sync.
// The source relation is always aliased as c and the author as u.
const complaintColumns = `c.id, c.description, c.location, c.status, c.upvotes, c.image_key,
		COALESCE(c.user_id, 0), COALESCE(u.email, ''), c.created_at, c.updated_at`

const returningColumns = `id, description, location, status, upvotes, image_key, user_id, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns complaints matching filter, most upvoted first and newest
// first among equals.
func (r *ComplaintRepository) List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, error) {
	builder := squirrel.Select(complaintColumns).
		From("complaints c").
		LeftJoin("users u ON u.id = c.user_id").
		OrderBy("c.upvotes DESC", "c.created_at DESC", "c.id DESC").
		PlaceholderFormat(squirrel.Dollar)

	// Surrounding whitespace is not part of the query.
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		builder = builder.Where(squirrel.Or{
			squirrel.ILike{"c.description": pattern},
			squirrel.ILike{"c.location": pattern},
		})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"c.status": filter.Status})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	complaints := make([]types.Complaint, 0)
	for rows.Next() {
		complaint, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, complaint)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return complaints, nil
}

func (r *ComplaintRepository) Get(ctx context.Context, id int) (types.Complaint, error) {
	query := `
		SELECT ` + complaintColumns + `
		FROM complaints c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.id = $1`
	return scanComplaint(r.db.QueryRowContext(ctx, query, id))
}

func (r *ComplaintRepository) Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error) {
	now := time.Now()
	complaint.CreatedAt = now
	complaint.UpdatedAt = now

	const query = `
		INSERT INTO complaints (description, location, status, upvotes, image_key, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		complaint.Description,
		complaint.Location,
		complaint.Status,
		complaint.Upvotes,
		complaint.ImageKey,
		complaint.UserID,
		complaint.CreatedAt,
		complaint.UpdatedAt,
	).Scan(&complaint.ID); err != nil {
		return types.Complaint{}, err
	}
	return complaint, nil
}

// IncrementUpvotes adds one upvote in a single statement, so concurrent
// callers never lose an increment.
func (r *ComplaintRepository) IncrementUpvotes(ctx context.Context, id int) (types.Complaint, error) {
	query := `
		WITH c AS (
			UPDATE complaints
			SET upvotes = upvotes + 1
			WHERE id = $1
			RETURNING ` + returningColumns + `
		)
		SELECT ` + complaintColumns + `
		FROM c
		LEFT JOIN users u ON u.id = c.user_id`
	return scanComplaint(r.db.QueryRowContext(ctx, query, id))
}

func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id int, status types.Status) (types.Complaint, error) {
	query := `
		WITH c AS (
			UPDATE complaints
			SET status = $1,
				updated_at = $2
			WHERE id = $3
			RETURNING ` + returningColumns + `
		)
		SELECT ` + complaintColumns + `
		FROM c
		LEFT JOIN users u ON u.id = c.user_id`
	return scanComplaint(r.db.QueryRowContext(ctx, query, status, time.Now(), id))
}

// Delete removes a complaint and returns the image key it referenced.
func (r *ComplaintRepository) Delete(ctx context.Context, id int) (string, error) {
	const query = `DELETE FROM complaints WHERE id = $1 RETURNING image_key`
	var imageKey string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&imageKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return imageKey, nil
}

func scanComplaint(row rowScanner) (types.Complaint, error) {
	var complaint types.Complaint
	err := row.Scan(
		&complaint.ID,
		&complaint.Description,
		&complaint.Location,
		&complaint.Status,
		&complaint.Upvotes,
		&complaint.ImageKey,
		&complaint.UserID,
		&complaint.AuthorEmail,
		&complaint.CreatedAt,
		&complaint.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Complaint{}, ErrNotFound
		}
		return types.Complaint{}, err
	}
	return complaint, nil
}
