package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrOrgNotFound is returned when an organization is not found
	ErrOrgNotFound = errors.New("organization not found")

	// ErrNotAMember is returned when a user has no accepted membership in an organization
	ErrNotAMember = errors.New("user is not a member of this organization")

	// ErrNotAdmin is returned when an operation requires WRITE permission the user lacks
	ErrNotAdmin = errors.New("insufficient permissions")
)

// Service provides organization-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new organization service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// GetByID retrieves an organization by ID
func (s *Service) GetByID(ctx context.Context, orgID uuid.UUID) (*Org, error) {
	var org Org

	query := `
		SELECT id, title, description, color, author_id, created_at, updated_at
		FROM orgs
		WHERE id = $1
	`

	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.ID,
		&org.Title,
		&org.Description,
		&org.Color,
		&org.AuthorID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// ListForUser retrieves all organizations the user has a membership in,
// partitioned into admin/member/pending buckets. DECLINED memberships cannot
// appear because declining deletes the row.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) (*OrgBuckets, error) {
	query := `
		SELECT o.id, o.title, o.description, o.color, o.author_id, o.created_at, o.updated_at,
		       m.permission, m.approvement
		FROM orgs o
		INNER JOIN org_memberships m ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orgs: %w", err)
	}
	defer rows.Close()

	buckets := &OrgBuckets{
		Admin:   []Org{},
		Member:  []Org{},
		Pending: []Org{},
	}

	for rows.Next() {
		var org Org
		var permission Permission
		var approvement Approvement
		err := rows.Scan(
			&org.ID,
			&org.Title,
			&org.Description,
			&org.Color,
			&org.AuthorID,
			&org.CreatedAt,
			&org.UpdatedAt,
			&permission,
			&approvement,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan org: %w", err)
		}

		switch bucketFor(permission, approvement) {
		case BucketAdmin:
			buckets.Admin = append(buckets.Admin, org)
		case BucketMember:
			buckets.Member = append(buckets.Member, org)
		case BucketPending:
			buckets.Pending = append(buckets.Pending, org)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating org rows: %w", err)
	}

	return buckets, nil
}

// Create creates a new organization and the creator's WRITE/ACCEPTED membership.
// Both writes happen in one transaction: an organization must never be visible
// without its creator membership.
func (s *Service) Create(ctx context.Context, title, color, description string, creatorID uuid.UUID) (*Org, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var org Org
	query := `
		INSERT INTO orgs (title, description, color, author_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, description, color, author_id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query, title, description, color, creatorID).Scan(
		&org.ID,
		&org.Title,
		&org.Description,
		&org.Color,
		&org.AuthorID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	memberQuery := `
		INSERT INTO org_memberships (org_id, user_id, permission, approvement)
		VALUES ($1, $2, $3, $4)
	`

	_, err = tx.Exec(ctx, memberQuery, org.ID, creatorID, PermissionWrite, ApprovementAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to create creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &org, nil
}

// UpdateFields holds the optional fields of an organization update.
// Nil pointers keep the prior value.
type UpdateFields struct {
	Title       *string
	Description *string
	Color       *string
}

// Update applies a partial update to an organization. The actor must hold
// WRITE permission.
func (s *Service) Update(ctx context.Context, orgID, actorUserID uuid.UUID, fields UpdateFields) (*Org, error) {
	if _, err := s.Authorize(ctx, orgID, actorUserID, PermissionWrite); err != nil {
		return nil, err
	}

	var org Org
	err := s.pool.QueryRow(ctx, `
		UPDATE orgs
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    color = COALESCE($4, color),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, description, color, author_id, created_at, updated_at
	`, orgID, fields.Title, fields.Description, fields.Color).Scan(
		&org.ID,
		&org.Title,
		&org.Description,
		&org.Color,
		&org.AuthorID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	return &org, nil
}

// Delete removes an organization. Memberships, tests, questions, answers and
// completions go with it via ON DELETE CASCADE. The actor must hold WRITE
// permission.
func (s *Service) Delete(ctx context.Context, orgID, actorUserID uuid.UUID) error {
	if _, err := s.Authorize(ctx, orgID, actorUserID, PermissionWrite); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM orgs WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrgNotFound
	}

	return nil
}

// ListMembers retrieves all members of an organization
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]MemberInfo, error) {
	query := `
		SELECT m.user_id, u.name, u.email, m.permission, m.approvement, m.created_at
		FROM org_memberships m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.org_id = $1
		ORDER BY m.created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var member MemberInfo
		err := rows.Scan(
			&member.UserID,
			&member.Name,
			&member.Email,
			&member.Permission,
			&member.Approvement,
			&member.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}
