package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateMember is returned when a membership already exists for the pair
	ErrDuplicateMember = errors.New("user is already a member of this organization")

	// ErrMembershipNotFound is returned when no membership exists for the pair
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrCannotRemoveCreator is returned when removing the organization creator
	ErrCannotRemoveCreator = errors.New("cannot remove the organization creator")

	// ErrInvalidPermission is returned for an unknown permission value
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrInvalidApprovement is returned for an unknown approvement value
	ErrInvalidApprovement = errors.New("invalid approvement")

	// ErrUserNotFound is returned when the invited user does not exist
	ErrUserNotFound = errors.New("user not found")
)

// FindMembership retrieves the membership for an (organization, user) pair.
// Returns ErrMembershipNotFound when the pair is absent.
func (s *Service) FindMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	var m Membership

	err := s.pool.QueryRow(ctx, `
		SELECT org_id, user_id, permission, approvement, created_at, updated_at
		FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(
		&m.OrgID,
		&m.UserID,
		&m.Permission,
		&m.Approvement,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}

	return &m, nil
}

// Authorize is the single authorization gate for organization- and test-scoped
// operations. It requires an ACCEPTED membership and, when required is WRITE,
// WRITE permission. Returns ErrNotAMember or ErrNotAdmin accordingly.
func (s *Service) Authorize(ctx context.Context, orgID, userID uuid.UUID, required Permission) (*Membership, error) {
	m, err := s.FindMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, ErrMembershipNotFound) {
			return nil, ErrNotAMember
		}
		return nil, err
	}

	if m.Approvement != ApprovementAccepted {
		return nil, ErrNotAMember
	}
	if required == PermissionWrite && m.Permission != PermissionWrite {
		return nil, ErrNotAdmin
	}

	return m, nil
}

// AddMember invites a user into an organization with the given permission.
// The membership starts as PENDING until the invitee accepts. The actor must
// hold WRITE permission. The (org_id, user_id) primary key closes the race
// between concurrent invites.
func (s *Service) AddMember(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, permission Permission) (*Membership, error) {
	if !permission.IsValid() {
		return nil, ErrInvalidPermission
	}

	if _, err := s.Authorize(ctx, orgID, actorUserID, PermissionWrite); err != nil {
		return nil, err
	}

	var m Membership
	err := s.pool.QueryRow(ctx, `
		INSERT INTO org_memberships (org_id, user_id, permission, approvement)
		VALUES ($1, $2, $3, $4)
		RETURNING org_id, user_id, permission, approvement, created_at, updated_at
	`, orgID, targetUserID, permission, ApprovementPending).Scan(
		&m.OrgID,
		&m.UserID,
		&m.Permission,
		&m.Approvement,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return nil, ErrDuplicateMember
			case "23503": // foreign_key_violation
				return nil, ErrUserNotFound
			}
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return &m, nil
}

// SetApprovement resolves a pending invitation for the given user. ACCEPTED
// makes the membership visible in directory queries; DECLINED deletes the row
// rather than flagging it. The creator's membership can never be declined
// away. Returns ErrMembershipNotFound when the pair is absent.
func (s *Service) SetApprovement(ctx context.Context, orgID, userID uuid.UUID, approvement Approvement) error {
	switch approvement {
	case ApprovementAccepted:
		tag, err := s.pool.Exec(ctx, `
			UPDATE org_memberships
			SET approvement = $3, updated_at = NOW()
			WHERE org_id = $1 AND user_id = $2
		`, orgID, userID, ApprovementAccepted)
		if err != nil {
			return fmt.Errorf("failed to update approvement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrMembershipNotFound
		}
		return nil

	case ApprovementDeclined:
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback(ctx)
		}()

		var authorID uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT author_id FROM orgs WHERE id = $1
		`, orgID).Scan(&authorID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrgNotFound
			}
			return fmt.Errorf("failed to load organization author: %w", err)
		}

		if userID == authorID {
			return ErrCannotRemoveCreator
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM org_memberships
			WHERE org_id = $1 AND user_id = $2
		`, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to decline membership: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrMembershipNotFound
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil

	default:
		return ErrInvalidApprovement
	}
}

// RemoveMember deletes a membership. The creator's membership can never be
// removed, by anyone, including the creator. Actors may remove themselves
// (leave); removing anyone else requires WRITE permission.
func (s *Service) RemoveMember(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID) error {
	if actorUserID != targetUserID {
		if _, err := s.Authorize(ctx, orgID, actorUserID, PermissionWrite); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var authorID uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT author_id FROM orgs WHERE id = $1
	`, orgID).Scan(&authorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrgNotFound
		}
		return fmt.Errorf("failed to load organization author: %w", err)
	}

	if targetUserID == authorID {
		return ErrCannotRemoveCreator
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM org_memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
