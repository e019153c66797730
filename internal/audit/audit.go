package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup           = "user.signup"
	EventLoginFailed          = "auth.login_failed"
	EventPasswordReset        = "auth.password_reset"
	EventOrgCreated           = "org.created"
	EventOrgDeleted           = "org.deleted"
	EventOrgMemberInvited     = "org.member_invited"
	EventOrgMemberApprovement = "org.member_approvement"
	EventOrgMemberRemoved     = "org.member_removed"
	EventTestCreated          = "test.created"
	EventTestGenerated        = "test.generated"
	EventTestDeleted          = "test.deleted"
	EventTestCompleted        = "test.completed"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id"`
	OrgID       uuid.NullUUID          `db:"org_id"`
	TestID      uuid.NullUUID          `db:"test_id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id"`
	Action      string                 `db:"action"`
	Meta        map[string]interface{} `db:"meta"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OrgID       *uuid.UUID
	TestID      *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (org_id, test_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`

	orgID := toNullUUID(params.OrgID)
	testID := toNullUUID(params.TestID)
	actorUserID := toNullUUID(params.ActorUserID)

	_, err := w.pool.Exec(ctx, query, orgID, testID, actorUserID, params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("org_id", params.OrgID).
		Interface("test_id", params.TestID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogPasswordReset(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventPasswordReset,
		Meta:        map[string]interface{}{},
	})
}

func (w *Writer) LogOrgCreated(ctx context.Context, orgID, userID uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		Action:      EventOrgCreated,
		Meta: map[string]interface{}{
			"title": title,
		},
	})
}

func (w *Writer) LogOrgDeleted(ctx context.Context, orgID, userID uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		Action:      EventOrgDeleted,
		Meta: map[string]interface{}{
			"title": title,
		},
	})
}

func (w *Writer) LogOrgMemberInvited(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, permission string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorUserID,
		Action:      EventOrgMemberInvited,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"permission":     permission,
		},
	})
}

func (w *Writer) LogOrgMemberApprovement(ctx context.Context, orgID, userID uuid.UUID, approvement string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &userID,
		Action:      EventOrgMemberApprovement,
		Meta: map[string]interface{}{
			"approvement": approvement,
		},
	})
}

func (w *Writer) LogOrgMemberRemoved(ctx context.Context, orgID, actorUserID, targetUserID uuid.UUID, removedPermission string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		ActorUserID: &actorUserID,
		Action:      EventOrgMemberRemoved,
		Meta: map[string]interface{}{
			"target_user_id": targetUserID.String(),
			"permission":     removedPermission,
		},
	})
}

func (w *Writer) LogTestCreated(ctx context.Context, orgID, testID, userID uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		TestID:      &testID,
		ActorUserID: &userID,
		Action:      EventTestCreated,
		Meta: map[string]interface{}{
			"title": title,
		},
	})
}

func (w *Writer) LogTestGenerated(ctx context.Context, orgID, testID, userID uuid.UUID, theme string, questionCount int) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		TestID:      &testID,
		ActorUserID: &userID,
		Action:      EventTestGenerated,
		Meta: map[string]interface{}{
			"theme":          theme,
			"question_count": questionCount,
		},
	})
}

func (w *Writer) LogTestDeleted(ctx context.Context, orgID, testID, userID uuid.UUID, title string) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		TestID:      &testID,
		ActorUserID: &userID,
		Action:      EventTestDeleted,
		Meta: map[string]interface{}{
			"title": title,
		},
	})
}

func (w *Writer) LogTestCompleted(ctx context.Context, orgID, testID, userID uuid.UUID, correct, total int) error {
	return w.Log(ctx, LogParams{
		OrgID:       &orgID,
		TestID:      &testID,
		ActorUserID: &userID,
		Action:      EventTestCompleted,
		Meta: map[string]interface{}{
			"correct_answers": correct,
			"total_questions": total,
		},
	})
}
