package orgs

import (
	"time"

	"github.com/google/uuid"
)

// Permission represents a user's capability level within an organization
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
)

// IsValid returns true for a known permission value
func (p Permission) IsValid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// Approvement represents the membership lifecycle status.
// DECLINED memberships are deleted, never stored.
type Approvement string

const (
	ApprovementPending  Approvement = "PENDING"
	ApprovementAccepted Approvement = "ACCEPTED"
	ApprovementDeclined Approvement = "DECLINED"
)

// IsValid returns true for a known approvement value
func (a Approvement) IsValid() bool {
	return a == ApprovementPending || a == ApprovementAccepted || a == ApprovementDeclined
}

// Org represents an organization in the system
type Org struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Color       string    `db:"color" json:"color"`
	AuthorID    uuid.UUID `db:"author_id" json:"author_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Membership represents a user's membership in an organization
type Membership struct {
	OrgID       uuid.UUID   `db:"org_id" json:"org_id"`
	UserID      uuid.UUID   `db:"user_id" json:"user_id"`
	Permission  Permission  `db:"permission" json:"permission"`
	Approvement Approvement `db:"approvement" json:"approvement"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Bucket names an organization list as seen from one user's point of view
type Bucket string

const (
	BucketAdmin   Bucket = "admin"
	BucketMember  Bucket = "member"
	BucketPending Bucket = "pending"
)

// bucketFor partitions a membership into exactly one bucket:
// admin = WRITE+ACCEPTED, member = READ+ACCEPTED, pending = PENDING regardless
// of permission.
func bucketFor(permission Permission, approvement Approvement) Bucket {
	if approvement == ApprovementPending {
		return BucketPending
	}
	if permission == PermissionWrite {
		return BucketAdmin
	}
	return BucketMember
}

// OrgBuckets partitions a user's organizations into three disjoint lists
type OrgBuckets struct {
	Admin   []Org `json:"admin"`
	Member  []Org `json:"member"`
	Pending []Org `json:"pending"`
}

// MemberInfo represents a member of an organization with their details
type MemberInfo struct {
	UserID      uuid.UUID   `db:"user_id" json:"user_id"`
	Name        string      `db:"name" json:"name"`
	Email       string      `db:"email" json:"email"`
	Permission  Permission  `db:"permission" json:"permission"`
	Approvement Approvement `db:"approvement" json:"approvement"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}
