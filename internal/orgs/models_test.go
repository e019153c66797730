package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name        string
		permission  Permission
		approvement Approvement
		want        Bucket
	}{
		{"write accepted is admin", PermissionWrite, ApprovementAccepted, BucketAdmin},
		{"read accepted is member", PermissionRead, ApprovementAccepted, BucketMember},
		{"write pending stays pending", PermissionWrite, ApprovementPending, BucketPending},
		{"read pending stays pending", PermissionRead, ApprovementPending, BucketPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketFor(tt.permission, tt.approvement))
		})
	}
}

func TestPermissionIsValid(t *testing.T) {
	assert.True(t, PermissionRead.IsValid())
	assert.True(t, PermissionWrite.IsValid())
	assert.False(t, Permission("ADMIN").IsValid())
	assert.False(t, Permission("read").IsValid())
	assert.False(t, Permission("").IsValid())
}

func TestApprovementIsValid(t *testing.T) {
	assert.True(t, ApprovementPending.IsValid())
	assert.True(t, ApprovementAccepted.IsValid())
	assert.True(t, ApprovementDeclined.IsValid())
	assert.False(t, Approvement("pending").IsValid())
	assert.False(t, Approvement("").IsValid())
}
