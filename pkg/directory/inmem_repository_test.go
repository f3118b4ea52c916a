package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	org := repo.AddOrganization(Organization{Name: "Mercy General Hospital"})
	orgID := org.ID

	admin := repo.AddUser(User{Email: "admin@example.com", Role: RoleAdmin})
	coordinator := repo.AddUser(User{Email: "Jody.Ward@example.com", Name: "Jody Ward", Role: RoleCoordinator, OrganizationID: &orgID})
	repo.AddUser(User{Email: "sam.okafor@example.com", Name: "Sam Okafor", Role: RoleReporter})

	t.Run("GetUser", func(t *testing.T) {
		user, err := repo.GetUser(ctx, coordinator.ID)
		require.NoError(t, err)
		assert.Equal(t, "Jody Ward", user.Name)
	})

	t.Run("GetUserByEmail is case-insensitive", func(t *testing.T) {
		user, err := repo.GetUserByEmail(ctx, "jody.ward@EXAMPLE.com")
		require.NoError(t, err)
		assert.Equal(t, coordinator.ID, user.ID)

		_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("FindNonAdminUsers excludes administrators", func(t *testing.T) {
		users, err := repo.FindNonAdminUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
		for _, user := range users {
			assert.NotEqual(t, admin.ID, user.ID)
		}
	})

	t.Run("GetOrganization", func(t *testing.T) {
		got, err := repo.GetOrganization(ctx, orgID)
		require.NoError(t, err)
		assert.Equal(t, "Mercy General Hospital", got.Name)
	})
}
