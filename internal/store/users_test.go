package store

import (
	"context"
	"testing"

	"github.com/KhaoulaIchou/gestion-stocks/internal/db"
	"github.com/KhaoulaIchou/gestion-stocks/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	u, err := CreateUser(ctx, database, "admin@example.com", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := GetUserByEmail(ctx, database, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != u.ID || got.Role != model.RoleAdmin {
		t.Errorf("expected created user back, got %+v", got)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a@example.com", "hash", model.RoleViewer)
	if _, err := CreateUser(ctx, database, "a@example.com", "hash", model.RoleViewer); err == nil {
		t.Error("expected error for duplicate active email")
	}
}

func TestSoftDeleteUserFreesEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	u, _ := CreateUser(ctx, database, "a@example.com", "hash", model.RoleViewer)
	if err := DeleteUser(ctx, database, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, _ := ListUsers(ctx, database)
	if len(users) != 0 {
		t.Errorf("expected 0 users after soft delete, got %d", len(users))
	}

	// The unique index only covers active accounts.
	if _, err := CreateUser(ctx, database, "a@example.com", "hash", model.RoleViewer); err != nil {
		t.Errorf("expected email reusable after soft delete, got %v", err)
	}
}

func TestUpdateUserRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	u, _ := CreateUser(ctx, database, "a@example.com", "hash", model.RoleViewer)
	if err := UpdateUserRole(ctx, database, u.ID, model.RoleManager); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	got, _ := GetUser(ctx, database, u.ID)
	if got.Role != model.RoleManager {
		t.Errorf("expected role manager, got %q", got.Role)
	}
}
