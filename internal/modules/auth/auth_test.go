package auth

import (
	"fmt"
	"testing"

	"github.com/casevine/core/internal/config"
	"github.com/casevine/core/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.UserModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustHash(t *testing.T, pwd string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

func TestEnsureOwner_SeedsOnce(t *testing.T) {
	svc := NewService(openTestDB(t))
	cfg := config.OwnerConfig{Username: "casemgr", Mail: "mgr@example.com", PasswordHash: mustHash(t, "hunter22")}

	if err := svc.EnsureOwner(cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.EnsureOwner(cfg); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var count int64
	svc.db.Model(&models.UserModel{}).Count(&count)
	if count != 1 {
		t.Fatalf("want exactly one owner account, got %d", count)
	}
}

func TestEnsureOwner_SkipsWithoutHash(t *testing.T) {
	svc := NewService(openTestDB(t))
	if err := svc.EnsureOwner(config.OwnerConfig{Username: "casemgr"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var count int64
	svc.db.Model(&models.UserModel{}).Count(&count)
	if count != 0 {
		t.Fatalf("must not seed without a password hash, got %d accounts", count)
	}
}

func TestLogin_ValidAndInvalidPassword(t *testing.T) {
	svc := NewService(openTestDB(t))
	if err := svc.EnsureOwner(config.OwnerConfig{Username: "casemgr", PasswordHash: mustHash(t, "hunter22")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	token, u, err := svc.Login("casemgr", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || u == nil || u.Username != "casemgr" {
		t.Fatalf("unexpected login result: token=%q user=%+v", token, u)
	}

	if _, _, err := svc.Login("casemgr", "wrong"); err != errInvalidCredentials {
		t.Fatalf("want errInvalidCredentials, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := NewService(openTestDB(t))
	if err := svc.EnsureOwner(config.OwnerConfig{Username: "casemgr", PasswordHash: mustHash(t, "hunter22")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var u models.UserModel
	if err := svc.db.First(&u).Error; err != nil {
		t.Fatalf("load owner: %v", err)
	}

	if err := svc.ChangePassword(u.ID, "wrong", "newpassword"); err != errInvalidCredentials {
		t.Fatalf("want errInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(u.ID, "hunter22", "hunter22"); err != errPasswordSameAsOld {
		t.Fatalf("want errPasswordSameAsOld, got %v", err)
	}
	if err := svc.ChangePassword(u.ID, "hunter22", "newpassword"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, _, err := svc.Login("casemgr", "newpassword"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
