package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-runner/internal/config"
)

func TestValidateToken(t *testing.T) {
	auth := NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour}, nil)

	valid, err := auth.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TokenType:        TokenTypeStudent,
		UserID:           42,
	})
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := auth.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		TokenType:        TokenTypeStudent,
		UserID:           42,
	})
	foreign, _ := NewAuthService(&config.Config{JWTSecret: "other"}, nil).sign(Claims{UserID: 42})

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"expired", expired, true},
		{"wrong secret", foreign, true},
		{"garbage", "not-a-token", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := auth.ValidateToken(tc.token)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && (claims.UserID != 42 || claims.TokenType != TokenTypeStudent) {
				t.Errorf("claims = %+v", claims)
			}
		})
	}
}

func TestIssueStudentTokenReplacesDevice(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("set REDIS_URL to run redis tests")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	const student = 990001
	defer rdb.Del(ctx, config.CacheKey.StudentSessionKey(student))
	auth := NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour}, rdb)

	first, err := auth.IssueStudentToken(ctx, student)
	if err != nil {
		t.Fatal(err)
	}
	old, err := auth.ValidateToken(first)
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.ValidateStudentSession(ctx, student, old.ID); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	second, err := auth.IssueStudentToken(ctx, student)
	if err != nil {
		t.Fatal(err)
	}
	current, _ := auth.ValidateToken(second)
	if err := auth.ValidateStudentSession(ctx, student, old.ID); !errors.Is(err, ErrSessionSuperseded) {
		t.Errorf("old token err = %v", err)
	}
	if err := auth.ValidateStudentSession(ctx, student, current.ID); err != nil {
		t.Errorf("new token err = %v", err)
	}
	if err := auth.ValidateStudentSession(ctx, student+1, current.ID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("unknown student err = %v", err)
	}
}
