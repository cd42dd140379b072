package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/database"
	"github.com/stemsi/exstem-runner/internal/logger"
	"github.com/stemsi/exstem-runner/internal/service"
)

// issue-token mints a student token for load tests and local runs. Login
// itself lives in the main backend.
func main() {
	var studentID int
	flag.IntVar(&studentID, "student", 0, "Student ID to issue the token for")
	flag.Parse()
	if studentID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: issue-token -student <id>")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	auth := service.NewAuthService(cfg, rdb)
	token, err := auth.IssueStudentToken(ctx, studentID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}
