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
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/repository"
	"github.com/stemsi/exstem-runner/internal/seed"
	"github.com/stemsi/exstem-runner/internal/service"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "", "Path to a YAML exam fixture")
	flag.Parse()
	if path == "" {
		fmt.Fprintln(os.Stderr, "Usage: seed-exam -file <paper.yaml>")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	draft, err := seed.LoadPaperFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read fixture")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	if err := examRepo.CreatePaper(ctx, draft); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert paper")
	}

	questions := 0
	for _, s := range draft.Subjects {
		questions += len(s.Questions)
	}
	fmt.Printf("Created exam %s (%q) with %d subjects and %d questions\n",
		draft.Exam.ID, draft.Exam.Title, len(draft.Subjects), questions)

	if draft.Exam.Status != model.ExamStatusPublished {
		return
	}

	// Published papers go straight into the cache so running servers
	// serve them without a restart.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, cache will warm on first request")
		return
	}
	defer rdb.Close()

	papers := service.NewPaperService(examRepo, repository.NewExamSessionRepository(pool), rdb, log)
	if _, _, err := papers.WarmExamCache(ctx, draft.Exam.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to warm exam cache")
		return
	}
	fmt.Println("Exam cache warmed")
}
