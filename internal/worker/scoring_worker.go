package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second
)

// ScoringWorker consumes persist_scores_queue and completes exam sessions
// with their graded result.
type ScoringWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewScoringWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ScoringWorker {
	return &ScoringWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "scoring_worker").Logger(),
	}
}

type scorePayload struct {
	StudentExamID string          `json:"student_exam_id"`
	Score         float64         `json:"score"`
	Result        json.RawMessage `json:"result"`
}

type scoreRow struct {
	sessionID uuid.UUID
	score     float64
	result    []byte
	raw       string
}

func decodeScore(raw string) (*scoreRow, error) {
	var p scorePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	id, err := uuid.Parse(p.StudentExamID)
	if err != nil {
		return nil, fmt.Errorf("student_exam_id: %w", err)
	}
	result := []byte(p.Result)
	if len(result) == 0 {
		result = []byte("null")
	}
	return &scoreRow{sessionID: id, score: p.Score, result: result, raw: raw}, nil
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	batch := make([]*scoreRow, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			row, err := decodeScore(item[1])
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid score payload")
				continue
			}
			batch = append(batch, row)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *ScoringWorker) flushSafe(ctx context.Context, batch []*scoreRow) {
	if len(batch) == 0 {
		return
	}

	completed, err := w.bulkComplete(ctx, batch)
	if err != nil {
		w.log.Warn().Err(err).Msg("bulk score update failed, using fallback")

		completed = completed[:0]
		for _, r := range batch {
			owner, err := w.completeSingle(ctx, r)
			if err != nil {
				w.log.Error().Err(err).Str("student_exam_id", r.sessionID.String()).Msg("Score persist failed, requeueing")
				w.rdb.RPush(context.Background(), config.WorkerKey.PersistScoresQueue, r.raw)
				continue
			}
			if owner != nil {
				completed = append(completed, *owner)
			}
		}
	}

	w.clearAutosaveBuffers(ctx, completed)
	w.log.Debug().Int("count", len(completed)).Msg("Scores persisted")
}

// sessionOwner identifies whose autosave buffer a completed session frees.
type sessionOwner struct {
	ExamID    uuid.UUID
	StudentID int
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST
// ----------------------------------------------------------------

func (w *ScoringWorker) bulkComplete(ctx context.Context, batch []*scoreRow) ([]sessionOwner, error) {
	n := len(batch)
	ids := make([]uuid.UUID, n)
	scores := make([]float64, n)
	results := make([]string, n)
	for i, r := range batch {
		ids[i] = r.sessionID
		scores[i] = r.score
		results[i] = string(r.result)
	}

	rows, err := w.pool.Query(ctx, `
		UPDATE exam_sessions AS s
		SET status = 'COMPLETED',
		    final_score = t.score,
		    result = t.result::jsonb,
		    finished_at = NOW()
		FROM UNNEST($1::uuid[], $2::float8[], $3::text[]) AS t (id, score, result)
		WHERE s.id = t.id
		RETURNING s.exam_id, s.student_id`,
		ids, scores, results,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[sessionOwner])
}

// completeSingle is the per-item fallback. A nil owner means the session
// row no longer exists.
func (w *ScoringWorker) completeSingle(ctx context.Context, r *scoreRow) (*sessionOwner, error) {
	var o sessionOwner
	err := w.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = 'COMPLETED',
		     final_score = $1,
		     result = $2::jsonb,
		     finished_at = NOW()
		 WHERE id = $3
		 RETURNING exam_id, student_id`,
		r.score, string(r.result), r.sessionID,
	).Scan(&o.ExamID, &o.StudentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ----------------------------------------------------------------
// BULK Redis DEL of autosave buffers
// ----------------------------------------------------------------

func (w *ScoringWorker) clearAutosaveBuffers(ctx context.Context, owners []sessionOwner) {
	if len(owners) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, o := range owners {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(o.ExamID.String(), o.StudentID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear autosave buffers")
	}
}
