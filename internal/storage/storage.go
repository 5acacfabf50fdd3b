package storage

import (
	"bytes"
	"compress/zlib"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/arlberg/triage/internal/history"
	"github.com/arlberg/triage/internal/model"
)

//go:embed migrations/*.sql
var fs embed.FS

// Storage persists execution records, outcomes and assembled reports in
// sqlite. It also derives the historical signals the adaptive ranking
// strategy reads.
type Storage struct {
	db  *sqlx.DB
	log *slog.Logger
}

// New opens (or creates) the database at dbFilename. An empty filename opens
// a private in-memory database, which is used by tests.
func New(dbFilename string, log *slog.Logger) (*Storage, error) {
	db, err := sqlx.Connect("sqlite", connectionString(dbFilename))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Storage{
		db:  db,
		log: log,
	}

	if err = s.migrateDB(db); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func connectionString(filename string) string {
	var cs string
	var options = []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)", "_pragma=synchronous(normal)"}

	if filename != "" {
		cs = filename
	} else {
		cs = "file:" + randomAlphanumeric(16)
		options = append(options, "mode=memory", "cache=shared")
	}

	for i, o := range options {
		if i == 0 {
			cs += "?"
		} else {
			cs += "&"
		}
		cs += o
	}

	return cs
}

const alphaNumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphaNumericChars[rand.Intn(len(alphaNumericChars))]
	}
	return string(b)
}

func (s *Storage) migrateDB(db *sqlx.DB) error {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("load db migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("load migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate with instance: %w", err)
	}

	err = m.Up()

	if err == migrate.ErrNoChange {
		s.log.Info("no migrations applied, db is at the latest state")
	} else if err != nil {
		return fmt.Errorf("applying db migrations: %w", err)
	}

	return nil
}

func (s *Storage) SaveExecutionRecord(ctx context.Context, rec model.ExecutionRecord) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO ExecutionRecord
	(id, status, triggeredBy, strategy, repeats, timeoutMS, cases, fallbackUsed, scheduledTime, startTime, endTime) VALUES
	(:id, :status, :triggeredBy, :strategy, :repeats, :timeoutMS, :cases, :fallbackUsed, :scheduledTime, :startTime, :endTime)`,
		map[string]any{
			"id":            rec.ID,
			"status":        rec.Status,
			"triggeredBy":   rec.Params.TriggeredBy,
			"strategy":      rec.Params.Strategy,
			"repeats":       rec.Params.Repeats,
			"timeoutMS":     rec.Params.Timeout.Milliseconds(),
			"cases":         len(rec.Cases),
			"fallbackUsed":  rec.FallbackUsed,
			"scheduledTime": timeFormat(rec.Scheduled),
			"startTime":     timeFormat(rec.Start),
			"endTime":       timeFormat(rec.End),
		})

	return err
}

func (s *Storage) UpdateExecutionRecord(ctx context.Context, rec model.ExecutionRecord) error {
	r, err := s.db.NamedExecContext(ctx, `UPDATE ExecutionRecord SET
	status=:status, fallbackUsed=:fallbackUsed, startTime=:startTime, endTime=:endTime
	WHERE id = :id`,
		map[string]any{
			"id":           rec.ID,
			"status":       rec.Status,
			"fallbackUsed": rec.FallbackUsed,
			"startTime":    timeFormat(rec.Start),
			"endTime":      timeFormat(rec.End),
		})
	if err != nil {
		return fmt.Errorf("update statement failed: %w", err)
	}

	if affected, _ := r.RowsAffected(); affected != 1 {
		return model.NotFoundError{}
	}

	return nil
}

// LoadExecutionRecord loads the persisted batch level state. Per-case results
// are loaded separately via LoadOutcomes.
func (s *Storage) LoadExecutionRecord(ctx context.Context, executionID string) (model.ExecutionRecord, error) {
	r, err := s.db.NamedQuery(`SELECT
	id, status, triggeredBy, strategy, repeats, timeoutMS, fallbackUsed, scheduledTime, startTime, endTime
	FROM ExecutionRecord WHERE id = :id`,
		map[string]any{"id": executionID})
	if err != nil {
		return model.ExecutionRecord{}, err
	}
	defer r.Close()

	if !r.Next() {
		return model.ExecutionRecord{}, model.NotFoundError{}
	}

	return scanExecutionRecord(r)
}

func (s *Storage) InsertOutcome(ctx context.Context, executionID string, o model.Outcome) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO Outcome
	(executionId, testCaseId, attempt, status, artifact, executionTime, error) VALUES
	(:executionId, :testCaseId, :attempt, :status, :artifact, :executionTime, :error)`,
		map[string]any{
			"executionId":   executionID,
			"testCaseId":    o.TestCaseID,
			"attempt":       o.Attempt,
			"status":        o.Status,
			"artifact":      o.Artifact,
			"executionTime": o.ExecutionTime,
			"error":         o.Error,
		})

	return err
}

// LoadOutcomes returns all outcomes of a batch grouped by test case id.
func (s *Storage) LoadOutcomes(ctx context.Context, executionID string) (map[string][]model.Outcome, error) {
	r, err := s.db.NamedQuery(`SELECT
	testCaseId, attempt, status, artifact, executionTime, error
	FROM Outcome WHERE executionId = :executionId ORDER BY testCaseId, attempt`,
		map[string]any{"executionId": executionID})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	grouped := map[string][]model.Outcome{}

	for r.Next() {
		o := model.Outcome{}

		if err := r.Scan(&o.TestCaseID, &o.Attempt, &o.Status, &o.Artifact, &o.ExecutionTime, &o.Error); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}

		grouped[o.TestCaseID] = append(grouped[o.TestCaseID], o)
	}

	return grouped, nil
}

// SaveReport stores the assembled report as compressed json.
func (s *Storage) SaveReport(ctx context.Context, report model.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("unable to marshal report: %w", err)
	}

	compressed, err := compress(body)
	if err != nil {
		return fmt.Errorf("unable to compress report: %w", err)
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO Report (executionId, compressedReport)
	VALUES (:executionId, :compressedReport)
	ON CONFLICT (executionId) DO UPDATE SET compressedReport=:compressedReport`,
		map[string]any{
			"executionId":      report.ExecutionID,
			"compressedReport": compressed,
		})

	return err
}

func (s *Storage) LoadReport(ctx context.Context, executionID string) (model.Report, error) {
	r, err := s.db.NamedQuery(`SELECT compressedReport FROM Report WHERE executionId = :executionId`,
		map[string]any{"executionId": executionID})
	if err != nil {
		return model.Report{}, err
	}
	defer r.Close()

	if !r.Next() {
		return model.Report{}, model.NotFoundError{}
	}

	var compressed []byte

	if err = r.Scan(&compressed); err != nil {
		return model.Report{}, fmt.Errorf("scanning report: %w", err)
	}

	body, err := decompress(compressed)
	if err != nil {
		return model.Report{}, err
	}

	report := model.Report{}

	if err = json.Unmarshal(body, &report); err != nil {
		return model.Report{}, fmt.Errorf("unmarshaling report: %w", err)
	}

	return report, nil
}

// History returns a read-only lookup of historical signals derived from all
// outcomes stored so far.
func (s *Storage) History() history.Reader {
	return historyReader{s: s}
}

type historyReader struct {
	s *Storage
}

func (h historyReader) FailureRate(testCaseID string) (float64, bool) {
	row := h.s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status != 'passed' THEN 1 ELSE 0 END), 0)
	FROM Outcome WHERE testCaseId = ?`, testCaseID)

	var total, notPassed int

	if err := row.Scan(&total, &notPassed); err != nil || total == 0 {
		return 0, false
	}

	return float64(notPassed) / float64(total), true
}

// PerformanceScore is the historical pass rate of the case.
func (h historyReader) PerformanceScore(testCaseID string) (float64, bool) {
	rate, ok := h.FailureRate(testCaseID)
	if !ok {
		return 0, false
	}

	return 1 - rate, true
}

func timeFormat(t time.Time) string {
	return t.Format(time.RFC3339)
}

func parseDate(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

func scanExecutionRecord(r *sqlx.Rows) (model.ExecutionRecord, error) {
	rec := model.ExecutionRecord{}

	var scheduled, start, end string
	var timeoutMS int64

	err := r.Scan(
		&rec.ID,
		&rec.Status,
		&rec.Params.TriggeredBy,
		&rec.Params.Strategy,
		&rec.Params.Repeats,
		&timeoutMS,
		&rec.FallbackUsed,
		&scheduled,
		&start,
		&end,
	)
	if err != nil {
		return model.ExecutionRecord{}, fmt.Errorf("scanning execution record: %w", err)
	}

	rec.Params.Timeout = time.Duration(timeoutMS) * time.Millisecond

	if rec.Scheduled, err = parseDate(scheduled); err != nil {
		return model.ExecutionRecord{}, fmt.Errorf("parsing scheduled time: %w", err)
	}
	if rec.Start, err = parseDate(start); err != nil {
		return model.ExecutionRecord{}, fmt.Errorf("parsing start time: %w", err)
	}
	if rec.End, err = parseDate(end); err != nil {
		return model.ExecutionRecord{}, fmt.Errorf("parsing end time: %w", err)
	}

	return rec, nil
}

func compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := zlib.NewWriter(&buf)

	_, err := w.Write(body)
	w.Close()

	return buf.Bytes(), err
}

func decompress(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}

	reader, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decompress report: %w", err)
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
