package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/ccrp/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// ErrNotFound is returned when a solution ID is not in the store
var ErrNotFound = errors.New("solution not found")

// SolutionRecord represents a stored release solution
type SolutionRecord struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	Target        string          `json:"target"`
	Aircraft      string          `json:"aircraft,omitempty"`
	ImpactGridRef string          `json:"impact_grid_ref"`
	TimeOfFlight  float64         `json:"time_of_flight"`
	TimeToRelease float64         `json:"time_to_release"`
	Request       json.RawMessage `json:"request"`  // request as solved, including the resolved wind and constants
	Solution      json.RawMessage `json:"solution"` // full solution document
}

// SolutionStorage is a SQLite-based history of computed solutions
type SolutionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSolutionStorage opens (or creates) the solution database at dbPath
func NewSolutionStorage(dbPath string, log *logger.Logger) (*SolutionStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	storage := &SolutionStorage{
		db:     db,
		logger: storageLogger,
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initDB initializes the database tables
func (s *SolutionStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS solutions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			target TEXT NOT NULL,
			aircraft TEXT,
			impact_grid_ref TEXT NOT NULL,
			time_of_flight REAL NOT NULL,
			time_to_release REAL NOT NULL,
			request TEXT NOT NULL,
			solution TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create solutions table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_solutions_created_at ON solutions(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_solutions_target ON solutions(target)`)
	if err != nil {
		return fmt.Errorf("failed to create target index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SolutionStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Store inserts a solution record
func (s *SolutionStorage) Store(record *SolutionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("solution record has no ID")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO solutions
		(id, created_at, target, aircraft, impact_grid_ref, time_of_flight, time_to_release, request, solution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.CreatedAt.UnixNano(),
		record.Target,
		record.Aircraft,
		record.ImpactGridRef,
		record.TimeOfFlight,
		record.TimeToRelease,
		string(record.Request),
		string(record.Solution),
	)
	if err != nil {
		return fmt.Errorf("failed to insert solution: %w", err)
	}

	s.logger.Debug("Stored solution",
		String("id", record.ID),
		String("impact", record.ImpactGridRef))

	return nil
}

// List returns stored solutions, newest first
func (s *SolutionStorage) List(limit, offset int) ([]*SolutionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, target, aircraft, impact_grid_ref, time_of_flight, time_to_release, request, solution
		FROM solutions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query solutions: %w", err)
	}
	defer rows.Close()

	records := make([]*SolutionRecord, 0)
	for rows.Next() {
		record, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate solutions: %w", err)
	}

	return records, nil
}

// Get returns a single solution by ID
func (s *SolutionStorage) Get(id string) (*SolutionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, target, aircraft, impact_grid_ref, time_of_flight, time_to_release, request, solution
		FROM solutions
		WHERE id = ?`,
		id,
	)

	record, err := scanSolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Count returns the number of stored solutions
func (s *SolutionStorage) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM solutions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count solutions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSolution(row scanner) (*SolutionRecord, error) {
	var record SolutionRecord
	var createdAt int64
	var aircraft sql.NullString
	var request, solution string

	if err := row.Scan(
		&record.ID,
		&createdAt,
		&record.Target,
		&aircraft,
		&record.ImpactGridRef,
		&record.TimeOfFlight,
		&record.TimeToRelease,
		&request,
		&solution,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan solution: %w", err)
	}

	record.CreatedAt = time.Unix(0, createdAt).UTC()
	if aircraft.Valid {
		record.Aircraft = aircraft.String
	}
	record.Request = json.RawMessage(request)
	record.Solution = json.RawMessage(solution)

	return &record, nil
}
