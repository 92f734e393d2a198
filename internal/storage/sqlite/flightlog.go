package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/navwatch/internal/telemetry"
	"github.com/yegors/navwatch/pkg/logger"
	_ "modernc.org/sqlite"
)

// EventRecord is a stored phase change or milestone
type EventRecord struct {
	ID           int64           `json:"id"`
	EventID      string          `json:"event_id"`
	Type         string          `json:"type"`
	CreatedAt    time.Time       `json:"timestamp"`
	OldPhase     string          `json:"old_phase,omitempty"`
	NewPhase     string          `json:"new_phase,omitempty"`
	MilestoneKey string          `json:"milestone_key,omitempty"`
	Text         string          `json:"text"`
	Snapshot     json.RawMessage `json:"snapshot,omitempty"`
}

// SampleRecord is a throttled snapshot of the flight
type SampleRecord struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"timestamp"`
	Phase            string    `json:"phase"`
	AltitudeFt       float64   `json:"altitude_ft"`
	AltitudeAGLFt    float64   `json:"altitude_agl_ft"`
	GroundSpeedKt    float64   `json:"ground_speed_kt"`
	HeadingDeg       float64   `json:"heading_deg"`
	VerticalSpeedFpm float64   `json:"vertical_speed_fpm"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	OnGround         bool      `json:"on_ground"`
}

// FlightLog persists telemetry events to SQLite. It is registered as an
// engine listener.
type FlightLog struct {
	db             *sql.DB
	logger         *logger.Logger
	sampleInterval time.Duration

	mu         sync.Mutex
	lastSample time.Time
}

// NewFlightLog opens (or creates) the database at dbPath. Snapshots are
// stored at most once per sampleInterval; zero stores every one.
func NewFlightLog(dbPath string, sampleInterval time.Duration, log *logger.Logger) (*FlightLog, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite flight log",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := initDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &FlightLog{
		db:             db,
		logger:         storageLogger,
		sampleInterval: sampleInterval,
	}, nil
}

// initDB initializes the database tables
func initDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			old_phase TEXT,
			new_phase TEXT,
			milestone_key TEXT,
			text TEXT NOT NULL,
			snapshot TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_events table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flight_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TIMESTAMP NOT NULL,
			phase TEXT NOT NULL,
			altitude_ft REAL,
			altitude_agl_ft REAL,
			ground_speed_kt REAL,
			heading_deg REAL,
			vertical_speed_fpm REAL,
			latitude REAL,
			longitude REAL,
			on_ground BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flight_samples table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_created_at ON flight_events(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_samples_created_at ON flight_samples(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// HandleEvent implements telemetry.Listener
func (l *FlightLog) HandleEvent(ctx context.Context, evt telemetry.Event) error {
	switch evt.Type {
	case telemetry.EventRawUpdate:
		if !l.sampleDue(evt.Timestamp) {
			return nil
		}
		return l.StoreSample(ctx, evt.Snapshot)
	case telemetry.EventPhaseChange, telemetry.EventMilestone:
		_, err := l.StoreEvent(ctx, evt)
		return err
	}
	return nil
}

func (l *FlightLog) sampleDue(at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastSample.IsZero() && at.Sub(l.lastSample) < l.sampleInterval {
		return false
	}
	l.lastSample = at
	return true
}

// StoreEvent stores a phase change or milestone and returns its row ID
func (l *FlightLog) StoreEvent(ctx context.Context, evt telemetry.Event) (int64, error) {
	snapshot, err := json.Marshal(evt.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	result, err := l.db.ExecContext(ctx,
		`INSERT INTO flight_events
		(event_id, type, created_at, old_phase, new_phase, milestone_key, text, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		string(evt.Type),
		evt.Timestamp.UTC().Format(time.RFC3339Nano),
		string(evt.OldPhase),
		string(evt.NewPhase),
		evt.Milestone.Key,
		evt.Text(),
		string(snapshot),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	l.logger.Debug("Stored flight event",
		logger.String("type", string(evt.Type)),
		logger.String("text", evt.Text()))

	return id, nil
}

// StoreSample stores a snapshot row
func (l *FlightLog) StoreSample(ctx context.Context, s telemetry.NormalizedState) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO flight_samples
		(created_at, phase, altitude_ft, altitude_agl_ft, ground_speed_kt, heading_deg, vertical_speed_fpm, latitude, longitude, on_ground)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp.UTC().Format(time.RFC3339Nano),
		string(s.Phase),
		s.AltitudeFt,
		s.AltitudeAGLFt,
		s.GroundSpeedKt,
		s.HeadingDeg,
		s.VerticalSpeedFpm,
		s.Latitude,
		s.Longitude,
		s.OnGround,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit stored events, newest first
func (l *FlightLog) RecentEvents(ctx context.Context, limit int) ([]*EventRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, event_id, type, created_at, old_phase, new_phase, milestone_key, text, snapshot
		FROM flight_events
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := make([]*EventRecord, 0)
	for rows.Next() {
		var record EventRecord
		var createdAt string
		var oldPhase, newPhase, milestoneKey, snapshot sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Type,
			&createdAt,
			&oldPhase,
			&newPhase,
			&milestoneKey,
			&record.Text,
			&snapshot,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		record.OldPhase = oldPhase.String
		record.NewPhase = newPhase.String
		record.MilestoneKey = milestoneKey.String
		if snapshot.Valid && snapshot.String != "" {
			record.Snapshot = json.RawMessage(snapshot.String)
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return records, nil
}

// RecentSamples returns up to limit stored samples, newest first
func (l *FlightLog) RecentSamples(ctx context.Context, limit int) ([]*SampleRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, created_at, phase, altitude_ft, altitude_agl_ft, ground_speed_kt, heading_deg, vertical_speed_fpm, latitude, longitude, on_ground
		FROM flight_samples
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	records := make([]*SampleRecord, 0)
	for rows.Next() {
		var record SampleRecord
		var createdAt string

		if err := rows.Scan(
			&record.ID,
			&createdAt,
			&record.Phase,
			&record.AltitudeFt,
			&record.AltitudeAGLFt,
			&record.GroundSpeedKt,
			&record.HeadingDeg,
			&record.VerticalSpeedFpm,
			&record.Latitude,
			&record.Longitude,
			&record.OnGround,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (l *FlightLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
