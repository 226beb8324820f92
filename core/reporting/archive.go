package reporting

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Archive persists run reports to SQLite so runs can be rendered or
// compared after the process exits. The engine itself never touches this;
// archiving is strictly a reporting concern.
type Archive struct {
	db *sql.DB
}

// ArchivedRun identifies one persisted run.
type ArchivedRun struct {
	ID         string
	ScenarioID string
	CreatedAt  time.Time
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	scenario_id TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	telemetry   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS report_entries (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	position    INTEGER NOT NULL,
	agent       TEXT NOT NULL,
	screen_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	diff_ratio  REAL NOT NULL,
	sensitivity REAL NOT NULL,
	screenshot  TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// OpenArchive opens (creating if needed) an archive database at path.
func OpenArchive(path string) (*Archive, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, int((30 * time.Second).Milliseconds()))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun persists a report under a fresh run ID and returns it.
func (a *Archive) SaveRun(scenarioID string, report Report) (string, error) {
	telemetry, err := json.Marshal(report.Telemetry)
	if err != nil {
		return "", err
	}

	tx, err := a.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	runID := uuid.NewString()
	if _, err := tx.Exec(
		`INSERT INTO runs (id, scenario_id, created_at, telemetry) VALUES (?, ?, ?, ?)`,
		runID, scenarioID, report.GeneratedAt, string(telemetry),
	); err != nil {
		return "", err
	}
	for i, entry := range report.Entries {
		if _, err := tx.Exec(
			`INSERT INTO report_entries (run_id, position, agent, screen_id, status, diff_ratio, sensitivity, screenshot)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, entry.Agent, entry.ScreenID, entry.Status, entry.DiffRatio, entry.Sensitivity, entry.Screenshot,
		); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// Runs lists archived runs, newest first.
func (a *Archive) Runs() ([]ArchivedRun, error) {
	rows, err := a.db.Query(`SELECT id, scenario_id, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ArchivedRun
	for rows.Next() {
		var run ArchivedRun
		if err := rows.Scan(&run.ID, &run.ScenarioID, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadRun reconstructs an archived run's report.
func (a *Archive) LoadRun(runID string) (Report, error) {
	var report Report
	var telemetry string
	err := a.db.QueryRow(
		`SELECT created_at, telemetry FROM runs WHERE id = ?`, runID,
	).Scan(&report.GeneratedAt, &telemetry)
	if err != nil {
		return Report{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(telemetry), &report.Telemetry); err != nil {
		return Report{}, fmt.Errorf("decode telemetry for run %s: %w", runID, err)
	}

	rows, err := a.db.Query(
		`SELECT agent, screen_id, status, diff_ratio, sensitivity, screenshot
		 FROM report_entries WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return Report{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry ReportEntry
		if err := rows.Scan(&entry.Agent, &entry.ScreenID, &entry.Status, &entry.DiffRatio, &entry.Sensitivity, &entry.Screenshot); err != nil {
			return Report{}, err
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, rows.Err()
}
