// Package history keeps committed frames in an embedded SQLite database so a
// run can be scrubbed and single cells traced after the fact.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/san-kum/cellsim/internal/cells"
	"github.com/san-kum/cellsim/internal/geom"
	"github.com/san-kum/cellsim/internal/sim"
)

var ErrNoFrame = errors.New("history: no frame recorded")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS frames (
	step       INTEGER PRIMARY KEY,
	time       REAL NOT NULL,
	population INTEGER NOT NULL,
	bonds      INTEGER NOT NULL,
	payload    BLOB NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cells (
	step   INTEGER NOT NULL,
	id     INTEGER NOT NULL,
	parent INTEGER NOT NULL,
	mode   INTEGER NOT NULL,
	mass   REAL NOT NULL,
	age    REAL NOT NULL,
	x      REAL NOT NULL,
	y      REAL NOT NULL,
	z      REAL NOT NULL,
	bonds  INTEGER NOT NULL,
	PRIMARY KEY (step, id)
)`,
	`CREATE INDEX IF NOT EXISTS cells_by_id ON cells(id, step)`,
}

// Recorder writes snapshots to SQLite. It is safe for concurrent use.
type Recorder struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

func Open(path string) (*Recorder, error) {
	if path == "" {
		path = "cellsim.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Recorder{db: db, path: path}, nil
}

func (r *Recorder) Close() error { return r.db.Close() }

func (r *Recorder) Path() string { return r.path }

// Record stores snap, replacing any frame already kept for the same step.
func (r *Recorder) Record(ctx context.Context, snap sim.Snapshot) (retErr error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", snap.Step, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO frames(step,time,population,bonds,payload) VALUES(?,?,?,?,?)
		ON CONFLICT(step) DO UPDATE SET time=excluded.time, population=excluded.population, bonds=excluded.bonds, payload=excluded.payload`,
		snap.Step, snap.Time, len(snap.Cells), len(snap.Links), payload); err != nil {
		return fmt.Errorf("upsert frame %d: %w", snap.Step, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE step = ?`, snap.Step); err != nil {
		return fmt.Errorf("clear cells %d: %w", snap.Step, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cells(step,id,parent,mode,mass,age,x,y,z,bonds) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, c := range snap.Cells {
		if _, err := stmt.ExecContext(ctx, snap.Step, int64(c.ID), int64(c.Parent), c.Mode, c.Mass, c.Age,
			c.Position.X, c.Position.Y, c.Position.Z, c.Bonds); err != nil {
			return fmt.Errorf("insert cell %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Frame returns the latest frame recorded at or before step.
func (r *Recorder) Frame(ctx context.Context, step int) (sim.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM frames WHERE step <= ? ORDER BY step DESC LIMIT 1`, step).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.Snapshot{}, fmt.Errorf("%w at or before step %d", ErrNoFrame, step)
	}
	if err != nil {
		return sim.Snapshot{}, err
	}
	var snap sim.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return sim.Snapshot{}, fmt.Errorf("decode frame: %w", err)
	}
	return snap, nil
}

// FrameSummary is one row of the frames table without its payload.
type FrameSummary struct {
	Step       int
	Time       float64
	Population int
	Bonds      int
}

func (r *Recorder) Frames(ctx context.Context) ([]FrameSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT step, time, population, bonds FROM frames ORDER BY step`)
	if err != nil {
		return nil, fmt.Errorf("select frames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FrameSummary
	for rows.Next() {
		var f FrameSummary
		if err := rows.Scan(&f.Step, &f.Time, &f.Population, &f.Bonds); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// TracePoint is a cell's state at one recorded step.
type TracePoint struct {
	Step     int
	Parent   cells.CellID
	Mode     int
	Mass     float64
	Age      float64
	Position geom.Vec3
	Bonds    int
}

// Trace returns every recorded state of one cell in step order.
func (r *Recorder) Trace(ctx context.Context, id cells.CellID) ([]TracePoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT step, parent, mode, mass, age, x, y, z, bonds FROM cells WHERE id = ? ORDER BY step`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("select trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TracePoint
	for rows.Next() {
		var (
			p      TracePoint
			parent int64
		)
		if err := rows.Scan(&p.Step, &parent, &p.Mode, &p.Mass, &p.Age, &p.Position.X, &p.Position.Y, &p.Position.Z, &p.Bonds); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		p.Parent = cells.CellID(parent)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Truncate drops frames after step, used when a run is rewound and stepped
// again from an earlier point.
func (r *Recorder) Truncate(ctx context.Context, after int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.ExecContext(ctx, `DELETE FROM frames WHERE step > ?`, after); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM cells WHERE step > ?`, after)
	return err
}

// Observer returns a sim.Observer that records w every n committed steps.
// The first recording error is kept and reported by Err.
func (r *Recorder) Observer(ctx context.Context, w *sim.World, n int) *Tap {
	if n <= 0 {
		n = 1
	}
	return &Tap{rec: r, ctx: ctx, world: w, every: n}
}

type Tap struct {
	rec   *Recorder
	ctx   context.Context
	world *sim.World
	every int
	err   error
}

func (t *Tap) OnStep(rep sim.StepReport) {
	if t.err != nil || rep.Step%t.every != 0 {
		return
	}
	t.err = t.rec.Record(t.ctx, t.world.Snapshot())
}

func (t *Tap) Err() error { return t.err }
