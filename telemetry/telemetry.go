// Package telemetry records every control cycle of a run in SQLite for
// offline review.
package telemetry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"carctrl-core/closed_loop/carcontroller"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBatchSize is one second of cycles.
const DefaultBatchSize = 100

type RunInfo struct {
	Car        string
	Generation string
	Scenario   string
}

// Sample is one cycle as stored.
type Sample struct {
	Frame                     uint64
	T                         float64
	Steer                     float64
	SteerOutputCAN            int
	InterceptorSteerOutputCAN int
	Accel                     float64
	LongControlState          string
	// HasHoldResume is false on cycles without a hold/resume command;
	// Hold and Resume are then meaningless.
	HasHoldResume bool
	Hold          bool
	Resume        bool
	// Commands are the emitted command kinds in transmit order.
	Commands []string
}

// NewSample captures the outcome of one Controller.Update call.
func NewSample(frame uint64, t float64, report carcontroller.ActuatorReport, cmds []carcontroller.Command) Sample {
	s := Sample{
		Frame:                     frame,
		T:                         t,
		Steer:                     report.Steer,
		SteerOutputCAN:            report.SteerOutputCAN,
		InterceptorSteerOutputCAN: report.InterceptorSteerOutputCAN,
		Accel:                     report.Accel,
		LongControlState:          report.LongControlState.String(),
		Commands:                  make([]string, 0, len(cmds)),
	}
	for _, c := range cmds {
		s.Commands = append(s.Commands, c.Kind.String())
		if c.Kind == carcontroller.AccHoldResume {
			s.HasHoldResume = true
			s.Hold = c.Hold
			s.Resume = c.Resume
		}
	}
	return s
}

// Recorder buffers samples and writes them in batches, one transaction
// per batch. Not safe for concurrent use.
type Recorder struct {
	db      *sql.DB
	runID   uuid.UUID
	batch   int
	pending []Sample
	written int
}

// Open creates or extends the database at path and starts a new run.
func Open(ctx context.Context, path string, info RunInfo) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises them anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}

	r := &Recorder{db: db, runID: uuid.New(), batch: DefaultBatchSize}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, car_model, generation, scenario) VALUES (?, ?, ?, ?)`,
		r.runID.String(), info.Car, info.Generation, info.Scenario)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("start telemetry run: %w", err)
	}
	return r, nil
}

func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// SetBatchSize changes how many samples are buffered before a write.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.batch = n
}

// Record buffers s and writes the buffer once it is full.
func (r *Recorder) Record(ctx context.Context, s Sample) error {
	r.pending = append(r.pending, s)
	if len(r.pending) < r.batch {
		return nil
	}
	return r.Flush(ctx)
}

// Flush writes all buffered samples.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin telemetry batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cycles (run_id, frame, t_s, steer, steer_output_can, ti_steer_output_can,
			accel, long_control_state, hold, resume, commands)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare telemetry insert: %w", err)
	}
	defer stmt.Close()

	run := r.runID.String()
	for _, s := range r.pending {
		hold := sql.NullBool{Bool: s.Hold, Valid: s.HasHoldResume}
		resume := sql.NullBool{Bool: s.Resume, Valid: s.HasHoldResume}
		_, err := stmt.ExecContext(ctx, run, int64(s.Frame), s.T, s.Steer, s.SteerOutputCAN,
			s.InterceptorSteerOutputCAN, s.Accel, s.LongControlState, hold, resume,
			strings.Join(s.Commands, ","))
		if err != nil {
			return fmt.Errorf("insert telemetry frame %d: %w", s.Frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry batch: %w", err)
	}
	r.written += len(r.pending)
	r.pending = r.pending[:0]
	return nil
}

// Close flushes, closes the run and the database.
func (r *Recorder) Close(ctx context.Context) error {
	flushErr := r.Flush(ctx)

	_, endErr := r.db.ExecContext(ctx,
		`UPDATE runs SET end_timestamp = UNIXEPOCH('subsec'), cycle_count = ? WHERE run_id = ?`,
		r.written, r.runID.String())
	if endErr != nil {
		endErr = fmt.Errorf("end telemetry run: %w", endErr)
	}

	closeErr := r.db.Close()
	switch {
	case flushErr != nil:
		return flushErr
	case endErr != nil:
		return endErr
	default:
		return closeErr
	}
}

// Samples reads back the stored cycles of this run, ordered by frame.
func (r *Recorder) Samples(ctx context.Context) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT frame, t_s, steer, steer_output_can, ti_steer_output_can, accel,
			long_control_state, hold, resume, commands
		FROM cycles WHERE run_id = ? ORDER BY frame
	`, r.runID.String())
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s            Sample
			frame        int64
			hold, resume sql.NullBool
			commands     string
		)
		if err := rows.Scan(&frame, &s.T, &s.Steer, &s.SteerOutputCAN, &s.InterceptorSteerOutputCAN,
			&s.Accel, &s.LongControlState, &hold, &resume, &commands); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		s.Frame = uint64(frame)
		s.HasHoldResume = hold.Valid
		s.Hold = hold.Bool
		s.Resume = resume.Bool
		if commands != "" {
			s.Commands = strings.Split(commands, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
