package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const defaultMeasurementLimit = 1000

// InsertMeasurements schreibt alle Samples mit COPY
func (p *PostgresClient) InsertMeasurements(ctx context.Context, ms []Measurement) error {
	if len(ms) == 0 {
		return nil
	}

	rows := make([][]any, len(ms))
	for i, m := range ms {
		rows[i] = []any{m.ID, m.Device, m.Voltage, m.Current, m.MeasuredAt}
	}

	n, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{"measurements"},
		[]string{"id", "device", "voltage", "current", "measured_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert measurements: %w", err)
	}
	if int(n) != len(ms) {
		return fmt.Errorf("inserted %d of %d measurements", n, len(ms))
	}
	return nil
}

// ListMeasurements returns the newest samples first.
func (p *PostgresClient) ListMeasurements(ctx context.Context, q MeasurementQuery) ([]Measurement, error) {
	sql, args := buildMeasurementQuery(q)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}

	ms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Measurement])
	if err != nil {
		return nil, fmt.Errorf("failed to scan measurements: %w", err)
	}
	return ms, nil
}

func buildMeasurementQuery(q MeasurementQuery) (string, []any) {
	var where []string
	var args []any

	if q.Device != "" {
		args = append(args, q.Device)
		where = append(where, fmt.Sprintf("device = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("measured_at >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		where = append(where, fmt.Sprintf("measured_at < $%d", len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultMeasurementLimit
	}
	args = append(args, limit)

	var b strings.Builder
	b.WriteString("SELECT id, device, voltage, current, measured_at FROM measurements")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY measured_at DESC LIMIT $%d", len(args))
	return b.String(), args
}
