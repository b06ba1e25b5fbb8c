package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertReportSampleSQL = `INSERT INTO report_samples (
        cycle_ts,
        gold_ounce_usd,
        silver_ounce_usd,
        btc_usd,
        eth_usd,
        xrp_usd,
        usd_per_eur_100,
        usd_per_gbp_100,
        unit_21k_usd,
        bar_1kg_usd,
        silver_bar_1kg_usd,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (cycle_ts) DO UPDATE
    SET
        gold_ounce_usd     = EXCLUDED.gold_ounce_usd,
        silver_ounce_usd   = EXCLUDED.silver_ounce_usd,
        btc_usd            = EXCLUDED.btc_usd,
        eth_usd            = EXCLUDED.eth_usd,
        xrp_usd            = EXCLUDED.xrp_usd,
        usd_per_eur_100    = EXCLUDED.usd_per_eur_100,
        usd_per_gbp_100    = EXCLUDED.usd_per_gbp_100,
        unit_21k_usd       = EXCLUDED.unit_21k_usd,
        bar_1kg_usd        = EXCLUDED.bar_1kg_usd,
        silver_bar_1kg_usd = EXCLUDED.silver_bar_1kg_usd,
        status             = EXCLUDED.status,
        error              = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        cycle_ts,
        gold_ounce_usd,
        silver_ounce_usd,
        btc_usd,
        eth_usd,
        xrp_usd,
        usd_per_eur_100,
        usd_per_gbp_100,
        unit_21k_usd,
        bar_1kg_usd,
        silver_bar_1kg_usd,
        status,
        error,
        created_at
    FROM report_samples
    WHERE cycle_ts >= $1
      AND cycle_ts < $2
    ORDER BY cycle_ts;`

	listRecentSamplesSQL = `SELECT
        cycle_ts,
        gold_ounce_usd,
        silver_ounce_usd,
        btc_usd,
        eth_usd,
        xrp_usd,
        usd_per_eur_100,
        usd_per_gbp_100,
        unit_21k_usd,
        bar_1kg_usd,
        silver_bar_1kg_usd,
        status,
        error,
        created_at
    FROM report_samples
    ORDER BY cycle_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM report_samples;`

	insertDeliverySQL = `INSERT INTO deliveries (
        cycle_ts,
        attempts,
        outcome,
        error
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, cycle_ts, attempts, outcome, error, created_at;`

	listRecentDeliveriesSQL = `SELECT
        id,
        cycle_ts,
        attempts,
        outcome,
        error,
        created_at
    FROM deliveries
    ORDER BY created_at DESC
    LIMIT $1;`
)

// SampleStore defines operations for report sample persistence.
type SampleStore interface {
	UpsertReportSample(ctx context.Context, sample ReportSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]ReportSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]ReportSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// DeliveryStore defines operations for delivery auditing.
type DeliveryStore interface {
	InsertDelivery(ctx context.Context, rec DeliveryRecord) (DeliveryRecord, error)
	ListRecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error)
}

// Store aggregates access to report samples and delivery records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertReportSample persists or updates a report sample.
func (s *Store) UpsertReportSample(ctx context.Context, sample ReportSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertReportSampleSQL,
		sample.CycleTS,
		decimalArg(sample.GoldOunceUSD),
		decimalArg(sample.SilverOunceUSD),
		decimalArg(sample.BTCUSD),
		decimalArg(sample.ETHUSD),
		decimalArg(sample.XRPUSD),
		decimalArg(sample.USDPerEUR100),
		decimalArg(sample.USDPerGBP100),
		decimalArg(sample.Unit21KUSD),
		decimalArg(sample.Bar1KgUSD),
		decimalArg(sample.SilverBar1KgUSD),
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert report sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]ReportSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]ReportSample, 0)
	for rows.Next() {
		sample, scanErr := scanReportSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending cycle.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]ReportSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]ReportSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanReportSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertDelivery persists a delivery outcome.
func (s *Store) InsertDelivery(ctx context.Context, rec DeliveryRecord) (DeliveryRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return DeliveryRecord{}, err
	}

	var errMsg interface{}
	if rec.Error != nil {
		errMsg = *rec.Error
	}

	row := pool.QueryRow(ctx, insertDeliverySQL,
		rec.CycleTS,
		rec.Attempts,
		rec.Outcome,
		errMsg,
	)

	var out DeliveryRecord
	var scanned *string
	if scanErr := row.Scan(
		&out.ID,
		&out.CycleTS,
		&out.Attempts,
		&out.Outcome,
		&scanned,
		&out.CreatedAt,
	); scanErr != nil {
		return DeliveryRecord{}, fmt.Errorf("insert delivery: %w", scanErr)
	}
	out.Error = scanned
	return out, nil
}

// ListRecentDeliveries lists the most recent delivery records.
func (s *Store) ListRecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDeliveriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", queryErr)
	}
	defer rows.Close()

	records := make([]DeliveryRecord, 0, limit)
	for rows.Next() {
		var rec DeliveryRecord
		var errMsg *string
		if scanErr := rows.Scan(
			&rec.ID,
			&rec.CycleTS,
			&rec.Attempts,
			&rec.Outcome,
			&errMsg,
			&rec.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan delivery: %w", scanErr)
		}
		rec.Error = errMsg
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// decimalArg renders a nullable decimal as a pgx parameter. Decimals travel
// as text to avoid float round-tripping in numeric columns.
func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanReportSample(rows pgx.Rows) (ReportSample, error) {
	var (
		sample                        ReportSample
		gold, silver, btc, eth, xrp   *string
		eur100, gbp100                *string
		unit21k, bar1kg, silverBar1kg *string
		errMsg                        *string
	)

	if err := rows.Scan(
		&sample.CycleTS,
		&gold,
		&silver,
		&btc,
		&eth,
		&xrp,
		&eur100,
		&gbp100,
		&unit21k,
		&bar1kg,
		&silverBar1kg,
		&sample.Status,
		&errMsg,
		&sample.CreatedAt,
	); err != nil {
		return ReportSample{}, fmt.Errorf("scan report sample: %w", err)
	}

	var parseErr error
	sample.GoldOunceUSD, parseErr = parseDecimal(gold, parseErr)
	sample.SilverOunceUSD, parseErr = parseDecimal(silver, parseErr)
	sample.BTCUSD, parseErr = parseDecimal(btc, parseErr)
	sample.ETHUSD, parseErr = parseDecimal(eth, parseErr)
	sample.XRPUSD, parseErr = parseDecimal(xrp, parseErr)
	sample.USDPerEUR100, parseErr = parseDecimal(eur100, parseErr)
	sample.USDPerGBP100, parseErr = parseDecimal(gbp100, parseErr)
	sample.Unit21KUSD, parseErr = parseDecimal(unit21k, parseErr)
	sample.Bar1KgUSD, parseErr = parseDecimal(bar1kg, parseErr)
	sample.SilverBar1KgUSD, parseErr = parseDecimal(silverBar1kg, parseErr)
	if parseErr != nil {
		return ReportSample{}, fmt.Errorf("parse report sample: %w", parseErr)
	}

	sample.Error = errMsg
	return sample, nil
}

func parseDecimal(raw *string, prior error) (*decimal.Decimal, error) {
	if prior != nil {
		return nil, prior
	}
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var (
	_ SampleStore   = (*Store)(nil)
	_ DeliveryStore = (*Store)(nil)
)
