package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// ClickHouseSignalStore implements SignalStore over append-only ClickHouse
// tables. Signals are never updated or deleted; user list changes are stored
// as an event stream and folded at read time.
type ClickHouseSignalStore struct {
	db           *sql.DB
	signalsTable string
	scansTable   string
	listsTable   string
}

func NewClickHouseSignalStore(db *sql.DB) drepo.SignalStore {
	return &ClickHouseSignalStore{
		db:           db,
		signalsTable: "signals",
		scansTable:   "scan_history",
		listsTable:   "user_list_events",
	}
}

// SchemaStatements returns the idempotent DDL for the store's tables.
func SchemaStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id String,
			symbol String,
			market String,
			technical_score Float64,
			sentiment_score Float64,
			liquidity_score Float64,
			convergence_score Int32,
			strength String,
			entry_price Float64,
			stop_loss Float64,
			take_profit Float64,
			technical_data String,
			analysis_notes String,
			created_at DateTime64(3),
			expires_at DateTime64(3)
		) ENGINE = MergeTree() ORDER BY (market, created_at, symbol)`,
		`CREATE TABLE IF NOT EXISTS scan_history (
			exchange String,
			scanned_total Int32,
			matched_total Int32,
			queued_total Int32,
			top_symbols String,
			started_at DateTime64(3),
			completed_at DateTime64(3)
		) ENGINE = MergeTree() ORDER BY (exchange, started_at)`,
		`CREATE TABLE IF NOT EXISTS user_list_events (
			user_id String,
			list String,
			symbol String,
			action Int8,
			ts DateTime64(3)
		) ENGINE = MergeTree() ORDER BY (user_id, list, ts)`,
	}
}

func (s *ClickHouseSignalStore) InsertSignal(ctx context.Context, sig *models.Signal) (*models.Signal, error) {
	created := *sig
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	techData, err := json.Marshal(created.TechnicalData)
	if err != nil {
		techData = []byte("{}")
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(id, symbol, market, technical_score, sentiment_score, liquidity_score,
		 convergence_score, strength, entry_price, stop_loss, take_profit,
		 technical_data, analysis_notes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.signalsTable)
	_, err = s.db.ExecContext(ctx, q,
		created.ID, created.Symbol, created.Market,
		created.TechnicalScore, created.SentimentScore, created.LiquidityScore,
		created.ConvergenceScore, string(created.Strength),
		created.EntryPrice, created.StopLoss, created.TakeProfit,
		string(techData), created.AnalysisNotes,
		created.CreatedAt, created.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert signal %s: %w", created.Symbol, err)
	}
	return &created, nil
}

func (s *ClickHouseSignalStore) QuerySignals(ctx context.Context, q models.SignalQuery) ([]*models.Signal, int64, error) {
	where, args := buildSignalFilter(q)

	countQ := fmt.Sprintf("SELECT count() FROM %s %s", s.signalsTable, where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count signals: %w", err)
	}

	sortCol := "created_at"
	if q.SortBy == "convergence_score" {
		sortCol = "convergence_score"
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	sel := fmt.Sprintf(`SELECT id, symbol, market, technical_score, sentiment_score,
		liquidity_score, convergence_score, strength, entry_price, stop_loss,
		take_profit, technical_data, analysis_notes, created_at, expires_at
		FROM %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		s.signalsTable, where, sortCol, dir, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, sel, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*models.Signal
	for rows.Next() {
		var sig models.Signal
		var strength, techData string
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.Market,
			&sig.TechnicalScore, &sig.SentimentScore, &sig.LiquidityScore,
			&sig.ConvergenceScore, &strength,
			&sig.EntryPrice, &sig.StopLoss, &sig.TakeProfit,
			&techData, &sig.AnalysisNotes, &sig.CreatedAt, &sig.ExpiresAt); err != nil {
			return nil, 0, fmt.Errorf("scan signal row: %w", err)
		}
		sig.Strength = models.Strength(strength)
		if techData != "" {
			_ = json.Unmarshal([]byte(techData), &sig.TechnicalData)
		}
		out = append(out, &sig)
	}
	return out, total, rows.Err()
}

func buildSignalFilter(q models.SignalQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if q.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if q.Market != "" {
		conds = append(conds, "market = ?")
		args = append(args, q.Market)
	}
	if q.MinScore > 0 {
		conds = append(conds, "convergence_score >= ?")
		args = append(args, q.MinScore)
	}
	if q.Strength != "" {
		conds = append(conds, "strength = ?")
		args = append(args, string(q.Strength))
	}
	if !q.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since)
	}
	if q.ActiveOnly {
		conds = append(conds, "expires_at > now64(3)")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (s *ClickHouseSignalStore) InsertScanRecord(ctx context.Context, r *models.ScanRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(exchange, scanned_total, matched_total, queued_total, top_symbols, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.scansTable)
	_, err := s.db.ExecContext(ctx, q,
		r.Exchange, r.ScannedTotal, r.MatchedTotal, r.QueuedTotal,
		strings.Join(r.TopSymbols, ","), r.StartedAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert scan record %s: %w", r.Exchange, err)
	}
	return nil
}

func (s *ClickHouseSignalStore) Analytics(ctx context.Context, market string, since time.Time) (*models.SignalAnalytics, error) {
	q := fmt.Sprintf(`SELECT count(), avg(convergence_score),
		countIf(strength IN ('STRONG', 'VERY_STRONG')), uniqExact(symbol)
		FROM %s WHERE market = ? AND created_at >= ?`, s.signalsTable)
	out := &models.SignalAnalytics{Market: market}
	err := s.db.QueryRowContext(ctx, q, market, since).Scan(
		&out.TotalSignals, &out.AvgConvergence, &out.StrongOrBetter, &out.DistinctSymbols)
	if err != nil {
		return nil, fmt.Errorf("signal analytics %s: %w", market, err)
	}
	return out, nil
}

// AppendUserList records a list-add event. Reads fold the event stream, so
// append/remove never rewrite rows.
func (s *ClickHouseSignalStore) AppendUserList(ctx context.Context, userID, list, symbol string) error {
	return s.insertListEvent(ctx, userID, list, symbol, 1)
}

func (s *ClickHouseSignalStore) RemoveUserList(ctx context.Context, userID, list, symbol string) error {
	return s.insertListEvent(ctx, userID, list, symbol, -1)
}

func (s *ClickHouseSignalStore) insertListEvent(ctx context.Context, userID, list, symbol string, action int8) error {
	q := fmt.Sprintf("INSERT INTO %s (user_id, list, symbol, action, ts) VALUES (?, ?, ?, ?, ?)", s.listsTable)
	if _, err := s.db.ExecContext(ctx, q, userID, list, symbol, action, time.Now()); err != nil {
		return fmt.Errorf("user list event: %w", err)
	}
	return nil
}

func (s *ClickHouseSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
