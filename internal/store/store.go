// Package store persists extraction runs, results, evidences and the
// concept-specific relational projections in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts/items"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
)

type Store struct {
	DB     *sql.DB
	logger *log.Logger

	runsCommitted otelmetric.Int64Counter
}

// Evidence is one retrieved fragment that backed a run.
type Evidence struct {
	RedisKey string
	Fragment string
}

// RunRecord carries everything CommitRun persists for one extraction.
type RunRecord struct {
	TenderID         string
	Concept          string
	PromptVersion    string
	ExtractorVersion string
	Result           extraction.Result
	Evidence         []Evidence
}

// New opens a Postgres connection and verifies it.
func New(ctx context.Context, cfg config.PostgresConfig, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	meter := otel.Meter("licsem/store")
	runs, err := meter.Int64Counter("semantic_runs_committed_total",
		otelmetric.WithDescription("Extraction runs committed to Postgres"))
	if err != nil {
		logger.Printf("warn: runs counter unavailable: %v", err)
	}
	return &Store{DB: db, logger: logger, runsCommitted: runs}
}

func (s *Store) Close() error { return s.DB.Close() }

// CommitRun persists a run atomically: it retires the previous current run
// for the tender/concept pair, inserts the new run as current, stores the
// result JSON and evidences, and updates the concept's relational tables.
// Either everything lands or nothing does.
func (s *Store) CommitRun(ctx context.Context, rec RunRecord) (runID int64, err error) {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
UPDATE semantic_runs SET is_current = false
WHERE licitacion_id = $1 AND concepto = $2 AND is_current = true
`, rec.TenderID, rec.Concept); err != nil {
		return 0, fmt.Errorf("retire previous run: %w", err)
	}

	if err = tx.QueryRowContext(ctx, `
INSERT INTO semantic_runs (licitacion_id, concepto, is_current, prompt_version, extractor_version, created_at)
VALUES ($1, $2, true, $3, $4, now())
RETURNING id
`, rec.TenderID, rec.Concept, rec.PromptVersion, rec.ExtractorVersion).Scan(&runID); err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
INSERT INTO semantic_results (semantic_run_id, concepto, resultado_json, created_at)
VALUES ($1, $2, $3, now())
`, runID, rec.Concept, resultJSON); err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}

	for _, ev := range rec.Evidence {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO semantic_evidences (semantic_run_id, redis_key, texto_fragmento, created_at)
VALUES ($1, $2, $3, now())
`, runID, ev.RedisKey, ev.Fragment); err != nil {
			return 0, fmt.Errorf("insert evidence %s: %w", ev.RedisKey, err)
		}
	}

	switch rec.Concept {
	case extraction.ConceptItems:
		err = s.saveItems(ctx, tx, rec, runID)
	case extraction.ConceptFinance:
		err = s.saveFinance(ctx, tx, rec)
	case extraction.ConceptBasicData:
		err = s.saveBasicData(ctx, tx, rec)
	}
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	if s.runsCommitted != nil {
		s.runsCommitted.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("concepto", rec.Concept)))
	}
	s.logger.Printf("run committed | tender=%s concepto=%s run_id=%d evidencias=%d",
		rec.TenderID, rec.Concept, runID, len(rec.Evidence))
	return runID, nil
}

func (s *Store) saveItems(ctx context.Context, tx *sql.Tx, rec RunRecord, runID int64) error {
	rows, _ := rec.Result["items"].([]items.ItemRow)
	specs, _ := rec.Result["item_especificaciones"].([]items.SpecRow)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_licitacion_especificaciones WHERE semantic_run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear specs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items_licitacion WHERE semantic_run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	idsByKey := make(map[string]int64, len(rows))
	for _, row := range rows {
		var itemID int64
		if err := tx.QueryRowContext(ctx, `
INSERT INTO items_licitacion (licitacion_id, semantic_run_id, item_key, nombre_item, cantidad, unidad, descripcion, observaciones, fuente_resumen, incompleto, incompleto_motivos, tiene_descripcion_tecnica, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
RETURNING id
`, rec.TenderID, runID, row.ItemKey, row.NombreItem, row.Cantidad, row.Unidad,
			nullableString(row.Descripcion), row.Observaciones, row.FuenteResumen,
			row.Incompleto, pq.Array(row.IncompletoMotivos), row.TieneDescripcionTecnica).Scan(&itemID); err != nil {
			return fmt.Errorf("insert item %s: %w", row.ItemKey, err)
		}
		idsByKey[row.ItemKey] = itemID
	}

	for _, spec := range specs {
		itemID, ok := idsByKey[spec.ItemKey]
		if !ok {
			s.logger.Printf("warn: especificación sin ítem | item_key=%s", spec.ItemKey)
			continue
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO item_licitacion_especificaciones (semantic_run_id, item_id, especificacion, created_at)
VALUES ($1, $2, $3, now())
`, runID, itemID, spec.Especificacion); err != nil {
			return fmt.Errorf("insert spec for %s: %w", spec.ItemKey, err)
		}
	}
	return nil
}

func (s *Store) saveFinance(ctx context.Context, tx *sql.Tx, rec RunRecord) error {
	data, _ := rec.Result["finanzas"].(map[string]any)
	args := []interface{}{
		stringOrNil(data["presupuesto_referencial"]),
		stringOrNil(data["moneda"]),
		stringOrNil(data["forma_pago"]),
		stringOrNil(data["plazo_pago"]),
		stringOrNil(data["fuente_financiamiento"]),
		ensureJSON(data["garantias"]),
		ensureJSON(data["multas"]),
		ensureJSON(data["otros"]),
		stringOrNil(data["resumen"]),
		rec.TenderID,
	}

	res, err := tx.ExecContext(ctx, `
UPDATE finanzas_licitacion
SET presupuesto_referencial = $1, moneda = $2, forma_pago = $3, plazo_pago = $4,
    fuente_financiamiento = $5, garantias = $6, multas = $7, otros = $8, resumen = $9,
    updated_at = now()
WHERE licitacion_id = $10
`, args...)
	if err != nil {
		return fmt.Errorf("update finanzas: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO finanzas_licitacion (presupuesto_referencial, moneda, forma_pago, plazo_pago, fuente_financiamiento, garantias, multas, otros, resumen, licitacion_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
`, args...); err != nil {
			return fmt.Errorf("insert finanzas: %w", err)
		}
	}
	return nil
}

// basicDataColumns maps generated keys onto licitaciones columns. The
// tender display name is deliberately absent: extraction never overwrites
// it.
var basicDataColumns = map[string]string{
	"descripcion":           "descripcion",
	"codigo_licitacion":     "codigo_licitacion",
	"numero_licitacion":     "codigo_licitacion",
	"estado":                "estado_publicacion",
	"organismo_solicitante": "entidad_solicitante",
	"entidad_solicitante":   "entidad_solicitante",
	"unidad_compra":         "unidad_compra",
}

// basicDataOrder fixes the column order so generated SQL is deterministic.
var basicDataOrder = []string{
	"descripcion",
	"codigo_licitacion",
	"numero_licitacion",
	"estado",
	"organismo_solicitante",
	"entidad_solicitante",
	"unidad_compra",
}

func (s *Store) saveBasicData(ctx context.Context, tx *sql.Tx, rec RunRecord) error {
	data, _ := rec.Result["datos_basicos"].(map[string]any)

	var sets []string
	var args []interface{}
	seen := map[string]bool{}
	for _, key := range basicDataOrder {
		value, present := data[key]
		if !present {
			continue
		}
		text, ok := value.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		column := basicDataColumns[key]
		if seen[column] {
			continue
		}
		seen[column] = true
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, strings.TrimSpace(text))
	}
	if len(sets) == 0 {
		s.logger.Printf("datos básicos sin campos útiles | tender=%s", rec.TenderID)
		return nil
	}

	args = append(args, rec.TenderID)
	query := fmt.Sprintf(`UPDATE licitaciones SET %s, updated_at = now() WHERE licitacion_id = $%d`,
		strings.Join(sets, ", "), len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update licitaciones: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// stringOrNil renders scalar JSON values for text columns; non-scalars get
// their JSON rendering.
func stringOrNil(v any) interface{} {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		return nullableString(vv)
	case float64:
		b, _ := json.Marshal(vv)
		return string(b)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(vv)
		if err != nil {
			return nil
		}
		return string(b)
	}
}

// ensureJSON coerces a value into something a jsonb column accepts: lists
// and objects are marshalled, strings already holding JSON pass through,
// and plain text is wrapped so it is never lost.
func ensureJSON(v any) interface{} {
	switch vv := v.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(vv)
		if trimmed == "" {
			return nil
		}
		if json.Valid([]byte(trimmed)) {
			return trimmed
		}
		b, _ := json.Marshal(map[string]string{"texto_detectado": trimmed})
		return string(b)
	default:
		b, err := json.Marshal(vv)
		if err != nil {
			return nil
		}
		return string(b)
	}
}
