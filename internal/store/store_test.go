package store

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/javierg83/lic-etl-semantic-extractor/internal/concepts/items"
	"github.com/javierg83/lic-etl-semantic-extractor/internal/extraction"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, log.New(io.Discard, "", 0)), mock
}

const (
	retireQuery = `
UPDATE semantic_runs SET is_current = false
WHERE licitacion_id = $1 AND concepto = $2 AND is_current = true
`
	insertRunQuery = `
INSERT INTO semantic_runs (licitacion_id, concepto, is_current, prompt_version, extractor_version, created_at)
VALUES ($1, $2, true, $3, $4, now())
RETURNING id
`
	insertResultQuery = `
INSERT INTO semantic_results (semantic_run_id, concepto, resultado_json, created_at)
VALUES ($1, $2, $3, now())
`
	insertEvidenceQuery = `
INSERT INTO semantic_evidences (semantic_run_id, redis_key, texto_fragmento, created_at)
VALUES ($1, $2, $3, now())
`
)

func expectRunHeader(mock sqlmock.Sqlmock, tenderID, concept string, runID int64) {
	mock.ExpectExec(regexp.QuoteMeta(retireQuery)).
		WithArgs(tenderID, concept).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(insertRunQuery)).
		WithArgs(tenderID, concept, "v1", "semantic_extractor_v1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(runID))
	mock.ExpectExec(regexp.QuoteMeta(insertResultQuery)).
		WithArgs(runID, concept, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestCommitRunRetiresPreviousCurrent(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRunHeader(mock, "LIC-1", extraction.ConceptFinance, 7)
	mock.ExpectExec(regexp.QuoteMeta(insertEvidenceQuery)).
		WithArgs(int64(7), "pdf:doc:chunk:1", "texto").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE finanzas_licitacion").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runID, err := st.CommitRun(context.Background(), RunRecord{
		TenderID:         "LIC-1",
		Concept:          extraction.ConceptFinance,
		PromptVersion:    "v1",
		ExtractorVersion: "semantic_extractor_v1",
		Result: extraction.Result{
			extraction.ConceptWrapperKey: extraction.ConceptFinance,
			"finanzas":                   map[string]any{"moneda": "CLP"},
		},
		Evidence: []Evidence{{RedisKey: "pdf:doc:chunk:1", Fragment: "texto"}},
	})
	if err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if runID != 7 {
		t.Fatalf("runID = %d", runID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRunFinanceInsertsWhenMissing(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRunHeader(mock, "LIC-2", extraction.ConceptFinance, 9)
	mock.ExpectExec("UPDATE finanzas_licitacion").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO finanzas_licitacion").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := st.CommitRun(context.Background(), RunRecord{
		TenderID:         "LIC-2",
		Concept:          extraction.ConceptFinance,
		PromptVersion:    "v1",
		ExtractorVersion: "semantic_extractor_v1",
		Result: extraction.Result{
			"finanzas": map[string]any{
				"presupuesto_referencial": float64(5000),
				"garantias":               "boleta por seriedad de la oferta",
			},
		},
	})
	if err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRunItemsReplacesRows(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRunHeader(mock, "LIC-3", extraction.ConceptItems, 11)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM item_licitacion_especificaciones WHERE semantic_run_id = $1`)).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM items_licitacion WHERE semantic_run_id = $1`)).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO items_licitacion").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectExec("INSERT INTO item_licitacion_especificaciones").
		WithArgs(int64(11), int64(101), "8 GB RAM").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	qty := 10.0
	_, err := st.CommitRun(context.Background(), RunRecord{
		TenderID:         "LIC-3",
		Concept:          extraction.ConceptItems,
		PromptVersion:    "v1",
		ExtractorVersion: "semantic_extractor_v1",
		Result: extraction.Result{
			"items": []items.ItemRow{{
				ItemKey:    "notebook",
				NombreItem: "Notebook",
				Cantidad:   &qty,
			}},
			"item_especificaciones": []items.SpecRow{
				{ItemKey: "notebook", Especificacion: "8 GB RAM"},
				{ItemKey: "fantasma", Especificacion: "sin ítem, se omite"},
			},
		},
	})
	if err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRunBasicDataNeverTouchesNombre(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRunHeader(mock, "LIC-4", extraction.ConceptBasicData, 13)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE licitaciones SET descripcion = $1, codigo_licitacion = $2, updated_at = now() WHERE licitacion_id = $3`)).
		WithArgs("Compra de notebooks", "4077-12-LE24", "LIC-4").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := st.CommitRun(context.Background(), RunRecord{
		TenderID:         "LIC-4",
		Concept:          extraction.ConceptBasicData,
		PromptVersion:    "v1",
		ExtractorVersion: "semantic_extractor_v1",
		Result: extraction.Result{
			"datos_basicos": map[string]any{
				"nombre":            "nunca debe escribirse",
				"descripcion":       "Compra de notebooks",
				"codigo_licitacion": "4077-12-LE24",
				"estado":            "   ",
			},
		},
	})
	if err != nil {
		t.Fatalf("CommitRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRunRollsBackOnFailure(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(retireQuery)).
		WithArgs("LIC-5", extraction.ConceptFinance).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(insertRunQuery)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := st.CommitRun(context.Background(), RunRecord{
		TenderID: "LIC-5",
		Concept:  extraction.ConceptFinance,
		Result:   extraction.Result{"finanzas": map[string]any{}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureJSON(t *testing.T) {
	if got := ensureJSON(nil); got != nil {
		t.Fatalf("nil should stay nil, got %v", got)
	}
	if got := ensureJSON(`{"tipo":"seriedad"}`); got != `{"tipo":"seriedad"}` {
		t.Fatalf("valid JSON string should pass through, got %v", got)
	}
	if got := ensureJSON("boleta de garantía"); got != `{"texto_detectado":"boleta de garantía"}` {
		t.Fatalf("plain text should be wrapped, got %v", got)
	}
	if got := ensureJSON([]any{"multa diaria"}); got != `["multa diaria"]` {
		t.Fatalf("lists should marshal, got %v", got)
	}
}
