package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vertoapp/verto/pkg/models"
)

// MockStore is a simple in-memory implementation of the Storage interface for
// testing. saveErr, when set, makes every save fail.
type MockStore struct {
	clientes []*models.Cliente
	saves    int
	saveErr  error
}

func NewMockStore() *MockStore {
	return &MockStore{clientes: []*models.Cliente{}}
}

func (m *MockStore) Load(ctx context.Context) ([]*models.Cliente, error) {
	return models.CloneClientes(m.clientes), nil
}

func (m *MockStore) Save(ctx context.Context, clientes []*models.Cliente) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.clientes = models.CloneClientes(clientes)
	m.saves++
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

func novoLedger(t *testing.T) (*Ledger, *MockStore) {
	store := NewMockStore()
	l, err := NewLedger(store, nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	l.nowFn = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local) }
	return l, store
}

func comCliente(t *testing.T, l *Ledger, nome string) {
	if err := l.AddCliente(&models.Cliente{Nome: nome, Whatsapp: "11 99999-0000"}); err != nil {
		t.Fatalf("Failed to add client: %v", err)
	}
}

func TestAddClienteDuplicado(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")

	err := l.AddCliente(&models.Cliente{Nome: "Maria"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for duplicate name, got %v", err)
	}
}

func TestAddContratoEPersistencia(t *testing.T) {
	l, store := novoLedger(t)
	comCliente(t, l, "Maria")

	con, err := l.AddContrato("Maria", NovoContrato{
		Capital:    dec(1000),
		Taxa:       dec(20),
		Frequencia: models.FrequenciaMensal,
		DataInicio: "01/01/2024",
	})
	if err != nil {
		t.Fatalf("Failed to add contract: %v", err)
	}
	if con.ID == 0 {
		t.Error("Expected an assigned contract id")
	}

	// Every mutation rewrites the whole collection.
	if store.saves != 2 {
		t.Errorf("Expected 2 saves (client + contract), got %d", store.saves)
	}
	if len(store.clientes) != 1 || len(store.clientes[0].Contratos) != 1 {
		t.Fatalf("Persisted collection out of shape: %+v", store.clientes)
	}
}

func TestContratoIDsMonotonicos(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")

	req := NovoContrato{Capital: dec(100), Taxa: dec(10), DataInicio: "01/01/2024"}
	a, _ := l.AddContrato("Maria", req)
	b, _ := l.AddContrato("Maria", req)
	if b.ID <= a.ID {
		t.Errorf("Expected strictly increasing ids, got %d then %d", a.ID, b.ID)
	}
}

func TestRollbackQuandoSaveFalha(t *testing.T) {
	l, store := novoLedger(t)
	comCliente(t, l, "Maria")
	con, _ := l.AddContrato("Maria", NovoContrato{
		Capital:    dec(1000),
		Taxa:       dec(20),
		Frequencia: models.FrequenciaMensal,
		DataInicio: "01/01/2024",
	})

	store.saveErr = fmt.Errorf("disk full")
	_, err := l.Renovar("Maria", con.ID, "01/02/2024")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("Expected ErrPersistence, got %v", err)
	}

	// In-memory state must be the pre-operation value, never partially applied.
	depois := l.Clientes()[0].Contratos[0]
	if !depois.LucroTotal.IsZero() {
		t.Errorf("Profit applied despite failed save: %s", depois.LucroTotal)
	}
	if len(depois.Movimentacoes) != 1 {
		t.Errorf("Log entry appended despite failed save: %v", depois.Movimentacoes)
	}

	// Retrying after the store recovers works.
	store.saveErr = nil
	if _, err := l.Renovar("Maria", con.ID, "01/02/2024"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
}

func TestOperacoesEmContratoInexistente(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")

	if _, err := l.Quitar("Maria", 42, "01/02/2024"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := l.Quitar("José", 42, "01/02/2024"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown client, got %v", err)
	}
}

func TestTotais(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	comCliente(t, l, "José")

	a, _ := l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})
	l.AddContrato("José", NovoContrato{Capital: dec(500), Taxa: dec(10), DataInicio: "01/01/2024"})

	// Settle Maria's: its capital leaves the street, profit stays counted.
	if _, err := l.Quitar("Maria", a.ID, "01/02/2024"); err != nil {
		t.Fatalf("Failed to settle: %v", err)
	}

	totais := l.Totais()
	if !totais.Capital.Equal(dec(500)) {
		t.Errorf("Expected outstanding capital 500, got %s", totais.Capital)
	}
	if !totais.Lucro.Equal(dec(200)) {
		t.Errorf("Expected profit 200, got %s", totais.Lucro)
	}
	if !totais.Multas.IsZero() {
		t.Errorf("Expected no penalties, got %s", totais.Multas)
	}
}

func TestCobrancasDoDia(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	comCliente(t, l, "José")

	// Due 01/02: overdue by the 10th. Active loan owes full settlement.
	l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})
	// Weekly plan due 08/01: owes one installment.
	l.AddContrato("José", NovoContrato{Capital: dec(400), Taxa: dec(10), Frequencia: models.FrequenciaSemanal, DataInicio: "01/01/2024"})

	hoje := time.Date(2024, 2, 10, 12, 0, 0, 0, time.Local)
	resumo := l.CobrancasDoDia(hoje)

	if resumo.Quantidade != 2 {
		t.Fatalf("Expected 2 pending collections, got %d", resumo.Quantidade)
	}
	// 1200 settlement + 110 installment.
	if !resumo.Valor.Equal(dec(1310)) {
		t.Errorf("Expected pending total 1310, got %s", resumo.Valor)
	}

	// Nothing due before any contract starts.
	cedo := l.CobrancasDoDia(time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local))
	if cedo.Quantidade != 0 {
		t.Errorf("Expected nothing due, got %d", cedo.Quantidade)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})

	backup, err := l.Export()
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	l2, _ := novoLedger(t)
	if err := l2.Import([]byte(backup)); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	clientes := l2.Clientes()
	if len(clientes) != 1 || clientes[0].Nome != "Maria" {
		t.Fatalf("Round trip lost data: %+v", clientes)
	}
	if !clientes[0].Contratos[0].Capital.Equal(dec(1000)) {
		t.Errorf("Round trip lost capital: %s", clientes[0].Contratos[0].Capital)
	}
}

func TestImportRejeitaNaoLista(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")

	for _, raw := range []string{`{"nome":"x"}`, `"texto"`, `nem json`} {
		if err := l.Import([]byte(raw)); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected ErrValidation for %q, got %v", raw, err)
		}
	}

	// Rejection happens before any mutation.
	if len(l.Clientes()) != 1 {
		t.Error("Collection mutated by rejected import")
	}
}

func TestImportNormalizaRegistrosNulos(t *testing.T) {
	l, _ := novoLedger(t)

	// A null element is still an array-shaped backup and must not poison
	// every later read.
	if err := l.Import([]byte(`[null]`)); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}
	clientes := l.Clientes()
	if len(clientes) != 1 || clientes[0] == nil {
		t.Fatalf("Expected one empty record, got %+v", clientes)
	}
	if clientes[0].Contratos == nil {
		t.Error("Expected empty contract list, got nil")
	}

	if err := l.Import([]byte(`[{"nome":"Maria","contratos":[null]}]`)); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}
	clientes = l.Clientes()
	if len(clientes) != 1 || clientes[0].Contratos[0] == nil {
		t.Fatalf("Expected empty contract record, got %+v", clientes)
	}
	if totais := l.Totais(); !totais.Capital.IsZero() {
		t.Errorf("Expected zero totals over empty records, got %+v", totais)
	}
}

func TestLoadNormalizaRegistrosNulos(t *testing.T) {
	// A database written before null normalization may still carry nil
	// records; loading must heal them.
	store := NewMockStore()
	store.clientes = []*models.Cliente{nil, {Nome: "Maria", Contratos: []*models.Contrato{nil}}}

	l, err := NewLedger(store, nil)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	clientes := l.Clientes()
	if len(clientes) != 2 || clientes[0] == nil || clientes[1].Contratos[0] == nil {
		t.Fatalf("Nil records survived load: %+v", clientes)
	}
}

func TestImportAceitaListaVerbatim(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")

	// Array-shaped but schema-less records replace the collection as-is.
	if err := l.Import([]byte(`[{"nome":"Solta"},{}]`)); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}
	if len(l.Clientes()) != 2 {
		t.Errorf("Expected 2 records, got %d", len(l.Clientes()))
	}
}

func TestRemoveContrato(t *testing.T) {
	l, store := novoLedger(t)
	comCliente(t, l, "Maria")
	con, _ := l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})

	if err := l.RemoveContrato(con.ID); err != nil {
		t.Fatalf("Failed to remove contract: %v", err)
	}
	if len(store.clientes[0].Contratos) != 0 {
		t.Error("Contract still persisted after removal")
	}
	if err := l.RemoveContrato(con.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestExtratoContrato(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	con, _ := l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})
	l.Renovar("Maria", con.ID, "01/02/2024")

	extrato, err := l.ExtratoContrato("Maria", con.ID)
	if err != nil {
		t.Fatalf("Failed to fetch statement: %v", err)
	}
	if len(extrato.Contrato.Movimentacoes) != 2 {
		t.Errorf("Expected 2 log entries, got %d", len(extrato.Contrato.Movimentacoes))
	}

	// The statement is a snapshot, not a live reference.
	extrato.Contrato.Movimentacoes[0] = "adulterado"
	fresco, _ := l.ExtratoContrato("Maria", con.ID)
	if fresco.Contrato.Movimentacoes[0] == "adulterado" {
		t.Error("Statement shares state with the ledger")
	}
}

func TestSnapshotIsolado(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})

	snap := l.Clientes()
	snap[0].Contratos[0].Capital = decimal.Zero

	if !l.Clientes()[0].Contratos[0].Capital.Equal(dec(1000)) {
		t.Error("Snapshot mutation leaked into the ledger")
	}
}

func TestEditClienteRenomeia(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	comCliente(t, l, "José")

	if err := l.EditCliente("Maria", models.Cliente{Nome: "José"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation renaming onto an existing client, got %v", err)
	}
	if err := l.EditCliente("Maria", models.Cliente{Nome: "Maria Silva", Whatsapp: "11 98888-0000"}); err != nil {
		t.Fatalf("Failed to edit client: %v", err)
	}
	if _, err := l.ExtratoContrato("Maria", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Old name still resolves: %v", err)
	}
}

func TestBackupEhJSONPuro(t *testing.T) {
	l, _ := novoLedger(t)
	comCliente(t, l, "Maria")
	l.AddContrato("Maria", NovoContrato{Capital: dec(1000), Taxa: dec(20), DataInicio: "01/01/2024"})

	backup, _ := l.Export()
	var generico []map[string]any
	if err := json.Unmarshal([]byte(backup), &generico); err != nil {
		t.Fatalf("Backup is not a JSON array: %v", err)
	}
	// Money must serialize as plain numbers for older importers.
	if _, ok := generico[0]["contratos"].([]any)[0].(map[string]any)["capital"].(float64); !ok {
		t.Error("capital did not serialize as a JSON number")
	}
}
