package store

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vertoapp/verto/pkg/models"
)

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	dbFile := "test_store_verto.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	clientes := []*models.Cliente{
		{
			Nome:     "Maria",
			Whatsapp: "11 99999-0000",
			Contratos: []*models.Contrato{
				{
					ID:                1700000000000,
					Capital:           decimal.NewFromInt(1000),
					Taxa:              decimal.NewFromInt(20),
					Frequencia:        models.FrequenciaMensal,
					DataInicio:        "01/01/2024",
					ProximoVencimento: "01/02/2024",
					Status:            models.StatusAtivo,
					Movimentacoes:     []string{"01/01/2024: Iniciado Capital R$ 1000.00"},
				},
			},
		},
	}

	if err := s.Save(context.Background(), clientes); err != nil {
		t.Fatalf("Failed to save collection: %v", err)
	}

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load collection: %v", err)
	}

	if len(loaded) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(loaded))
	}
	if loaded[0].Nome != "Maria" {
		t.Errorf("Expected client Maria, got %s", loaded[0].Nome)
	}
	con := loaded[0].Contratos[0]
	if !con.Capital.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected capital 1000, got %s", con.Capital)
	}
	if len(con.Movimentacoes) != 1 {
		t.Errorf("Expected 1 log entry, got %d", len(con.Movimentacoes))
	}
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	dbFile := "test_store_empty.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load empty store: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected empty collection, got %d clients", len(loaded))
	}
}

func TestSQLiteStore_ReplaceOnWrite(t *testing.T) {
	dbFile := "test_store_replace.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Save(ctx, []*models.Cliente{{Nome: "Maria"}, {Nome: "José"}}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	// The second save fully replaces the first, no merging.
	if err := s.Save(ctx, []*models.Cliente{{Nome: "Ana"}}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Nome != "Ana" {
		t.Errorf("Expected only Ana after replace, got %+v", loaded)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbFile := "test_store_reopen.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Save(context.Background(), []*models.Cliente{{Nome: "Maria"}}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	s.Close()

	s2, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	loaded, err := s2.Load(context.Background())
	if err != nil {
		t.Fatalf("Failed to load after reopen: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Nome != "Maria" {
		t.Errorf("Data lost across reopen: %+v", loaded)
	}
}
