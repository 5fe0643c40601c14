package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vertoapp/verto/pkg/dates"
	"github.com/vertoapp/verto/pkg/ledger"
	"github.com/vertoapp/verto/pkg/models"
	"github.com/vertoapp/verto/pkg/money"
	"github.com/vertoapp/verto/pkg/report"
	"github.com/vertoapp/verto/pkg/store"
)

// Server holds the ledger, the report engine and the storage handle.
type Server struct {
	ledger  *ledger.Ledger
	reports *report.Engine
	storage store.Storage
	logger  *zap.Logger
}

func NewServer(l *ledger.Ledger, s store.Storage, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger:  l,
		reports: report.NewEngine(logger),
		storage: s,
		logger:  logger,
	}
}

// valorFlexivel accepts monetary JSON fields either as numbers or as local
// strings ("1.234,56").
func valorFlexivel(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		if s == "" {
			return decimal.Zero, nil
		}
		return money.Parse(s)
	}
	return decimal.NewFromString(string(raw))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrDate),
		errors.Is(err, money.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func contratoID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (s *Server) listClientesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Clientes())
}

func (s *Server) addClienteHandler(w http.ResponseWriter, r *http.Request) {
	var cli models.Cliente
	if err := json.NewDecoder(r.Body).Decode(&cli); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ledger.AddCliente(&cli); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cli)
}

func (s *Server) editClienteHandler(w http.ResponseWriter, r *http.Request) {
	var dados models.Cliente
	if err := json.NewDecoder(r.Body).Decode(&dados); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ledger.EditCliente(mux.Vars(r)["nome"], dados); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteClienteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveCliente(mux.Vars(r)["nome"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addContratoHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Capital          json.RawMessage   `json:"capital"`
		Taxa             json.RawMessage   `json:"taxa"`
		Frequencia       models.Frequencia `json:"frequencia"`
		DataInicio       string            `json:"dataInicio"`
		Garantia         string            `json:"garantia"`
		ValorMultaDiaria json.RawMessage   `json:"valorMultaDiaria"`
		DiasDiario       int               `json:"diasDiario"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	novo := ledger.NovoContrato{
		Frequencia: req.Frequencia,
		DataInicio: req.DataInicio,
		Garantia:   req.Garantia,
		DiasDiario: req.DiasDiario,
	}
	var err error
	if novo.Capital, err = valorFlexivel(req.Capital); err != nil {
		writeError(w, fmt.Errorf("%w: capital", money.ErrInvalid))
		return
	}
	if novo.Taxa, err = valorFlexivel(req.Taxa); err != nil {
		writeError(w, fmt.Errorf("%w: taxa", money.ErrInvalid))
		return
	}
	if novo.ValorMultaDiaria, err = valorFlexivel(req.ValorMultaDiaria); err != nil {
		writeError(w, fmt.Errorf("%w: valorMultaDiaria", money.ErrInvalid))
		return
	}

	con, err := s.ledger.AddContrato(mux.Vars(r)["nome"], novo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, con)
}

func (s *Server) editContratoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := contratoID(r)
	if err != nil {
		http.Error(w, "Invalid contract ID", http.StatusBadRequest)
		return
	}
	var patch ledger.ContratoPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	con, err := s.ledger.EditContrato(mux.Vars(r)["nome"], id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, con)
}

func (s *Server) deleteContratoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := contratoID(r)
	if err != nil {
		http.Error(w, "Invalid contract ID", http.StatusBadRequest)
		return
	}
	if err := s.ledger.RemoveContrato(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pagamentoRequest is the shared body of renewal, settlement and installment
// payments. An omitted date means today.
type pagamentoRequest struct {
	DataPagamento string `json:"dataPagamento"`
}

func (s *Server) decodePagamento(r *http.Request) (string, error) {
	var req pagamentoRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", err
		}
	}
	if req.DataPagamento == "" {
		req.DataPagamento = dates.Format(time.Now())
	}
	return req.DataPagamento, nil
}

func (s *Server) operacaoHandler(op func(nome string, id int64, data string) (*models.Contrato, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := contratoID(r)
		if err != nil {
			http.Error(w, "Invalid contract ID", http.StatusBadRequest)
			return
		}
		data, err := s.decodePagamento(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		con, err := op(mux.Vars(r)["nome"], id, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, con)
	}
}

func (s *Server) acordoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := contratoID(r)
	if err != nil {
		http.Error(w, "Invalid contract ID", http.StatusBadRequest)
		return
	}
	var req struct {
		ValorTotal   json.RawMessage `json:"valorTotal"`
		QtdParcelas  int             `json:"qtdParcelas"`
		DataPrimeira string          `json:"dataPrimeira"`
		MultaDiaria  json.RawMessage `json:"multaDiaria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acordo := ledger.Acordo{QtdParcelas: req.QtdParcelas, DataPrimeira: req.DataPrimeira}
	if acordo.ValorTotal, err = valorFlexivel(req.ValorTotal); err != nil {
		writeError(w, fmt.Errorf("%w: valorTotal", money.ErrInvalid))
		return
	}
	if acordo.MultaDiaria, err = valorFlexivel(req.MultaDiaria); err != nil {
		writeError(w, fmt.Errorf("%w: multaDiaria", money.ErrInvalid))
		return
	}

	con, err := s.ledger.FecharAcordo(mux.Vars(r)["nome"], id, acordo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, con)
}

func (s *Server) extratoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := contratoID(r)
	if err != nil {
		http.Error(w, "Invalid contract ID", http.StatusBadRequest)
		return
	}
	extrato, err := s.ledger.ExtratoContrato(mux.Vars(r)["nome"], id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extrato)
}

func (s *Server) totaisHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Totais())
}

func (s *Server) cobrancasHandler(w http.ResponseWriter, r *http.Request) {
	dia := time.Now()
	if q := r.URL.Query().Get("data"); q != "" {
		parsed, err := dates.Parse(q)
		if err != nil {
			writeError(w, err)
			return
		}
		dia = parsed
	}
	writeJSON(w, http.StatusOK, s.ledger.CobrancasDoDia(dia))
}

func (s *Server) relatorioHandler(w http.ResponseWriter, r *http.Request) {
	hoje := time.Now()
	inicio := r.URL.Query().Get("inicio")
	fim := r.URL.Query().Get("fim")
	if inicio == "" {
		inicio = dates.Format(time.Date(hoje.Year(), hoje.Month(), 1, 0, 0, 0, 0, hoje.Location()))
	}
	if fim == "" {
		fim = dates.Format(hoje)
	}

	rel, err := s.reports.Generate(s.ledger.Clientes(), inicio, fim)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) backupHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := s.ledger.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(payload))
}

func (s *Server) importarHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ledger.Import(raw); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/clientes", s.listClientesHandler).Methods("GET")
	router.HandleFunc("/clientes", s.addClienteHandler).Methods("POST")
	router.HandleFunc("/clientes/{nome}", s.editClienteHandler).Methods("PUT")
	router.HandleFunc("/clientes/{nome}", s.deleteClienteHandler).Methods("DELETE")

	router.HandleFunc("/clientes/{nome}/contratos", s.addContratoHandler).Methods("POST")
	router.HandleFunc("/clientes/{nome}/contratos/{id}", s.editContratoHandler).Methods("PUT")
	router.HandleFunc("/contratos/{id}", s.deleteContratoHandler).Methods("DELETE")

	router.HandleFunc("/clientes/{nome}/contratos/{id}/renovar", s.operacaoHandler(s.ledger.Renovar)).Methods("POST")
	router.HandleFunc("/clientes/{nome}/contratos/{id}/quitar", s.operacaoHandler(s.ledger.Quitar)).Methods("POST")
	router.HandleFunc("/clientes/{nome}/contratos/{id}/parcelas", s.operacaoHandler(s.ledger.PagarParcela)).Methods("POST")
	router.HandleFunc("/clientes/{nome}/contratos/{id}/acordo", s.acordoHandler).Methods("POST")
	router.HandleFunc("/clientes/{nome}/contratos/{id}/extrato", s.extratoHandler).Methods("GET")

	router.HandleFunc("/totais", s.totaisHandler).Methods("GET")
	router.HandleFunc("/cobrancas", s.cobrancasHandler).Methods("GET")
	router.HandleFunc("/relatorio", s.relatorioHandler).Methods("GET")
	router.HandleFunc("/backup", s.backupHandler).Methods("GET")
	router.HandleFunc("/importar", s.importarHandler).Methods("POST")

	return router
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dbPath := os.Getenv("VERTO_DB")
	if dbPath == "" {
		dbPath = "verto.db"
	}
	addr := os.Getenv("VERTO_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Fatal("failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()

	l, err := ledger.NewLedger(sqliteStore, logger)
	if err != nil {
		logger.Fatal("failed to load ledger", zap.Error(err))
	}
	if raw := os.Getenv("VERTO_SAVE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Fatal("invalid VERTO_SAVE_TIMEOUT", zap.Error(err))
		}
		l.SaveTimeout = d
	}

	server := NewServer(l, sqliteStore, logger)
	handler := cors.AllowAll().Handler(server.router())

	// Daily due-summary pass: the {count, amount} pair the push-notification
	// collaborator consumes.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			resumo := l.CobrancasDoDia(time.Now())
			if resumo.Quantidade > 0 {
				logger.Info("cobranças pendentes hoje",
					zap.Int("quantidade", resumo.Quantidade),
					zap.String("valor", resumo.Valor.StringFixed(2)))
			}
			<-ticker.C
		}
	}()

	logger.Info("server starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
