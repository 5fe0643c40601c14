package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vertoapp/verto/pkg/dates"
	"github.com/vertoapp/verto/pkg/models"
	"github.com/vertoapp/verto/pkg/store"
)

// defaultSaveTimeout bounds the single blocking point of any operation, the
// persistence write.
const defaultSaveTimeout = 5 * time.Second

// Ledger owns the client collection and serializes every lifecycle operation:
// one mutex is held across mutation, log append and persistence write.
// Mutations are staged on a deep copy and only committed once the store
// accepts the whole collection, so a write failure leaves the previous state
// intact.
type Ledger struct {
	storage store.Storage
	logger  *zap.Logger

	// SaveTimeout bounds each persistence write. Set before serving traffic.
	SaveTimeout time.Duration

	mu       sync.Mutex
	clientes []*models.Cliente

	nowFn func() time.Time // injectable clock for id assignment and defaults
}

// NewLedger loads the stored collection and returns a ready ledger. A nil
// logger disables logging.
func NewLedger(s store.Storage, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		storage:     s,
		logger:      logger,
		SaveTimeout: defaultSaveTimeout,
		nowFn:       time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSaveTimeout)
	defer cancel()
	clientes, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	// Databases written before null normalization may still carry nil records.
	l.clientes = models.SanitizeClientes(clientes)
	l.logger.Info("coleção carregada", zap.Int("clientes", len(clientes)))
	return l, nil
}

// mutate stages fn on a deep copy, persists the result and only then swaps
// the in-memory collection. Any error leaves state untouched.
func (l *Ledger) mutate(fn func(clientes []*models.Cliente) ([]*models.Cliente, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged, err := fn(models.CloneClientes(l.clientes))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.SaveTimeout)
	defer cancel()
	if err := l.storage.Save(ctx, staged); err != nil {
		l.logger.Error("falha ao persistir coleção", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	l.clientes = staged
	return nil
}

func buscarCliente(clientes []*models.Cliente, nome string) (*models.Cliente, error) {
	for _, cli := range clientes {
		if cli.Nome == nome {
			return cli, nil
		}
	}
	return nil, fmt.Errorf("%w: cliente %q", ErrNotFound, nome)
}

func buscarContrato(cli *models.Cliente, id int64) (*models.Contrato, error) {
	for _, con := range cli.Contratos {
		if con.ID == id {
			return con, nil
		}
	}
	return nil, fmt.Errorf("%w: contrato %d", ErrNotFound, id)
}

// AddCliente inserts a new client at the head of the collection. Names are
// the lookup key and must be unique.
func (l *Ledger) AddCliente(novo *models.Cliente) error {
	nome := strings.TrimSpace(novo.Nome)
	if nome == "" {
		return fmt.Errorf("%w: nome é obrigatório", ErrValidation)
	}
	return l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		if _, err := buscarCliente(clientes, nome); err == nil {
			return nil, fmt.Errorf("%w: cliente %q já existe", ErrValidation, nome)
		}
		cli := novo.Clone()
		cli.Nome = nome
		if cli.Contratos == nil {
			cli.Contratos = []*models.Contrato{}
		}
		return append([]*models.Cliente{cli}, clientes...), nil
	})
}

// EditCliente replaces a client's contact metadata. An empty new name keeps
// the current one; a rename is checked for uniqueness.
func (l *Ledger) EditCliente(nome string, dados models.Cliente) error {
	return l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		cli, err := buscarCliente(clientes, nome)
		if err != nil {
			return nil, err
		}
		novoNome := strings.TrimSpace(dados.Nome)
		if novoNome != "" && novoNome != nome {
			if _, err := buscarCliente(clientes, novoNome); err == nil {
				return nil, fmt.Errorf("%w: cliente %q já existe", ErrValidation, novoNome)
			}
			cli.Nome = novoNome
		}
		cli.Whatsapp = dados.Whatsapp
		cli.Endereco = dados.Endereco
		cli.Indicacao = dados.Indicacao
		cli.Reputacao = dados.Reputacao
		return clientes, nil
	})
}

// RemoveCliente hard-deletes a client and every contract it owns.
func (l *Ledger) RemoveCliente(nome string) error {
	return l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		out := clientes[:0]
		achou := false
		for _, cli := range clientes {
			if cli.Nome == nome {
				achou = true
				continue
			}
			out = append(out, cli)
		}
		if !achou {
			return nil, fmt.Errorf("%w: cliente %q", ErrNotFound, nome)
		}
		return out, nil
	})
}

// proximoID assigns a millisecond-timestamp contract id, bumped past the
// client's current maximum so back-to-back creations stay unique.
func (l *Ledger) proximoID(cli *models.Cliente) int64 {
	id := l.nowFn().UnixMilli()
	for _, con := range cli.Contratos {
		if con.ID >= id {
			id = con.ID + 1
		}
	}
	return id
}

// AddContrato creates a new loan for a client and returns a copy of it.
func (l *Ledger) AddContrato(nomeCliente string, req NovoContrato) (*models.Contrato, error) {
	var criado *models.Contrato
	err := l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		cli, err := buscarCliente(clientes, nomeCliente)
		if err != nil {
			return nil, err
		}
		con, err := criarContrato(req, l.proximoID(cli), l.nowFn())
		if err != nil {
			return nil, err
		}
		cli.Contratos = append([]*models.Contrato{con}, cli.Contratos...)
		criado = con.Clone()
		return clientes, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("contrato criado",
		zap.String("cliente", nomeCliente),
		zap.Int64("contrato", criado.ID),
		zap.String("frequencia", string(criado.Frequencia)),
		zap.String("capital", criado.Capital.String()))
	return criado, nil
}

// ContratoPatch is the ad-hoc correction path: only non-nil fields change.
type ContratoPatch struct {
	Capital           *decimal.Decimal `json:"capital"`
	Taxa              *decimal.Decimal `json:"taxa"`
	Garantia          *string          `json:"garantia"`
	ValorMultaDiaria  *decimal.Decimal `json:"valorMultaDiaria"`
	ProximoVencimento *string          `json:"proximoVencimento"`
}

// EditContrato applies a field-level correction outside the state machine.
func (l *Ledger) EditContrato(nomeCliente string, id int64, patch ContratoPatch) (*models.Contrato, error) {
	var editado *models.Contrato
	err := l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		cli, err := buscarCliente(clientes, nomeCliente)
		if err != nil {
			return nil, err
		}
		con, err := buscarContrato(cli, id)
		if err != nil {
			return nil, err
		}
		if patch.ProximoVencimento != nil {
			venc, err := dates.Parse(*patch.ProximoVencimento)
			if err != nil {
				return nil, err
			}
			con.ProximoVencimento = dates.Format(venc)
		}
		if patch.Capital != nil {
			if patch.Capital.IsNegative() {
				return nil, fmt.Errorf("%w: capital não pode ser negativo", ErrValidation)
			}
			con.Capital = *patch.Capital
		}
		if patch.Taxa != nil {
			if patch.Taxa.LessThanOrEqual(decimal.Zero) {
				return nil, fmt.Errorf("%w: taxa deve ser positiva", ErrValidation)
			}
			con.Taxa = *patch.Taxa
		}
		if patch.Garantia != nil {
			con.Garantia = *patch.Garantia
		}
		if patch.ValorMultaDiaria != nil {
			con.ValorMultaDiaria = *patch.ValorMultaDiaria
		}
		editado = con.Clone()
		return clientes, nil
	})
	if err != nil {
		return nil, err
	}
	return editado, nil
}

// RemoveContrato hard-deletes a contract wherever it lives. This is the only
// deletion path and bypasses the state machine.
func (l *Ledger) RemoveContrato(id int64) error {
	return l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		achou := false
		for _, cli := range clientes {
			out := cli.Contratos[:0]
			for _, con := range cli.Contratos {
				if con.ID == id {
					achou = true
					continue
				}
				out = append(out, con)
			}
			cli.Contratos = out
		}
		if !achou {
			return nil, fmt.Errorf("%w: contrato %d", ErrNotFound, id)
		}
		return clientes, nil
	})
}

// operar runs one state-machine transition on a contract and persists.
func (l *Ledger) operar(nomeCliente string, id int64, op string, fn func(*models.Contrato) error) (*models.Contrato, error) {
	var depois *models.Contrato
	err := l.mutate(func(clientes []*models.Cliente) ([]*models.Cliente, error) {
		cli, err := buscarCliente(clientes, nomeCliente)
		if err != nil {
			return nil, err
		}
		con, err := buscarContrato(cli, id)
		if err != nil {
			return nil, err
		}
		if err := fn(con); err != nil {
			return nil, err
		}
		depois = con.Clone()
		return clientes, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("movimentação registrada",
		zap.String("operacao", op),
		zap.String("cliente", nomeCliente),
		zap.Int64("contrato", id),
		zap.String("status", string(depois.Status)))
	return depois, nil
}

// Renovar collects only interest plus late fee and rolls the due date.
func (l *Ledger) Renovar(nomeCliente string, id int64, dataPagamento string) (*models.Contrato, error) {
	return l.operar(nomeCliente, id, "renovacao", func(con *models.Contrato) error {
		return renovar(con, dataPagamento)
	})
}

// Quitar settles a contract in full.
func (l *Ledger) Quitar(nomeCliente string, id int64, dataPagamento string) (*models.Contrato, error) {
	return l.operar(nomeCliente, id, "quitacao", func(con *models.Contrato) error {
		return quitar(con, dataPagamento)
	})
}

// FecharAcordo restructures a contract into a new installment plan.
func (l *Ledger) FecharAcordo(nomeCliente string, id int64, req Acordo) (*models.Contrato, error) {
	return l.operar(nomeCliente, id, "acordo", func(con *models.Contrato) error {
		return acordo(con, req)
	})
}

// PagarParcela records one installment payment.
func (l *Ledger) PagarParcela(nomeCliente string, id int64, dataPagamento string) (*models.Contrato, error) {
	return l.operar(nomeCliente, id, "parcela", func(con *models.Contrato) error {
		return pagarParcela(con, dataPagamento)
	})
}

// Clientes returns a deep-copied snapshot of the collection; readers never
// observe an in-flight mutation.
func (l *Ledger) Clientes() []*models.Cliente {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.CloneClientes(l.clientes)
}

// Totais derives the portfolio aggregates: outstanding capital counts only
// active and installment contracts, profit and penalties count everything.
func (l *Ledger) Totais() models.Totais {
	l.mu.Lock()
	defer l.mu.Unlock()

	var t models.Totais
	for _, cli := range l.clientes {
		for _, con := range cli.Contratos {
			if con.Status == models.StatusAtivo || con.Status == models.StatusParcelado {
				t.Capital = t.Capital.Add(con.Capital)
			}
			t.Lucro = t.Lucro.Add(con.LucroTotal)
			t.Multas = t.Multas.Add(con.MultasPagas)
		}
	}
	return t
}

// Cobranca is one collection-worklist row: a contract due today or earlier.
type Cobranca struct {
	Cliente    string          `json:"cliente"`
	ContratoID int64           `json:"contratoId"`
	Vencimento string          `json:"vencimento"`
	DiasAtraso int             `json:"diasAtraso"`
	Valor      decimal.Decimal `json:"valor"`
}

// Cobrancas summarizes everything due: the {count, amount} pair handed to the
// notification collaborator plus the itemized rows.
type Cobrancas struct {
	Quantidade int             `json:"quantidade"`
	Valor      decimal.Decimal `json:"valor"`
	Itens      []Cobranca      `json:"itens"`
}

// CobrancasDoDia lists contracts due on or before the given day. Installment
// plans owe one installment; active loans owe full settlement.
func (l *Ledger) CobrancasDoDia(hoje time.Time) Cobrancas {
	l.mu.Lock()
	defer l.mu.Unlock()

	dia := time.Date(hoje.Year(), hoje.Month(), hoje.Day(), 0, 0, 0, 0, hoje.Location())
	resumo := Cobrancas{Itens: []Cobranca{}}

	for _, cli := range l.clientes {
		for _, con := range cli.Contratos {
			if con.Terminal() {
				continue
			}
			venc, err := dates.Parse(con.ProximoVencimento)
			if err != nil {
				continue
			}
			if venc.After(dia) {
				continue
			}

			valor := con.ValorParcela
			if con.Status == models.StatusAtivo {
				valor = con.Capital.Add(con.Capital.Mul(con.Taxa).Div(cem))
			}

			resumo.Quantidade++
			resumo.Valor = resumo.Valor.Add(valor)
			resumo.Itens = append(resumo.Itens, Cobranca{
				Cliente:    cli.Nome,
				ContratoID: con.ID,
				Vencimento: con.ProximoVencimento,
				DiasAtraso: dates.DaysLate(dia, venc),
				Valor:      valor,
			})
		}
	}
	return resumo
}

// Export serializes the full collection for backup sharing.
func (l *Ledger) Export() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload, err := json.Marshal(l.clientes)
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	return string(payload), nil
}

// Import replaces the whole collection with an external backup. Only the
// array shape is checked before mutation; records are taken as-is, except
// that JSON null entries are normalized to empty records so later reads
// never trip over a stored nil.
func (l *Ledger) Import(raw []byte) error {
	var shape []json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return fmt.Errorf("%w: backup não é uma lista JSON", ErrValidation)
	}
	var clientes []*models.Cliente
	if err := json.Unmarshal(raw, &clientes); err != nil {
		return fmt.Errorf("%w: backup ilegível: %v", ErrValidation, err)
	}
	clientes = models.SanitizeClientes(clientes)
	err := l.mutate(func([]*models.Cliente) ([]*models.Cliente, error) {
		return clientes, nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("backup importado", zap.Int("clientes", len(clientes)))
	return nil
}

// Extrato is the single-contract statement handed to the report renderer:
// the contract snapshot plus its raw movement log.
type Extrato struct {
	Cliente  string           `json:"cliente"`
	Contrato *models.Contrato `json:"contrato"`
}

// ExtratoContrato returns the statement for one contract.
func (l *Ledger) ExtratoContrato(nomeCliente string, id int64) (*Extrato, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cli, err := buscarCliente(l.clientes, nomeCliente)
	if err != nil {
		return nil, err
	}
	con, err := buscarContrato(cli, id)
	if err != nil {
		return nil, err
	}
	return &Extrato{Cliente: cli.Nome, Contrato: con.Clone()}, nil
}
