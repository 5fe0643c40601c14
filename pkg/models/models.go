package models

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Backups must stay plain-number JSON so older exports re-import verbatim.
	decimal.MarshalJSONWithoutQuotes = true
}

// Frequencia is the scheduling period of a contract.
type Frequencia string

const (
	FrequenciaMensal  Frequencia = "MENSAL"
	FrequenciaSemanal Frequencia = "SEMANAL"
	FrequenciaDiario  Frequencia = "DIARIO"
)

// Status is the lifecycle state of a contract. Quitado is terminal.
type Status string

const (
	StatusAtivo     Status = "ATIVO"
	StatusParcelado Status = "PARCELADO"
	StatusQuitado   Status = "QUITADO"
)

// Contrato is one loan extended to a client. Movimentacoes is the append-only
// movement log, newest entry first; it is the only durable transaction record,
// so field names here match the persisted backup format.
type Contrato struct {
	ID          int64           `json:"id"`
	Capital     decimal.Decimal `json:"capital"`
	Taxa        decimal.Decimal `json:"taxa"`
	LucroTotal  decimal.Decimal `json:"lucroTotal"`
	MultasPagas decimal.Decimal `json:"multasPagas"`

	Frequencia Frequencia `json:"frequencia"`
	DiasDiario int        `json:"diasDiario,omitempty"`

	TotalParcelas        int             `json:"totalParcelas,omitempty"`
	ParcelasPagas        int             `json:"parcelasPagas,omitempty"`
	ValorParcela         decimal.Decimal `json:"valorParcela,omitempty"`
	LucroJurosPorParcela decimal.Decimal `json:"lucroJurosPorParcela,omitempty"`

	DataInicio        string `json:"dataInicio"`
	ProximoVencimento string `json:"proximoVencimento"`
	Garantia          string `json:"garantia"`

	ValorMultaDiaria decimal.Decimal `json:"valorMultaDiaria,omitempty"`

	Status        Status   `json:"status"`
	Movimentacoes []string `json:"movimentacoes"`
}

// Terminal reports whether the contract accepts no further operations.
func (c *Contrato) Terminal() bool {
	return c.Status == StatusQuitado
}

// RegistrarMovimento prepends one movement-log entry.
func (c *Contrato) RegistrarMovimento(entrada string) {
	c.Movimentacoes = append([]string{entrada}, c.Movimentacoes...)
}

// MovimentoMaisAntigo returns the oldest log entry, normally the origination
// record, or "" when the log is empty.
func (c *Contrato) MovimentoMaisAntigo() string {
	if len(c.Movimentacoes) == 0 {
		return ""
	}
	return c.Movimentacoes[len(c.Movimentacoes)-1]
}

// Clone returns a deep copy of the contract. A nil contract clones to nil.
func (c *Contrato) Clone() *Contrato {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Movimentacoes = append([]string(nil), c.Movimentacoes...)
	return &cp
}

// Cliente owns zero or more contracts, newest first. Nome is the lookup key
// and is unique within the collection.
type Cliente struct {
	Nome      string      `json:"nome"`
	Whatsapp  string      `json:"whatsapp"`
	Endereco  string      `json:"endereco"`
	Indicacao string      `json:"indicacao"`
	Reputacao string      `json:"reputacao"`
	Contratos []*Contrato `json:"contratos"`
}

// Clone returns a deep copy of the client and its contracts. A nil client
// clones to nil.
func (c *Cliente) Clone() *Cliente {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Contratos = make([]*Contrato, len(c.Contratos))
	for i, con := range c.Contratos {
		cp.Contratos[i] = con.Clone()
	}
	return &cp
}

// CloneClientes deep-copies a whole collection.
func CloneClientes(clientes []*Cliente) []*Cliente {
	out := make([]*Cliente, len(clientes))
	for i, c := range clientes {
		out[i] = c.Clone()
	}
	return out
}

// SanitizeClientes replaces JSON null records from external backups with
// empty ones, in place. Nil clients and nil contract entries would otherwise
// panic every later read.
func SanitizeClientes(clientes []*Cliente) []*Cliente {
	if clientes == nil {
		return []*Cliente{}
	}
	for i, cli := range clientes {
		if cli == nil {
			cli = &Cliente{}
			clientes[i] = cli
		}
		if cli.Contratos == nil {
			cli.Contratos = []*Contrato{}
		}
		for j, con := range cli.Contratos {
			if con == nil {
				cli.Contratos[j] = &Contrato{}
			}
		}
	}
	return clientes
}

// Totais aggregates the portfolio: outstanding capital over active and
// installment contracts, profit and penalties over every contract.
type Totais struct {
	Capital decimal.Decimal `json:"capital"`
	Lucro   decimal.Decimal `json:"lucro"`
	Multas  decimal.Decimal `json:"multas"`
}
