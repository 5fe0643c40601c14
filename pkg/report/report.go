// Package report re-derives structured financial aggregates from the
// free-text movement logs over a date range. Contracts created under older
// engine versions keep their original log text forever, so extraction must
// handle every phrasing generation at once: explicitly tagged entries are
// read directly, untagged ones go through estimation fallbacks.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vertoapp/verto/pkg/dates"
	"github.com/vertoapp/verto/pkg/models"
)

// Entry types by keyword classification.
const (
	TipoQuitacao  = "Quitação"
	TipoParcela   = "Parcela"
	TipoRenovacao = "Renovação"
	TipoOutros    = "Outros"
)

// toleranciaJuros is how far a settlement may exceed principal plus expected
// interest before the excess is attributed to penalties instead of profit.
var toleranciaJuros = decimal.NewFromInt(1)

// Entrada is one classified receipt row.
type Entrada struct {
	Data       string          `json:"data"`
	Cliente    string          `json:"cliente"`
	ContratoID int64           `json:"contratoId"`
	Tipo       string          `json:"tipo"`
	Total      decimal.Decimal `json:"total"`
	Capital    decimal.Decimal `json:"capital"`
	Lucro      decimal.Decimal `json:"lucro"`
	Multa      decimal.Decimal `json:"multa"`
}

// Saida is one new-loan disbursement row.
type Saida struct {
	Data       string          `json:"data"`
	Cliente    string          `json:"cliente"`
	ContratoID int64           `json:"contratoId"`
	Valor      decimal.Decimal `json:"valor"`
}

// Quitado is one settlement-reconciliation row: original principal against
// the final amount actually received.
type Quitado struct {
	Data       string          `json:"data"`
	Cliente    string          `json:"cliente"`
	ContratoID int64           `json:"contratoId"`
	Investido  decimal.Decimal `json:"investido"`
	ValorFinal decimal.Decimal `json:"valorFinal"`
}

// Report is the structured payload handed to the rendering collaborator.
type Report struct {
	ID     uuid.UUID `json:"id"`
	Inicio string    `json:"inicio"`
	Fim    string    `json:"fim"`

	TotalInvestido decimal.Decimal `json:"totalInvestido"`
	TotalRecebido  decimal.Decimal `json:"totalRecebido"`
	TotalLucro     decimal.Decimal `json:"totalLucro"`
	TotalMultas    decimal.Decimal `json:"totalMultas"`

	Entradas []Entrada `json:"entradas"`
	Saidas   []Saida   `json:"saidas"`
	Quitados []Quitado `json:"quitados"`

	// Avisos lists log entries excluded from the totals because no amount
	// could be recognized; flagged for audit, never silently dropped.
	Avisos []string `json:"avisos,omitempty"`
}

// Engine is the read-only reconciliation scanner. It operates on a snapshot
// of the collection and is safe to run concurrently with itself.
type Engine struct {
	logger *zap.Logger
}

// NewEngine returns a report engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Generate scans every contract's movement log and aggregates receipts,
// disbursements and settlements inside the closed range [inicio, fim]; the
// end date covers its whole day.
func (e *Engine) Generate(clientes []*models.Cliente, inicio, fim string) (*Report, error) {
	dtInicio, err := dates.Parse(inicio)
	if err != nil {
		return nil, err
	}
	dtFimDia, err := dates.Parse(fim)
	if err != nil {
		return nil, err
	}
	dtFim := dates.EndOfDay(dtFimDia)

	rel := &Report{
		ID:       uuid.New(),
		Inicio:   dates.Format(dtInicio),
		Fim:      dates.Format(dtFimDia),
		Entradas: []Entrada{},
		Saidas:   []Saida{},
		Quitados: []Quitado{},
	}

	for _, cli := range clientes {
		for _, con := range cli.Contratos {
			e.acumularSaida(rel, cli, con, dtInicio, dtFim)
			e.acumularEntradas(rel, cli, con, dtInicio, dtFim)
		}
	}
	return rel, nil
}

func dentro(t time.Time, inicio, fim time.Time) bool {
	return !t.Before(inicio) && !t.After(fim)
}

// acumularSaida records the contract as a disbursement when its origination
// date falls in range. The amount prefers what the origination log entry
// says over the stored balance, which mutates over the contract's life.
func (e *Engine) acumularSaida(rel *Report, cli *models.Cliente, con *models.Contrato, inicio, fim time.Time) {
	dataCon, err := dates.Parse(con.DataInicio)
	if err != nil {
		var ok bool
		dataCon, ok = dates.Find(con.MovimentoMaisAntigo())
		if !ok {
			return
		}
	}
	if !dentro(dataCon, inicio, fim) {
		return
	}

	valor := capitalOriginal(con)
	if valor.LessThanOrEqual(decimal.Zero) {
		valor = con.Capital
	}
	if valor.LessThanOrEqual(decimal.Zero) {
		return
	}

	rel.TotalInvestido = rel.TotalInvestido.Add(valor)
	rel.Saidas = append(rel.Saidas, Saida{
		Data:       dates.Format(dataCon),
		Cliente:    cli.Nome,
		ContratoID: con.ID,
		Valor:      valor,
	})
}

// acumularEntradas classifies and extracts every in-range receipt entry of
// one contract's movement log.
func (e *Engine) acumularEntradas(rel *Report, cli *models.Cliente, con *models.Contrato, inicio, fim time.Time) {
	for _, mov := range con.Movimentacoes {
		dataMov, ok := dates.Find(mov)
		if !ok || !dentro(dataMov, inicio, fim) {
			continue
		}

		baixa := strings.ToLower(mov)
		// Origination and restructuring move no cash on their own day.
		if strings.Contains(baixa, "iniciado") || strings.Contains(baixa, "acordo") {
			continue
		}

		total, ok := extrairTotal(mov)
		if !ok {
			aviso := fmt.Sprintf("entrada sem valor reconhecível (cliente %s, contrato %d): %s", cli.Nome, con.ID, mov)
			rel.Avisos = append(rel.Avisos, aviso)
			e.logger.Warn("entrada excluída do relatório",
				zap.String("cliente", cli.Nome),
				zap.Int64("contrato", con.ID),
				zap.String("movimentacao", mov))
			continue
		}

		entrada := e.classificar(con, mov, baixa, total)
		entrada.Data = dates.Format(dataMov)
		entrada.Cliente = cli.Nome
		entrada.ContratoID = con.ID

		rel.TotalRecebido = rel.TotalRecebido.Add(entrada.Total)
		rel.TotalLucro = rel.TotalLucro.Add(entrada.Lucro)
		rel.TotalMultas = rel.TotalMultas.Add(entrada.Multa)
		rel.Entradas = append(rel.Entradas, entrada)

		if entrada.Tipo == TipoQuitacao {
			rel.Quitados = append(rel.Quitados, Quitado{
				Data:       entrada.Data,
				Cliente:    cli.Nome,
				ContratoID: con.ID,
				Investido:  capitalOriginal(con),
				ValorFinal: entrada.Total,
			})
		}
	}
}

// classificar splits one receipt into capital, profit and penalty. Tagged
// entries are read directly; untagged ones are estimated from the contract's
// stored plan figures and rate.
func (e *Engine) classificar(con *models.Contrato, mov, baixa string, total decimal.Decimal) Entrada {
	entrada := Entrada{Tipo: TipoOutros, Total: total}
	switch {
	case strings.Contains(baixa, "quitado"):
		entrada.Tipo = TipoQuitacao
	case strings.Contains(baixa, "parcela"):
		entrada.Tipo = TipoParcela
	case strings.Contains(baixa, "renova"):
		entrada.Tipo = TipoRenovacao
	}

	lucro := valorMarcado(mov, "Lucro")
	multa := valorMarcado(mov, "Multa")
	capital := valorMarcado(mov, "Capital")

	if lucro.GreaterThan(decimal.Zero) || capital.GreaterThan(decimal.Zero) {
		// Current tagged generation: the breakdown is spelled out.
		soma := lucro.Add(multa).Add(capital)
		if entrada.Total.LessThan(soma) {
			entrada.Total = soma
		}
	} else {
		// Legacy generation: back-derive the breakdown.
		switch entrada.Tipo {
		case TipoQuitacao:
			capital, lucro, multa = e.estimarQuitacao(con, total, multa)
		case TipoParcela:
			lucro = con.LucroJurosPorParcela
			capital = total.Sub(multa).Sub(lucro)
		case TipoRenovacao:
			lucro = total.Sub(multa)
			capital = decimal.Zero
		default:
			capital = total.Sub(multa)
		}
	}

	if lucro.IsNegative() {
		lucro = decimal.Zero
	}
	if capital.IsNegative() {
		capital = decimal.Zero
	}
	entrada.Capital = capital
	entrada.Lucro = lucro
	entrada.Multa = multa
	return entrada
}

// estimarQuitacao attributes a legacy untagged settlement: capital first,
// the rest as profit. When no penalty was logged but the amount received
// exceeds principal plus the rate-implied interest by more than the
// tolerance, the excess is attributed to penalties rather than inflating
// profit.
func (e *Engine) estimarQuitacao(con *models.Contrato, total, multa decimal.Decimal) (capital, lucro, multaOut decimal.Decimal) {
	capitalRef := con.Capital
	if capitalRef.LessThanOrEqual(decimal.Zero) {
		capitalRef = capitalOriginal(con)
	}

	capital = capitalRef
	multaOut = multa
	if multa.IsZero() && con.Taxa.GreaterThan(decimal.Zero) {
		jurosEsperados := capitalRef.Mul(con.Taxa).Div(cem)
		pagoExtra := total.Sub(capitalRef)
		if pagoExtra.GreaterThan(jurosEsperados.Add(toleranciaJuros)) {
			lucro = jurosEsperados
			multaOut = pagoExtra.Sub(jurosEsperados)
		} else {
			lucro = total.Sub(capitalRef)
		}
	} else {
		lucro = total.Sub(capitalRef).Sub(multa)
	}
	if capital.GreaterThan(total) {
		capital = total.Sub(multaOut)
	}
	return capital, lucro, multaOut
}
