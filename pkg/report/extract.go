package report

import (
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/vertoapp/verto/pkg/models"
	"github.com/vertoapp/verto/pkg/money"
)

// The movement log went through more than one phrasing generation, so the
// amount extraction is layered: explicit markers first, generic fallbacks
// after. All patterns tolerate both "1234.56" and "1.234,56".

var (
	reRecebido      = regexp.MustCompile(`(?i)Recebido:?\s*R\$\s?([\d.,]+)`)
	reParcelaMulta  = regexp.MustCompile(`(?i)Parcela.*\(R\$\s?([\d.,]+)\).*\+ Multa R\$\s?([\d.,]+)`)
	reQualquerValor = regexp.MustCompile(`(?i)R\$\s?([\d.,]+)`)
	reCapitalLog    = regexp.MustCompile(`(?i)Capital R\$\s?([\d.,]+)`)
	reParcelasLog   = regexp.MustCompile(`(?i)(\d+)x de R\$\s?([\d.,]+)`)
	reDiasLog       = regexp.MustCompile(`(?i)(\d+) dias de R\$\s?([\d.,]+)`)

	reTagged = map[string]*regexp.Regexp{
		"Capital": regexp.MustCompile(`(?i)Capital[^0-9-]*([0-9.,]+)`),
		"Lucro":   regexp.MustCompile(`(?i)Lucro[^0-9-]*([0-9.,]+)`),
		"Multa":   regexp.MustCompile(`(?i)Multa[^0-9-]*([0-9.,]+)`),
	}

	um  = decimal.NewFromInt(1)
	cem = decimal.NewFromInt(100)
)

// valorMarcado extracts an explicitly tagged sub-amount ("Capital", "Lucro"
// or "Multa") from a log entry, zero when the tag is absent or unreadable.
func valorMarcado(texto, chave string) decimal.Decimal {
	m := reTagged[chave].FindStringSubmatch(texto)
	if m == nil {
		return decimal.Zero
	}
	v, err := money.Parse(m[1])
	if err != nil {
		return decimal.Zero
	}
	return v
}

// extrairTotal finds the total monetary amount of a log entry: an explicit
// "Recebido R$" total, then the installment-plus-penalty combined form, then
// the first bare amount. ok is false when nothing numeric is present.
func extrairTotal(texto string) (decimal.Decimal, bool) {
	if m := reRecebido.FindStringSubmatch(texto); m != nil {
		if v, err := money.Parse(m[1]); err == nil {
			return v, true
		}
	}
	if m := reParcelaMulta.FindStringSubmatch(texto); m != nil {
		parcela, err1 := money.Parse(m[1])
		multa, err2 := money.Parse(m[2])
		if err1 == nil && err2 == nil {
			return parcela.Add(multa), true
		}
	}
	if m := reQualquerValor.FindStringSubmatch(texto); m != nil {
		if v, err := money.Parse(m[1]); err == nil {
			return v, true
		}
	}
	return decimal.Zero, false
}

// desagravar strips the period interest back out of a gross plan total.
func desagravar(total, taxa decimal.Decimal) decimal.Decimal {
	if taxa.GreaterThan(decimal.Zero) {
		return total.Div(um.Add(taxa.Div(cem)))
	}
	return total
}

// capitalOriginal reconstructs the principal a contract was opened with,
// preferring the origination log entry: an explicit "Capital R$" marker,
// then the "Nx de R$" / "N dias de R$" plan summaries de-grossed by the
// rate, then any bare amount. Falls back to plan math, then to the stored
// balance.
func capitalOriginal(con *models.Contrato) decimal.Decimal {
	if criacao := con.MovimentoMaisAntigo(); criacao != "" {
		if m := reCapitalLog.FindStringSubmatch(criacao); m != nil {
			if v, err := money.Parse(m[1]); err == nil {
				return v
			}
		}

		m := reParcelasLog.FindStringSubmatch(criacao)
		if m == nil {
			m = reDiasLog.FindStringSubmatch(criacao)
		}
		if m != nil {
			qtd, errQ := decimal.NewFromString(m[1])
			parcela, errP := money.Parse(m[2])
			if errQ == nil && errP == nil {
				return desagravar(qtd.Mul(parcela), con.Taxa)
			}
		}

		if m := reQualquerValor.FindStringSubmatch(criacao); m != nil {
			if v, err := money.Parse(m[1]); err == nil {
				return v
			}
		}
	}

	if con.ValorParcela.GreaterThan(decimal.Zero) && con.TotalParcelas > 0 {
		total := con.ValorParcela.Mul(decimal.NewFromInt(int64(con.TotalParcelas)))
		return desagravar(total, con.Taxa)
	}
	return con.Capital
}
