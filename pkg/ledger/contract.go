package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vertoapp/verto/pkg/dates"
	"github.com/vertoapp/verto/pkg/models"
	"github.com/vertoapp/verto/pkg/money"
)

var (
	cem = decimal.NewFromInt(100)

	// saldoQuitacao is the residual below which an installment plan is
	// considered paid off even before the last installment.
	saldoQuitacao = decimal.NewFromFloat(0.1)
)

// NovoContrato carries the creation request for a loan.
type NovoContrato struct {
	Capital          decimal.Decimal   `json:"capital"`
	Taxa             decimal.Decimal   `json:"taxa"`
	Frequencia       models.Frequencia `json:"frequencia"`
	DataInicio       string            `json:"dataInicio"`
	Garantia         string            `json:"garantia"`
	ValorMultaDiaria decimal.Decimal   `json:"valorMultaDiaria"`
	DiasDiario       int               `json:"diasDiario"`
}

// Acordo carries a restructuring request: the renegotiated balance becomes a
// new fixed-installment plan.
type Acordo struct {
	ValorTotal   decimal.Decimal `json:"valorTotal"`
	QtdParcelas  int             `json:"qtdParcelas"`
	DataPrimeira string          `json:"dataPrimeira"`
	MultaDiaria  decimal.Decimal `json:"multaDiaria"`
}

// criarContrato builds a new contract from a creation request. Monthly loans
// start ATIVO; weekly and daily loans start as installment plans with the
// interest locked in per installment at creation time.
func criarContrato(req NovoContrato, id int64, agora time.Time) (*models.Contrato, error) {
	if req.Capital.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: capital deve ser positivo", ErrValidation)
	}
	if req.Taxa.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: taxa deve ser positiva", ErrValidation)
	}
	if req.Frequencia == "" {
		req.Frequencia = models.FrequenciaMensal
	}
	if req.Frequencia == models.FrequenciaDiario && req.DiasDiario < 1 {
		return nil, fmt.Errorf("%w: diário exige quantidade de dias", ErrValidation)
	}
	if req.DataInicio == "" {
		req.DataInicio = dates.Format(agora)
	}
	inicio, err := dates.Parse(req.DataInicio)
	if err != nil {
		return nil, err
	}

	con := &models.Contrato{
		ID:               id,
		Capital:          req.Capital,
		Taxa:             req.Taxa,
		Frequencia:       req.Frequencia,
		DiasDiario:       req.DiasDiario,
		DataInicio:       dates.Format(inicio),
		Garantia:         req.Garantia,
		ValorMultaDiaria: req.ValorMultaDiaria,
	}

	switch req.Frequencia {
	case models.FrequenciaSemanal:
		iniciarParcelado(con, 4)
		con.RegistrarMovimento(fmt.Sprintf("%s: Semanal Iniciado -> 4x de R$ %s",
			con.DataInicio, money.Format(con.ValorParcela)))
	case models.FrequenciaDiario:
		iniciarParcelado(con, req.DiasDiario)
		con.RegistrarMovimento(fmt.Sprintf("%s: Diário Iniciado -> %d dias de R$ %s",
			con.DataInicio, req.DiasDiario, money.Format(con.ValorParcela)))
	default:
		con.Frequencia = models.FrequenciaMensal
		con.Status = models.StatusAtivo
		con.RegistrarMovimento(fmt.Sprintf("%s: Iniciado Capital R$ %s",
			con.DataInicio, money.Format(con.Capital)))
	}
	con.ProximoVencimento = dates.Format(dates.AddPeriod(inicio, con.Frequencia))

	return con, nil
}

// iniciarParcelado splits capital plus the full period interest into a fixed
// number of installments, locking in the profit component of each.
func iniciarParcelado(con *models.Contrato, parcelas int) {
	qtd := decimal.NewFromInt(int64(parcelas))
	jurosTotal := con.Capital.Mul(con.Taxa).Div(cem)
	montante := con.Capital.Add(jurosTotal)

	con.Status = models.StatusParcelado
	con.TotalParcelas = parcelas
	con.ParcelasPagas = 0
	con.ValorParcela = montante.Div(qtd)
	con.LucroJurosPorParcela = jurosTotal.Div(qtd)
}

// multaPorAtraso applies the shared late-fee rule: whole days past the due
// date times the configured daily penalty. Zero when the penalty is disabled
// or the payment is on time.
func multaPorAtraso(con *models.Contrato, pagamento time.Time) (decimal.Decimal, int, error) {
	if con.ValorMultaDiaria.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, 0, nil
	}
	venc, err := dates.Parse(con.ProximoVencimento)
	if err != nil {
		return decimal.Zero, 0, err
	}
	atraso := dates.DaysLate(pagamento, venc)
	if atraso <= 0 {
		return decimal.Zero, 0, nil
	}
	return con.ValorMultaDiaria.Mul(decimal.NewFromInt(int64(atraso))), atraso, nil
}

// renovar rolls the loan over: only the period interest plus any late fee is
// collected, the principal stays untouched and the due date moves one period
// past the payment date.
func renovar(con *models.Contrato, dataPagamento string) error {
	if con.Terminal() {
		return ErrTerminal
	}
	pagamento, err := dates.Parse(dataPagamento)
	if err != nil {
		return err
	}
	multa, _, err := multaPorAtraso(con, pagamento)
	if err != nil {
		return err
	}

	juros := con.Capital.Mul(con.Taxa).Div(cem)
	recebido := juros.Add(multa)

	con.LucroTotal = con.LucroTotal.Add(recebido)
	con.MultasPagas = con.MultasPagas.Add(multa)
	con.ProximoVencimento = dates.Format(dates.AddPeriod(pagamento, con.Frequencia))
	con.RegistrarMovimento(fmt.Sprintf("%s: RENOVAÇÃO Recebido R$ %s (Lucro R$ %s | Multa R$ %s)",
		dates.Format(pagamento), money.Format(recebido), money.Format(juros), money.Format(multa)))
	return nil
}

// quitar settles the contract in full: principal plus period interest plus
// any late fee. Terminal; the contract accepts nothing afterwards.
func quitar(con *models.Contrato, dataPagamento string) error {
	if con.Terminal() {
		return ErrTerminal
	}
	pagamento, err := dates.Parse(dataPagamento)
	if err != nil {
		return err
	}
	multa, _, err := multaPorAtraso(con, pagamento)
	if err != nil {
		return err
	}

	juros := con.Capital.Mul(con.Taxa).Div(cem)
	total := con.Capital.Add(juros).Add(multa)

	con.RegistrarMovimento(fmt.Sprintf("%s: QUITADO Recebido R$ %s (Capital R$ %s | Lucro R$ %s | Multa R$ %s)",
		dates.Format(pagamento), money.Format(total), money.Format(con.Capital),
		money.Format(juros), money.Format(multa)))
	con.LucroTotal = con.LucroTotal.Add(juros).Add(multa)
	con.MultasPagas = con.MultasPagas.Add(multa)
	con.Capital = decimal.Zero
	con.Status = models.StatusQuitado
	return nil
}

// acordo restructures any non-terminal contract into a fresh installment
// plan over the renegotiated total. Profit per installment is only whatever
// the new total exceeds the current balance by.
func acordo(con *models.Contrato, req Acordo) error {
	if con.Terminal() {
		return ErrTerminal
	}
	if req.ValorTotal.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: valor do acordo deve ser positivo", ErrValidation)
	}
	if req.QtdParcelas < 1 {
		return fmt.Errorf("%w: acordo exige ao menos uma parcela", ErrValidation)
	}
	primeira, err := dates.Parse(req.DataPrimeira)
	if err != nil {
		return err
	}

	qtd := decimal.NewFromInt(int64(req.QtdParcelas))
	lucroDoAcordo := req.ValorTotal.Sub(con.Capital)
	lucroPorParcela := decimal.Zero
	if lucroDoAcordo.GreaterThan(decimal.Zero) {
		lucroPorParcela = lucroDoAcordo.Div(qtd)
	}

	con.Status = models.StatusParcelado
	con.Capital = req.ValorTotal
	con.TotalParcelas = req.QtdParcelas
	con.ParcelasPagas = 0
	con.ValorParcela = req.ValorTotal.Div(qtd)
	con.LucroJurosPorParcela = lucroPorParcela
	con.ValorMultaDiaria = req.MultaDiaria
	con.ProximoVencimento = dates.Format(primeira)
	con.RegistrarMovimento(fmt.Sprintf("%s: ACORDO -> R$ %s (%dx)",
		dates.Format(primeira), money.Format(req.ValorTotal), req.QtdParcelas))
	return nil
}

// pagarParcela records one installment payment: the locked-in interest goes
// to profit, the remainder amortizes the balance, and a late fee may apply.
// The plan closes on the final installment or when the residual balance is
// negligible.
func pagarParcela(con *models.Contrato, dataPagamento string) error {
	if con.Terminal() {
		return ErrTerminal
	}
	if con.Status != models.StatusParcelado {
		return fmt.Errorf("%w: contrato não está parcelado", ErrValidation)
	}
	pagamento, err := dates.Parse(dataPagamento)
	if err != nil {
		return err
	}
	venc, err := dates.Parse(con.ProximoVencimento)
	if err != nil {
		return err
	}
	multa, _, err := multaPorAtraso(con, pagamento)
	if err != nil {
		return err
	}

	amortizacao := con.ValorParcela.Sub(con.LucroJurosPorParcela)
	novoSaldo := con.Capital.Sub(amortizacao)
	if novoSaldo.IsNegative() {
		novoSaldo = decimal.Zero
	}

	con.ParcelasPagas++
	con.LucroTotal = con.LucroTotal.Add(con.LucroJurosPorParcela).Add(multa)
	con.MultasPagas = con.MultasPagas.Add(multa)

	msg := fmt.Sprintf("%s: Parcela %d/%d (R$ %s)",
		dates.Format(pagamento), con.ParcelasPagas, con.TotalParcelas, money.Format(con.ValorParcela))
	if multa.GreaterThan(decimal.Zero) {
		msg += fmt.Sprintf(" + Multa R$ %s", money.Format(multa))
	}
	con.RegistrarMovimento(msg)

	if con.ParcelasPagas >= con.TotalParcelas || novoSaldo.LessThanOrEqual(saldoQuitacao) {
		con.Capital = decimal.Zero
		con.Status = models.StatusQuitado
		con.RegistrarMovimento(fmt.Sprintf("%s: CONTRATO FINALIZADO!", dates.Format(pagamento)))
		return nil
	}

	con.Capital = novoSaldo
	con.ProximoVencimento = dates.Format(dates.AddPeriod(venc, con.Frequencia))
	return nil
}
