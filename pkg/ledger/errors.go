package ledger

import (
	"errors"

	"github.com/vertoapp/verto/pkg/dates"
)

var (
	// ErrValidation marks a missing or non-positive required field; the
	// operation is aborted with no state change.
	ErrValidation = errors.New("dados inválidos")

	// ErrDate marks an unparseable date string in any date-bearing field.
	ErrDate = dates.ErrInvalid

	// ErrNotFound marks a lookup by client name or contract id that matched
	// nothing.
	ErrNotFound = errors.New("não encontrado")

	// ErrTerminal marks an operation attempted on a settled contract.
	ErrTerminal = errors.New("contrato quitado não aceita operações")

	// ErrPersistence marks a store write failure; in-memory state has been
	// rolled back and the caller must re-issue the action.
	ErrPersistence = errors.New("falha ao salvar")
)
