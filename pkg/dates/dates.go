// Package dates handles the DD/MM/YYYY dates the ledger stores and logs.
package dates

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/vertoapp/verto/pkg/models"
)

// ErrInvalid marks a date string the parser cannot interpret.
var ErrInvalid = errors.New("data inválida")

// Layout is the display format for every stored and logged date.
const Layout = "02/01/2006"

var brDate = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})`)

// Parse reads a DD/MM/YYYY date (also accepting "-" separators and one-digit
// day or month), falling back to RFC3339/ISO for dates written by older
// exports. The result is normalized to midnight local time.
func Parse(s string) (time.Time, error) {
	if m := brDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
		// time.Date normalizes overflow (31/04 -> 01/05); reject it instead.
		if t.Day() != day || int(t.Month()) != month {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		return t, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalid, s)
}

// Find extracts the first embedded DD/MM/YYYY date from free text, such as a
// movement-log entry.
func Find(text string) (time.Time, bool) {
	m := brDate.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	t, err := Parse(m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Format renders a time as DD/MM/YYYY.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// DaysLate is the whole-day count a payment landed past its due date, rounded
// up. Zero or negative means on time.
func DaysLate(payment, due time.Time) int {
	diff := payment.Sub(due).Hours() / 24
	return int(math.Ceil(diff))
}

// AddPeriod advances a date by one scheduling period: seven days for weekly
// plans, one day for daily plans, one calendar month otherwise.
func AddPeriod(t time.Time, freq models.Frequencia) time.Time {
	switch freq {
	case models.FrequenciaSemanal:
		return t.AddDate(0, 0, 7)
	case models.FrequenciaDiario:
		return t.AddDate(0, 0, 1)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// EndOfDay extends a date to 23:59:59 so closed ranges include the whole
// final day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
