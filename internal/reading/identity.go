package reading

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out time-derived article IDs. IDs are unix
// milliseconds, bumped by one when the clock has not moved since the
// previous call so that two articles never share an ID.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
}

func (g *IDGenerator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := now.UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}

var monthNames = map[Language][12]string{
	French:   {"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
	English:  {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
	Spanish:  {"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
	German:   {"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli", "August", "September", "Oktober", "November", "Dezember"},
	Italian:  {"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno", "luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre"},
	Japanese: {"1月", "2月", "3月", "4月", "5月", "6月", "7月", "8月", "9月", "10月", "11月", "12月"},
}

// FormatDate renders t the way a reader of the target language expects.
func FormatDate(t time.Time, l Language) string {
	names, ok := monthNames[l]
	if !ok {
		names = monthNames[French]
		l = French
	}
	month := names[t.Month()-1]
	switch l {
	case English:
		return fmt.Sprintf("%s %d, %d", month, t.Day(), t.Year())
	case Spanish:
		return fmt.Sprintf("%d de %s de %d", t.Day(), month, t.Year())
	case German:
		return fmt.Sprintf("%d. %s %d", t.Day(), month, t.Year())
	case Japanese:
		return fmt.Sprintf("%d年%s%d日", t.Year(), month, t.Day())
	default:
		return fmt.Sprintf("%d %s %d", t.Day(), month, t.Year())
	}
}
