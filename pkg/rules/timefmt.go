package rules

import (
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"gitlab.com/tozd/go/errors"
)

// strftime conversion characters we render. Anything else would be copied
// through literally into a path, which is never what the user meant.
const strftimeSpecifiers = "aAbBcCdDeFgGhHIjklLmMnNpPQrRsStTuUvVwWxXyYzZf+%"

// DateTimeFormat is a validated strftime format string.
type DateTimeFormat struct {
	layout string
}

// ParseDateTimeFormat validates layout. The "-" flag (no padding) is accepted
// on any specifier, ":" only on %z.
func ParseDateTimeFormat(layout string) (DateTimeFormat, error) {
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' {
			continue
		}
		i++
		if i >= len(layout) {
			return DateTimeFormat{}, errors.Errorf("invalid date/time format %q: dangling %%", layout)
		}
		flag := byte(0)
		if layout[i] == '-' || layout[i] == ':' {
			flag = layout[i]
			i++
			if i >= len(layout) {
				return DateTimeFormat{}, errors.Errorf("invalid date/time format %q: dangling %%%c", layout, flag)
			}
		}
		spec := layout[i]
		if !strings.ContainsRune(strftimeSpecifiers, rune(spec)) {
			return DateTimeFormat{}, errors.Errorf("invalid date/time format %q: unknown specifier %%%c", layout, spec)
		}
		if flag == ':' && spec != 'z' {
			return DateTimeFormat{}, errors.Errorf("invalid date/time format %q: ':' is only valid in %%:z", layout)
		}
	}
	return DateTimeFormat{layout: layout}, nil
}

// Format renders t in local time.
func (f DateTimeFormat) Format(t time.Time) string {
	return strftime.Format(f.layout, t.In(time.Local))
}

func (f DateTimeFormat) String() string { return f.layout }
