package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/claimrecon/internal/model"
)

// dateLayouts lists accepted free-form date layouts, tried in order.
// Numeric slash dates are read month-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"20060102",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"Mon, Jan 2, 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var ordinalRe = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// ParseDate converts a free-form date into a calendar date.
func ParseDate(field string, v any) (model.Date, bool, error) {
	switch t := v.(type) {
	case nil:
		return model.Date{}, false, nil
	case time.Time:
		if t.IsZero() {
			return model.Date{}, false, nil
		}
		return model.DateOf(t), true, nil
	case model.Date:
		return t, !t.IsZero(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return model.Date{}, false, nil
		}
		s = ordinalRe.ReplaceAllString(s, "$1")
		s = strings.Join(strings.Fields(s), " ")
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return model.DateOf(parsed), true, nil
			}
		}
		return model.Date{}, false, &Error{Kind: KindInvalidDate, Field: field, Value: t, Reason: "unrecognized date format"}
	default:
		return model.Date{}, false, &Error{Kind: KindInvalidDate, Field: field, Reason: "unsupported date value"}
	}
}
