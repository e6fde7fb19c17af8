package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/peptaide/peptaide/internal/csvio"
	"github.com/peptaide/peptaide/internal/domain/cycles"
	"github.com/peptaide/peptaide/internal/domain/dose"
)

// parsedEvent is one usable row of the simple events CSV after validation
// and dose canonicalization.
type parsedEvent struct {
	Row              int // 1-based CSV line number
	Ts               time.Time
	SubstanceKey     string
	SubstanceDisplay string
	RouteKey         string
	RouteName        string
	FormulationKey   string
	FormulationName  string
	InputText        string
	InputKind        dose.Kind
	InputValue       *float64
	InputUnit        *string
	DoseMassMg       *float64
	DoseVolumeMl     *float64
	Notes            *string
	Tags             []string
}

// parseOutcome is everything the parse and plan phases learn from the CSV
// before any persistence happens.
type parseOutcome struct {
	OK             bool
	InputRows      int
	Events         []parsedEvent
	InferredCycles []cycles.Inferred
	EventCycleKey  map[int]string // row number -> cycle key
	Warnings       []string
	Errors         []string
	RowErrors      []RowError
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeHeaderCell canonicalizes a header for alias matching:
// "Dose (mg)" -> "dose_mg".
func normalizeHeaderCell(s string) string {
	out := nonAlnumRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	return strings.Trim(out, "_")
}

// normalizeKey canonicalizes a free-text natural key: trim, lowercase,
// collapse whitespace.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// slugifyCanonicalName turns a display name into a canonical substance slug.
func slugifyCanonicalName(s string) string {
	return normalizeHeaderCell(s)
}

// headerIndex holds the column position of each recognized field, or -1.
type headerIndex struct {
	ts, date, tm                  int
	substance, route, formulation int
	inputText                     int
	doseMg, doseMl, doseIU        int
	concentration                 int
	notes, tags                   int
}

var headerAliases = []struct {
	assign  func(*headerIndex) *int
	aliases []string
}{
	{func(h *headerIndex) *int { return &h.ts }, []string{"ts", "timestamp", "datetime", "date_time", "date_time_utc", "admin_ts"}},
	{func(h *headerIndex) *int { return &h.date }, []string{"date", "day"}},
	{func(h *headerIndex) *int { return &h.tm }, []string{"time"}},
	{func(h *headerIndex) *int { return &h.substance }, []string{"substance", "compound", "drug", "peptide", "medication"}},
	{func(h *headerIndex) *int { return &h.route }, []string{"route", "roa"}},
	{func(h *headerIndex) *int { return &h.formulation }, []string{"formulation", "prep", "mixture"}},
	{func(h *headerIndex) *int { return &h.inputText }, []string{"input_text", "dose", "dose_text", "dose_str"}},
	{func(h *headerIndex) *int { return &h.doseMg }, []string{"dose_mg", "mg", "dose_mass_mg"}},
	{func(h *headerIndex) *int { return &h.doseMl }, []string{"dose_ml", "ml", "dose_volume_ml"}},
	{func(h *headerIndex) *int { return &h.doseIU }, []string{"dose_iu", "iu"}},
	{func(h *headerIndex) *int { return &h.concentration }, []string{"concentration_mg_per_ml", "mg_per_ml", "mg_ml", "mgperml", "conc_mg_per_ml", "conc_mg_ml"}},
	{func(h *headerIndex) *int { return &h.notes }, []string{"notes", "note", "comment", "comments", "memo"}},
	{func(h *headerIndex) *int { return &h.tags }, []string{"tags", "tag"}},
}

func buildHeaderIndex(header []string, warnings *[]string) headerIndex {
	h := headerIndex{ts: -1, date: -1, tm: -1, substance: -1, route: -1, formulation: -1,
		inputText: -1, doseMg: -1, doseMl: -1, doseIU: -1, concentration: -1, notes: -1, tags: -1}

	normalized := make([]string, len(header))
	for i, cell := range header {
		normalized[i] = normalizeHeaderCell(cell)
	}

	used := map[int]bool{}
	for _, field := range headerAliases {
		slot := field.assign(&h)
		for i, norm := range normalized {
			if *slot != -1 {
				break
			}
			for _, alias := range field.aliases {
				if norm == alias {
					*slot = i
					if used[i] {
						*warnings = append(*warnings, fmt.Sprintf("Header column %q matched multiple fields.", header[i]))
					}
					used[i] = true
					break
				}
			}
		}
	}
	return h
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseNumberCell(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &n
}

var tagSplitRe = regexp.MustCompile(`[;,]`)

func parseTagList(raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range tagSplitRe.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usSlashRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
	usDashRe   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2}|\d{4})$`)
	timeRe     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	tzSuffixRe = regexp.MustCompile(`([zZ]|[+-]\d{2}:?\d{2})$`)
)

type dateParts struct{ year, month, day int }
type timeParts struct{ hour, minute, second int }

// noon is the default time of day for date-only rows, chosen so the event
// lands on the intended calendar day in any plausible timezone.
var noon = timeParts{hour: 12}

func parseDateCell(raw string) (dateParts, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return dateParts{}, false
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return validDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	// US month-first forms, as spreadsheets export them.
	for _, re := range []*regexp.Regexp{usSlashRe, usDashRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			year := atoi(m[3])
			if year < 100 {
				if year >= 70 {
					year += 1900
				} else {
					year += 2000
				}
			}
			return validDate(year, atoi(m[1]), atoi(m[2]))
		}
	}
	return dateParts{}, false
}

func validDate(year, month, day int) (dateParts, bool) {
	if year < 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return dateParts{}, false
	}
	return dateParts{year, month, day}, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseTimeCell(raw string) (timeParts, bool) {
	s := strings.TrimSpace(raw)
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return timeParts{}, false
	}
	hour, minute := atoi(m[1]), atoi(m[2])
	second := 0
	if m[3] != "" {
		second = atoi(m[3])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return timeParts{}, false
	}
	return timeParts{hour, minute, second}, true
}

// explicitTimestampLayouts cover ISO-ish timestamps carrying their own
// offset, with T or space separators and optional seconds.
var explicitTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04Z0700",
}

// parseTimestamp resolves the ts / date+time columns to a UTC instant.
// Naive values are wall-clock times in loc; a missing time of day means
// noon.
func parseTimestamp(tsRaw, dateRaw, timeRaw string, loc *time.Location) (time.Time, bool) {
	ts := strings.TrimSpace(tsRaw)
	if ts != "" {
		if tzSuffixRe.MatchString(ts) {
			for _, layout := range explicitTimestampLayouts {
				if t, err := time.Parse(layout, ts); err == nil {
					return t.UTC(), true
				}
			}
			return time.Time{}, false
		}

		normalized := strings.ReplaceAll(ts, "T", " ")
		fields := strings.Fields(normalized)
		if len(fields) == 0 {
			return time.Time{}, false
		}
		date, ok := parseDateCell(fields[0])
		if !ok {
			return time.Time{}, false
		}
		tod := noon
		if len(fields) > 1 {
			if parsed, ok := parseTimeCell(fields[1]); ok {
				tod = parsed
			}
		}
		return makeInstant(date, tod, loc), true
	}

	date, ok := parseDateCell(dateRaw)
	if !ok {
		return time.Time{}, false
	}
	tod := noon
	if parsed, ok := parseTimeCell(timeRaw); ok {
		tod = parsed
	}
	return makeInstant(date, tod, loc), true
}

func makeInstant(d dateParts, t timeParts, loc *time.Location) time.Time {
	return time.Date(d.year, time.Month(d.month), d.day, t.hour, t.minute, t.second, 0, loc).UTC()
}

// defaultFormulationName names an implicit formulation after its substance
// and route.
func defaultFormulationName(substanceDisplay, routeName string) string {
	s := strings.TrimSpace(substanceDisplay)
	r := strings.TrimSpace(routeName)
	if r == "" || strings.EqualFold(r, "Unspecified") {
		return s
	}
	return s + " - " + r
}

// parseEvents runs the parse and validate phases on the simple events CSV.
// It is pure: all persistence decisions happen later against its outcome.
func parseEvents(csvText string, loc *time.Location, gapDays float64, inferCycles bool, now time.Time) parseOutcome {
	out := parseOutcome{
		Warnings:      []string{},
		Errors:        []string{},
		RowErrors:     []RowError{},
		EventCycleKey: map[int]string{},
	}

	doc, err := csvio.Decode(csvText)
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
		return out
	}
	out.InputRows = len(doc.Rows)

	h := buildHeaderIndex(doc.Header, &out.Warnings)
	hasDose := h.inputText >= 0 || h.doseMg >= 0 || h.doseMl >= 0 || h.doseIU >= 0

	if h.substance < 0 {
		out.Errors = append(out.Errors, `Missing required column: substance (e.g. "substance").`)
	}
	if !hasDose {
		out.Errors = append(out.Errors, `Missing required dose column: provide "dose" (input_text) or one of dose_mg/dose_ml/dose_iu.`)
	}
	if h.ts < 0 && h.date < 0 {
		out.Errors = append(out.Errors, `Missing required timestamp column: provide "ts" (timestamp/datetime) or a "date" column (optionally with "time").`)
	}

	for i, row := range doc.Rows {
		rowNum := i + 2

		substanceDisplay := strings.TrimSpace(cellAt(row, h.substance))
		if substanceDisplay == "" {
			out.RowErrors = append(out.RowErrors, RowError{RowIndex: rowNum, Message: "Missing substance."})
			continue
		}

		routeName := strings.TrimSpace(cellAt(row, h.route))
		if routeName == "" {
			routeName = "Unspecified"
		}

		ts, ok := parseTimestamp(cellAt(row, h.ts), cellAt(row, h.date), cellAt(row, h.tm), loc)
		if !ok {
			out.RowErrors = append(out.RowErrors, RowError{RowIndex: rowNum, Message: "Invalid timestamp/date."})
			continue
		}

		explicitMg := parseNumberCell(cellAt(row, h.doseMg))
		explicitMl := parseNumberCell(cellAt(row, h.doseMl))
		explicitIU := parseNumberCell(cellAt(row, h.doseIU))

		inputText := strings.TrimSpace(cellAt(row, h.inputText))
		if inputText == "" {
			switch {
			case explicitMg != nil:
				inputText = formatFloat(*explicitMg) + " mg"
			case explicitMl != nil:
				inputText = formatFloat(*explicitMl) + " mL"
			case explicitIU != nil:
				inputText = formatFloat(*explicitIU) + " IU"
			}
		}
		if inputText == "" {
			out.RowErrors = append(out.RowErrors, RowError{RowIndex: rowNum, Message: "Missing dose. Provide dose text or dose_mg/dose_ml/dose_iu."})
			continue
		}

		var concentration *float64
		if n := parseNumberCell(cellAt(row, h.concentration)); n != nil && *n > 0 {
			concentration = n
		}

		ev := parsedEvent{
			Row:              rowNum,
			Ts:               ts,
			SubstanceDisplay: substanceDisplay,
			RouteName:        routeName,
			InputText:        inputText,
			InputKind:        dose.KindOther,
		}

		if q, err := dose.ParseQuantity(inputText); err == nil {
			ev.InputKind = q.Kind
			ev.InputValue = &q.Value
			ev.InputUnit = &q.Unit

			var vial *dose.Vial
			if concentration != nil {
				vial = &dose.Vial{ConcentrationMgPerMl: concentration}
			}
			if computed, err := dose.Compute(q.Kind, q.Value, q.Unit, vial, nil); err == nil {
				ev.DoseMassMg = computed.MassMg
				ev.DoseVolumeMl = computed.VolumeMl
			}
		} else {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Row %d: could not parse dose text %q. It will be imported as input_kind=other.", rowNum, inputText))
		}

		// Explicit mg/ml columns override parsed doses; backfill the other
		// side through the concentration when possible.
		if explicitMg != nil {
			ev.DoseMassMg = explicitMg
		}
		if explicitMl != nil {
			ev.DoseVolumeMl = explicitMl
		}
		if ev.DoseMassMg == nil && ev.DoseVolumeMl != nil && concentration != nil {
			mg := *ev.DoseVolumeMl * *concentration
			ev.DoseMassMg = &mg
		}
		if ev.DoseVolumeMl == nil && ev.DoseMassMg != nil && concentration != nil && *concentration > 0 {
			ml := *ev.DoseMassMg / *concentration
			ev.DoseVolumeMl = &ml
		}

		formulationName := strings.TrimSpace(cellAt(row, h.formulation))
		if formulationName == "" {
			formulationName = defaultFormulationName(substanceDisplay, routeName)
		}
		ev.FormulationName = formulationName

		ev.SubstanceKey = normalizeKey(substanceDisplay)
		ev.RouteKey = normalizeKey(routeName)
		ev.FormulationKey = ev.SubstanceKey + "||" + ev.RouteKey + "||" + normalizeKey(formulationName)

		if n := strings.TrimSpace(cellAt(row, h.notes)); n != "" {
			ev.Notes = &n
		}
		ev.Tags = parseTagList(cellAt(row, h.tags))

		out.Events = append(out.Events, ev)
	}

	out.OK = len(out.Errors) == 0 && len(out.RowErrors) == 0

	if inferCycles && len(out.Events) > 0 {
		cycleEvents := make([]cycles.Event, len(out.Events))
		for i, ev := range out.Events {
			cycleEvents[i] = cycles.Event{Row: ev.Row, SubstanceKey: ev.SubstanceKey, Ts: ev.Ts}
		}
		out.InferredCycles, out.EventCycleKey = cycles.Infer(cycleEvents, gapDays, now)
	}

	return out
}

func formatFloat(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
