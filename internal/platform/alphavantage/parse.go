package alphavantage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// The provider answers CSV requests with a JSON notice body when the caller
// has exceeded its rate allowance. throttleNotice reports whether data is
// such a notice.
func throttleNotice(data []byte) bool {
	var body struct {
		Note        string `json:"Note"`
		Information string `json:"Information"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}
	return body.Note != "" || body.Information != ""
}

// looksLikeJSON reports whether the body starts with a JSON object or array.
func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// readCSV decodes a CSV payload into a header index map and data records.
// The bool result is false when the payload is not decodable as CSV.
func readCSV(data []byte) (map[string]int, [][]string, bool) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return nil, nil, false
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return header, records[1:], true
}

// parseSeriesCSV decodes a daily-series CSV payload. Rows come back ascending
// by date. The result kind distinguishes usable data, legitimately empty
// history, a throttle notice disguised as data, and a malformed payload.
func parseSeriesCSV(data []byte) ([]PriceRow, ResultKind) {
	if looksLikeJSON(data) {
		if throttleNotice(data) {
			return nil, ResultRateLimited
		}
		return nil, ResultMalformed
	}

	header, records, ok := readCSV(data)
	if !ok {
		return nil, ResultMalformed
	}

	dateIdx, hasDate := headerIndex(header, "timestamp", "date", "time")
	closeIdx, hasClose := header["close"]
	volumeIdx, hasVolume := header["volume"]

	// A tabular payload whose rows carry no usable price field is the
	// provider's soft-throttle signal, not a data format error.
	if !hasClose || !hasDate {
		return nil, ResultRateLimited
	}

	if len(records) == 0 {
		return nil, ResultEmpty
	}

	rows := make([]PriceRow, 0, len(records))
	for _, rec := range records {
		if dateIdx >= len(rec) || closeIdx >= len(rec) {
			return nil, ResultMalformed
		}

		date, err := parseDate(rec[dateIdx])
		if err != nil {
			return nil, ResultMalformed
		}
		closePrice, err := strconv.ParseFloat(rec[closeIdx], 64)
		if err != nil {
			return nil, ResultMalformed
		}

		var volume int64
		if hasVolume && volumeIdx < len(rec) {
			volume, _ = strconv.ParseInt(rec[volumeIdx], 10, 64)
		}

		rows = append(rows, PriceRow{Date: date, Close: closePrice, Volume: volume})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, ResultOK
}

// parseSearchCSV decodes a symbol-search CSV payload.
func parseSearchCSV(data []byte) ([]SearchMatch, ResultKind) {
	if looksLikeJSON(data) {
		if throttleNotice(data) {
			return nil, ResultRateLimited
		}
		return nil, ResultMalformed
	}

	header, records, ok := readCSV(data)
	if !ok {
		return nil, ResultMalformed
	}

	symbolIdx, hasSymbol := header["symbol"]
	if !hasSymbol {
		return nil, ResultRateLimited
	}
	if len(records) == 0 {
		return nil, ResultEmpty
	}

	matches := make([]SearchMatch, 0, len(records))
	for _, rec := range records {
		if symbolIdx >= len(rec) {
			return nil, ResultMalformed
		}
		m := SearchMatch{Symbol: rec[symbolIdx]}
		m.Name = fieldAt(header, rec, "name")
		m.Type = fieldAt(header, rec, "type")
		m.Region = fieldAt(header, rec, "region")
		m.Currency = fieldAt(header, rec, "currency")
		matches = append(matches, m)
	}
	return matches, ResultOK
}

// parseOverviewJSON decodes a company-overview JSON payload. The provider
// returns "{}" for unknown symbols and a Note object when throttled.
func parseOverviewJSON(data []byte) (CompanyOverview, ResultKind) {
	if throttleNotice(data) {
		return CompanyOverview{}, ResultRateLimited
	}

	var body struct {
		Symbol      string `json:"Symbol"`
		Name        string `json:"Name"`
		Description string `json:"Description"`
		Exchange    string `json:"Exchange"`
		Country     string `json:"Country"`
		Sector      string `json:"Sector"`
		Industry    string `json:"Industry"`
		Beta        string `json:"Beta"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return CompanyOverview{}, ResultMalformed
	}
	if body.Symbol == "" && body.Name == "" {
		return CompanyOverview{}, ResultEmpty
	}

	overview := CompanyOverview{
		Symbol:      body.Symbol,
		Name:        body.Name,
		Description: body.Description,
		Exchange:    body.Exchange,
		Country:     body.Country,
		Sector:      body.Sector,
		Industry:    body.Industry,
	}
	// The provider reports missing betas as "None" or "-".
	if beta, err := strconv.ParseFloat(body.Beta, 64); err == nil {
		overview.Beta = &beta
	}
	return overview, ResultOK
}

// headerIndex returns the index of the first header name present.
func headerIndex(header map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := header[n]; ok {
			return idx, true
		}
	}
	return 0, false
}

// fieldAt returns the record field under the named header column, or "".
func fieldAt(header map[string]int, rec []string, name string) string {
	if idx, ok := header[name]; ok && idx < len(rec) {
		return rec[idx]
	}
	return ""
}

// parseDate accepts the date formats the provider is known to emit.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
