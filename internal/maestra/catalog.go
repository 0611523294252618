// Package maestra reads the contract master file: which contracts exist, for
// which year, and which provider holds each one.
package maestra

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"consolidador/internal/domain"
)

// healthProvider is the provider kind the consolidator works on.
const healthProvider = "PRESTADOR DE SERVICIOS DE SALUD"

var errEmptySheet = errors.New("maestra: sheet has no header row")

// Catalog is the parsed content of one master file. It is immutable.
type Catalog struct {
	summary  domain.MasterSummary
	eligible []domain.Contract
	entries  []domain.MasterEntry
}

type columns struct {
	kind, cto, number, year, provider  int
	nit, department, municipality      int
	listNumber, listYear, listProvider int
}

// identify maps header names onto roles. For the main roles a later column
// replaces an earlier one; the table-only roles keep the first match.
func identify(header []string) columns {
	c := columns{
		kind: -1, cto: -1, number: -1, year: -1, provider: -1,
		nit: -1, department: -1, municipality: -1,
		listNumber: -1, listYear: -1, listProvider: -1,
	}
	first := func(dst *int, i int, name string, subs ...string) {
		if *dst < 0 && containsAny(name, subs...) {
			*dst = i
		}
	}
	for i, raw := range header {
		name := strings.ToUpper(strings.TrimSpace(raw))
		switch {
		case strings.Contains(name, "TIPO") && strings.Contains(name, "PROVEEDOR"):
			c.kind = i
		case name == "CTO":
			c.cto = i
		case containsAny(name, "NUMERO", "NÚMERO") && strings.Contains(name, "CONTRATO"):
			c.number = i
		case containsAny(name, "AÑO", "ANO") && strings.Contains(name, "CONTRATO"):
			c.year = i
		case containsAny(name, "RAZON", "RAZÓN"):
			c.provider = i
		}
		first(&c.listNumber, i, name, "NO_CONTRATO", "CONTRATO", "NUMERO", "N°")
		first(&c.listYear, i, name, "AÑO", "ANO", "YEAR")
		first(&c.listProvider, i, name, "RAZON_SOCIAL", "RAZON", "PRESTADOR", "NOMBRE")
		first(&c.nit, i, name, "NIT", "IDENTIFICACION", "DOCUMENTO")
		first(&c.department, i, name, "DEPARTAMENTO", "DEPTO", "DPTO")
		first(&c.municipality, i, name, "MUNICIPIO", "CIUDAD", "MUNI")
	}
	if c.number >= 0 {
		c.listNumber = c.number
	}
	if c.year >= 0 {
		c.listYear = c.year
	}
	if c.provider >= 0 {
		c.listProvider = c.provider
	}
	return c
}

// build parses rows whose first row is the header.
func build(sheet string, rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, errEmptySheet
	}
	cols := identify(rows[0])

	var data [][]string
	for _, row := range rows[1:] {
		if !blank(row) {
			data = append(data, row)
		}
	}

	var providers [][]string
	for _, row := range data {
		if cols.kind < 0 || strings.EqualFold(cell(row, cols.kind), healthProvider) {
			providers = append(providers, row)
		}
	}

	cat := &Catalog{
		summary: domain.MasterSummary{
			Sheet:          sheet,
			TotalRows:      len(data),
			TotalProviders: len(providers),
			Years:          []int{},
			ByYear:         map[string]domain.YearContracts{},
		},
	}

	if cols.year >= 0 {
		byYear := map[int][]domain.Contract{}
		for _, row := range providers {
			year, ok := parseInt(cell(row, cols.year))
			if !ok {
				continue
			}
			number := ""
			if cols.number >= 0 {
				number = normalizeNumber(cell(row, cols.number))
			}
			byYear[year] = append(byYear[year], contract(number, strconv.Itoa(year), cell(row, cols.provider)))
		}
		for year, list := range byYear {
			cat.summary.Years = append(cat.summary.Years, year)
			cat.summary.ByYear[strconv.Itoa(year)] = domain.YearContracts{Count: len(list), Contracts: list}
			cat.summary.TotalContracts += len(list)
		}
		sort.Ints(cat.summary.Years)
	}

	for _, row := range providers {
		number := normalizeNumber(cell(row, cols.number))
		year := normalizeNumber(cell(row, cols.year))
		if number == "" || year == "" {
			continue
		}
		cat.eligible = append(cat.eligible, contract(number, year, cell(row, cols.provider)))
	}

	for _, row := range data {
		number := normalizeNumber(cell(row, cols.listNumber))
		if number == "" {
			continue
		}
		year, _ := parseInt(cell(row, cols.listYear))
		cat.entries = append(cat.entries, domain.MasterEntry{
			Number:       number,
			Year:         year,
			Provider:     cell(row, cols.listProvider),
			NIT:          cell(row, cols.nit),
			Department:   cell(row, cols.department),
			Municipality: cell(row, cols.municipality),
		})
	}
	return cat, nil
}

// Summary returns the parse result. Callers must not modify it.
func (c *Catalog) Summary() domain.MasterSummary { return c.summary }

// Years lists every year with its contract count, oldest first.
func (c *Catalog) Years() []domain.YearCount {
	out := make([]domain.YearCount, 0, len(c.summary.Years))
	for _, y := range c.summary.Years {
		out = append(out, domain.YearCount{Year: y, Contracts: c.summary.ByYear[strconv.Itoa(y)].Count})
	}
	return out
}

// Select returns the contracts a job would process. A zero year or an empty
// number does not filter. Numbers compare without leading zeros.
func (c *Catalog) Select(year int, number string) []domain.Contract {
	wantYear := ""
	if year > 0 {
		wantYear = strconv.Itoa(year)
	}
	wantNumber := normalizeNumber(number)
	out := make([]domain.Contract, 0)
	for _, ct := range c.eligible {
		if wantYear != "" && ct.Year != wantYear {
			continue
		}
		if wantNumber != "" && ct.Number != wantNumber {
			continue
		}
		out = append(out, ct)
	}
	return out
}

// Count is len(Select(params)) for a job selection.
func (c *Catalog) Count(params domain.JobParams) int {
	params = params.Normalized()
	return len(c.Select(params.Year, params.ContractNumber))
}

// Entries lists every row that carries a contract number.
func (c *Catalog) Entries() []domain.MasterEntry {
	return append([]domain.MasterEntry{}, c.entries...)
}

func contract(number, year, provider string) domain.Contract {
	ct := domain.Contract{Number: number, Year: year, Provider: provider}
	if number != "" {
		ct.Code = number + "-" + year
	}
	return ct
}

// normalizeNumber renders integral numbers without decimals or leading zeros,
// so "0012", "12" and "12.0" agree. Anything else is returned trimmed.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if n, ok := parseInt(s); ok {
		return strconv.Itoa(n)
	}
	return s
}

func parseInt(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || f < 0 {
		return 0, false
	}
	return int(f), true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
