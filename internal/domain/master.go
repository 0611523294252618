package domain

// Contract is one master row eligible for processing.
type Contract struct {
	Number   string `json:"numero"`
	Year     string `json:"año"`
	Provider string `json:"razon_social"`
	Code     string `json:"codigo_completo"`
}

// YearContracts groups the contracts of one year.
type YearContracts struct {
	Count     int        `json:"cantidad"`
	Contracts []Contract `json:"contratos"`
}

// MasterSummary is what the master file contains once parsed.
type MasterSummary struct {
	TotalContracts int                      `json:"total_contratos"`
	Sheet          string                   `json:"hoja_utilizada"`
	TotalRows      int                      `json:"total_registros_maestra"`
	TotalProviders int                      `json:"total_prestadores"`
	Years          []int                    `json:"años_disponibles"`
	ByYear         map[string]YearContracts `json:"contratos_por_año"`
}

// YearCount is one entry of the year picker.
type YearCount struct {
	Year      int `json:"año"`
	Contracts int `json:"cantidad_contratos"`
}

// MasterEntry is one row of the full contract table, providers of every kind
// included.
type MasterEntry struct {
	Number       string `json:"numero"`
	Year         int    `json:"año"`
	Provider     string `json:"razon_social"`
	NIT          string `json:"nit"`
	Department   string `json:"departamento"`
	Municipality string `json:"municipio"`
}
