// Package logline turns raw consolidator output into presentable log entries.
package logline

import (
	"regexp"
	"strconv"
	"strings"

	"consolidador/internal/domain"
)

var hiddenPatterns = compileAll(
	`C:\\Users\\`,
	`/home/`,
	`OneDrive`,
	`Documentos`,
	`\.xlsx$`,
	`\.xlsb$`,
	`Maestra:.*\\`,
	`Output:.*\\`,
	`PRUEBA \d+:`,
	`EJECUTANDO PRUEBAS`,
	`RESUMEN DE PRUEBAS`,
	`Exitosas:.*Fallidas:`,
	`esperado:`,
	`Porcentaje:.*%`,
	`ERRORES ENCONTRADOS`,
	`retornó.*esperado`,
	`Parámetros recibidos`,
	`• Maestra:`,
	`• Output:`,
	`• Modo:`,
	`• Año:`,
	`• Contrato:`,
	`FUNCIONES CORREGIDAS`,
	`contiene_anexo1\(\)`,
	`es_telefono_celular`,
	`validar_cups\(\)`,
	`validar_tarifa\(\)`,
	`es_fila_de_traslados`,
	`buscar_hoja_servicios`,
	`generar_mensaje_hojas`,
	`es_formato_propio`,
	`SistemaAlertas`,
	`CORRECCIONES ESPECÍFICAS`,
	`Alerta PAQUETES:`,
	`Teléfonos: Detecta`,
	`Inicializando CONSOLIDADOR`,
	`uploads\\`,
	`backend\\`,
	`consolidador-t25-app`,
)

var (
	separatorOnly  = regexp.MustCompile(`^[═─━\-=\s]+$`)
	windowsSheet   = regexp.MustCompile(`C:\\[^│\n]+\\([^\\│\n]+\.(xlsx|xlsb|xls))`)
	unixSheet      = regexp.MustCompile(`/[^│\n]+/([^/│\n]+\.(xlsx|xlsb|xls))`)
	oneDrivePrefix = regexp.MustCompile(`OneDrive[^│\n]*\\`)
	counterPattern = regexp.MustCompile(`\[(\d+)/(\d+)\]`)
	contractMarker = regexp.MustCompile(`CONTRATO \[(\d+)/(\d+)\]`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Filter decides which output lines are shown. Nothing is shown before the
// processing banner; configuration chatter and self-tests come first.
type Filter struct {
	started bool
}

// Started reports whether the processing banner has been seen.
func (f *Filter) Started() bool { return f.started }

// Visible reports whether line belongs in the job log.
func (f *Filter) Visible(line string) bool {
	upper := strings.ToUpper(line)
	if strings.Contains(upper, "PROCESAMIENTO V") ||
		(strings.Contains(upper, "PROCESAMIENTO") && strings.Contains(upper, "MODO:")) {
		f.started = true
		return true
	}
	if !f.started {
		return false
	}
	for _, p := range hiddenPatterns {
		if p.MatchString(line) {
			return false
		}
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || separatorOnly.MatchString(trimmed) {
		return false
	}
	return true
}

// Clean strips directories from spreadsheet paths, keeping the file name.
func Clean(line string) string {
	line = windowsSheet.ReplaceAllString(line, "$1")
	line = unixSheet.ReplaceAllString(line, "$1")
	return oneDrivePrefix.ReplaceAllString(line, "")
}

// Classify assigns a presentation category; the first matching rule wins.
func Classify(line string) domain.LogCategory {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(line, "✓") || strings.Contains(lower, "éxito") ||
		strings.Contains(lower, "completado") || strings.Contains(line, "✅"):
		return domain.LogSuccess
	case strings.Contains(line, "✗") || strings.Contains(lower, "error") || strings.Contains(line, "❌"):
		return domain.LogError
	case strings.Contains(line, "⚠") || strings.Contains(lower, "advertencia") || strings.Contains(line, "WARNING"):
		return domain.LogWarning
	case strings.Contains(lower, "descargando") || strings.Contains(line, "↓") || strings.Contains(line, "⬇"):
		return domain.LogDownload
	case strings.Contains(lower, "archivo") || strings.Contains(line, "📄"):
		return domain.LogFile
	case strings.Contains(lower, "contrato") || strings.Contains(line, "📋"):
		return domain.LogContract
	case strings.Contains(lower, "procesando") || strings.Contains(line, "🔄") || strings.Contains(line, "⚙"):
		return domain.LogProcess
	default:
		return domain.LogInfo
	}
}

// Counter extracts the first "[i/N]" marker of a line.
func Counter(line string) (current, total int, ok bool) {
	return match(counterPattern, line)
}

// ContractCounter extracts the "CONTRATO [i/N]" marker of a line. Other
// counters, such as annex downloads, never match.
func ContractCounter(line string) (current, total int, ok bool) {
	return match(contractMarker, line)
}

func match(re *regexp.Regexp, line string) (current, total int, ok bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	current, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(m[2])
	if err != nil || total <= 0 {
		return 0, 0, false
	}
	return current, total, true
}

// Progress converts the "[i/N]" marker of a line into a percentage.
func Progress(line string) (float64, bool) {
	current, total, ok := Counter(line)
	if !ok {
		return 0, false
	}
	return float64(current) / float64(total) * 100, true
}

// IsContractLine reports whether the line announces the contract being worked on.
func IsContractLine(line string) bool {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "contrato") {
		return false
	}
	return strings.Contains(lower, "procesando") || strings.Contains(lower, "iniciando") || strings.Contains(line, "[")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
