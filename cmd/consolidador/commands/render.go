package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"consolidador/internal/domain"
	"consolidador/internal/monitor"
	"consolidador/internal/prefs"
)

const ansiReset = "\x1b[0m"

var palettes = map[prefs.Theme]map[domain.LogCategory]string{
	prefs.ThemeLight: {
		domain.LogSuccess:  "32",
		domain.LogWarning:  "33",
		domain.LogError:    "31",
		domain.LogFile:     "34",
		domain.LogDownload: "36",
		domain.LogProcess:  "35",
		domain.LogContract: "1;34",
	},
	prefs.ThemeDark: {
		domain.LogSuccess:  "92",
		domain.LogWarning:  "93",
		domain.LogError:    "91",
		domain.LogFile:     "94",
		domain.LogDownload: "96",
		domain.LogProcess:  "95",
		domain.LogContract: "1;96",
	},
}

// Renderer prints log entries and job summaries. It is safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	w       io.Writer
	color   bool
	palette map[domain.LogCategory]string
}

func NewRenderer(w io.Writer, theme prefs.Theme, color bool) *Renderer {
	palette, ok := palettes[theme]
	if !ok {
		palette = palettes[prefs.ThemeLight]
	}
	return &Renderer{w: w, color: color, palette: palette}
}

// ColorEnabled reports whether w is a terminal.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Renderer) Entries(entries []domain.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		line := e.Text
		if code := r.palette[e.Category]; r.color && code != "" {
			line = "\x1b[" + code + "m" + line + ansiReset
		}
		fmt.Fprintf(r.w, "[%s] %s\n", e.Timestamp, line)
	}
}

// Footer prints the closing stats line and the generated files.
func (r *Renderer) Footer(s monitor.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := []string{fmt.Sprintf("Estado: %s", s.State.Wire()), fmt.Sprintf("Progreso: %.0f%%", s.Progress)}
	if s.Stats.TotalContracts > 0 {
		parts = append(parts, fmt.Sprintf("Contratos: %d/%d", s.Stats.CurrentContract, s.Stats.TotalContracts))
	}
	parts = append(parts,
		fmt.Sprintf("Exitosos: %d", s.Stats.Successes),
		fmt.Sprintf("Errores: %d", s.Stats.Errors),
		fmt.Sprintf("Servicios: %s", groupThousands(s.Stats.Services)),
	)
	fmt.Fprintln(r.w, strings.Repeat("-", 60))
	fmt.Fprintln(r.w, strings.Join(parts, " | "))
	if len(s.Artifacts) > 0 {
		fmt.Fprintln(r.w, "Archivos generados:")
		for _, name := range s.Artifacts {
			fmt.Fprintf(r.w, "  %s\n", name)
		}
	}
}

// Service counts are printed the way the consolidator logs them: 1,234.
var numbers = message.NewPrinter(language.English)

func groupThousands(n int) string {
	return numbers.Sprintf("%d", n)
}
