package printing

import (
	"github.com/polyforge/printfarm-go/internal/domain/inventory"
)

// Printer is the logical identity of one machine in the fleet. The printer
// owns the relationship with its controller; the controller is created
// alongside and keyed by printer id.
type Printer struct {
	ID       int
	Name     string
	Profile  *inventory.PrinterProfile
	Endpoint string
	APIKey   string
	Filament *inventory.Filament // currently loaded spool, nil when unloaded
	Disabled bool
}

// LoadedMatches reports whether the loaded filament satisfies the given color
// and material requirement sets. False when nothing is loaded.
func (p *Printer) LoadedMatches(colors, materials []string) bool {
	return p.Filament != nil && p.Filament.Matches(colors, materials)
}
