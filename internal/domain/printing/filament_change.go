package printing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
)

// FilamentChange is a compound device task: the printer is parked at
// temperature while a human swaps the spool, and the change only completes
// once the operator confirms it. On confirmation the printer's loaded
// filament is committed by the fleet layer.
type FilamentChange struct {
	ID          uuid.UUID
	NewFilament *inventory.Filament
	Task        *DeviceTask // owning task, kind TaskFilamentChange

	mu          sync.Mutex
	confirmed   bool
	confirmedAt *time.Time
}

// NewFilamentChange builds the change and its owning device task. The warm-up
// program heats bed and nozzle to the pairwise maximum of old and new
// filament temperatures so either material survives the swap, then homes.
func NewFilamentChange(printerID int, oldFilament, newFilament *inventory.Filament, now time.Time) *FilamentChange {
	fc := &FilamentChange{
		ID:          uuid.New(),
		NewFilament: newFilament,
	}
	fc.Task = &DeviceTask{
		ID:        uuid.New(),
		Kind:      TaskFilamentChange,
		PrinterID: printerID,
		Commands:  ChangeProgram(oldFilament, newFilament),
		Change:    fc,
		CreatedAt: now,
		state:     TaskQueued,
	}
	return fc
}

// Confirm marks the swap done. Idempotent. The caller commits the printer's
// loaded filament and finishes the owning task.
func (fc *FilamentChange) Confirm(now time.Time) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.confirmed {
		return
	}
	fc.confirmed = true
	at := now
	fc.confirmedAt = &at
}

// Confirmed reports whether the operator confirmed the swap.
func (fc *FilamentChange) Confirmed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.confirmed
}

// ConfirmedAt returns the confirmation time, nil while pending.
func (fc *FilamentChange) ConfirmedAt() *time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.confirmedAt
}

// ChangeProgram synthesizes the warm-up command script for a spool swap.
// Temperatures take the maximum of old and new so the loaded material can be
// retracted and the new one primed.
func ChangeProgram(oldFilament, newFilament *inventory.Filament) []string {
	bed := newFilament.BedTemp
	nozzle := newFilament.NozzleTemp
	if oldFilament != nil {
		if oldFilament.BedTemp > bed {
			bed = oldFilament.BedTemp
		}
		if oldFilament.NozzleTemp > nozzle {
			nozzle = oldFilament.NozzleTemp
		}
	}
	return []string{
		fmt.Sprintf("M140 S%d", bed),
		fmt.Sprintf("M104 S%d", nozzle),
		"G28",
		"G1 X0 Y0 F6000",
	}
}

// BuzzerTone is the short beep poked at a printer whose task has been waiting
// on a human for too many consecutive ticks.
var BuzzerTone = []string{"M300 S440 P500"}
