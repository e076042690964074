package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilamentMatchesEmptySetsAcceptAll(t *testing.T) {
	f := &Filament{Color: "blue", Material: "PLA"}

	assert.True(t, f.Matches(nil, nil))
	assert.True(t, f.Matches([]string{"blue"}, nil))
	assert.True(t, f.Matches([]string{"red", "blue"}, []string{"PLA"}))
	assert.False(t, f.Matches([]string{"red"}, nil))
	assert.False(t, f.Matches(nil, []string{"PETG"}))
}

func TestConsumeStockClampsAtZero(t *testing.T) {
	f := &Filament{StockGrams: 100}

	f.ConsumeStock(30)
	assert.Equal(t, 70.0, f.StockGrams)

	f.ConsumeStock(500)
	assert.Equal(t, 0.0, f.StockGrams)
}

func TestBedFitsAllowsAxisPermutation(t *testing.T) {
	bed := BedShape{X: 200, Y: 250, Z: 300}

	assert.True(t, bed.Fits(100, 100, 100))
	// Fits only when rotated onto the long axis.
	assert.True(t, bed.Fits(280, 150, 150))
	assert.False(t, bed.Fits(280, 280, 150))
	assert.False(t, bed.Fits(100, 100, 400))
}

func TestPrintProfileCompatibility(t *testing.T) {
	pp := &PrinterProfile{PrinterModel: "MK3S", NozzleDiameter: 0.4}

	match := &PrintProfile{PrinterModel: "MK3S", NozzleDiameter: 0.4}
	wrongNozzle := &PrintProfile{PrinterModel: "MK3S", NozzleDiameter: 0.6}
	wrongModel := &PrintProfile{PrinterModel: "Voron", NozzleDiameter: 0.4}

	assert.True(t, match.CompatibleWith(pp))
	assert.False(t, wrongNozzle.CompatibleWith(pp))
	assert.False(t, wrongModel.CompatibleWith(pp))
}
