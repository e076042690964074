package inventory

// Filament describes one spool identity: the combination of brand, color and
// material the farm can load into a printer. Identity is immutable; only the
// stock level moves.
type Filament struct {
	ID         int
	Name       string
	SKU        string
	Brand      string
	Color      string
	Material   string
	BedTemp    int     // degC
	NozzleTemp int     // degC
	PricePerKg float64 // in the farm's accounting currency
	Density    float64 // g/cm3, optional
	StockGrams float64
}

// Matches reports whether this filament satisfies a piece's color and
// material requirement sets. Empty sets accept anything.
func (f *Filament) Matches(colors, materials []string) bool {
	return containsOrEmpty(colors, f.Color) && containsOrEmpty(materials, f.Material)
}

// ConsumeStock subtracts the given weight from the spool stock, clamping at
// zero. Called when a print job is confirmed successful.
func (f *Filament) ConsumeStock(grams float64) {
	f.StockGrams -= grams
	if f.StockGrams < 0 {
		f.StockGrams = 0
	}
}

func containsOrEmpty(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
