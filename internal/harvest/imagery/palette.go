package imagery

import (
	"fmt"
	"image/color"
)

// PaletteEntry maps one bin value to a rendered color and legend text.
type PaletteEntry struct {
	RGB   uint32
	Alpha uint8
	Label string
	Unit  string
}

// Palette maps bin values to colors. Key 255 is the "not included"
// entry used for pixels the ground station never transmitted.
type Palette map[int]PaletteEntry

const (
	noDataLabel  = "No Data"
	notInclLabel = "Not Incl"
)

// PaletteOptions selects which palettes render each product family and
// how no-data pixels are treated.
type PaletteOptions struct {
	// MapConfiguration: 0 blends no-data away, 1 is the high-contrast
	// regression palette set, 2 paints no-data its own color.
	MapConfiguration int
	RadarMap         int // 0-1
	CloudTopMap      int // 0-4
	NotIncluded      color.NRGBA
}

// Palettes holds the selected palette per image family.
type Palettes struct {
	Radar     Palette
	Turb      Palette
	CloudTop  Palette
	Lightning Palette
	IcingSLD  Palette
	IcingSEV  Palette
	IcingPRB  Palette
}

func rgb(c color.NRGBA) uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// BuildPalettes assembles the palette set for one configuration.
func BuildPalettes(opt PaletteOptions) *Palettes {
	notIncluded := rgb(opt.NotIncluded)

	// Alpha handling per configuration: testing makes every bin
	// opaque, show-no-data keeps zero-value bins transparent but
	// paints the explicit no-data bins.
	var radar0a, radar1a, lightning0a, icing0a, nda, nia uint8
	ndColor := uint32(0xb6b6b6)
	switch opt.MapConfiguration {
	case 1: // testing
		radar0a, radar1a, lightning0a, icing0a, nda, nia = 255, 255, 255, 255, 255, 255
	case 2: // show no data
		nda, nia = 255, 255
		ndColor = notIncluded
	}
	ni := PaletteEntry{RGB: notIncluded, Alpha: nia, Label: notInclLabel}

	p := &Palettes{}
	p.Radar = radarPalette(opt, radar0a, radar1a, ni)
	p.Turb = turbPalette(opt, ndColor, nda, ni)
	p.CloudTop = cloudTopPalette(opt, ndColor, nda, ni)

	p.Lightning = build("Strike Density", ni, []PaletteEntry{
		{0x000000, lightning0a, "0", ""},
		{0x00b4f1, 255, "1", ""},
		{0xc1d9ef, 255, "2", ""},
		{0x5a883b, 255, "3-5", ""},
		{0xc9e2b8, 255, "6-10", ""},
		{0xffff00, 255, "11-15", ""},
		{0xc95f14, 255, ">15", ""},
		{ndColor, nda, noDataLabel, ""},
	})
	p.IcingSLD = build("SLD %", ni, []PaletteEntry{
		{0x000000, icing0a, "<= 5", ""},
		{0xffff00, 255, "5-50", ""},
		{0xff0000, 255, ">50", ""},
		{ndColor, nda, noDataLabel, ""},
	})
	p.IcingSEV = build("Type", ni, []PaletteEntry{
		{0x000000, icing0a, "None", ""},
		{0x76d3ff, 255, "Trace", ""},
		{0x00ff00, 255, "Light", ""},
		{0xffff00, 255, "Moderate", ""},
		{0xff00ff, 255, "Severe", ""},
		{0xff0000, 255, "Heavy", ""},
		{0x000000, 0, "Reserved", ""},
		{ndColor, nda, noDataLabel, ""},
	})
	p.IcingPRB = build("%", ni, []PaletteEntry{
		{0x000000, icing0a, "<= 5", ""},
		{0x76d3ff, 255, "5-20", ""},
		{0x00ff00, 255, "20-30", ""},
		{0xffff00, 255, "30-40", ""},
		{0xf18635, 255, "40-60", ""},
		{0xff0000, 255, "60-80", ""},
		{0xff00ff, 255, ">80", ""},
		{ndColor, nda, noDataLabel, ""},
	})
	return p
}

// build assembles a palette from ordered entries, stamping the unit
// on every row and installing the not-included entry at 255.
func build(unit string, ni PaletteEntry, entries []PaletteEntry) Palette {
	m := make(Palette, len(entries)+1)
	for i, e := range entries {
		e.Unit = unit
		m[i] = e
	}
	ni.Unit = unit
	m[255] = ni
	return m
}

func radarPalette(opt PaletteOptions, a0, a1 uint8, ni PaletteEntry) Palette {
	labels := []string{"<5", "5-20", "20-30", "30-40", "40-45", "45-50", "50-55", ">55"}
	colors := []uint32{0x000000, 0x00ff35, 0x0ba31e, 0xfffe3a, 0xff0011, 0x990017, 0xff00fb, 0x9a0096}
	if opt.MapConfiguration != 1 && opt.RadarMap == 1 {
		colors = []uint32{0x000000, 0x00fffe, 0x00ee31, 0x0ba31e, 0xfffe3a, 0xff973e, 0xff0011, 0xff00fb}
	}
	entries := make([]PaletteEntry, len(colors))
	for i := range colors {
		alpha := uint8(255)
		if i == 0 {
			alpha = a0
		} else if i == 1 {
			alpha = a1
		}
		entries[i] = PaletteEntry{RGB: colors[i], Alpha: alpha, Label: labels[i]}
	}
	return build("dBZ", ni, entries)
}

func turbPalette(opt PaletteOptions, ndColor uint32, nda uint8, ni PaletteEntry) Palette {
	labels := []string{"<7", "7-14", "14-21", "21-28", "28-35", "35-42", "42-49",
		"49-56", "56-63", "63-70", "70-77", "77-84", "84-91", "91-98", ">98"}
	if opt.MapConfiguration == 1 {
		colors := []uint32{0x000000, 0x0000ff, 0x8686ff, 0x76d3ff, 0x008600, 0x00ff00,
			0xc4ffc4, 0xffff00, 0xf18635, 0x864613, 0xff0000, 0xffcdcd, 0xff00ff, 0xa500a5, 0x000000}
		entries := make([]PaletteEntry, 0, 16)
		for i := range colors {
			entries = append(entries, PaletteEntry{RGB: colors[i], Alpha: 255, Label: labels[i]})
		}
		entries = append(entries, PaletteEntry{RGB: 0xb6b6b6, Alpha: 255, Label: noDataLabel})
		return build("EDR*100", ni, entries)
	}
	// Mimics the Aviation Weather Center turbulence colors.
	colors := []uint32{0xffffff, 0xc8ffff, 0xccfe71, 0xedde35, 0xffb42e, 0xff9528,
		0xff7623, 0xff4c1d, 0xff0018, 0xe30015, 0xb90011, 0x8f000d, 0x7b000c, 0x530008, 0x410006}
	entries := make([]PaletteEntry, 0, 16)
	for i := range colors {
		alpha := uint8(255)
		if i <= 1 {
			alpha = 0
		}
		entries = append(entries, PaletteEntry{RGB: colors[i], Alpha: alpha, Label: labels[i]})
	}
	entries = append(entries, PaletteEntry{RGB: ndColor, Alpha: nda, Label: noDataLabel})
	return build("EDR*100", ni, entries)
}

func cloudTopPalette(opt PaletteOptions, ndColor uint32, nda uint8, ni PaletteEntry) Palette {
	labels := []string{"No Clouds", "< 1500", "1500-3000", "3000-4500", "4500-6000",
		"6000-7500", "7500-9000", "9000-10500", "10500-12000", "12000-13500",
		"13500-15000", "15000-18000", "18000-21000", "21000-24000", ">24000"}

	variants := map[int][]uint32{
		0: {0x000000, 0x0000ff, 0x8686ff, 0x76d3ff, 0x008600, 0x00ff00, 0xc4ffc4,
			0xffff00, 0xf18635, 0x864613, 0xff0000, 0xffcdcd, 0xff00ff, 0xa500a5, 0xff0000},
		1: {0xffffff, 0xeeeeee, 0xdddddd, 0xcdcdcd, 0xbbbbbb, 0xaaaaaa, 0x999999,
			0x888888, 0x777777, 0x666666, 0x555555, 0x444444, 0x333333, 0x222222, 0x111111},
		2: {0xffffff, 0x27862f, 0x00f439, 0x8ffb3b, 0xabfb4d, 0xfff93d, 0xffa22e,
			0xd56830, 0x9f5239, 0x864724, 0xa62f34, 0xb3242b, 0x7c0015, 0x8c0014, 0xf9001c},
		3: {0xffffff, 0xd8c2c2, 0xd3aeae, 0xd19797, 0xd27d7d, 0xd56161, 0xdb4343,
			0xed0000, 0xe00000, 0xd20000, 0xbf0000, 0xa90000, 0x940000, 0x7e0000, 0x6b0003},
		4: {0xffffff, 0xe2dad0, 0xe0d1c0, 0xe0c9ad, 0xe2c199, 0xe6b982, 0xedb169,
			0xffa232, 0xea9528, 0xd4881e, 0xbf7b16, 0xa96d0f, 0x946009, 0x7e5204, 0x694401},
	}

	selected := opt.CloudTopMap
	if opt.MapConfiguration == 1 {
		selected = 0
	}
	colors, ok := variants[selected]
	if !ok {
		colors = variants[1]
	}

	entries := make([]PaletteEntry, 0, 16)
	for i := range colors {
		alpha := uint8(255)
		if i == 0 && selected != 0 {
			alpha = 0
		}
		entries = append(entries, PaletteEntry{RGB: colors[i], Alpha: alpha, Label: labels[i]})
	}
	nd := PaletteEntry{RGB: ndColor, Alpha: nda, Label: noDataLabel}
	if opt.MapConfiguration == 1 || selected == 0 {
		nd = PaletteEntry{RGB: 0xb6b6b6, Alpha: 255, Label: noDataLabel}
	}
	entries = append(entries, nd)
	return build("ft MSL", ni, entries)
}

// LegendRow is one palette entry flattened for storage.
type LegendRow struct {
	Value int    `json:"value"`
	Color string `json:"color"`
	Alpha int    `json:"alpha"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// LegendRows returns the palette sorted by bin value, the 255 entry
// last.
func (p Palette) LegendRows() []LegendRow {
	rows := make([]LegendRow, 0, len(p))
	for i := 0; i < len(p)-1; i++ {
		e := p[i]
		rows = append(rows, LegendRow{
			Value: i,
			Color: fmt.Sprintf("#%06x", e.RGB),
			Alpha: int(e.Alpha),
			Label: e.Label,
			Unit:  e.Unit,
		})
	}
	e := p[255]
	rows = append(rows, LegendRow{
		Value: 255,
		Color: fmt.Sprintf("#%06x", e.RGB),
		Alpha: int(e.Alpha),
		Label: e.Label,
		Unit:  e.Unit,
	})
	return rows
}

// LegendNames pairs each palette with its stored legend name.
func (p *Palettes) LegendNames() map[string]Palette {
	return map[string]Palette{
		"RADAR":      p.Radar,
		"TURBULENCE": p.Turb,
		"CLOUDTOP":   p.CloudTop,
		"LIGHTNING":  p.Lightning,
		"ICING_SLD":  p.IcingSLD,
		"ICING_SEV":  p.IcingSEV,
		"ICING_PRB":  p.IcingPRB,
	}
}
