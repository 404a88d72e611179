package domain

import "strings"

// Craft is a work discipline that owns assignments on an order item.
type Craft string

const (
	CraftGlass       Craft = "glass"
	CraftCaps        Craft = "caps"
	CraftBoxes       Craft = "boxes"
	CraftPumps       Craft = "pumps"
	CraftAccessories Craft = "accessories"
	CraftCoating     Craft = "coating"
	CraftPrinting    Craft = "printing"
	CraftFoiling     Craft = "foiling"
	CraftFrosting    Craft = "frosting"
)

// Crafts lists every craft in the order team groups are stored on an item.
var Crafts = []Craft{
	CraftGlass, CraftCaps, CraftBoxes, CraftPumps, CraftAccessories,
	CraftCoating, CraftPrinting, CraftFoiling, CraftFrosting,
}

func (c Craft) Valid() bool {
	for _, v := range Crafts {
		if c == v {
			return true
		}
	}
	return false
}

// IsDecoration reports whether the craft is a glass decoration stage.
func (c Craft) IsDecoration() bool {
	switch c {
	case CraftCoating, CraftPrinting, CraftFoiling, CraftFrosting:
		return true
	}
	return false
}

// ParseCraft normalizes user input ("Printing", " caps ") into a Craft.
func ParseCraft(s string) (Craft, error) {
	c := Craft(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", Validation("craft", "unknown craft %q", s)
	}
	return c, nil
}

// TrackKind selects which tracking record of an assignment an entry applies to.
type TrackKind string

const (
	TrackMain     TrackKind = "main"
	TrackMetal    TrackKind = "metal"
	TrackAssembly TrackKind = "assembly"
)

// PrimaryTrack is the tracking record used when an entry does not name one.
func PrimaryTrack(c Craft) TrackKind {
	if c == CraftCaps {
		return TrackMetal
	}
	return TrackMain
}
