package domain

import (
	"slices"
	"strings"
)

// NoDecoration marks a glass unit that skips every decoration stage.
const NoDecoration = "none"

var combinations = map[string][]Craft{
	"coating":                   {CraftCoating},
	"printing":                  {CraftPrinting},
	"foiling":                   {CraftFoiling},
	"frosting":                  {CraftFrosting},
	"coating_printing":          {CraftCoating, CraftPrinting},
	"coating_foiling":           {CraftCoating, CraftFoiling},
	"printing_foiling":          {CraftPrinting, CraftFoiling},
	"coating_printing_foiling":  {CraftCoating, CraftPrinting, CraftFoiling},
	"frosting_printing":         {CraftFrosting, CraftPrinting},
	"frosting_foiling":          {CraftFrosting, CraftFoiling},
	"frosting_printing_foiling": {CraftFrosting, CraftPrinting, CraftFoiling},
}

// NormalizeCombination lower-cases a combination key and maps "" to NoDecoration.
func NormalizeCombination(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return NoDecoration
	}
	return key
}

// Sequence returns the ordered decoration stages for a combination key.
// The returned slice is a copy.
func Sequence(key string) ([]Craft, error) {
	key = NormalizeCombination(key)
	if key == NoDecoration {
		return nil, nil
	}
	seq, ok := combinations[key]
	if !ok {
		return nil, Validation("decoration_combination", "unknown decoration combination %q, known: %s",
			key, strings.Join(Combinations(), ", "))
	}
	out := make([]Craft, len(seq))
	copy(out, seq)
	return out, nil
}

// NextStage returns the stage that follows completed in the combination.
// completed == CraftGlass yields the first stage. ok is false when the chain is done.
func NextStage(key string, completed Craft) (next Craft, ok bool, err error) {
	seq, err := Sequence(key)
	if err != nil {
		return "", false, err
	}
	if len(seq) == 0 {
		return "", false, nil
	}
	if completed == CraftGlass {
		return seq[0], true, nil
	}
	for i, st := range seq {
		if st != completed {
			continue
		}
		if i+1 < len(seq) {
			return seq[i+1], true, nil
		}
		return "", false, nil
	}
	return "", false, Validation("stage", "stage %s is not part of combination %q", completed, key)
}

// Combinations lists the known combination keys in sorted order.
func Combinations() []string {
	out := make([]string, 0, len(combinations))
	for k := range combinations {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
