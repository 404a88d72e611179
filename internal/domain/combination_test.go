package domain

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func TestSequenceKnownCombinations(t *testing.T) {
	cases := map[string][]Craft{
		"coating_printing_foiling":  {CraftCoating, CraftPrinting, CraftFoiling},
		"frosting_printing":         {CraftFrosting, CraftPrinting},
		" Printing ":                {CraftPrinting},
		"":                          nil,
		"none":                      nil,
		"frosting_printing_foiling": {CraftFrosting, CraftPrinting, CraftFoiling},
	}
	for key, want := range cases {
		got, err := Sequence(key)
		if err != nil {
			t.Fatalf("sequence %q failed: %v", key, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("sequence %q: expected %v, got %v", key, want, got)
		}
	}
}

func TestSequenceUnknownCombination(t *testing.T) {
	_, err := Sequence("printing_coating")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSequenceReturnsCopy(t *testing.T) {
	seq, _ := Sequence("coating_printing")
	seq[0] = CraftFrosting
	again, _ := Sequence("coating_printing")
	if again[0] != CraftCoating {
		t.Fatalf("combination table was mutated through returned slice: %v", again)
	}
}

func TestNextStage(t *testing.T) {
	type step struct {
		completed Craft
		next      Craft
		ok        bool
	}
	steps := []step{
		{CraftGlass, CraftCoating, true},
		{CraftCoating, CraftPrinting, true},
		{CraftPrinting, CraftFoiling, true},
		{CraftFoiling, "", false},
	}
	for _, s := range steps {
		next, ok, err := NextStage("coating_printing_foiling", s.completed)
		if err != nil {
			t.Fatalf("next after %s failed: %v", s.completed, err)
		}
		if next != s.next || ok != s.ok {
			t.Fatalf("next after %s: expected (%s, %v), got (%s, %v)", s.completed, s.next, s.ok, next, ok)
		}
	}

	if _, ok, err := NextStage(NoDecoration, CraftGlass); ok || err != nil {
		t.Fatalf("undecorated glass must have no next stage, got ok=%v err=%v", ok, err)
	}
	if _, _, err := NextStage("printing", CraftFrosting); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for foreign stage, got %v", err)
	}
}

func TestUnknownCombinationListsKnownKeys(t *testing.T) {
	_, err := Sequence("Printing_Coating")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "decoration_combination" {
		t.Fatalf("expected combination validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"printing_coating"`) || !strings.Contains(err.Error(), "coating_printing, coating_printing_foiling") {
		t.Fatalf("error should name the key and the known keys: %v", err)
	}
	keys := Combinations()
	if len(keys) != 11 || !slices.IsSorted(keys) {
		t.Fatalf("expected 11 sorted keys, got %v", keys)
	}
}

func TestCombinationsNeverStartWithPrintingBeforeCoating(t *testing.T) {
	for _, key := range Combinations() {
		seq, err := Sequence(key)
		if err != nil {
			t.Fatalf("sequence %q failed: %v", key, err)
		}
		pos := map[Craft]int{}
		for i, c := range seq {
			if !c.IsDecoration() {
				t.Fatalf("%q contains non-decoration craft %s", key, c)
			}
			pos[c] = i
		}
		if p, ok := pos[CraftPrinting]; ok {
			if c, ok := pos[CraftCoating]; ok && c > p {
				t.Fatalf("%q prints before coating", key)
			}
		}
		if f, ok := pos[CraftFoiling]; ok && f != len(seq)-1 {
			t.Fatalf("%q: foiling must be the last stage", key)
		}
	}
}
