package model

import "testing"

func TestValidStage(t *testing.T) {
	for _, stage := range Stages {
		if !ValidStage(stage) {
			t.Errorf("ValidStage(%q) = false", stage)
		}
	}
	for _, stage := range []Stage{"", "limbo", "Preliminary", "to be communicated"} {
		if ValidStage(stage) {
			t.Errorf("ValidStage(%q) = true", stage)
		}
	}
}

func TestListingPatchEmpty(t *testing.T) {
	if !(ListingPatch{}).Empty() {
		t.Error("zero patch not empty")
	}

	notes := "x"
	if (ListingPatch{Notes: &notes}).Empty() {
		t.Error("patch with notes reported empty")
	}

	priority := 0
	if (ListingPatch{Priority: &priority}).Empty() {
		t.Error("explicit zero priority reported empty")
	}
}
