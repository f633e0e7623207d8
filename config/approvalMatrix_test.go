package config

import "testing"

func TestRequiredApprovalLevelsDefaults(t *testing.T) {
	levels, err := RequiredApprovalLevels("MSL")
	if err != nil {
		t.Fatalf("RequiredApprovalLevels(MSL): %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels for MSL, got %d", len(levels))
	}
	if levels[0].Level != 1 || levels[0].Role != "RSM" {
		t.Fatalf("unexpected first level: %+v", levels[0])
	}
	if levels[1].Level != 2 || levels[1].Role != "ASC" {
		t.Fatalf("unexpected second level: %+v", levels[1])
	}
}

func TestRequiredApprovalLevelsExemptKind(t *testing.T) {
	levels, err := RequiredApprovalLevels("TECH_ISSUE")
	if err != nil {
		t.Fatalf("RequiredApprovalLevels(TECH_ISSUE): %v", err)
	}
	if len(levels) != 0 {
		t.Fatalf("exempt kind must need zero levels, got %d", len(levels))
	}
}

func TestRequiredApprovalLevelsUnconfiguredKindFails(t *testing.T) {
	if _, err := RequiredApprovalLevels("WARRANTY_SWAP"); err == nil {
		t.Fatal("unconfigured kind must be an error, not an implicit zero-approval flow")
	}
	if _, err := RequiredApprovalLevels(""); err == nil {
		t.Fatal("empty kind must be an error")
	}
}

func TestRequiredApprovalLevelsEnvOverride(t *testing.T) {
	t.Setenv("APPROVAL_LEVELS_BULK", "rsm, asc ,PLANT")
	levels, err := RequiredApprovalLevels("bulk")
	if err != nil {
		t.Fatalf("RequiredApprovalLevels(bulk): %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels from env override, got %d", len(levels))
	}
	if levels[2].Level != 3 || levels[2].Role != "PLANT" {
		t.Fatalf("unexpected third level: %+v", levels[2])
	}
}

func TestApprovalExemptKindsEnvOverride(t *testing.T) {
	t.Setenv("APPROVAL_EXEMPT_KINDS", "CONS_RETURN")

	levels, err := RequiredApprovalLevels("CONS_RETURN")
	if err != nil {
		t.Fatalf("RequiredApprovalLevels(CONS_RETURN): %v", err)
	}
	if len(levels) != 0 {
		t.Fatalf("overridden exempt kind must need zero levels, got %d", len(levels))
	}

	// Overriding the exempt list replaces the default: TECH_ISSUE now needs
	// configuration, and it has none.
	if _, err := RequiredApprovalLevels("TECH_ISSUE"); err == nil {
		t.Fatal("TECH_ISSUE must fail once the exempt override drops it")
	}
}
