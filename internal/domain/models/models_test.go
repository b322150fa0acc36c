package models

import "testing"

func TestRiskLevelOrdering(t *testing.T) {
	if !RiskLevelHigh.Greater(RiskLevelMedium) || !RiskLevelMedium.Greater(RiskLevelLow) {
		t.Fatal("expected High > Medium > Low")
	}
	if RiskLevelLow.Greater(RiskLevelLow) {
		t.Fatal("Greater must be strict")
	}
	if RiskLevelHigh.Rank() >= RiskLevelLow.Rank() {
		t.Fatal("High must sort before Low")
	}
}

func TestParseRiskLevel(t *testing.T) {
	if got, err := ParseRiskLevel(" HIGH "); err != nil || got != RiskLevelHigh {
		t.Fatalf("ParseRiskLevel = %q, %v", got, err)
	}
	if _, err := ParseRiskLevel("critical"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFeatureCatalog(t *testing.T) {
	if FeatureWidth != 12 {
		t.Fatalf("FeatureWidth = %d, want 12", FeatureWidth)
	}
	names := FeatureNames()
	if len(names) != FeatureWidth {
		t.Fatalf("len(FeatureNames()) = %d", len(names))
	}
	if names[0] != "android.permission.READ_SMS" || names[10] != "android.intent.action.BOOT_COMPLETED" {
		t.Errorf("unexpected names: %v", names)
	}
	if DangerousPermissionIndex("android.permission.CAMERA") != 3 {
		t.Error("CAMERA should be slot 3")
	}
	if DangerousPermissionIndex("android.permission.INTERNET") != -1 {
		t.Error("INTERNET is not dangerous")
	}
}

func TestGrantedDangerousPermissions(t *testing.T) {
	m := PackageMetadata{
		GrantedPermissions: []string{
			"android.permission.INTERNET",
			"android.permission.CAMERA",
			"android.permission.READ_SMS",
		},
	}
	got := m.GrantedDangerousPermissions()
	if len(got) != 2 || got[0] != "android.permission.READ_SMS" || got[1] != "android.permission.CAMERA" {
		t.Fatalf("got %v", got)
	}
}

func TestNewHighRiskNotification(t *testing.T) {
	n := NewHighRiskNotification(Threat{AppName: "Sketchy", PackageName: "com.sketchy", Description: "why"})
	if n.Text != "High-risk threat detected: Sketchy" || n.Body != "why" || n.PackageName != "com.sketchy" {
		t.Fatalf("unexpected notification %+v", n)
	}
}
