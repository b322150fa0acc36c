package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"secureguard-lab/internal/domain/models"
)

func newScanner(reg AppRegistry, opener ModelOpener, fs afero.Fs, workers int) *ThreatScanner {
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	return NewThreatScanner(
		ThreatScannerConfig{Workers: workers, AIThreshold: DefaultAIThreshold},
		reg,
		NewFeatureExtractor(reg, testLogger),
		opener,
		NewRootDetector(fs, nil, testLogger),
		testLogger,
	)
}

func findThreats(threats []models.Threat, pkg string) []models.Threat {
	var out []models.Threat
	for _, t := range threats {
		if t.PackageName == pkg {
			out = append(out, t)
		}
	}
	return out
}

func TestScanTwoPermissionsWithoutModelIsMedium(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)

	res, err := newScanner(reg, nil, nil, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 1 {
		t.Fatalf("got %d threats, want 1: %+v", len(res.Threats), res.Threats)
	}
	got := res.Threats[0]
	if got.ThreatType != models.ThreatTypePermission || got.RiskLevel != models.RiskLevelMedium {
		t.Errorf("got %s/%s, want permission/medium", got.ThreatType, got.RiskLevel)
	}
	want := "Has 2 potentially risky permission(s):\n- READ_SMS\n- CAMERA"
	if got.Description != want {
		t.Errorf("description = %q, want %q", got.Description, want)
	}
	if res.ModelAvailable {
		t.Error("model should be unavailable")
	}
}

func TestScanModelFlagSuppressesPermissionFinding(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.lib", false, permRecordAudio)
	opener := &fakeOpener{score: scoreWhen(permRecordAudio, 0.99)}

	res, err := newScanner(reg, opener, nil, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	found := findThreats(res.Threats, "com.example.lib")
	if len(found) != 1 {
		t.Fatalf("got %d threats for package, want 1", len(found))
	}
	if found[0].ThreatType != models.ThreatTypeAIAnalysis || found[0].RiskLevel != models.RiskLevelHigh {
		t.Errorf("got %s/%s, want ai_analysis/high", found[0].ThreatType, found[0].RiskLevel)
	}
	if !strings.Contains(found[0].Description, "0.99") {
		t.Errorf("description %q should carry the score", found[0].Description)
	}
	for _, c := range opener.opened {
		if !c.closed {
			t.Error("classifier not released after scan")
		}
	}
}

func TestScanThresholdIsStrict(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.edge", false, permRecordAudio)
	opener := &fakeOpener{score: scoreWhen(permRecordAudio, 0.95)}

	res, err := newScanner(reg, opener, nil, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 1 || res.Threats[0].ThreatType != models.ThreatTypePermission {
		t.Fatalf("score of exactly 0.95 must fall through to permissions, got %+v", res.Threats)
	}
	if res.Threats[0].RiskLevel != models.RiskLevelLow {
		t.Errorf("one permission should be Low, got %s", res.Threats[0].RiskLevel)
	}
}

func TestScanWhitelistExcludes(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)
	reg.add("com.example.lib", false, permRecordAudio)
	opener := &fakeOpener{score: scoreWhen(permRecordAudio, 0.99)}

	whitelist := map[string]struct{}{"com.example.sketchy": {}, "com.example.lib": {}}
	res, err := newScanner(reg, opener, nil, 1).Scan(context.Background(), whitelist)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 0 {
		t.Fatalf("whitelisted packages produced threats: %+v", res.Threats)
	}
	if res.Scanned != 0 {
		t.Errorf("Scanned = %d, want 0", res.Scanned)
	}
}

func TestScanNoFindingForCleanApp(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.clean", false, permInternet)
	reg.add("com.android.settings", true, permReadSMS, permCamera)

	res, err := newScanner(reg, &fakeOpener{score: func([]float64) float64 { return 0.3 }}, nil, 1).
		Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 0 {
		t.Fatalf("expected no findings, got %+v", res.Threats)
	}
	if res.Scanned != 1 {
		t.Errorf("system app must not be scanned, Scanned = %d", res.Scanned)
	}
}

func TestScanRootIndicatorComesFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/system/xbin/su", []byte{}, 0o755); err != nil {
		t.Fatal(err)
	}
	reg := &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)

	res, err := newScanner(reg, nil, fs, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	roots := findThreats(res.Threats, models.RootPackageName)
	if len(roots) != 1 {
		t.Fatalf("got %d root threats, want exactly 1", len(roots))
	}
	first := res.Threats[0]
	if first.PackageName != "android" || first.ThreatType != models.ThreatTypeRootAccess || first.RiskLevel != models.RiskLevelHigh {
		t.Errorf("first threat = %+v, want root finding", first)
	}
	if len(res.Threats) != 2 {
		t.Errorf("root finding must not hide app findings, got %d threats", len(res.Threats))
	}
}

func TestScanDegradesOnMetadataFailure(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)
	reg.apps = append(reg.apps,
		fakeApp{app: models.InstalledApp{PackageName: "com.example.broken"}, metaErr: errors.New("permission denied")},
		fakeApp{app: models.InstalledApp{PackageName: "com.example.panics"}, panics: true},
	)
	reg.add("com.example.after", false, permCamera)

	res, err := newScanner(reg, nil, nil, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 2 {
		t.Fatalf("got %+v, want findings for sketchy and after only", res.Threats)
	}
	if res.Threats[0].PackageName != "com.example.sketchy" || res.Threats[1].PackageName != "com.example.after" {
		t.Errorf("unexpected order: %+v", res.Threats)
	}
}

func TestScanReadsMetadataThroughExtractor(t *testing.T) {
	listed := &fakeRegistry{}
	listed.add("com.example.sketchy", false)

	manifests := &fakeRegistry{}
	manifests.add("com.example.sketchy", false, permReadSMS, permCamera)

	scanner := NewThreatScanner(
		ThreatScannerConfig{Workers: 1, AIThreshold: DefaultAIThreshold},
		listed,
		NewFeatureExtractor(manifests, testLogger),
		nil,
		NewRootDetector(afero.NewMemMapFs(), nil, testLogger),
		testLogger,
	)
	res, err := scanner.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Threats) != 1 || res.Threats[0].RiskLevel != models.RiskLevelMedium {
		t.Fatalf("got %+v, want one medium finding from the extractor's metadata", res.Threats)
	}
}

func TestScanParallelPreservesEmissionOrder(t *testing.T) {
	reg := &fakeRegistry{}
	var want []string
	for i := 0; i < 40; i++ {
		pkg := fmt.Sprintf("com.example.app%02d", i)
		perms := []string{permCamera}
		if i%3 == 0 {
			perms = append(perms, permReadSMS)
		}
		if i%7 == 0 {
			perms = append(perms, permRecordAudio)
		}
		reg.add(pkg, false, perms...)
		want = append(want, pkg)
	}
	opener := &fakeOpener{score: scoreWhen(permRecordAudio, 0.97)}

	seq, err := newScanner(reg, opener, nil, 1).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("sequential Scan: %v", err)
	}
	par, err := newScanner(reg, opener, nil, 8).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("parallel Scan: %v", err)
	}

	if len(seq.Threats) != len(want) || len(par.Threats) != len(want) {
		t.Fatalf("got %d/%d threats, want %d", len(seq.Threats), len(par.Threats), len(want))
	}
	seen := map[string]bool{}
	for i := range want {
		if seq.Threats[i] != par.Threats[i] {
			t.Fatalf("threat %d differs: %+v vs %+v", i, seq.Threats[i], par.Threats[i])
		}
		if par.Threats[i].PackageName != want[i] {
			t.Errorf("threat %d = %s, want %s", i, par.Threats[i].PackageName, want[i])
		}
		if seen[want[i]] {
			t.Errorf("duplicate package %s", want[i])
		}
		seen[want[i]] = true
	}
}

func TestScanPermissionMonotonicity(t *testing.T) {
	levels := map[int]models.RiskLevel{}
	for count := 1; count <= 4; count++ {
		reg := &fakeRegistry{}
		reg.add("com.example.app", false, models.DangerousPermissions[:count]...)
		res, err := newScanner(reg, nil, nil, 1).Scan(context.Background(), nil)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(res.Threats) != 1 {
			t.Fatalf("count %d: got %d threats", count, len(res.Threats))
		}
		levels[count] = res.Threats[0].RiskLevel
	}
	if levels[1] != models.RiskLevelLow {
		t.Errorf("1 permission = %s, want low", levels[1])
	}
	for count := 2; count <= 4; count++ {
		if levels[count] != models.RiskLevelMedium {
			t.Errorf("%d permissions = %s, want medium", count, levels[count])
		}
	}
}

func TestScanListFailureAndCancellation(t *testing.T) {
	reg := &fakeRegistry{listErr: errors.New("registry offline")}
	if _, err := newScanner(reg, nil, nil, 1).Scan(context.Background(), nil); err == nil {
		t.Fatal("expected registry error")
	}

	reg = &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newScanner(reg, nil, nil, 2).Scan(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestScanPackage(t *testing.T) {
	reg := &fakeRegistry{}
	reg.add("com.example.sketchy", false, permReadSMS, permCamera)
	reg.add("com.android.phone", true, permReadSMS)
	s := newScanner(reg, nil, nil, 1)

	got, err := s.ScanPackage(context.Background(), "com.example.sketchy", nil)
	if err != nil || got == nil || got.RiskLevel != models.RiskLevelMedium {
		t.Fatalf("ScanPackage = %+v, %v", got, err)
	}
	for _, pkg := range []string{"com.android.phone", "com.example.missing"} {
		if got, err := s.ScanPackage(context.Background(), pkg, nil); err != nil || got != nil {
			t.Errorf("ScanPackage(%s) = %+v, %v; want nil", pkg, got, err)
		}
	}
	wl := map[string]struct{}{"com.example.sketchy": {}}
	if got, _ := s.ScanPackage(context.Background(), "com.example.sketchy", wl); got != nil {
		t.Error("whitelisted package must yield nil")
	}
}

func TestDeduplicateThreatsKeepsFirst(t *testing.T) {
	in := []models.Threat{
		{PackageName: "a", ThreatType: models.ThreatTypeAIAnalysis},
		{PackageName: "b"},
		{PackageName: "a", ThreatType: models.ThreatTypePermission},
	}
	out := DeduplicateThreats(in, testLogger)
	if len(out) != 2 || out[0].ThreatType != models.ThreatTypeAIAnalysis || out[1].PackageName != "b" {
		t.Fatalf("DeduplicateThreats = %+v", out)
	}
}
