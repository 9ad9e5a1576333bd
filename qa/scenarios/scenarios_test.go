package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/induction/core/model"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected unmarshal error")
	}
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("name: empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Fatal("expected fleet size error")
	}
}

func TestOverrideListOrder(t *testing.T) {
	sc := &Scenario{Name: "x", Overrides: []OverrideDef{
		{Trainset: "TS-001", Status: "standby"},
		{Trainset: "TS-001", Status: "revenue_service"},
	}}
	active := model.ActiveOverrides(sc.OverrideList())
	if got := active["TS-001"].Status; got != model.StatusService {
		t.Fatalf("latest override should win, got %s", got)
	}
}
