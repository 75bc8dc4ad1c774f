package ruleimport

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/cardsync/internal/kv"
	"github.com/starford/cardsync/internal/linkage"
	"github.com/starford/cardsync/internal/storekey"
	"github.com/starford/cardsync/internal/transform"
)

const speedRules = `
rules:
  - id: speed
    name: Speed titles
    source: source
    target: tenant-a
    cards:
      - source: A
        target: C
        fields:
          - source: title
          - source: options.0.value
            target: options.1.value
            transform: percentage
            enabled: false
  - name: Second
    source: source
    target: tenant-b
    enabled: false
    cards:
      - source: B
        target: B
        fields:
          - source: title
`

func testEnv(t *testing.T) (string, *Importer, *linkage.Store) {
	t.Helper()
	root := t.TempDir()
	dir, err := NewDir(root)
	if err != nil {
		t.Fatal(err)
	}
	store := kv.NewMemory()
	codec := storekey.NewCodec("", "v1")
	rules := linkage.NewStore(store, codec)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return root, NewImporter(dir, rules, store, codec, transform.NewRegistry(), logger), rules
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestParse(t *testing.T) {
	rules, err := Parse("speed.yaml", []byte(speedRules))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	r := rules[0]
	if r.ID != "speed" || !r.Enabled || r.SourceModeID != "source" || r.TargetModeID != "tenant-a" {
		t.Errorf("unexpected first rule: %+v", r)
	}
	fms := r.CardMappings[0].FieldMappings
	if fms[0].TargetField != "title" || !fms[0].Enabled {
		t.Errorf("target should default to source and enabled to true: %+v", fms[0])
	}
	if fms[1].Enabled || fms[1].Transform != "percentage" {
		t.Errorf("unexpected second mapping: %+v", fms[1])
	}
	if rules[1].ID == "" || rules[1].Enabled {
		t.Errorf("second rule should get a derived id and stay disabled: %+v", rules[1])
	}

	again, _ := Parse("speed.yaml", []byte(speedRules))
	if again[1].ID != rules[1].ID {
		t.Error("derived id must be stable across parses")
	}
}

func TestParseSingleRule(t *testing.T) {
	rules, err := Parse("one.yml", []byte("name: one\nsource: source\ntarget: t\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].Name != "one" {
		t.Fatalf("got %+v", rules)
	}
	if _, err := Parse("bad.yaml", []byte("rules: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	rules, err := Parse("speed.yaml", []byte(speedRules))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(rules...)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse("other.yaml", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[1].ID != rules[1].ID || back[1].Enabled {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if back[0].CardMappings[0].FieldMappings[1].Enabled {
		t.Error("disabled mapping came back enabled")
	}
}

func TestSyncImportsUpdatesAndRemoves(t *testing.T) {
	root, im, rules := testEnv(t)
	writeFile(t, filepath.Join(root, "speed.yaml"), speedRules)
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	rep, err := im.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Imported) != 1 || rep.Imported[0] != "speed.yaml" {
		t.Fatalf("imported = %v", rep.Imported)
	}
	all, _ := rules.Load()
	if len(all) != 2 {
		t.Fatalf("got %d rules, want 2", len(all))
	}

	rep, err = im.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Changed() {
		t.Errorf("unchanged dir should be a no-op: %+v", rep)
	}

	writeFile(t, filepath.Join(root, "speed.yaml"), "id: speed\nname: Renamed\nsource: source\ntarget: tenant-a\n")
	if _, err := im.Sync(); err != nil {
		t.Fatal(err)
	}
	all, _ = rules.Load()
	if len(all) != 1 || all[0].Name != "Renamed" {
		t.Fatalf("after edit: %+v", all)
	}

	if err := os.Remove(filepath.Join(root, "speed.yaml")); err != nil {
		t.Fatal(err)
	}
	rep, err = im.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Removed) != 1 {
		t.Errorf("removed = %v", rep.Removed)
	}
	all, _ = rules.Load()
	if len(all) != 0 {
		t.Errorf("rules of a removed file must be deleted: %+v", all)
	}
}

func TestSyncKeepsRulesOfBrokenFile(t *testing.T) {
	root, im, rules := testEnv(t)
	path := filepath.Join(root, "speed.yaml")
	writeFile(t, path, speedRules)
	if _, err := im.Sync(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "rules: [")
	rep, err := im.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Failed) != 1 {
		t.Errorf("failed = %v", rep.Failed)
	}
	all, _ := rules.Load()
	if len(all) != 2 {
		t.Errorf("broken file should keep its rules, got %d", len(all))
	}
}

func TestSyncSkipsInvalidRule(t *testing.T) {
	root, im, rules := testEnv(t)
	writeFile(t, filepath.Join(root, "self.yaml"), "name: self\nsource: source\ntarget: source\n")
	if _, err := im.Sync(); err != nil {
		t.Fatal(err)
	}
	all, _ := rules.Load()
	if len(all) != 0 {
		t.Errorf("self-sync rule must be rejected: %+v", all)
	}
}

func TestSyncRejectsUnknownTransform(t *testing.T) {
	root, im, rules := testEnv(t)
	writeFile(t, filepath.Join(root, "mixed.yaml"), `
rules:
  - id: good
    name: Good
    source: source
    target: tenant-a
    cards:
      - source: A
        target: A
        fields:
          - source: options.0.value
            transform: percentage
  - id: typo
    name: Typo
    source: source
    target: tenant-a
    cards:
      - source: A
        target: A
        fields:
          - source: options.0.value
            transform: percentge
`)
	if _, err := im.Sync(); err != nil {
		t.Fatal(err)
	}
	all, _ := rules.Load()
	if len(all) != 1 || all[0].ID != "good" {
		t.Fatalf("only the rule with known transforms should import: %+v", all)
	}
}

func TestExport(t *testing.T) {
	root, im, rules := testEnv(t)
	saved, err := rules.Save(linkage.Rule{Name: "exported", SourceModeID: "source", TargetModeID: "t", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	name, err := im.Export(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(name, data)
	if err != nil || len(back) != 1 || back[0].ID != saved.ID {
		t.Fatalf("exported file did not parse back: %v %+v", err, back)
	}
}

func TestDirRejectsEscapes(t *testing.T) {
	_, im, _ := testEnv(t)
	if _, err := im.Dir().Read("../outside.yaml"); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if err := im.Dir().Write("/abs.yaml", nil); err == nil {
		t.Error("expected absolute path to be rejected")
	}
}

func TestWatch(t *testing.T) {
	root, im, rules := testEnv(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reports []Report
	go Watch(ctx, im, 50*time.Millisecond, logger, func(rep Report) {
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(root, "nested", "speed.yaml"), speedRules)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		all, _ := rules.Load()
		return len(all) == 2
	}, "rule file in new subdir not imported by watcher")

	_ = os.RemoveAll(filepath.Join(root, "nested"))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		all, _ := rules.Load()
		return len(all) == 0
	}, "rules of deleted file not removed by watcher")

	mu.Lock()
	defer mu.Unlock()
	if len(reports) == 0 {
		t.Error("expected sync callbacks")
	}
}
