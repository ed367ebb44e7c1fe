package settingsdoc

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	d := New()
	if err := d.Put("theme", "dark"); err != nil {
		t.Fatal(err)
	}
	v, ok := d.Get("theme")
	if !ok || v != "dark" {
		t.Fatalf("expected theme=dark, got %q ok=%v", v, ok)
	}
}

func TestNestedDottedKey(t *testing.T) {
	d := New()
	if err := d.PutList("envs.uv.default_packages", []string{"numpy", "pandas"}); err != nil {
		t.Fatal(err)
	}
	pkgs, ok := d.GetList("envs.uv.default_packages")
	if !ok {
		t.Fatal("expected envs.uv.default_packages to exist")
	}
	if len(pkgs) != 2 || pkgs[0] != "numpy" || pkgs[1] != "pandas" {
		t.Fatalf("unexpected packages: %v", pkgs)
	}
}

func TestApplyJSONChangesIsIdempotent(t *testing.T) {
	d := New()
	raw := []byte(`{"theme":"dark","default_runtime":"python"}`)
	changed, err := d.ApplyJSONChanges(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected first apply to report a change")
	}
	changed, err = d.ApplyJSONChanges(raw)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected re-applying identical JSON to report no change")
	}
}

func TestLegacyCommaListMigration(t *testing.T) {
	d := New()
	changed, err := d.ApplyJSONChanges([]byte(`{"default_uv_packages":"numpy, pandas, scipy"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected legacy migration to report a change")
	}
	pkgs, ok := d.GetList("envs.uv.default_packages")
	if !ok || len(pkgs) != 3 {
		t.Fatalf("expected 3 migrated packages, got %v ok=%v", pkgs, ok)
	}
}

func TestParseKeyPathRejectsGarbage(t *testing.T) {
	if _, err := ParseKeyPath(""); err == nil {
		t.Fatal("expected empty key path to be rejected")
	}
	segs, err := ParseKeyPath("envs.uv.default_packages")
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %v", segs)
	}
}
