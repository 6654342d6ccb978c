package skills

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, root, name string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, name, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("export {}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestList(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "web", "searchWeb.ts")
	writeSkill(t, root, "crypto", "fetchCryptoData.ts")
	writeSkill(t, root, ".hidden", "x.ts")
	if err := os.WriteFile(filepath.Join(root, "README.md"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := List(root)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "crypto,web" {
		t.Errorf("List = %v", got)
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "crypto", "a.ts")
	writeSkill(t, root, "web", "b.ts")

	got, err := Resolve(root, []string{" web ", "crypto", "web", ""})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "web,crypto" {
		t.Errorf("Resolve = %v", got)
	}

	_, err = Resolve(root, []string{"crypto", "weather", "stocks"})
	var unknown *UnknownError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want *UnknownError", err)
	}
	if err.Error() != "unknown skills requested: weather, stocks" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestTree(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "crypto", "fetch.ts", "lib/format.ts")

	got, err := Tree(filepath.Join(root, "crypto"))
	if err != nil {
		t.Fatal(err)
	}
	want := "crypto/\n  fetch.ts\n  lib/\n    format.ts\n"
	if got != want {
		t.Errorf("Tree =\n%s\nwant\n%s", got, want)
	}
}

func TestNewAction(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(src, "skills")
	writeSkill(t, root, "crypto", "fetchCryptoData.ts")
	writeSkill(t, root, "web", "searchWeb.ts")

	a, err := NewAction(src, root, []string{"crypto"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != ActionName {
		t.Errorf("name = %q", a.Name())
	}
	desc := a.Description()
	for _, want := range []string{`"skills"`, "crypto/\n  fetchCryptoData.ts", `"./skills/"`} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
	if strings.Contains(desc, "searchWeb") {
		t.Error("description lists a skill that was not allowed")
	}
	if len(a.Globals()) != 0 {
		t.Errorf("globals = %v", a.Globals())
	}

	if _, err := NewAction(src, root, nil); !errors.Is(err, ErrNoSkills) {
		t.Errorf("empty allow-list err = %v", err)
	}
	if _, err := NewAction(src, root, []string{"nope"}); err == nil {
		t.Error("unknown skill accepted")
	}
}

func TestBundledSkills(t *testing.T) {
	names, err := List(".")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "crypto,web" {
		t.Errorf("bundled skills = %v", names)
	}
}

func TestSources(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "crypto", "fetchCryptoData.ts", "lib/format.ts", ".cache/x.ts")
	writeSkill(t, root, "web", "searchWeb.ts")

	srcs, err := Sources(root, []string{"crypto"})
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, s := range srcs {
		if s.Skill != "crypto" || s.Content != "export {}\n" {
			t.Errorf("source = %+v", s)
		}
		paths = append(paths, s.Path)
	}
	if strings.Join(paths, ",") != "crypto/fetchCryptoData.ts,crypto/lib/format.ts" {
		t.Errorf("paths = %v", paths)
	}

	if _, err := Sources(root, []string{"missing"}); err == nil {
		t.Error("expected error for missing skill")
	}
}
