// Package skills describes the TypeScript skill library that snippets run by
// the subprocess runner may import. A skill is a directory under the skills
// root; its files are imported with relative paths from the source root.
package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	codeact "github.com/nevindra/codeact"
)

// ActionName is the tool name of the skills action.
const ActionName = "run_ts"

// ErrNoSkills is returned by NewAction when no skill is allowed.
var ErrNoSkills = errors.New("skills: no skills allowed")

// UnknownError lists requested skills that have no directory under the root.
type UnknownError struct {
	Names []string
}

func (e *UnknownError) Error() string {
	return "unknown skills requested: " + strings.Join(e.Names, ", ")
}

// List returns the skill names under root, sorted.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Resolve trims and deduplicates requested, preserving order, and checks
// every name against the skills under root.
func Resolve(root string, requested []string) ([]string, error) {
	available, err := List(root)
	if err != nil {
		return nil, err
	}
	var out, unknown []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) || slices.Contains(unknown, name) {
			continue
		}
		if !slices.Contains(available, name) {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, name)
	}
	if len(unknown) > 0 {
		return nil, &UnknownError{Names: unknown}
	}
	return out, nil
}

// Tree renders dir as an indented listing, one entry per line, two spaces
// per level. The first line is the directory's own name.
func Tree(dir string) (string, error) {
	var b strings.Builder
	b.WriteString(filepath.Base(dir) + "/\n")
	if err := writeTree(&b, dir, "  "); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeTree(b *strings.Builder, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("skills: read %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			b.WriteString(prefix + e.Name() + "/\n")
			if err := writeTree(b, filepath.Join(dir, e.Name()), prefix+"  "); err != nil {
				return err
			}
			continue
		}
		b.WriteString(prefix + e.Name() + "\n")
	}
	return nil
}

// Source is one file of a skill.
type Source struct {
	Skill   string
	Path    string // slash-separated, relative to the skills root
	Content string
}

// Sources returns the files of the named skills in walk order. Dotfiles and
// dot-directories are skipped.
func Sources(root string, names []string) ([]Source, error) {
	var out []Source
	for _, name := range names {
		dir := filepath.Join(root, name)
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, Source{Skill: name, Path: filepath.ToSlash(rel), Content: string(data)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("skills: read %s: %w", name, err)
		}
	}
	return out, nil
}

// NewAction returns the Free-form action through which the model writes
// snippets against the allowed skills. sourceRoot is the subprocess working
// directory and root the skills directory; unknown names are rejected.
func NewAction(sourceRoot, root string, allowed []string) (*codeact.FreeformAction, error) {
	names, err := Resolve(root, allowed)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoSkills
	}
	rel, err := filepath.Rel(sourceRoot, root)
	if err != nil {
		return nil, fmt.Errorf("skills: %w", err)
	}
	rel = filepath.ToSlash(rel)

	var tree strings.Builder
	for _, n := range names {
		t, err := Tree(filepath.Join(root, n))
		if err != nil {
			return nil, err
		}
		tree.WriteString(t)
	}
	return codeact.Freeform(ActionName, description(rel, tree.String()), nil), nil
}

func description(rel, tree string) string {
	return strings.Join([]string{
		"Execute TypeScript in a sandboxed Bun process.",
		fmt.Sprintf("The working directory is the project root. The %q directory holds the skill functions available for this task.", rel),
		"",
		"Skills directory layout:",
		strings.TrimRight(tree, "\n"),
		"",
		"Rules:",
		"- Read a skill's source file before calling it to learn its input schema.",
		fmt.Sprintf("- Import and read skills with paths starting at \"./%s/\".", rel),
		"- Omit file extensions (.ts, .js) in imports.",
		"- Network access is available only through skills. Do not use fetch, axios or other packages.",
		"- Print results with console.log(...).",
	}, "\n")
}
