package code

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// BlockedError is returned by Validator.Validate when code is rejected.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return e.Reason }

// rule inspects code and returns a rejection reason, or "" to pass.
type rule func(code string, allowed map[string]bool) string

// Validator is a textual pre-execution check for snippets bound for the
// subprocess runner. It matches literal-looking patterns only and is
// bypassable by obfuscation; the process boundary is the enforcement point.
//
// A Validator holds no mutable state and is safe for concurrent use.
type Validator struct {
	rules []rule
}

var (
	safeImports   = []string{"fs", "path"}
	importPattern = regexp.MustCompile(`(?:import|from)\s+(['"][^'"]+['"])`)
	fsReadPattern = regexp.MustCompile(`\b(?:readFileSync|readdirSync|statSync|existsSync)\s*\(\s*['"]([^'"]+)['"]`)
	lineSplit     = regexp.MustCompile(`\r?\n`)
)

var blocklist = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`\bchild_process\b`), "child_process is blocked"},
	{regexp.MustCompile(`\bBun\.spawn\b`), "Bun.spawn is blocked"},
	{regexp.MustCompile(`\bBun\.write\b`), "Bun.write is blocked"},
	{regexp.MustCompile(`\bprocess\.exit\b`), "process.exit is blocked"},
	{regexp.MustCompile(`\beval\s*\(`), "eval is blocked"},
	{regexp.MustCompile(`\bFunction\s*\(`), "Function() is blocked"},
	{regexp.MustCompile(`\bfetch\s*\(`), "fetch is blocked (use skills)"},
	{regexp.MustCompile(`\bwriteFile\b`), "writeFile is blocked"},
	{regexp.MustCompile(`\bunlink\b`), "unlink is blocked"},
	{regexp.MustCompile(`\brmSync\b`), "rmSync is blocked"},
}

// NewValidator builds a Validator for skills living in skillsDir, as seen
// from code executed in sourceRoot. Skill imports must use the relative form
// "./<rel>/<name>/...", e.g. "./skills/crypto/fetchCryptoData".
func NewValidator(sourceRoot, skillsDir string) (*Validator, error) {
	if !filepath.IsAbs(skillsDir) {
		skillsDir = filepath.Join(sourceRoot, skillsDir)
	}
	rel, err := filepath.Rel(sourceRoot, skillsDir)
	if err != nil {
		return nil, fmt.Errorf("skills dir: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("skills dir %q is outside source root %q", skillsDir, sourceRoot)
	}
	skillsRel := regexp.QuoteMeta("./" + filepath.ToSlash(rel))

	skillImport := regexp.MustCompile(`^['"]` + skillsRel + `/([^/'"]+)/.+['"]$`)
	skillPath := regexp.MustCompile(`^` + skillsRel + `/([^/]+)/.+`)

	v := &Validator{}
	v.rules = append(v.rules,
		importRule(skillImport),
		fsReadRule(skillPath),
	)
	for _, b := range blocklist {
		v.rules = append(v.rules, func(code string, _ map[string]bool) string {
			if b.pattern.MatchString(code) {
				return b.reason
			}
			return ""
		})
	}
	return v, nil
}

// Validate applies the rules in order and returns a *BlockedError naming the
// first violation, or nil. The same input always yields the same verdict.
func (v *Validator) Validate(code string, allowed []string) error {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = true
		}
	}
	for _, r := range v.rules {
		if reason := r(code, set); reason != "" {
			return &BlockedError{Reason: reason}
		}
	}
	return nil
}

// importRule admits the safe modules and imports of allowed skills.
func importRule(skillImport *regexp.Regexp) rule {
	return func(code string, allowed map[string]bool) string {
		for _, line := range lineSplit.Split(code, -1) {
			for _, m := range importPattern.FindAllStringSubmatch(strings.TrimSpace(line), -1) {
				spec := m[1]
				if isSafeImport(spec) {
					continue
				}
				if sm := skillImport.FindStringSubmatch(spec); sm != nil {
					if allowed[sm[1]] {
						continue
					}
					return "Blocked import from disallowed skill: " + sm[1]
				}
				return "Blocked import: " + spec
			}
		}
		return ""
	}
}

func isSafeImport(spec string) bool {
	name := strings.Trim(spec, `'"`)
	for _, s := range safeImports {
		if name == s && len(spec) == len(s)+2 {
			return true
		}
	}
	return false
}

// fsReadRule restricts literal read paths to allowed skill directories.
func fsReadRule(skillPath *regexp.Regexp) rule {
	return func(code string, allowed map[string]bool) string {
		for _, m := range fsReadPattern.FindAllStringSubmatch(code, -1) {
			p := m[1]
			sm := skillPath.FindStringSubmatch(p)
			if sm == nil {
				return "Blocked fs path: " + p
			}
			if !allowed[sm[1]] {
				return "Blocked fs access to disallowed skill: " + sm[1]
			}
		}
		return ""
	}
}
