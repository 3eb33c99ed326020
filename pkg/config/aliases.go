package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/v2"
)

// Alias maps an import prefix onto a directory inside the workspace
type Alias struct {
	Prefix string // e.g. "@/"
	Dir    string // workspace-relative, slash-separated, e.g. "src"
	AbsDir string
}

// NewAliasTable validates an alias map and orders it longest prefix first so
// that "@/components/" is tried before "@/".
func NewAliasTable(workspace string, aliases map[string]string) ([]Alias, error) {
	table := make([]Alias, 0, len(aliases))
	for prefix, dir := range aliases {
		if strings.TrimSpace(prefix) == "" {
			return nil, &ConfigError{Field: "aliases", Value: prefix, Err: errors.New("alias prefix cannot be empty")}
		}
		if strings.TrimSpace(dir) == "" {
			return nil, &ConfigError{Field: "aliases", Value: prefix, Err: errors.New("alias target cannot be empty")}
		}
		if filepath.IsAbs(dir) {
			return nil, &ConfigError{Field: "aliases", Value: dir, Err: errors.New("alias target must be relative to the workspace")}
		}

		abs := filepath.Join(workspace, filepath.FromSlash(dir))
		if !within(workspace, abs) {
			return nil, &ConfigError{Field: "aliases", Value: dir, Err: errors.New("alias target escapes the workspace")}
		}

		rel, _ := filepath.Rel(workspace, abs)
		table = append(table, Alias{
			Prefix: prefix,
			Dir:    filepath.ToSlash(rel),
			AbsDir: abs,
		})
	}

	sort.Slice(table, func(i, j int) bool {
		if len(table[i].Prefix) != len(table[j].Prefix) {
			return len(table[i].Prefix) > len(table[j].Prefix)
		}
		return table[i].Prefix < table[j].Prefix
	})
	return table, nil
}

// LoadTSConfigAliases reads compilerOptions.paths from a tsconfig.json.
// A missing file yields no aliases; a file that cannot be parsed is an error.
//
//	"@/*": ["./src/*"]          -> "@/"  => "src/"
//	"~utils": ["src/lib/utils"] -> "~utils" => "src/lib/utils"
func LoadTSConfigAliases(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	parsed, err := json.Parser().Unmarshal(stripJSONComments(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	// Path keys contain "/" and "*", so use a delimiter they never do
	k := koanf.New("::")
	if err := k.Load(makeMapProvider(parsed), nil); err != nil {
		return nil, err
	}

	baseURL := k.String("compilerOptions::baseUrl")
	if baseURL == "" {
		baseURL = "."
	}
	baseDir := filepath.Join(filepath.Dir(path), filepath.FromSlash(baseURL))
	workspace := filepath.Dir(path)

	paths, ok := k.Get("compilerOptions::paths").(map[string]interface{})
	if !ok {
		return nil, nil
	}

	aliases := make(map[string]string, len(paths))
	for key, targets := range paths {
		list, ok := targets.([]interface{})
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("paths[%q] must be a non-empty array", key)
		}
		// Only the first target is used; fallbacks are rare in app code
		target, ok := list[0].(string)
		if !ok {
			return nil, fmt.Errorf("paths[%q] must contain strings", key)
		}

		prefix := strings.TrimSuffix(key, "*")
		target = strings.TrimSuffix(target, "*")

		abs := filepath.Join(baseDir, filepath.FromSlash(target))
		rel, err := filepath.Rel(workspace, abs)
		if err != nil {
			return nil, fmt.Errorf("paths[%q]: %w", key, err)
		}
		dir := filepath.ToSlash(rel)
		if strings.HasSuffix(prefix, "/") && dir != "." {
			dir += "/"
		}
		aliases[prefix] = dir
	}
	return aliases, nil
}

// stripJSONComments removes // and /* */ comments and trailing commas, which
// tsconfig files commonly contain.
func stripJSONComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(src) {
				i++
				out = append(out, src[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			i++
		case c == ',':
			// Drop the comma if the next significant byte closes a container
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
