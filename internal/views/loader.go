package views

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// builtins are the views every install has, in listing order.
var builtins = []func() *View{DefaultView, AllView}

func builtin(name string) *View {
	for _, mk := range builtins {
		if v := mk(); v.Name == name {
			return v
		}
	}
	return nil
}

// SetupViewsFolder creates viewsDir and writes the built-in views into it so
// they can be edited. It reports false when the folder already existed.
func SetupViewsFolder(viewsDir string) (bool, error) {
	if _, err := os.Stat(viewsDir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(viewsDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create views folder: %w", err)
	}
	for _, mk := range builtins {
		v := mk()
		data, err := yaml.Marshal(v)
		if err != nil {
			return false, err
		}
		if err := os.WriteFile(filepath.Join(viewsDir, v.Name+".yaml"), data, 0644); err != nil {
			return false, fmt.Errorf("failed to write view %s: %w", v.Name, err)
		}
	}
	return true, nil
}

// ViewInfo describes one entry of ListViews.
type ViewInfo struct {
	Name        string
	Description string
	BuiltIn     bool
	Overrides   bool // a file in the views folder replaces the built-in
}

// Loader resolves view names against the views folder, then the built-ins.
type Loader struct {
	viewsDir string
}

func NewLoader(viewsDir string) *Loader {
	return &Loader{viewsDir: viewsDir}
}

// ValidateViewName rejects names that could escape the views folder.
func ValidateViewName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("view name cannot be empty")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid view name '%s': contains path separator", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("invalid view name '%s': cannot start with '.'", name)
	}
	return nil
}

// path returns the file a view would live in, or "" when there is no folder.
func (l *Loader) path(name string) (string, error) {
	if l.viewsDir == "" {
		return "", nil
	}
	if err := ValidateViewName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.viewsDir, name+".yaml"), nil
}

// LoadView returns the named view. An empty name means "default".
func (l *Loader) LoadView(name string) (*View, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}

	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	if p != "" {
		data, err := os.ReadFile(p)
		switch {
		case err == nil:
			return parseView(name, data)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read view '%s': %w", name, err)
		}
	}

	if v := builtin(name); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("view '%s' not found", name)
}

func parseView(name string, data []byte) (*View, error) {
	var v View
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse view '%s': %w", name, err)
	}
	if v.Name == "" {
		v.Name = name
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid view '%s': %w", name, err)
	}
	return &v, nil
}

// Validate checks field names, category and sort key.
func (v *View) Validate() error {
	if len(v.Fields) == 0 {
		return fmt.Errorf("view must have at least one field")
	}
	for _, f := range v.Fields {
		if !isAvailableField(f.Name) {
			return fmt.Errorf("unknown field: %s", f.Name)
		}
	}
	_, err := v.Options()
	return err
}

func isAvailableField(name string) bool {
	for _, f := range AvailableFields {
		if f == name {
			return true
		}
	}
	return false
}

// ListViews returns the built-ins followed by the custom views in the folder.
// Files that fail to parse are still listed, without a description.
func (l *Loader) ListViews() ([]ViewInfo, error) {
	var onDisk []string
	if l.viewsDir != "" {
		entries, err := os.ReadDir(l.viewsDir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read views directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
				onDisk = append(onDisk, strings.TrimSuffix(e.Name(), ".yaml"))
			}
		}
	}
	has := func(name string) bool {
		for _, n := range onDisk {
			if n == name {
				return true
			}
		}
		return false
	}
	describe := func(name, fallback string) string {
		if v, err := l.LoadView(name); err == nil {
			return v.Description
		}
		return fallback
	}

	var infos []ViewInfo
	for _, mk := range builtins {
		v := mk()
		info := ViewInfo{Name: v.Name, Description: v.Description, BuiltIn: true}
		if has(v.Name) {
			info = ViewInfo{Name: v.Name, Description: describe(v.Name, v.Description), Overrides: true}
		}
		infos = append(infos, info)
	}
	for _, name := range onDisk {
		if builtin(name) != nil {
			continue
		}
		infos = append(infos, ViewInfo{Name: name, Description: describe(name, "")})
	}
	return infos, nil
}
