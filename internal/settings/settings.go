// Package settings resolves a worktree's copy/link/setup configuration from
// layered sources, mirroring the teacher's LoadRepoConfig default-fallback
// idiom but generalized to multiple sources with explicit precedence.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	wt "github.com/kdunlap/wt"
)

// WorktreeConfig is the resolved `worktree` configuration section.
type WorktreeConfig struct {
	DefaultParent        string
	RebaseOnAdd          bool
	DeleteBranchOnRemove string // "none", "local", or "remote"
}

// Config is the fully merged, typed configuration consumed by the Setup
// Orchestrator and the auxiliary commands.
type Config struct {
	Copy     wt.CopyConfig
	Link     wt.LinkConfig
	Worktree WorktreeConfig
}

// manifestKeys maps a manifest filename to the dotted path under which this
// tool's settings are expected to live in that ecosystem's native manifest.
var manifestKeys = map[string]string{
	"pyproject.toml": "tool.wt",
	"Cargo.toml":      "package.metadata.wt",
	"composer.json":   "extra.wt",
	"package.json":    "wt",
	"deno.json":       "wt",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"copy": map[string]interface{}{
			"enabled": true,
			"flags":   []interface{}{"-a"},
			"exclude": []interface{}{},
		},
		"link": map[string]interface{}{
			"patterns":   []interface{}{},
			"relative":   false,
			"beforeCopy": true,
		},
		"worktree": map[string]interface{}{
			"defaultParent":        "",
			"rebaseOnAdd":          true,
			"deleteBranchOnRemove": "none",
		},
	}
}

// layer is one contributor to the merged configuration, in ascending
// priority order. Name is recorded per leaf key into the Loader's
// provenance map so `config print` can explain where each value came from.
type layer struct {
	name string
	data map[string]interface{}
}

// Loader resolves layered configuration for one repository. toolName scopes
// the global config directory and the key each manifest embeds settings
// under (e.g. "wt").
type Loader struct {
	fs         afero.Fs
	toolName   string
	repoPath   string
	provenance map[string]string
}

// NewLoader creates a Loader backed by the real OS filesystem.
func NewLoader(toolName, repoPath string) *Loader {
	return NewLoaderWithFs(afero.NewOsFs(), toolName, repoPath)
}

// NewLoaderWithFs creates a Loader over a custom afero.Fs, letting tests
// substitute an in-memory filesystem instead of touching disk.
func NewLoaderWithFs(fs afero.Fs, toolName, repoPath string) *Loader {
	return &Loader{fs: fs, toolName: toolName, repoPath: repoPath, provenance: make(map[string]string)}
}

// Load resolves the final Config by merging, from lowest to highest
// priority: built-in defaults, the user's global config file, any
// discovered project-manifest embedding, the repository's own config file,
// environment variables, and finally cliOverrides. Arrays are replaced
// wholesale by a higher-priority layer, not concatenated -- that
// concatenating behavior belongs to the orchestrator's per-invocation
// override merge, not to this loader.
func (l *Loader) Load(cliOverrides map[string]interface{}) (Config, error) {
	layers := []layer{{name: "default", data: defaults()}}

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".config", l.toolName, "config.toml")
		if data, ok := l.readTOMLFile(globalPath); ok {
			layers = append(layers, layer{name: "global", data: data})
		}
	}

	if name, data, ok := l.discoverManifest(); ok {
		layers = append(layers, layer{name: "manifest:" + name, data: data})
	}

	repoConfigPath := filepath.Join(l.repoPath, "."+l.toolName+".toml")
	if data, ok := l.readTOMLFile(repoConfigPath); ok {
		layers = append(layers, layer{name: "repo", data: data})
	}

	if envData := l.readEnv(); len(envData) > 0 {
		layers = append(layers, layer{name: "env", data: envData})
	}

	if len(cliOverrides) > 0 {
		layers = append(layers, layer{name: "cli", data: cliOverrides})
	}

	merged := map[string]interface{}{}
	for _, lyr := range layers {
		l.mergeInto(merged, lyr.data, lyr.name, "")
	}

	return decode(merged), nil
}

// Provenance returns the layer name that supplied the current value of each
// dotted leaf key, e.g. "copy.enabled" -> "repo".
func (l *Loader) Provenance() map[string]string {
	out := make(map[string]string, len(l.provenance))
	for k, v := range l.provenance {
		out[k] = v
	}
	return out
}

// mergeInto deep-merges src into dst in place: nested objects merge
// key-by-key, everything else (including arrays) is replaced. Every leaf
// key touched is stamped with sourceName in the provenance map.
func (l *Loader) mergeInto(dst, src map[string]interface{}, sourceName, prefix string) {
	for k, v := range src {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if srcMap, ok := v.(map[string]interface{}); ok {
			dstMap, ok := dst[k].(map[string]interface{})
			if !ok {
				dstMap = map[string]interface{}{}
				dst[k] = dstMap
			}
			l.mergeInto(dstMap, srcMap, sourceName, path)
			continue
		}
		dst[k] = v
		l.provenance[path] = sourceName
	}
}

func (l *Loader) readTOMLFile(path string) (map[string]interface{}, bool) {
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, false
	}
	var data map[string]interface{}
	if err := toml.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	return data, true
}

// discoverManifest looks for a project manifest embedding this tool's
// configuration under its native key (manifestKeys) and returns the
// extracted sub-tree using Viper as the format-aware decoder, since the
// manifest's own format (TOML, JSON) varies by ecosystem.
func (l *Loader) discoverManifest() (string, map[string]interface{}, bool) {
	for name, key := range manifestKeys {
		path := filepath.Join(l.repoPath, name)
		raw, err := afero.ReadFile(l.fs, path)
		if err != nil {
			continue
		}

		v := viper.New()
		switch filepath.Ext(name) {
		case ".toml":
			v.SetConfigType("toml")
		case ".json":
			v.SetConfigType("json")
		default:
			continue
		}
		if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
			continue
		}
		sub := v.Sub(key)
		if sub == nil {
			continue
		}
		return name, sub.AllSettings(), true
	}
	return "", nil, false
}

// readEnv reads WT_COPY_ENABLED, WT_LINK_PATTERNS (comma-separated),
// WT_LINK_RELATIVE, and friends into the same nested shape the other
// layers use.
func (l *Loader) readEnv() map[string]interface{} {
	data := map[string]interface{}{}
	env := func(name string) (string, bool) {
		v, ok := os.LookupEnv(l.envPrefix() + name)
		return v, ok
	}

	copySection := map[string]interface{}{}
	if v, ok := env("COPY_ENABLED"); ok {
		copySection["enabled"] = parseBool(v)
	}
	if v, ok := env("COPY_EXCLUDE"); ok {
		copySection["exclude"] = splitList(v)
	}
	if len(copySection) > 0 {
		data["copy"] = copySection
	}

	linkSection := map[string]interface{}{}
	if v, ok := env("LINK_PATTERNS"); ok {
		linkSection["patterns"] = splitList(v)
	}
	if v, ok := env("LINK_RELATIVE"); ok {
		linkSection["relative"] = parseBool(v)
	}
	if len(linkSection) > 0 {
		data["link"] = linkSection
	}

	return data
}

func (l *Loader) envPrefix() string {
	return strings.ToUpper(l.toolName) + "_"
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

func splitList(s string) []interface{} {
	parts := strings.Split(s, ",")
	out := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decode(merged map[string]interface{}) Config {
	var cfg Config

	if m, ok := merged["copy"].(map[string]interface{}); ok {
		cfg.Copy.Enabled, _ = m["enabled"].(bool)
		cfg.Copy.Flags = toStringSlice(m["flags"])
		cfg.Copy.Exclude = toStringSlice(m["exclude"])
	}
	if m, ok := merged["link"].(map[string]interface{}); ok {
		cfg.Link.Patterns = toStringSlice(m["patterns"])
		cfg.Link.Relative, _ = m["relative"].(bool)
		cfg.Link.BeforeCopy, _ = m["beforeCopy"].(bool)
	}
	if m, ok := merged["worktree"].(map[string]interface{}); ok {
		cfg.Worktree.DefaultParent, _ = m["defaultParent"].(string)
		cfg.Worktree.RebaseOnAdd, _ = m["rebaseOnAdd"].(bool)
		cfg.Worktree.DeleteBranchOnRemove, _ = m["deleteBranchOnRemove"].(string)
	}
	return cfg
}

func toStringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToJSON renders a Config for `config print`'s machine-readable mode.
func ToJSON(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// Watcher re-runs a Loader and calls onChange whenever the repository's own
// config file changes on disk. It wraps fsnotify directly rather than
// relying on Viper's built-in WatchConfig. Changes to the global config file
// or to a project manifest do not trigger a reload.
type Watcher struct {
	watcher *fsnotify.Watcher
	loader  *Loader
}

// NewWatcher creates a Watcher over the directory that holds the repository
// config file.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	repoConfigPath := filepath.Join(loader.repoPath, "."+loader.toolName+".toml")
	if err := fw.Add(filepath.Dir(repoConfigPath)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{watcher: fw, loader: loader}, nil
}

// Run blocks, calling onChange with the freshly reloaded Config each time a
// write or create event touches the repository config file. It returns when
// the watcher's event channel closes.
func (w *Watcher) Run(onChange func(Config, error)) {
	repoConfigName := "." + w.loader.toolName + ".toml"
	for event := range w.watcher.Events {
		if filepath.Base(event.Name) != repoConfigName {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		cfg, err := w.loader.Load(nil)
		onChange(cfg, err)
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
