package settings

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoadDefaultsOnly(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	loader := NewLoaderWithFs(fs, "wt", "/repo")

	cfg, err := loader.Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Copy.Enabled {
		t.Error("Copy.Enabled = false, want true (default)")
	}
	if len(cfg.Copy.Flags) != 1 || cfg.Copy.Flags[0] != "-a" {
		t.Errorf("Copy.Flags = %v, want [-a]", cfg.Copy.Flags)
	}
	if !cfg.Link.BeforeCopy {
		t.Error("Link.BeforeCopy = false, want true (default)")
	}
}

func TestLoadRepoConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	repoConfig := []byte(`
[copy]
enabled = false
flags = ["-a", "--delete"]

[link]
patterns = ["package.json"]
`)
	if err := afero.WriteFile(fs, "/repo/.wt.toml", repoConfig, 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoaderWithFs(fs, "wt", "/repo")
	cfg, err := loader.Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Copy.Enabled {
		t.Error("Copy.Enabled = true, want false (overridden by repo config)")
	}
	if len(cfg.Copy.Flags) != 2 || cfg.Copy.Flags[1] != "--delete" {
		t.Errorf("Copy.Flags = %v, want [-a --delete]", cfg.Copy.Flags)
	}
	if len(cfg.Link.Patterns) != 1 || cfg.Link.Patterns[0] != "package.json" {
		t.Errorf("Link.Patterns = %v, want [package.json]", cfg.Link.Patterns)
	}

	prov := loader.Provenance()
	if prov["copy.enabled"] != "repo" {
		t.Errorf("provenance[copy.enabled] = %q, want repo", prov["copy.enabled"])
	}
	if prov["link.beforeCopy"] != "default" {
		t.Errorf("provenance[link.beforeCopy] = %q, want default (untouched by repo config)", prov["link.beforeCopy"])
	}
}

func TestLoadCLIOverridesWinOverRepoConfig(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	repoConfig := []byte(`
[link]
relative = false
`)
	if err := afero.WriteFile(fs, "/repo/.wt.toml", repoConfig, 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoaderWithFs(fs, "wt", "/repo")
	cli := map[string]interface{}{
		"link": map[string]interface{}{"relative": true},
	}
	cfg, err := loader.Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Link.Relative {
		t.Error("Link.Relative = false, want true (CLI override wins)")
	}
	if loader.Provenance()["link.relative"] != "cli" {
		t.Errorf("provenance[link.relative] = %q, want cli", loader.Provenance()["link.relative"])
	}
}

func TestDiscoverManifestEmbedsIntoPackageJSON(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	manifest := []byte(`{
  "name": "example",
  "wt": {
    "link": {
      "patterns": ["tsconfig.json"]
    }
  }
}`)
	if err := afero.WriteFile(fs, "/repo/package.json", manifest, 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoaderWithFs(fs, "wt", "/repo")
	cfg, err := loader.Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Link.Patterns) != 1 || cfg.Link.Patterns[0] != "tsconfig.json" {
		t.Errorf("Link.Patterns = %v, want [tsconfig.json]", cfg.Link.Patterns)
	}
}

func TestArraysReplaceRatherThanConcatenateAcrossLayers(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	repoConfig := []byte(`
[copy]
exclude = ["node_modules"]
`)
	if err := afero.WriteFile(fs, "/repo/.wt.toml", repoConfig, 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoaderWithFs(fs, "wt", "/repo")
	cli := map[string]interface{}{
		"copy": map[string]interface{}{"exclude": []interface{}{"dist"}},
	}
	cfg, err := loader.Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Copy.Exclude) != 1 || cfg.Copy.Exclude[0] != "dist" {
		t.Errorf("Copy.Exclude = %v, want [dist] (replaced, not concatenated)", cfg.Copy.Exclude)
	}
}
