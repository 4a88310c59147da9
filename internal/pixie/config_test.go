package pixie_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pixie/internal/pixie"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_LoadConfig_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		Env:             map[string]string{"HOME": filepath.Join(workDir, "home")},
	})
	require.NoError(t, err)

	require.Equal(t, "data", cfg.DataDir)
	require.Equal(t, "en", cfg.Locale)
	require.Equal(t, filepath.Join(workDir, "data"), cfg.DataDirAbs)
	require.Empty(t, cfg.Sources.Global)
	require.Empty(t, cfg.Sources.Project)
}

func Test_LoadConfig_Project_Overrides_Global(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	home := filepath.Join(workDir, "home")

	writeConfig(t, filepath.Join(home, ".config", "pixie", "config.json"),
		`{"data_dir": "global-data", "locale": "fr"}`)
	writeConfig(t, filepath.Join(workDir, pixie.ConfigFileName),
		`{
			// project config wins
			"data_dir": "project-data",
		}`)

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		Env:             map[string]string{"HOME": home},
	})
	require.NoError(t, err)

	require.Equal(t, "project-data", cfg.DataDir)

	// Fields the project file does not set keep the global value.
	require.Equal(t, "fr", cfg.Locale)

	require.NotEmpty(t, cfg.Sources.Global)
	require.NotEmpty(t, cfg.Sources.Project)
}

func Test_LoadConfig_XDG_Config_Home_Wins_Over_Home(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	xdg := filepath.Join(workDir, "xdg")

	writeConfig(t, filepath.Join(xdg, "pixie", "config.json"), `{"locale": "ja"}`)

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		Env: map[string]string{
			"XDG_CONFIG_HOME": xdg,
			"HOME":            filepath.Join(workDir, "home"),
		},
	})
	require.NoError(t, err)

	require.Equal(t, "ja", cfg.Locale)
}

func Test_LoadConfig_CLI_Override_Wins(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	writeConfig(t, filepath.Join(workDir, pixie.ConfigFileName), `{"data_dir": "project-data"}`)

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		DataDirOverride: "/srv/pixie",
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	require.Equal(t, "/srv/pixie", cfg.DataDirAbs)
}

func Test_LoadConfig_Explicit_Config_Must_Exist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	_, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		ConfigPath:      filepath.Join(workDir, "missing.json"),
		Env:             map[string]string{},
	})
	require.ErrorContains(t, err, "not found")
}

func Test_Config_Dataset_Paths(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	require.Equal(t, filepath.Join(workDir, "data", "library.pixie.db"), cfg.StorePath("library"))
	require.Equal(t, filepath.Join(workDir, "data", "library.jsonc"), cfg.SchemaPath("library"))
}

func Test_Datasets_Lists_Schema_Files(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	writeConfig(t, filepath.Join(workDir, "data", "library.jsonc"), `{"code": "library", "tables": []}`)
	writeConfig(t, filepath.Join(workDir, "data", "movies.jsonc"), `{"code": "movies", "tables": []}`)
	writeConfig(t, filepath.Join(workDir, "data", "notes.txt"), "not a schema")

	cfg, err := pixie.LoadConfig(pixie.LoadConfigInput{
		WorkDirOverride: workDir,
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	codes, err := pixie.Datasets(cfg)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"library", "movies"}, codes)
}
