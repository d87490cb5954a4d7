package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/config"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/llm"
	"github.com/opensymbolicai/opensymbolicai-cli/internal/store"
)

// openSettings creates the screen and applies its first model list.
func openSettings(t *testing.T, e *env) *settingsScreen {
	t.Helper()
	s := newSettingsScreen(e)
	s.SetSize(120, 40)
	msg := waitFor[modelsLoadedMsg](t, s.Init())
	s.Update(msg)
	return s
}

func TestSettingsLoadsModelsAndKeepsPreviousModel(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "openai", DefaultModel: "model-b"}, nil)
	s := openSettings(t, e)

	assert.Equal(t, "openai", s.provider())
	assert.Equal(t, []string{"model-a", "model-b"}, s.models)
	assert.Equal(t, "model-b", s.model())
	assert.Contains(t, s.View(), "model-b")
}

func TestSettingsDefaultsToFirstModel(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama", DefaultModel: "gone"}, nil)
	s := openSettings(t, e)
	assert.Equal(t, "model-a", s.model())
}

func TestSettingsModelStatuses(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
		s := newSettingsScreen(e)
		s.Init()
		assert.Contains(t, s.View(), "Loading...")
	})

	t.Run("empty", func(t *testing.T) {
		e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
		e.opts.Providers = mockRegistry()
		s := openSettings(t, e)
		assert.Contains(t, s.View(), "No models available")
	})

	t.Run("error", func(t *testing.T) {
		e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
		e.opts.Providers = func(config.Settings) *llm.Registry {
			reg := llm.NewRegistry(nil)
			reg.Register("ollama", &llm.MockClient{ListModelsFunc: func(context.Context) ([]string, error) {
				return nil, errors.New("connection refused")
			}})
			return reg
		}
		s := newSettingsScreen(e)
		_, cmd := s.Update(waitFor[modelsLoadedMsg](t, s.Init()))
		assert.Contains(t, s.View(), "Error: connection refused")
		assert.Equal(t, "Error loading models: connection refused", waitFor[noticeMsg](t, cmd).text)
	})
}

func TestSettingsMissingKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	e := testEnv(t, config.Settings{DefaultProvider: "groq"}, nil)
	e.opts.Providers = func(s config.Settings) *llm.Registry {
		return llm.NewRegistryFromSettings(s, nil, nil)
	}
	s := newSettingsScreen(e)
	_, cmd := s.Update(waitFor[modelsLoadedMsg](t, s.Init()))

	notice := waitFor[noticeMsg](t, cmd)
	assert.Equal(t, "Set GROQ_API_KEY environment variable", notice.text)
	assert.True(t, notice.err)
	assert.Contains(t, s.View(), "Error: GROQ_API_KEY not set")
}

func TestSettingsProviderSwitchReloadsModels(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
	s := openSettings(t, e)

	s.Update(keyType(tea.KeyTab))
	assert.Equal(t, fieldProvider, s.focus)

	_, cmd := s.Update(keyType(tea.KeyRight))
	assert.Equal(t, "openai", s.provider())
	assert.Equal(t, loadingModels, s.modelStatus)
	msg := waitFor[modelsLoadedMsg](t, cmd)
	assert.Equal(t, "openai", msg.provider)

	// A reply to an earlier request is ignored.
	s.Update(modelsLoadedMsg{seq: msg.seq - 1, models: []string{"stale"}})
	assert.Equal(t, loadingModels, s.modelStatus)
	s.Update(msg)
	assert.Equal(t, "model-a", s.model())

	s.Update(keyType(tea.KeyLeft))
	assert.Equal(t, "ollama", s.provider())
	s.Update(keyType(tea.KeyShiftTab))
	assert.Equal(t, fieldFolder, s.focus)
	s.Update(keyType(tea.KeyShiftTab))
	assert.Equal(t, fieldModel, s.focus)
}

func TestSettingsModelCycling(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
	s := openSettings(t, e)
	s.setFocus(fieldModel)

	s.Update(keyType(tea.KeyRight))
	assert.Equal(t, "model-b", s.model())
	s.Update(keyType(tea.KeyRight))
	assert.Equal(t, "model-a", s.model())
	s.Update(keyType(tea.KeyLeft))
	assert.Equal(t, "model-b", s.model())
}

func TestSettingsSave(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama", DebugMode: true}, nil)
	s := openSettings(t, e)

	s.folder.SetValue("")
	typeText(t, s, "  ~/agents ")
	s.setFocus(fieldModel)
	s.Update(keyType(tea.KeyRight))

	_, cmd := s.Update(keyType(tea.KeyCtrlS))
	saved := waitFor[saveSettingsMsg](t, cmd)
	assert.Equal(t, "~/agents", saved.settings.AgentsFolder)
	assert.Equal(t, "ollama", saved.settings.DefaultProvider)
	assert.Equal(t, "model-b", saved.settings.DefaultModel)
	assert.True(t, saved.settings.DebugMode, "fields the screen does not edit are kept")
	assert.True(t, saved.rescan)
	assert.Equal(t, "Settings saved: ollama/model-b", saved.notice)

	waitFor[popMsg](t, cmd)
}

func TestSettingsSaveWhileLoadingKeepsModel(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama", DefaultModel: "model-x"}, nil)
	s := newSettingsScreen(e)
	s.Init()

	_, cmd := s.Update(keyType(tea.KeyCtrlS))
	assert.Equal(t, "model-x", waitFor[saveSettingsMsg](t, cmd).settings.DefaultModel)
}

func TestSettingsCancel(t *testing.T) {
	e := testEnv(t, config.Settings{}, nil)
	s := openSettings(t, e)
	_, cmd := s.Update(keyType(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.Equal(t, popMsg{}, cmd())
}

func TestSettingsBrowseForFolder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agents", "inner"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o644))

	e := testEnv(t, config.Settings{AgentsFolder: root}, nil)
	s := openSettings(t, e)

	s.Update(keyType(tea.KeyCtrlB))
	require.True(t, s.browsing)
	assert.Equal(t, root, s.browser.dir)
	assert.Equal(t, []string{useFolderLabel, "..", "agents" + string(filepath.Separator)}, s.browser.rows())

	s.Update(keyType(tea.KeyDown))
	s.Update(keyType(tea.KeyDown))
	s.Update(keyType(tea.KeyEnter))
	assert.Equal(t, filepath.Join(root, "agents"), s.browser.dir)

	s.Update(keyType(tea.KeyEnter))
	assert.False(t, s.browsing)
	assert.Equal(t, filepath.Join(root, "agents"), s.folder.Value())

	s.Update(keyType(tea.KeyCtrlB))
	s.Update(keyType(tea.KeyBackspace))
	assert.Equal(t, root, s.browser.dir)
	s.Update(keyType(tea.KeyEsc))
	assert.False(t, s.browsing)
	assert.Equal(t, filepath.Join(root, "agents"), s.folder.Value(), "closing the browser keeps the folder")
}

func TestSettingsConnectionTest(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
	s := openSettings(t, e)

	_, cmd := s.Update(keyType(tea.KeyCtrlT))
	assert.True(t, s.testing)
	assert.Contains(t, s.View(), "Testing connection...")

	done := waitFor[pingDoneMsg](t, cmd)
	require.NoError(t, done.err)
	_, cmd = s.Update(done)
	assert.False(t, s.testing)
	assert.Contains(t, waitFor[noticeMsg](t, cmd).text, "Connection OK: ollama/model-a")
}

func TestSettingsConnectionTestNeedsModel(t *testing.T) {
	e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
	e.opts.Providers = mockRegistry()
	s := openSettings(t, e)

	_, cmd := s.Update(keyType(tea.KeyCtrlT))
	assert.Equal(t, "Select a model first", waitFor[noticeMsg](t, cmd).text)
	assert.False(t, s.testing)
}

func TestSettingsUsesModelCache(t *testing.T) {
	db, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var calls atomic.Int32
	e := testEnv(t, config.Settings{DefaultProvider: "ollama"}, nil)
	e.opts.Models = store.NewModelCache(db)
	e.opts.Providers = func(config.Settings) *llm.Registry {
		reg := llm.NewRegistry(nil)
		reg.Register("ollama", &llm.MockClient{ListModelsFunc: func(context.Context) ([]string, error) {
			calls.Add(1)
			return []string{"llama3"}, nil
		}})
		return reg
	}

	openSettings(t, e)
	s := openSettings(t, e)
	assert.Equal(t, "llama3", s.model())
	assert.Equal(t, int32(1), calls.Load())

	_, cmd := s.Update(keyType(tea.KeyCtrlR))
	s.Update(waitFor[modelsLoadedMsg](t, cmd))
	assert.Equal(t, int32(2), calls.Load())
}
