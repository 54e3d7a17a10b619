package rconkit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestAllowListFullMatch(t *testing.T) {
	a := NewAllowList(zaptest.NewLogger(t).Sugar())
	require.NoError(t, a.SetPatterns([]string{"^frank.*$"}))

	assert.True(t, a.IsAllowed("frankenstein"))
	assert.True(t, a.IsAllowed("frank is here"))
	assert.False(t, a.IsAllowed("mr frank"))
}

func TestAllowListImplicitAnchors(t *testing.T) {
	a := NewAllowList(nil)
	require.NoError(t, a.SetPatterns([]string{"say", "ban|kick"}))

	assert.True(t, a.IsAllowed("say"))
	assert.False(t, a.IsAllowed("sayx"))
	assert.False(t, a.IsAllowed("xsay"))
	assert.True(t, a.IsAllowed("kick"))
	assert.False(t, a.IsAllowed("kickban"))
	assert.Equal(t, []string{"say", "ban|kick"}, a.Patterns())
}

func TestAllowListEmptyDeniesAll(t *testing.T) {
	a := NewAllowList(nil)
	assert.False(t, a.IsAllowed(""))
	assert.False(t, a.IsAllowed("say"))
	assert.Equal(t, 0, a.Len())
}

func TestAllowListRefreshFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultAllowListFile)
	writeFile(t, path, "# admin commands\n\nsendback\r\nws_.*\n")

	a := NewAllowList(zaptest.NewLogger(t).Sugar())
	require.NoError(t, a.Refresh(path))

	assert.Equal(t, 2, a.Len())
	assert.True(t, a.IsAllowed("sendback"))
	assert.True(t, a.IsAllowed("ws_inventory"))
	assert.False(t, a.IsAllowed("# admin commands"))
}

func TestAllowListMissingFile(t *testing.T) {
	a := NewAllowList(zaptest.NewLogger(t).Sugar())
	require.NoError(t, a.SetPatterns([]string{"say"}))

	err := a.Refresh(filepath.Join(t.TempDir(), "missing.cfg"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindResource))
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.IsAllowed("say"))
}

func TestAllowListSkipsInvalidLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rcon.cfg")
	writeFile(t, path, "say\n(unclosed\nkick\n")

	a := NewAllowList(zaptest.NewLogger(t).Sugar())
	err := a.Refresh(path)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindResource))
	assert.Contains(t, err.Error(), "line 2")

	assert.Equal(t, []string{"say", "kick"}, a.Patterns())
	assert.True(t, a.IsAllowed("kick"))
}

func TestAllowListRefreshIsAtomic(t *testing.T) {
	a := NewAllowList(nil)
	oldSet := []string{"a1", "a2", "a3"}
	newSet := []string{"b1", "b2", "b3"}
	require.NoError(t, a.SetPatterns(oldSet))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := a.Patterns()
				if len(p) != 3 || (p[0] != "a1" && p[0] != "b1") || p[0][0] != p[2][0] {
					t.Errorf("observed mixed pattern set %v", p)
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			require.NoError(t, a.SetPatterns(newSet))
		} else {
			require.NoError(t, a.SetPatterns(oldSet))
		}
	}
	close(stop)
	wg.Wait()
}
