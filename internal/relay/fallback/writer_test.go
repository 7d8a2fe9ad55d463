package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"form-relay/internal/common/logger"
)

// ==========================
// Mock Mirror
// ==========================

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Put(ctx context.Context, name string, body []byte) (string, error) {
	args := m.Called(ctx, name, body)
	return args.String(0), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

var fixedNow = time.UnixMilli(1717171717171)

func fixedClock() time.Time { return fixedNow }

func createContactPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":    "Zeynep Kaya",
		"email":   "zeynep@example.com",
		"subject": "Bilet",
		"message": "Merhaba,\ndeplasman biletleri ne zaman satışa çıkacak?",
		"consent": true,
	}
}

func readPayload(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// ==========================
// Write
// ==========================

func TestWrite_CreatesDirAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "submissions")
	w := NewWriter(dir, logger.NewTestLogger(t), WithClock(fixedClock))

	payload := createContactPayload()
	require.True(t, w.Write(context.Background(), "contact-form", payload))

	path := filepath.Join(dir, "contact-form-1717171717171.json")
	assert.Equal(t, payload, readPayload(t, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"email\": ", "payload must be indented")
}

func TestWrite_KeepsHTMLCharactersLiteral(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, logger.NewTestLogger(t), WithClock(fixedClock))

	payload := createContactPayload()
	payload["message"] = "<b>Fenerbahçe & Beşiktaş</b> maçı > 19:00"
	require.True(t, w.Write(context.Background(), "contact-form", payload))

	path := filepath.Join(dir, "contact-form-1717171717171.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message": "<b>Fenerbahçe & Beşiktaş</b> maçı > 19:00"`)
	assert.NotContains(t, string(raw), `\u003c`)
	assert.NotContains(t, string(raw), `\u0026`)
	assert.Equal(t, payload, readPayload(t, path))
}

func TestWrite_SameMillisecondDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, logger.NewTestLogger(t), WithClock(fixedClock))

	first := map[string]interface{}{"n": "1"}
	second := map[string]interface{}{"n": "2"}
	require.True(t, w.Write(context.Background(), "membership-form", first))
	require.True(t, w.Write(context.Background(), "membership-form", second))

	assert.Equal(t, first, readPayload(t, filepath.Join(dir, "membership-form-1717171717171.json")))
	assert.Equal(t, second, readPayload(t, filepath.Join(dir, "membership-form-1717171717171-1.json")))
}

func TestWrite_Concurrent(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, logger.NewNoOpLogger(), WithClock(fixedClock))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, w.Write(context.Background(), "contact-form", map[string]interface{}{"i": float64(i)}))
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, n)

	seen := map[float64]bool{}
	for _, e := range entries {
		seen[readPayload(t, filepath.Join(dir, e.Name()))["i"].(float64)] = true
	}
	assert.Len(t, seen, n)
}

func TestWrite_FailureReturnsFalse(t *testing.T) {
	// a regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "submissions")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(blocker, logger.NewTestLogger(t))
	assert.False(t, w.Write(context.Background(), "contact-form", createContactPayload()))
}

func TestWrite_UnencodablePayload(t *testing.T) {
	w := NewWriter(t.TempDir(), logger.NewTestLogger(t))
	assert.False(t, w.Write(context.Background(), "contact-form", map[string]interface{}{"ch": make(chan int)}))
}

// ==========================
// Mirror
// ==========================

func TestWrite_Mirror(t *testing.T) {
	m := new(MockMirror)
	m.On("Put", mock.Anything, "contact-form-1717171717171.json", mock.Anything).
		Return("submissions/contact-form-1717171717171.json", nil)

	w := NewWriter(t.TempDir(), logger.NewTestLogger(t), WithClock(fixedClock), WithMirror(m))
	assert.True(t, w.Write(context.Background(), "contact-form", createContactPayload()))
	m.AssertExpectations(t)
}

func TestWrite_MirrorFailureIsNotFatal(t *testing.T) {
	m := new(MockMirror)
	m.On("Put", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket unreachable"))

	w := NewWriter(t.TempDir(), logger.NewTestLogger(t), WithMirror(m))
	assert.True(t, w.Write(context.Background(), "contact-form", createContactPayload()))
	m.AssertExpectations(t)
}

func TestWrite_MirrorSkippedOnLocalFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	m := new(MockMirror)
	w := NewWriter(blocker, logger.NewTestLogger(t), WithMirror(m))
	assert.False(t, w.Write(context.Background(), "contact-form", createContactPayload()))
	m.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}
