package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
)

type fakeAPI struct {
	transcript string
	gotModel   string
	gotLang    string
	gotAudio   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files/voice.ogg":
		_, _ = w.Write([]byte("OggS-fake-audio"))
	case r.Method == http.MethodGet:
		http.NotFound(w, r)
	case strings.HasSuffix(r.URL.Path, "/audio/transcriptions"):
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.gotModel = r.FormValue("model")
		f.gotLang = r.FormValue("language")
		if file, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(file)
			f.gotAudio = string(data)
			file.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": f.transcript})
	default:
		http.NotFound(w, r)
	}
}

func newTestTranscriber(t *testing.T, fake *fakeAPI) (*Transcriber, string) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tr, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	require.NoError(t, err)
	return tr, srv.URL
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{transcript: "  гречка с котлетой  "}
	tr, base := newTestTranscriber(t, fake)

	text, err := tr.Transcribe(context.Background(), chat.AudioRef{URL: base + "/files/voice.ogg", Filename: "voice.ogg"})
	require.NoError(t, err)
	assert.Equal(t, "гречка с котлетой", text)
	assert.Equal(t, "whisper-1", fake.gotModel)
	assert.Equal(t, "ru", fake.gotLang)
	assert.Equal(t, "OggS-fake-audio", fake.gotAudio)
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty transcript", func(t *testing.T) {
		t.Parallel()
		tr, base := newTestTranscriber(t, &fakeAPI{transcript: " "})
		_, err := tr.Transcribe(context.Background(), chat.AudioRef{URL: base + "/files/voice.ogg"})
		require.ErrorIs(t, err, ErrEmptyTranscript)
	})

	t.Run("download failure", func(t *testing.T) {
		t.Parallel()
		tr, base := newTestTranscriber(t, &fakeAPI{transcript: "x"})
		_, err := tr.Transcribe(context.Background(), chat.AudioRef{URL: base + "/files/missing.ogg"})
		require.Error(t, err)
	})

	t.Run("declared size too large", func(t *testing.T) {
		t.Parallel()
		tr, base := newTestTranscriber(t, &fakeAPI{transcript: "x"})
		_, err := tr.Transcribe(context.Background(), chat.AudioRef{URL: base + "/files/voice.ogg", Size: MaxAudioBytes + 1})
		require.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := New("", "")
	require.Error(t, err)
}
