package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/flatworker/pkg/errors"
)

const samplePayload = `["53.91|27.56|x<br>Street 1<br>rooms 2<br>x<br>floor 3/5<br>x<br>price 1,234<br><a href=\"/msd/x.html\">x</a>"]`

func samplePage(payload string) string {
	return "<html><head><script>\nvar foo = 1;\nvar MARKER_DATA = " + payload + ";\nvar other = [1];\n</script></head><body></body></html>"
}

func TestDecodeMarkerPayload(t *testing.T) {
	entries, err := DecodeMarkerPayload(samplePage(samplePayload), "MARKER_DATA")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(string(entries[0]), "53.91|27.56|x<br>"))
	assert.Contains(t, string(entries[0]), `href="/msd/x.html"`)
}

func TestDecodeMarkerPayloadMultiline(t *testing.T) {
	payload := "[\n  \"a<br>b\",\n  \"c<br>d\"\n]"
	entries, err := DecodeMarkerPayload(samplePage(payload), "MARKER_DATA")
	require.NoError(t, err)
	assert.Equal(t, []RawMarkerEntry{"a<br>b", "c<br>d"}, entries)
}

func TestDecodeMarkerPayloadMissingVariable(t *testing.T) {
	pages := []string{
		"",
		"<html><body>no markers here</body></html>",
		"var MARKERS = [\"a\"];",
		"var MARKER_DATA = [\"unterminated\"",
	}
	for _, page := range pages {
		entries, err := DecodeMarkerPayload(page, "MARKER_DATA")
		assert.Empty(t, entries)
		assert.ErrorIs(t, err, ErrMarkerNotFound, "page: %q", page)
		assert.True(t, errors.IsType(err, errors.ErrorTypePayload))
	}
}

func TestDecodeMarkerPayloadRepairsInvalidEscapes(t *testing.T) {
	// \d and \( are not valid JSON escapes
	payload := `["price 1\d<br>Street \(old\)", "ok\nline"]`
	entries, err := DecodeMarkerPayload(samplePage(payload), "MARKER_DATA")
	require.NoError(t, err)
	assert.Equal(t, []RawMarkerEntry{`price 1\d<br>Street \(old\)`, "ok\nline"}, entries)
}

func TestDecodeMarkerPayloadGivesUpAfterOneRepair(t *testing.T) {
	// Unterminated string: not an escape problem
	_, err := DecodeMarkerPayload(`var MARKER_DATA = ["a\q, "b"];`, "MARKER_DATA")
	assert.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePayload))

	// Valid escapes but not an array of strings
	_, err = DecodeMarkerPayload(`var MARKER_DATA = [1, 2];`, "MARKER_DATA")
	assert.Error(t, err)
}

func TestRepairEscapes(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"plain"`, `"plain"`},
		{`"a\d"`, `"a\\d"`},
		{`"\\d"`, `"\\d"`},
		{`"\"q\" \/ \b\f\n\r\t é"`, `"\"q\" \/ \b\f\n\r\t é"`},
		{`"end\`, `"end\\`},
		{`"\x\y"`, `"\\x\\y"`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RepairEscapes(tc.in), "input %s", tc.in)
	}
}

func TestRepairEscapesIsIdempotent(t *testing.T) {
	inputs := []string{
		`["a\d<br>b\c", "\\"]`,
		samplePayload,
		`["\q\w\e"]`,
	}
	for _, in := range inputs {
		once := RepairEscapes(in)
		assert.Equal(t, once, RepairEscapes(once))

		var decoded []string
		assert.NoError(t, json.Unmarshal([]byte(once), &decoded), "repaired %s", once)
	}

	// Already valid literals are left untouched
	assert.Equal(t, samplePayload, RepairEscapes(samplePayload))
}

func TestFetchMarkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, samplePage(samplePayload))
	}))
	defer server.Close()

	session := &countingSession{value: "abc"}
	extractor := NewMarkerExtractor(ExtractorConfig{
		URL:      server.URL,
		Variable: "MARKER_DATA",
		Timeout:  5 * time.Second,
	}, nil, session)

	entries := extractor.FetchMarkers(context.Background())
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, session.calls)
	assert.Equal(t, "MarkerExtractor", extractor.GetName())
}

func TestFetchMarkersNeverFails(t *testing.T) {
	extractor := NewMarkerExtractor(ExtractorConfig{URL: "http://unused", Variable: "MARKER_DATA"}, nil, nil)

	extractor.fetchFunc = func(ctx context.Context) (io.Reader, error) {
		return nil, fmt.Errorf("connection reset")
	}
	assert.Empty(t, extractor.FetchMarkers(context.Background()))

	extractor.fetchFunc = func(ctx context.Context) (io.Reader, error) {
		return strings.NewReader("<html>maintenance</html>"), nil
	}
	assert.Empty(t, extractor.FetchMarkers(context.Background()))

	extractor.fetchFunc = func(ctx context.Context) (io.Reader, error) {
		return strings.NewReader(`var MARKER_DATA = ["broken\u12"];`), nil
	}
	assert.Empty(t, extractor.FetchMarkers(context.Background()))
}

func TestFetchMarkersInvalidatesSessionWhenMarkersMissing(t *testing.T) {
	var served atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 1 {
			io.WriteString(w, "<html>login required</html>")
			return
		}
		io.WriteString(w, samplePage(samplePayload))
	}))
	defer server.Close()

	inner := &countingSession{value: "abc"}
	extractor := NewMarkerExtractor(ExtractorConfig{URL: server.URL, Variable: "MARKER_DATA"}, nil, NewCachedSession(inner))

	assert.Empty(t, extractor.FetchMarkers(context.Background()))
	assert.Len(t, extractor.FetchMarkers(context.Background()), 1)
	assert.Equal(t, 2, inner.calls, "cookies should be reacquired after a missing payload")
}
