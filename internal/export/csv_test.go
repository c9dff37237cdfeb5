package export

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVStreamer(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewCSVStreamer(rec, "ledger.csv")

	require.NoError(t, s.Write([]string{"number", "date", "memo"}))
	require.NoError(t, s.Write([]string{"1", "2025-03-15", "office, supplies"}))
	require.NoError(t, s.Close())

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ledger.csv"`, rec.Header().Get("Content-Disposition"))

	body := rec.Body.String()
	assert.Equal(t, "number,date,memo\r\n1,2025-03-15,\"office, supplies\"\r\n", body)
}

func TestCSVStreamerManyRows(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewCSVStreamer(rec, "big.csv")

	for i := 0; i < 450; i++ {
		require.NoError(t, s.Write([]string{"a", "b"}))
	}
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\r\n"), "\r\n")
	assert.Len(t, lines, 450)
}
