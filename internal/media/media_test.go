package media

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/stretchr/testify/require"
)

func TestJSONDecodeArray(t *testing.T) {
	dec, err := Default().Decoder("application/json")
	require.NoError(t, err)

	docs, err := dec.Decode(strings.NewReader(`[{"title":"Rambo","year":1982},{"title":"Rocky"}]`))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	title, ok := docs[0].Get("title")
	require.True(t, ok)
	require.Equal(t, valuestore.String("Rambo"), title)

	year, ok := docs[0].Get("year")
	require.True(t, ok)
	require.Equal(t, valuestore.Int(1982), year)
}

func TestJSONDecodeSingleObject(t *testing.T) {
	dec, err := Default().Decoder("application/json")
	require.NoError(t, err)

	docs, err := dec.Decode(strings.NewReader(`{"title":"Rambo"}`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestJSONEncode(t *testing.T) {
	enc, err := Default().Encoder("application/json")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = enc.Encode(&buf, evaluator.Result{
		Total: 1,
		Hits:  []evaluator.Hit{{DocID: 5, Score: 1.5}},
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"doc_id":5`)
	require.Contains(t, buf.String(), `"total":1`)
}

func TestCSVDecode(t *testing.T) {
	dec, err := Default().Decoder("text/csv")
	require.NoError(t, err)

	docs, err := dec.Decode(strings.NewReader("title,year\nRambo,1982\nRocky,1976\n"))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	year, ok := docs[0].Get("year")
	require.True(t, ok)
	require.Equal(t, valuestore.Int(1982), year)
}

func TestUnknownMediaTypeNotSupported(t *testing.T) {
	_, err := Default().Decoder("application/xml")
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestCSVHasNoEncoder(t *testing.T) {
	_, err := Default().Encoder("text/csv")
	require.ErrorIs(t, err, ErrNotSupported)
}
