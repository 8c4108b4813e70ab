package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	rec := Record{
		"values":  vecTensor([]float64{1, 2, 3}),
		"indices": vecTensor([]float64{0, 1, 2}),
	}
	blob := EncodeRecord(rec)
	out, err := DecodeRecord(blob)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, rec["values"].Equal(out["values"]))
	assert.True(t, rec["indices"].Equal(out["indices"]))
}

func TestEncodeRecordDeterministic(t *testing.T) {
	rec := Record{"b": vecTensor([]float64{1}), "a": vecTensor([]float64{2})}
	assert.Equal(t, EncodeRecord(rec), EncodeRecord(rec))
}

func TestDecodeRecordRejectsTruncated(t *testing.T) {
	_, err := DecodeRecord([]byte{1, 2, 3})
	assert.Error(t, err)
}
