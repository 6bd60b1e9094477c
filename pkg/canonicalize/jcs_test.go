package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	got, err := JCS(map[string]int{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(got))
}

func TestJCSRespectsStructTags(t *testing.T) {
	in := struct {
		Zeta  string `json:"zeta"`
		Alpha string `json:"alpha"`
	}{"z", "a"}

	got, err := JCS(in)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zeta":"z"}`, string(got))
}

func TestDigestDeterministic(t *testing.T) {
	a, err := Digest(map[string]string{"handler": "clerk-1", "action": "submitted"})
	require.NoError(t, err)
	b, err := Digest(map[string]string{"action": "submitted", "handler": "clerk-1"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a, "sha256:")
}

func TestDigestBytesFormat(t *testing.T) {
	d := DigestBytes([]byte("hello"))
	assert.Len(t, d, len("sha256:")+64)
}
