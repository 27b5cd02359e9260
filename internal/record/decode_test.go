package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Decode(t *testing.T) {
	d := NewDecoder()

	t.Run("full comment", func(t *testing.T) {
		r, err := d.Decode([]byte(`{"score_hidden":false,"name":"t1_a1","link_id":"t3_x","body":"Hello there",` +
			`"downs":0,"created_utc":"1420070400","score":7,"author":"bob","distinguished":null,"id":"a1",` +
			`"archived":true,"parent_id":"t3_x","subreddit":"golang","author_flair_css_class":null,` +
			`"author_flair_text":null,"gilded":1,"retrieved_on":1425124282,"ups":7,"controversiality":0,` +
			`"subreddit_id":"t5_2qh1s","edited":1420070500}`))
		require.NoError(t, err)

		assert.Equal(t, "t1_a1", r.Name)
		assert.Equal(t, "Hello there", r.Body)
		assert.Equal(t, int64(1420070400), r.CreatedUTC)
		assert.Equal(t, int64(1), r.Archived)
		assert.Equal(t, int64(0), r.ScoreHidden)
		assert.Equal(t, "", r.Distinguished)
		assert.Equal(t, int64(1420070500), r.Edited)
		assert.Equal(t, "", r.SanitizedBody)
		assert.Equal(t, int64(0), r.IsLocked)
	})

	t.Run("absent fields default", func(t *testing.T) {
		r, err := d.Decode([]byte(`{"name":"a2"}`))
		require.NoError(t, err)
		assert.Equal(t, Record{Name: "a2"}, r)
	})

	t.Run("edited false", func(t *testing.T) {
		r, err := d.Decode([]byte(`{"name":"a3","edited":false}`))
		require.NoError(t, err)
		assert.Equal(t, int64(0), r.Edited)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := d.Decode([]byte(`{"name":`))
		require.Error(t, err)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := d.Decode([]byte(`[1,2,3]`))
		require.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("non numeric string in int field", func(t *testing.T) {
		_, err := d.Decode([]byte(`{"score":"lots"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "score")
	})

	t.Run("nested value in text field", func(t *testing.T) {
		_, err := d.Decode([]byte(`{"author":{"name":"bob"}}`))
		require.Error(t, err)
	})
}

func TestRecord_ValuesMatchColumns(t *testing.T) {
	r := Record{Name: "n", Body: "b", IsLocked: 1}
	vals := r.Values()
	require.Len(t, vals, len(Columns))

	byCol := make(map[string]any, len(Columns))
	for i, c := range Columns {
		byCol[c] = vals[i]
	}
	assert.Equal(t, "n", byCol["name"])
	assert.Equal(t, "b", byCol["body"])
	assert.Equal(t, int64(1), byCol["is_locked"])
}

func TestParseError(t *testing.T) {
	err := &ParseError{Path: "RC_2015-01", Line: 12, Err: ErrNotObject}
	assert.Equal(t, "parse RC_2015-01:12: line is not a JSON object", err.Error())
	assert.ErrorIs(t, err, ErrNotObject)
}
