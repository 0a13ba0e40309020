package bom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRowsFlatAndNested(t *testing.T) {
	doc := []byte(`{
		"count": 3,
		"results": [
			{"part": {"part_num": "3001", "name": "Brick 2 x 4", "part_img_url": "https://img/3001.png"}, "color": {"id": 5}, "quantity": 2, "is_spare": false},
			{"part_num": " 3002 ", "color_id": 4, "quantity": 1, "is_spare": "t"},
			{"part_num": "3003", "color": 7, "qty": 3},
			{"part_num": "3004", "quantity": 1},
			{"color_id": 1, "quantity": 4},
			"garbage"
		]
	}`)

	rows, err := ParseRows(doc)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, Row{PartNum: "3001", ColorID: 5, Quantity: 2, Name: "Brick 2 x 4", ImageURL: "https://img/3001.png"}, rows[0])
	assert.Equal(t, "3002", rows[1].PartNum)
	assert.True(t, rows[1].IsSpare)
	assert.Equal(t, 7, rows[2].ColorID)
	assert.Equal(t, 3, rows[2].Quantity)
	assert.Equal(t, 0, rows[3].ColorID)
}

func TestParseRowsBareArray(t *testing.T) {
	rows, err := ParseRows([]byte(`[{"part_num":"A","color_id":1,"quantity":2}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].PartNum)
}

func TestParseRowsRejectsGarbage(t *testing.T) {
	for _, doc := range []string{`{`, `{"foo": 1}`, `42`} {
		_, err := ParseRows([]byte(doc))
		assert.ErrorIs(t, err, ErrInvalidJSON, doc)
	}
}

func TestParseOverrides(t *testing.T) {
	o, err := ParseOverrides([]byte(`
sets:
  "70618":
    - {part_num: "3001", color_id: 5, quantity: 4}
    - {part_num: "3002", color_id: 5, quantity: 1, is_spare: true}
  "":
    - {part_num: "X", color_id: 1, quantity: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, o.Len())

	rows, ok, err := o.InstructionRows(context.Background(), "70618-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rows, 2)

	b := Build("70618-1", TierInstructions, rows)
	assert.Equal(t, 4, b.Bin.Total())
}
