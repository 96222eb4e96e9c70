package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  model.Resources
	}{
		{"everything", "everything", model.Everything{}},
		{"everything any case", "  Everything ", model.Everything{}},
		{"single school", "marist", model.Selection{"marist": model.AllSchoolData()}},
		{
			name:  "school and terms",
			input: "marist;temple,202422",
			want: model.Selection{
				"marist": model.AllSchoolData(),
				"temple": model.SelectTermData("202422"),
			},
		},
		{
			name:  "whitespace and duplicates",
			input: " temple , 202540 , 202440 ; temple,202440 ",
			want: model.Selection{
				"temple": model.SelectTermData("202440", "202540"),
			},
		},
		{
			name:  "repeated whole school",
			input: "marist;marist",
			want:  model.Selection{"marist": model.AllSchoolData()},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_NormalizesIdentifiers(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	got, err := Parse("e\u0301cole,202440")
	require.NoError(t, err)
	assert.Equal(t, model.Selection{"\u00e9cole": model.SelectTermData("202440")}, got)
}

func TestParse_Rejects(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		";marist",
		"marist;",
		",202440",
		"marist,",
		"marist,,202440",
		"marist;marist,202440",
		"marist,202440;marist",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, syncerr.IsInputValidation(err))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "everything", Format(model.Everything{}))

	res, err := Parse("temple,202540,202440;marist")
	require.NoError(t, err)
	assert.Equal(t, "marist;temple,202440,202540", Format(res))
}
