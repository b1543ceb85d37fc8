package command

import (
	"errors"
	"fmt"
	"testing"

	"dashagent/internal/dataset"
	"dashagent/internal/layout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutside = errors.New("outside project")

type stubPaths map[string]bool

func (s stubPaths) Check(rel string) error {
	if s[rel] {
		return nil
	}
	return fmt.Errorf("%w: %s", errOutside, rel)
}

func testView() View {
	return View{
		Tabs:    []string{"Overview", "Details"},
		Columns: []string{"has_color", "thickness", "line"},
		Paths:   stubPaths{"notes.md": true},
	}
}

func TestValidate_TabMustExist(t *testing.T) {
	for _, cmd := range []Command{
		DeleteTab{Meta: Meta{Index: 4}, Name: "Overveiw"},
		KeepOnlyTab{Meta: Meta{Index: 4}, Name: "Overveiw"},
		ClearPanels{Meta: Meta{Index: 4}, TabName: "Overveiw"},
	} {
		t.Run(string(cmd.Action()), func(t *testing.T) {
			err := Validate(cmd, testView())

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, 4, ve.Index)
			assert.Equal(t, []string{"Overview"}, ve.Suggestions)
			assert.ErrorIs(t, err, layout.ErrTabNotFound)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), `did you mean "Overview"?`)
		})
	}

	assert.NoError(t, Validate(DeleteTab{Name: "Overview"}, testView()))
}

func TestValidate_PanelColumns(t *testing.T) {
	ok := AddPanel{TabName: "New", Type: "bar", Columns: []ColumnRef{{Key: "x", Column: "line"}}}
	assert.NoError(t, Validate(ok, testView()))

	bad := AddPanel{TabName: "New", Type: "bar", Columns: []ColumnRef{{Key: "x", Column: "line"}, {Key: "y", Column: "has_colr"}}}
	err := Validate(bad, testView())
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "panel.y", ve.Field)
	assert.Equal(t, []string{"has_color"}, ve.Suggestions)
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)

	noDataset := testView()
	noDataset.Columns = nil
	assert.NoError(t, Validate(bad, noDataset), "column checks need a dataset")
}

func TestValidate_InspectColumn(t *testing.T) {
	assert.NoError(t, Validate(InspectColumn{Column: "has_color"}, testView()))

	err := Validate(InspectColumn{Column: "colour"}, testView())
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)

	noDataset := testView()
	noDataset.Columns = nil
	err = Validate(InspectColumn{Column: "has_color"}, noDataset)
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestValidate_FileTargets(t *testing.T) {
	assert.NoError(t, Validate(CreateFile{Path: "notes.md"}, testView()))

	for _, cmd := range []Command{
		CreateFile{Path: "../etc/passwd"},
		AppendFile{Path: "../etc/passwd"},
		PatchFile{Path: "../etc/passwd", Pattern: "x"},
	} {
		err := Validate(cmd, testView())
		requireValidation(t, err, "relative_path")
		assert.ErrorIs(t, err, errOutside)
	}
}

func TestValidate_ReadOnlyAndUnconditional(t *testing.T) {
	v := testView()
	assert.NoError(t, Validate(ListTabs{}, v))
	assert.NoError(t, Validate(AddTab{Name: "Anything"}, v))
	assert.NoError(t, Validate(RollbackLayout{}, v))
}

func TestSuggest(t *testing.T) {
	candidates := []string{"Overview", "Details", "Quality"}

	assert.Equal(t, []string{"Overview"}, Suggest("overview", candidates), "case-insensitive")
	assert.Equal(t, []string{"Details"}, Suggest("Detials", candidates))
	assert.Nil(t, Suggest("Trends", candidates))
	assert.Nil(t, Suggest("", candidates))
	assert.Nil(t, Suggest("Overview", candidates), "exact match is not a suggestion")
	assert.Len(t, Suggest("ab", []string{"aa", "ab1", "ac", "ad", "ae"}), 3)
}
