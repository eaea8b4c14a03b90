package selection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/markrec/pkg/discovery"
	"github.com/Sumatoshi-tech/markrec/pkg/selection"
	"github.com/Sumatoshi-tech/markrec/pkg/stream"
)

func catalogOf(names ...string) discovery.Catalog {
	descs := make([]stream.SourceDescriptor, 0, len(names))
	for i, name := range names {
		descs = append(descs, stream.NewDescriptor(name, stream.KindMarkers, string(rune('1'+i)), 1, 0))
	}

	return discovery.NewCatalog(descs)
}

func TestSet_SelectIdempotent(t *testing.T) {
	t.Parallel()

	set := selection.New()
	set.Select("A_1")
	set.Select("A_1")

	assert.Equal(t, []string{"A_1"}, set.Keys())
}

func TestSet_DeselectUnselectedIsNoop(t *testing.T) {
	t.Parallel()

	set := selection.New()
	set.Select("A_1")
	set.Deselect("Z_9")

	assert.Equal(t, []string{"A_1"}, set.Keys())

	set.Set("A_1", false)
	assert.Empty(t, set.Keys())

	set.Set("B_2", true)
	assert.True(t, set.IsSelected("B_2"))
}

func TestSet_EffectiveIsSubsetOfCatalog(t *testing.T) {
	t.Parallel()

	catalog := catalogOf("A", "B")
	set := selection.New()
	set.Select("A_1")
	set.Select("gone_7")

	effective := set.Effective(catalog)

	assert.Len(t, effective, 1)
	assert.Equal(t, "A_1", effective[0].Key)
	assert.Equal(t, stream.StatusSelected, effective[0].Status)
	assert.Equal(t, []string{"A_1"}, set.Keys(), "stale keys are dropped")

	for _, desc := range effective {
		assert.True(t, catalog.Contains(desc.Key))
	}
}

func TestSet_SelectAllAndNone(t *testing.T) {
	t.Parallel()

	catalog := catalogOf("A", "B", "C")
	set := selection.New()

	set.SelectAll(catalog)
	assert.Len(t, set.Effective(catalog), 3)

	set.SelectNone()
	assert.Empty(t, set.Effective(catalog))
}

func TestSet_AutoSelectOwn(t *testing.T) {
	t.Parallel()

	catalog := catalogOf("TextLogger", "EEG", "EventBoard")
	set := selection.New()

	picked := set.AutoSelectOwn(catalog, []string{"TextLogger", "EventBoard", "WhisperLiveLogger"})

	assert.Equal(t, []string{"EventBoard_3", "TextLogger_1"}, picked)
	assert.False(t, set.IsSelected("EEG_2"))
}

func TestSet_PruneAndAnnotate(t *testing.T) {
	t.Parallel()

	catalog := catalogOf("A", "B")
	set := selection.New()
	set.SelectAll(catalog)
	set.Prune([]string{"A_1"})

	annotated := set.Annotate(catalog)

	assert.Equal(t, stream.StatusAvailable, annotated[0].Status)
	assert.Equal(t, stream.StatusSelected, annotated[1].Status)
}
