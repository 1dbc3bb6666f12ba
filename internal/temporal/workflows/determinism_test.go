package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northstar/funding-discovery/internal/domain"
)

func TestSortedMapKeys(t *testing.T) {
	t.Run("provider IDs in order", func(t *testing.T) {
		m := map[domain.ProviderID]int{
			domain.ProviderTavily: 5,
			domain.ProviderBrave:  20,
			domain.ProviderSerper: 0,
		}
		assert.Equal(t, []domain.ProviderID{domain.ProviderBrave, domain.ProviderSerper, domain.ProviderTavily}, SortedMapKeys(m))
	})

	t.Run("empty map", func(t *testing.T) {
		assert.Empty(t, SortedMapKeys(map[string]int{}))
	})
}
