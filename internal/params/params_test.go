package params

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsSetGet(t *testing.T) {
	p := New()

	_, ok := p.Get(KeyLat)
	assert.False(t, ok)

	assert.NoError(t, p.Set(KeyLat, 56.95))
	assert.NoError(t, p.SetString(KeyLon, "24.1"))
	assert.Error(t, p.Set("colour", 1))
	assert.Error(t, p.SetString(KeyPriceMin, "cheap"))

	v, ok := p.Get(KeyLat)
	assert.True(t, ok)
	assert.Equal(t, 56.95, v)

	lat, lon, ok := p.ReferencePoint()
	assert.True(t, ok)
	assert.Equal(t, 56.95, lat)
	assert.Equal(t, 24.1, lon)

	assert.Equal(t, []string{KeyFloorMax, KeyFloorMin, KeyPriceMax, KeyPriceMin}, p.Missing(RequiredKeys...))
	assert.False(t, p.HasAll(RequiredKeys...))

	p.Delete(KeyLat)
	_, _, ok = p.ReferencePoint()
	assert.False(t, ok)

	p.Clear()
	assert.Empty(t, p.Snapshot())
}

func TestParamsMergeKeepsExistingValues(t *testing.T) {
	p := New()
	assert.NoError(t, p.Set(KeyLat, 1))
	assert.NoError(t, p.Set(KeyPriceMin, 50000))

	p.Merge(map[string]float64{KeyLat: 2, KeyLon: 3, "unknown": 4})
	assert.Equal(t, map[string]float64{KeyLat: 2, KeyLon: 3, KeyPriceMin: 50000}, p.Snapshot())

	p.Merge(map[string]float64{})
	assert.Equal(t, map[string]float64{KeyLat: 2, KeyLon: 3, KeyPriceMin: 50000}, p.Snapshot())
}

func TestParamsSignalCollapses(t *testing.T) {
	p := New()
	p.Signal()
	p.Signal()
	assert.NoError(t, p.Set(KeyLat, 1))

	<-p.Ready()
	select {
	case <-p.Ready():
		t.Fatal("repeated signals should collapse into one")
	default:
	}
}

func TestParamsConcurrentAccess(t *testing.T) {
	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = p.Set(KeyPriceMin, float64(i))
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
			_ = p.HasAll(RequiredKeys...)
		}()
	}
	wg.Wait()

	_, ok := p.Get(KeyPriceMin)
	assert.True(t, ok)
}
