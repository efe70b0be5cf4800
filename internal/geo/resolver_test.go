package geo

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-analytics-service/internal/cache"
	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

type mockProvider struct {
	geocodeCalls atomic.Int32
	geocodeDelay time.Duration
	loc          models.Location
	geocodeErr   error

	info       models.AddressInfo
	reverseErr error

	regions   map[string][]models.Region
	regionErr error
}

func (m *mockProvider) Geocode(ctx context.Context, address string) (models.Location, error) {
	m.geocodeCalls.Add(1)
	if m.geocodeDelay > 0 {
		time.Sleep(m.geocodeDelay)
	}
	if err := ctx.Err(); err != nil {
		return models.Location{}, err
	}
	return m.loc, m.geocodeErr
}

func (m *mockProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (models.AddressInfo, error) {
	return m.info, m.reverseErr
}

func (m *mockProvider) RegionSearch(ctx context.Context, keyword string) ([]models.Region, error) {
	if m.regionErr != nil {
		return nil, m.regionErr
	}
	return m.regions[keyword], nil
}

func TestResolve_CacheHitSkipsUpstream(t *testing.T) {
	p := &mockProvider{loc: models.Location{Latitude: 30.67, Longitude: 104.07}}
	r := NewResolver(p, cache.NewInMemoryCache(0), nil)
	ctx := context.Background()

	first := r.Resolve(ctx, "Chengdu")
	second := r.Resolve(ctx, "  chengdu ")

	if first != second {
		t.Errorf("Resolve() not idempotent: %+v then %+v", first, second)
	}
	if got := p.geocodeCalls.Load(); got != 1 {
		t.Errorf("geocode calls = %d, want 1", got)
	}
}

func TestResolve_FailureReturnsAndCachesFallback(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &mockProvider{geocodeErr: errors.New("map provider status 1")}
	r := NewResolver(p, cache.NewInMemoryCache(0), zap.New(core))
	ctx := context.Background()

	if got := r.Resolve(ctx, "atlantis"); got != FallbackLocation {
		t.Errorf("Resolve() = %+v, want fallback %+v", got, FallbackLocation)
	}
	if got := r.Resolve(ctx, "atlantis"); got != FallbackLocation {
		t.Errorf("second Resolve() = %+v, want cached fallback", got)
	}
	if got := p.geocodeCalls.Load(); got != 1 {
		t.Errorf("geocode calls = %d, want 1 (fallback is cached)", got)
	}
	if logs.FilterMessage("geocoding failed, using fallback location").Len() != 1 {
		t.Error("expected one fallback warning")
	}
}

func TestResolve_ConcurrentMissesCoalesced(t *testing.T) {
	p := &mockProvider{loc: models.Location{Latitude: 1, Longitude: 2}, geocodeDelay: 50 * time.Millisecond}
	r := NewResolver(p, cache.NewInMemoryCache(0), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), "wuhan")
		}()
	}
	wg.Wait()

	if got := p.geocodeCalls.Load(); got != 1 {
		t.Errorf("geocode calls = %d, want 1", got)
	}
}

func TestResolve_CanceledCallerDoesNotPoisonCache(t *testing.T) {
	chengdu := models.Location{Latitude: 30.67, Longitude: 104.07}
	p := &mockProvider{loc: chengdu, geocodeDelay: 50 * time.Millisecond}
	r := NewResolver(p, cache.NewInMemoryCache(0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var canceledGot models.Location
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		canceledGot = r.Resolve(ctx, "chengdu")
	}()
	time.Sleep(5 * time.Millisecond)
	var otherGot models.Location
	go func() {
		defer wg.Done()
		otherGot = r.Resolve(context.Background(), "chengdu")
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	wg.Wait()

	if canceledGot != FallbackLocation {
		t.Errorf("canceled caller got %+v, want fallback", canceledGot)
	}
	if otherGot != chengdu {
		t.Errorf("waiting caller got %+v, want %+v", otherGot, chengdu)
	}
	if got := r.Resolve(context.Background(), "chengdu"); got != chengdu {
		t.Errorf("cached location = %+v, want %+v", got, chengdu)
	}
	if got := p.geocodeCalls.Load(); got != 1 {
		t.Errorf("geocode calls = %d, want 1", got)
	}
}

func TestPrefetch_ReportsFallback(t *testing.T) {
	r := NewResolver(&mockProvider{geocodeErr: errors.New("down")}, cache.NewInMemoryCache(0), nil)
	if err := r.Prefetch(context.Background(), "x"); err == nil {
		t.Error("Prefetch() error = nil, want fallback error")
	}

	r = NewResolver(&mockProvider{}, cache.NewInMemoryCache(0), nil)
	if err := r.Prefetch(context.Background(), "beijing"); err != nil {
		t.Errorf("Prefetch() error = %v", err)
	}
}

func TestReverse_FailureReturnsEmpty(t *testing.T) {
	r := NewResolver(&mockProvider{reverseErr: errors.New("timeout")}, cache.NewInMemoryCache(0), nil)
	if got := r.Reverse(context.Background(), 39.9, 116.4); got != (models.AddressInfo{}) {
		t.Errorf("Reverse() = %+v, want empty", got)
	}

	want := models.AddressInfo{Province: "北京市", City: "北京市", District: "东城区"}
	r = NewResolver(&mockProvider{info: want}, cache.NewInMemoryCache(0), nil)
	if got := r.Reverse(context.Background(), 39.9, 116.4); got != want {
		t.Errorf("Reverse() = %+v, want %+v", got, want)
	}
}

func TestRegions(t *testing.T) {
	p := &mockProvider{regions: map[string][]models.Region{
		"中国":     {{Name: "四川省", Adcode: "510000"}},
		"510000": {{Name: "成都市", Adcode: "510100"}},
	}}
	r := NewResolver(p, cache.NewInMemoryCache(0), nil)
	ctx := context.Background()

	if got := r.Provinces(ctx); len(got) != 1 || got[0].Adcode != "510000" {
		t.Errorf("Provinces() = %+v", got)
	}
	if got := r.Cities(ctx, "510000"); len(got) != 1 || got[0].Name != "成都市" {
		t.Errorf("Cities() = %+v", got)
	}
	if got := r.Districts(ctx, "999999"); got == nil || len(got) != 0 {
		t.Errorf("Districts() = %v, want empty non-nil", got)
	}

	r = NewResolver(&mockProvider{regionErr: errors.New("status 2")}, cache.NewInMemoryCache(0), nil)
	if got := r.Provinces(ctx); got == nil || len(got) != 0 {
		t.Errorf("Provinces() on failure = %v, want empty non-nil", got)
	}
}

func TestCachedCities(t *testing.T) {
	r := NewResolver(&mockProvider{}, cache.NewInMemoryCache(0), nil)
	ctx := context.Background()
	r.Resolve(ctx, "Shanghai")
	r.Resolve(ctx, "beijing")

	if got, want := r.CachedCities(ctx), []string{"beijing", "shanghai"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CachedCities() = %v, want %v", got, want)
	}
}
