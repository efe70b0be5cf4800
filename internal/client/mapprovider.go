package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-analytics-service/internal/models"
)

// ErrProviderStatus is returned when the map provider answers HTTP 200 with a
// non-zero status field or an empty result.
var ErrProviderStatus = errors.New("map provider status")

// MapProvider resolves place names and coordinates through the map API.
type MapProvider interface {
	Geocode(ctx context.Context, address string) (models.Location, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (models.AddressInfo, error)
	RegionSearch(ctx context.Context, keyword string) ([]models.Region, error)
}

// BaiduMapClient calls the Baidu map geocoding, reverse geocoding and
// administrative region endpoints. The key is sent as the "ak" parameter.
type BaiduMapClient struct {
	apiKey          string
	geocodingURL    string
	reverseURL      string
	regionSearchURL string
	geocoding       *upstream
	reverse         *upstream
	region          *upstream
}

// NewBaiduMapClient validates the key and builds one upstream per endpoint.
func NewBaiduMapClient(apiKey, geocodingURL, reverseURL, regionSearchURL string, opts Options) (*BaiduMapClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	return &BaiduMapClient{
		apiKey:          apiKey,
		geocodingURL:    geocodingURL,
		reverseURL:      reverseURL,
		regionSearchURL: regionSearchURL,
		geocoding:       newUpstream("geocoding", opts),
		reverse:         newUpstream("reverse_geocoding", opts),
		region:          newUpstream("region_search", opts),
	}, nil
}

type geocodeResponse struct {
	Status int `json:"status"`
	Result *struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"result"`
}

// Geocode returns the coordinates for address.
func (c *BaiduMapClient) Geocode(ctx context.Context, address string) (models.Location, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("output", "json")
	params.Set("ak", c.apiKey)

	var resp geocodeResponse
	if err := c.geocoding.getJSON(ctx, c.geocodingURL, params, &resp); err != nil {
		return models.Location{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if resp.Status != 0 || resp.Result == nil {
		return models.Location{}, fmt.Errorf("geocode %q: %w %d", address, ErrProviderStatus, resp.Status)
	}
	return models.Location{
		Latitude:  resp.Result.Location.Lat,
		Longitude: resp.Result.Location.Lng,
	}, nil
}

type reverseResponse struct {
	Status int `json:"status"`
	Result *struct {
		FormattedAddress string `json:"formatted_address"`
		AddressComponent struct {
			Province string `json:"province"`
			City     string `json:"city"`
			District string `json:"district"`
		} `json:"addressComponent"`
	} `json:"result"`
}

// ReverseGeocode returns the administrative address for a WGS84 coordinate.
// An empty district is recovered from the formatted address when possible.
func (c *BaiduMapClient) ReverseGeocode(ctx context.Context, lat, lon float64) (models.AddressInfo, error) {
	params := url.Values{}
	params.Set("location", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("output", "json")
	params.Set("ak", c.apiKey)
	params.Set("coordtype", "wgs84")

	var resp reverseResponse
	if err := c.reverse.getJSON(ctx, c.reverseURL, params, &resp); err != nil {
		return models.AddressInfo{}, fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.Status != 0 || resp.Result == nil {
		return models.AddressInfo{}, fmt.Errorf("reverse geocode: %w %d", ErrProviderStatus, resp.Status)
	}

	comp := resp.Result.AddressComponent
	info := models.AddressInfo{
		Province:         comp.Province,
		City:             comp.City,
		District:         comp.District,
		FormattedAddress: resp.Result.FormattedAddress,
	}
	if info.District == "" && info.FormattedAddress != "" {
		info.District = districtFromAddress(info.FormattedAddress)
	}
	return info, nil
}

// districtFromAddress takes the text after the last "区", or failing that the
// last "县", with spaces removed.
func districtFromAddress(addr string) string {
	for _, marker := range []string{"区", "县"} {
		if i := strings.LastIndex(addr, marker); i >= 0 {
			return strings.ReplaceAll(addr[i+len(marker):], " ", "")
		}
	}
	return ""
}

type regionResponse struct {
	Status    int `json:"status"`
	Districts []struct {
		Districts []struct {
			Name string     `json:"name"`
			Code flexString `json:"code"`
		} `json:"districts"`
	} `json:"districts"`
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// RegionSearch lists the sub-divisions of keyword (a name such as "中国" or an adcode).
func (c *BaiduMapClient) RegionSearch(ctx context.Context, keyword string) ([]models.Region, error) {
	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("sub_admin", "1")
	params.Set("extensions_code", "1")
	params.Set("ak", c.apiKey)

	var resp regionResponse
	if err := c.region.getJSON(ctx, c.regionSearchURL, params, &resp); err != nil {
		return nil, fmt.Errorf("region search %q: %w", keyword, err)
	}
	if resp.Status != 0 {
		return nil, fmt.Errorf("region search %q: %w %d", keyword, ErrProviderStatus, resp.Status)
	}
	regions := []models.Region{}
	if len(resp.Districts) == 0 {
		return regions, nil
	}
	for _, d := range resp.Districts[0].Districts {
		regions = append(regions, models.Region{Name: d.Name, Adcode: string(d.Code)})
	}
	return regions, nil
}
