//go:build test

package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/protocol"
)

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Rssi         int      `json:"rssi"`
	ServiceUUIDs []string `json:"services"`
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) Addr() string       { return a.Address }
func (a *FakeAdvertisement) RSSI() int          { return a.Rssi }
func (a *FakeAdvertisement) Services() []string { return a.ServiceUUIDs }

// AdvertisementBuilder builds fake advertisements with a fluent API.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts an advertisement with RSSI -60 and no services.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{Rssi: -60}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append(b.adv.ServiceUUIDs, uuids...)
	return b
}

// AsSensor advertises the sensor service.
func (b *AdvertisementBuilder) AsSensor() *AdvertisementBuilder {
	return b.WithServices(protocol.ServiceUUID)
}

// FromJSON fills the builder from a JSON object with name, address, rssi and
// services keys. The format string is expanded with args first. It panics on
// malformed input, which is a bug in the test itself.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	raw := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(raw), &b.adv); err != nil {
		panic(fmt.Sprintf("invalid advertisement JSON: %v\n%s", err, raw))
	}
	return b
}

func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.ServiceUUIDs = append([]string(nil), b.adv.ServiceUUIDs...)
	return &adv
}

// Advertisements builds every builder in order.
func Advertisements(builders ...*AdvertisementBuilder) []device.Advertisement {
	out := make([]device.Advertisement, 0, len(builders))
	for _, b := range builders {
		out = append(out, b.Build())
	}
	return out
}
