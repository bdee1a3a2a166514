package protocol

import "strings"

// Sensor service and characteristic UUIDs.
const (
	ServiceUUID = "aa7b3c40-f6ed-4ffc-bc29-5750c59e74b3"

	HeartRateUUID       = "b0351694-25e6-4eb5-918c-ca9403ddac47"
	WaveformUUID        = "1bf9168b-cae4-4143-a228-dc7850a37d98"
	HeartRateBundleUUID = "3cd43730-fc61-4ea7-aa18-6e7c3d798d74"
	DateCheckUUID       = "3750215f-b147-4bdf-9271-0b32c1c5c49d"
	StepsUUID           = "81d4ef8b-bb65-4fef-b701-2d7d9061e492"
	LiveStepsUUID       = "f579caa3-9390-46ae-ac67-1445b6f5b9fd"
)

// Characteristics lists every characteristic the host subscribes to, in subscription order.
var Characteristics = []string{
	HeartRateUUID,
	WaveformUUID,
	HeartRateBundleUUID,
	DateCheckUUID,
	StepsUUID,
	LiveStepsUUID,
}

var characteristicNames = map[string]string{
	HeartRateUUID:       "heartrate",
	WaveformUUID:        "waveform",
	HeartRateBundleUUID: "heartratebundle",
	DateCheckUUID:       "datecheck",
	StepsUUID:           "steps",
	LiveStepsUUID:       "livesteps",
}

// NormalizeUUID lowercases a UUID and strips dashes, the form go-ble reports.
func NormalizeUUID(uuid string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(uuid)), "-", "")
}

// CharacteristicName returns a short label for log fields.
// Unknown UUIDs are returned unchanged.
func CharacteristicName(uuid string) string {
	for k, v := range characteristicNames {
		if NormalizeUUID(k) == NormalizeUUID(uuid) {
			return v
		}
	}
	return uuid
}

// SameUUID compares two UUIDs regardless of case and dashes.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
