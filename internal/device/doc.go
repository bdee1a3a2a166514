// Package device defines the radio boundary used by the sensor session: scanning for
// advertisements, dialing the bound peripheral and exchanging characteristic
// notifications and writes over a Link.
//
// The go-ble backend lives in the go-ble subpackage; tests substitute fakes for the
// Radio and Link interfaces.
package device
