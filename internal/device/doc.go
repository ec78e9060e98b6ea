// Package device simulates KNX actuators for integration tests.
//
// A device binds canonical functions (see knx.CanonicalFunctions) to group
// addresses, listens on its command addresses and answers on its status
// addresses, encoding every value with the knx codec:
//
//	Switch   switch → switch_status
//	Dimmer   switch, brightness, dimming_control → switch_status, brightness_status
//	Shutter  position, move, stop, slat, blind_control, lock, lux,
//	         sun_protection_enable → position_status, slat_status,
//	         lock_status, sun_protection_status
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(logger)
//	if err := registry.LoadConfig(cfg.Devices); err != nil {
//	    return err
//	}
//	if err := registry.Start(ctx, b); err != nil {
//	    return err
//	}
//	defer registry.Stop()
//
// Devices ignore telegrams they wrote themselves, so a command and a
// status function may share one group address.
package device
