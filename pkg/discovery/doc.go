// Package discovery advertises the accessory server over mDNS/DNS-SD.
//
// Accessories register one _hap._tcp service. The instance name is the
// accessory's display name and the TXT record carries:
//
//	c#  configuration number, bumped when the attribute database changes
//	ff  feature flags (always 0)
//	id  accessory id, six colon-separated hex bytes
//	md  model name
//	pv  protocol version (1.1)
//	s#  state number (always 1)
//	sf  status flags: 1 while unpaired, 0 once paired
//	ci  accessory category
//
// The Browser lists the accessories visible on the local network, which is
// useful for checking an advertisement from another host.
package discovery
