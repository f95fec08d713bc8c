// Package topology builds an attribute database from a YAML accessory
// description.
//
// A description lists accessories, their services, and the characteristics of
// each service:
//
//	category: Lightbulb
//	accessories:
//	  - services:
//	      - type: AccessoryInformation
//	        characteristics:
//	          - type: Identify
//	          - type: Name
//	            value: Desk Lamp
//	      - type: Lightbulb
//	        primary: true
//	        characteristics:
//	          - type: On
//	          - type: Brightness
//	            value: 40
//
// Types are catalog names resolved to HAP type ids with default permissions,
// format, and range. A raw HAP type id (for example "25" or a full UUID) may
// be used instead, in which case format and perms are required.
package topology
