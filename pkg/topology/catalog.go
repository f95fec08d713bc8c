package topology

import (
	"fmt"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/hapspan/hapspan-go/pkg/model"
)

// CharacteristicType is a catalog entry for a characteristic.
type CharacteristicType struct {
	Name   string
	Type   string
	Format model.Format
	Perms  model.Perm
	Range  *model.Range
}

type charEntry struct {
	typ    string
	format string
	perms  []string
	rng    *model.Range
}

var (
	permsR   = []string{characteristic.PermissionRead}
	permsW   = []string{characteristic.PermissionWrite}
	permsRN  = []string{characteristic.PermissionRead, characteristic.PermissionEvents}
	permsRWN = []string{characteristic.PermissionRead, characteristic.PermissionWrite, characteristic.PermissionEvents}
)

// CategoryOther is the advertised category of an accessory with no better
// match.
const CategoryOther = 1

var categories = map[string]byte{
	"Bridge":         accessory.TypeBridge,
	"Lightbulb":      accessory.TypeLightbulb,
	"Outlet":         accessory.TypeOutlet,
	"Switch":         accessory.TypeSwitch,
	"Thermostat":     accessory.TypeThermostat,
	"SecuritySystem": accessory.TypeSecuritySystem,
	"Television":     accessory.TypeTelevision,
}

var serviceTypes = map[string]string{
	"AccessoryInformation": service.TypeAccessoryInformation,
	"Lightbulb":            service.TypeLightbulb,
	"Switch":               service.TypeSwitch,
	"Outlet":               service.TypeOutlet,
	"Thermostat":           service.TypeThermostat,
	"MotionSensor":         service.TypeMotionSensor,
	"ContactSensor":        service.TypeContactSensor,
	"TemperatureSensor":    service.TypeTemperatureSensor,
}

var characteristicTypes = map[string]charEntry{
	"Identify":         {characteristic.TypeIdentify, characteristic.FormatBool, permsW, nil},
	"Name":             {characteristic.TypeName, characteristic.FormatString, permsR, nil},
	"Manufacturer":     {characteristic.TypeManufacturer, characteristic.FormatString, permsR, nil},
	"Model":            {characteristic.TypeModel, characteristic.FormatString, permsR, nil},
	"SerialNumber":     {characteristic.TypeSerialNumber, characteristic.FormatString, permsR, nil},
	"FirmwareRevision": {characteristic.TypeFirmwareRevision, characteristic.FormatString, permsR, nil},

	"On":               {characteristic.TypeOn, characteristic.FormatBool, permsRWN, nil},
	"Brightness":       {characteristic.TypeBrightness, characteristic.FormatInt32, permsRWN, &model.Range{Min: 0, Max: 100, Step: 1}},
	"Hue":              {characteristic.TypeHue, characteristic.FormatFloat, permsRWN, &model.Range{Min: 0, Max: 360, Step: 1}},
	"Saturation":       {characteristic.TypeSaturation, characteristic.FormatFloat, permsRWN, &model.Range{Min: 0, Max: 100, Step: 1}},
	"ColorTemperature": {characteristic.TypeColorTemperature, characteristic.FormatUInt32, permsRWN, &model.Range{Min: 140, Max: 500, Step: 1}},
	"OutletInUse":      {characteristic.TypeOutletInUse, characteristic.FormatBool, permsRN, nil},

	"CurrentTemperature":         {characteristic.TypeCurrentTemperature, characteristic.FormatFloat, permsRN, &model.Range{Min: 0, Max: 100, Step: 1}},
	"TargetTemperature":          {characteristic.TypeTargetTemperature, characteristic.FormatFloat, permsRWN, &model.Range{Min: 10, Max: 38, Step: 1}},
	"CurrentHeatingCoolingState": {characteristic.TypeCurrentHeatingCoolingState, characteristic.FormatUInt8, permsRN, &model.Range{Min: 0, Max: 2, Step: 1}},
	"TargetHeatingCoolingState":  {characteristic.TypeTargetHeatingCoolingState, characteristic.FormatUInt8, permsRWN, &model.Range{Min: 0, Max: 3, Step: 1}},
	"TemperatureDisplayUnits":    {characteristic.TypeTemperatureDisplayUnits, characteristic.FormatUInt8, permsRWN, &model.Range{Min: 0, Max: 1, Step: 1}},
	"MotionDetected":             {characteristic.TypeMotionDetected, characteristic.FormatBool, permsRN, nil},
	"ContactSensorState":         {characteristic.TypeContactSensorState, characteristic.FormatUInt8, permsRN, &model.Range{Min: 0, Max: 1, Step: 1}},
}

// LookupCategory returns the advertised category id of a named category.
func LookupCategory(name string) (int, bool) {
	c, ok := categories[name]
	return int(c), ok
}

// LookupService returns the HAP type id of a named service.
func LookupService(name string) (string, bool) {
	typ, ok := serviceTypes[name]
	return typ, ok
}

// LookupCharacteristic returns the catalog entry of a named characteristic.
func LookupCharacteristic(name string) (CharacteristicType, bool) {
	e, ok := characteristicTypes[name]
	if !ok {
		return CharacteristicType{}, false
	}
	f, err := ParseFormat(e.format)
	if err != nil {
		panic(fmt.Sprintf("topology: catalog entry %s: %v", name, err))
	}
	p, err := model.ParsePerms(e.perms)
	if err != nil {
		panic(fmt.Sprintf("topology: catalog entry %s: %v", name, err))
	}
	ct := CharacteristicType{Name: name, Type: e.typ, Format: f, Perms: p}
	if e.rng != nil {
		r := *e.rng
		ct.Range = &r
	}
	return ct, true
}

// ParseFormat accepts a model format name or a HAP format name.
func ParseFormat(name string) (model.Format, error) {
	if f, err := model.ParseFormat(name); err == nil {
		return f, nil
	}
	switch name {
	case characteristic.FormatInt32:
		return model.FormatInt, nil
	case characteristic.FormatUInt8:
		return model.FormatUint8, nil
	case characteristic.FormatUInt16:
		return model.FormatUint16, nil
	case characteristic.FormatUInt32:
		return model.FormatUint32, nil
	case characteristic.FormatUInt64:
		return model.FormatUint64, nil
	}
	return 0, fmt.Errorf("unknown format %q", name)
}
