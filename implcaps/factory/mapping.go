package factory

import (
	"github.com/davrell/hearth/implcaps"
	"github.com/davrell/hearth/implcaps/generic/product_information"
	"github.com/davrell/hearth/implcaps/zcl/iaszone_sensor"
	"github.com/davrell/hearth/implcaps/zcl/occupancy_sensor"
	"github.com/davrell/hearth/implcaps/zcl/onoff_sensor"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/da/capabilities"
)

const GenericProductInformation = "GenericProductInformation"
const ZCLIASZoneSensor = "ZCLIASZoneSensor"
const ZCLOccupancySensor = "ZCLOccupancySensor"
const ZCLOnOffSensor = "ZCLOnOffSensor"

var Mapping = map[string]da.Capability{
	GenericProductInformation: capabilities.ProductInformationFlag,
	ZCLIASZoneSensor:          capabilities.AlarmSensorFlag,
	ZCLOccupancySensor:        capabilities.AlarmSensorFlag,
	ZCLOnOffSensor:            capabilities.OnOffFlag,
}

func Create(name string, iface implcaps.HearthInterface) implcaps.HearthCapability {
	switch name {
	case GenericProductInformation:
		return product_information.NewProductInformation()
	case ZCLIASZoneSensor:
		return iaszone_sensor.NewIASZoneSensor(iface)
	case ZCLOccupancySensor:
		return occupancy_sensor.NewOccupancySensor(iface)
	case ZCLOnOffSensor:
		return onoff_sensor.NewOnOffSensor(iface)
	default:
		return nil
	}
}
