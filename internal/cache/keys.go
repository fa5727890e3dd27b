package cache

import "time"

const (
	// shipping:zone:country:{CC} -> zone
	KeyZoneByCountry = "shipping:zone:country:%s"

	// shipping:zone:{zone_id} -> zone
	KeyZone = "shipping:zone:%s"

	// shipping:methods:{zone_id} -> every method of the zone
	KeyZoneMethods = "shipping:methods:%s"

	// shipping:method:{method_id} -> method
	KeyMethod = "shipping:method:%s"

	keyShippingPattern = "shipping:*"
)

var TTLShipping = 5 * time.Minute
