package mqtt

import "fmt"

// ProcessedSensorTopic constructs a processed sensor topic for a specific sensor type and location
// Pattern: automation/sensor/{sensor_type}/{location}
func ProcessedSensorTopic(sensorType, location string) string {
	return fmt.Sprintf("automation/sensor/%s/%s", sensorType, location)
}

// LightingContextTopic is where the agent publishes what it did to the light
// Pattern: automation/context/lighting/{location}
func LightingContextTopic(location string) string {
	return fmt.Sprintf("automation/context/lighting/%s", location)
}

// OverrideTopic carries manual override commands for one location
// Pattern: automation/command/thermolight/{location}/override
func OverrideTopic(location string) string {
	return fmt.Sprintf("automation/command/thermolight/%s/override", location)
}

// AvailabilityTopic holds the retained online/offline state of an agent
// Pattern: automation/status/{service}/{location}
func AvailabilityTopic(service, location string) string {
	return fmt.Sprintf("automation/status/%s/%s", service, location)
}
