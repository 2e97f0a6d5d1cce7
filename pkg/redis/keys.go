package redis

import "fmt"

// Key construction helpers

// LightStateKey returns the key for the last cycle snapshot of a light (hash)
// Pattern: thermolight:state:{location}
func LightStateKey(location string) string {
	return fmt.Sprintf("thermolight:state:%s", location)
}
