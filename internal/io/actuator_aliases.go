package io

import "strings"

const (
	TwoWheelsActuatorAliasName  = "two_wheels"
	PointDriveActuatorAliasName = "point_drive"
)

var actuatorAliases = map[string]string{
	TwoWheelsActuatorAliasName:  DriveActuatorName,
	PointDriveActuatorAliasName: DriveActuatorName,
}

// CanonicalActuatorName maps an alias to its registered actuator name.
// Unknown names are returned trimmed but otherwise unchanged.
func CanonicalActuatorName(name string) string {
	trimmed := strings.TrimSpace(name)
	if canonical, ok := actuatorAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}
