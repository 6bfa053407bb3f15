package common

// Reference speeds, in km/h.

const SpeedOfWalkingMeanKmh = 4.3
const SpeedOfRunningMeanKmh = 12.0
const SpeedOfCyclingMeanKmh = 19.3
const SpeedOfDrivingCityKmh = 50.0
const SpeedOfDrivingFreewayKmh = 120.0

// SpeedOfCommercialFlightKmh is about as fast as a cat should ever go.
// Anything faster is probably a GPS jump.
const SpeedOfCommercialFlightKmh = 900.0
