// Package scheduler triggers periodic planning runs. Runs can be anchored to
// a time of day, so a 24h interval anchored at 21:00 plans every evening
// once revenue service ends.
package scheduler
