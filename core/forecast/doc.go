// Package forecast learns expected revenue service hours from reported run
// outcomes. A least-squares line of hours against cumulative mileage is refit
// on every observation; until enough outcomes are known the configured
// default is used.
package forecast
