// Package controllers holds the HTTP endpoint handlers for the labeld
// REST surface, grouped by concern and registered through the
// ControllerRegistry.
package controllers
