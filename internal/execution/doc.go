// Package execution schedules virtual users over time. The ramping-vus mode
// interpolates the target VU count between stages and reconciles the live
// VU pool to it on every tick.
package execution
