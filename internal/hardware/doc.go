// Package hardware resolves the effective CPU count and memory budget the
// rest of the system should plan around, honoring container (cgroup) limits
// and explicit environment overrides. The result is memoized for the process
// lifetime and never fails — every resolution stage has a default.
package hardware
