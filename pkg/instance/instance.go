// Package instance identifies which worker replica is running, for log
// correlation when several drainers share a subscription.
package instance

import "os"

const fallbackID = "worker-0"

// GetID returns the replica identifier from WORKER_ID, or a stable default
// when running outside an orchestrated deployment.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return fallbackID
}
