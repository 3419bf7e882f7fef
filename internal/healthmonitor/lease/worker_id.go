package lease

import (
	"fmt"
	"os"
	"time"
)

// NewWorkerID builds a process-unique identifier (host + pid + start time)
// used as the lease value, matching the teacher's lock-value convention so
// a stuck lease can be traced back to the process that holds it.
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().Unix())
}
