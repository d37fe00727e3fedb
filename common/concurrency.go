package common

import (
	"log"
	"os"
	"strconv"
)

// ComputeConcurrencyValue returns the default size for the scheduler's
// default executor pool. If GRID_POOL_CONCURRENCY_VALUE is set, it defines
// the pool size directly; otherwise a reasonable size is derived from the
// number of CPUs.
func ComputeConcurrencyValue(numOfCPUs int) int {
	concurrencyValueOverride := os.Getenv("GRID_POOL_CONCURRENCY_VALUE")
	if concurrencyValueOverride != "" {
		val, err := strconv.ParseInt(concurrencyValueOverride, 10, 64)
		if err != nil {
			log.Fatalf("error parsing the env GRID_POOL_CONCURRENCY_VALUE %q failed with error %v",
				concurrencyValueOverride, err)
		}
		return int(val)
	}

	// fix the concurrency value for smaller machines
	if numOfCPUs <= 4 {
		return 32
	}

	// for machines that are extremely powerful, fix to 300 to avoid running out of file descriptors
	if 16*numOfCPUs > 300 {
		return 300
	}

	// for moderately powerful machines, compute a reasonable number
	return 16 * numOfCPUs
}
