package strategy

// candidateSizeBytes estimates one retained Candidate's footprint (three
// 8-byte fields plus Go's map/slice bookkeeping overhead), used only to turn
// a memory_limit_mb budget into a concrete entry-count cap.
const candidateSizeBytes = 64

// capSizesForMemoryLimit turns memory_limit_mb into a (topK, pareto) entry
// count budget, split evenly between the two structures, enforcing
// spec.md §4.8's "cap the frontier and top-K sizes proportionally".
func capSizesForMemoryLimit(memoryLimitMB, requestedTopK int) (topK, pareto int) {
	if memoryLimitMB <= 0 {
		return requestedTopK, -1
	}
	totalEntries := int(int64(memoryLimitMB) * 1024 * 1024 / candidateSizeBytes)
	if totalEntries < 2 {
		totalEntries = 2
	}
	half := totalEntries / 2
	topK = half
	if requestedTopK > 0 && requestedTopK < topK {
		topK = requestedTopK
	}
	pareto = totalEntries - half
	return topK, pareto
}
